package envexec

import (
	"context"
	"errors"
	"time"

	"github.com/criyle/go-sandbox/runner"
)

// Size represent data size in bytes, it implements flag.Value so that
// sizes such as 16k or 256m can be configured
type Size = runner.Size

// LaunchParam is parameters to start a process
type LaunchParam struct {
	// Args holds command line arguments, Args[0] is the program
	Args []string

	// Env specifies extra environment variables of the process
	Env []string

	// WorkDir is the directory the process starts in, private to one
	// workspace allocation. Launchers that run inside a container mount
	// only this directory as the container work directory.
	WorkDir string

	// Stdin is the path of the file to use as standard input, empty for no input
	Stdin string

	// Image is the container image, ignored by the local launcher
	Image string

	// OutputLimit caps stdout and stderr each, 0 for no limit
	OutputLimit Size
}

// RunnerResult represent process finish result
type RunnerResult struct {
	Status     Status
	ExitStatus int
	Error      string
	Time       time.Duration
	Stdout     []byte
	Stderr     []byte
}

// Process reference to the running process group
type Process interface {
	Done() <-chan struct{} // Done returns a channel for wait process to exit
	Result() RunnerResult  // Result wait until done and returns RunnerResult
	Kill()                 // Kill terminates the process group, Result reports StatusTerminated
}

// Launcher starts processes. The process is killed when ctx is done, a
// deadline gives StatusTimeLimitExceeded and a cancel StatusTerminated.
type Launcher interface {
	Launch(ctx context.Context, param LaunchParam) (Process, error)
}

// ContextStatus maps the reason a context ended to an execution status
func ContextStatus(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeLimitExceeded
	}
	return StatusTerminated
}
