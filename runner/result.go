package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/learnhub/judgecore/envexec"
	"github.com/learnhub/judgecore/sanitize"
)

// TimeLimitMessage is reported instead of the output of a timed out run
const TimeLimitMessage = "Time limit exceeded"

// Result is the outcome of one compile or run. Stderr is sanitized.
type Result struct {
	Stdout        string
	Stderr        string
	ExitCode      *int // nil when the program did not exit on its own
	TimedOut      bool
	CompileFailed bool
	Status        envexec.Status
	Time          time.Duration
	Error         string // internal failure detail, sanitized
}

// Output returns stdout without surrounding white space
func (r Result) Output() string {
	return strings.TrimSpace(r.Stdout)
}

// Failed reports whether the run did not exit normally with code 0.
// Stderr alone fails a run only for languages with StderrFails set.
func (r Result) Failed() bool {
	return r.Status != envexec.StatusAccepted
}

// Message is the sanitized, human readable failure reason
func (r Result) Message() string {
	switch {
	case !r.Failed():
		return ""
	case r.TimedOut:
		return TimeLimitMessage
	case r.Status == envexec.StatusOutputLimitExceeded:
		return "Output limit exceeded"
	case r.Status == envexec.StatusTerminated:
		return "Execution terminated"
	case r.Status == envexec.StatusInternalError:
		if r.Error != "" {
			return r.Error
		}
		return "Internal error"
	case strings.TrimSpace(r.Stderr) != "":
		return strings.TrimSpace(r.Stderr)
	case r.ExitCode != nil:
		return fmt.Sprintf("Process exited with code %d", *r.ExitCode)
	default:
		return r.Status.String()
	}
}

func (r Result) String() string {
	exit := "none"
	if r.ExitCode != nil {
		exit = fmt.Sprint(*r.ExitCode)
	}
	return fmt.Sprintf("Result{Status:%v Exit:%s Time:%v Stdout:(len:%d) Stderr:(len:%d)}",
		r.Status, exit, r.Time, len(r.Stdout), len(r.Stderr))
}

func convertResult(rr envexec.RunnerResult) Result {
	res := Result{
		Stdout: string(rr.Stdout),
		Stderr: sanitize.Sanitize(string(rr.Stderr)),
		Status: rr.Status,
		Time:   rr.Time,
		Error:  sanitize.Sanitize(rr.Error),
	}
	switch rr.Status {
	case envexec.StatusAccepted, envexec.StatusRuntimeError:
		if rr.ExitStatus >= 0 {
			code := rr.ExitStatus
			res.ExitCode = &code
		}
	case envexec.StatusTimeLimitExceeded:
		res.TimedOut = true
	}
	return res
}
