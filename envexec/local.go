package envexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const waitDelay = time.Second

var _ Launcher = &LocalLauncher{}

// LocalLauncher starts programs as host processes in their own process
// group so that the whole group can be killed at once
type LocalLauncher struct {
	env    []string
	logger *zap.Logger
}

// NewLocalLauncher creates a launcher for host processes. env is appended
// to a minimal PATH / HOME environment.
func NewLocalLauncher(env []string, logger *zap.Logger) *LocalLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalLauncher{
		env:    env,
		logger: logger,
	}
}

// Launch starts the process and returns immediately
func (l *LocalLauncher) Launch(ctx context.Context, param LaunchParam) (Process, error) {
	if len(param.Args) == 0 {
		return nil, errors.New("launch: empty args")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(param.Args[0], param.Args[1:]...)
	cmd.Dir = param.WorkDir
	cmd.Env = append(append(baseEnv(), l.env...), param.Env...)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	if param.Stdin != "" {
		f, err := os.Open(param.Stdin)
		if err != nil {
			return nil, fmt.Errorf("launch: open stdin: %w", err)
		}
		// the child holds its own descriptor after start
		defer f.Close()
		cmd.Stdin = f
	}

	p := &localProcess{
		cmd:    cmd,
		done:   make(chan struct{}),
		kill:   make(chan struct{}),
		over:   make(chan struct{}),
		logger: l.logger,
	}
	p.stdout = NewLimitedBuffer(param.OutputLimit, p.outputExceeded)
	p.stderr = NewLimitedBuffer(param.OutputLimit, p.outputExceeded)
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	go p.wait(ctx, start)
	return p, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout *LimitedBuffer
	stderr *LimitedBuffer
	logger *zap.Logger

	done chan struct{}
	kill chan struct{}
	over chan struct{}

	killOnce sync.Once
	overOnce sync.Once
	result   RunnerResult
}

func (p *localProcess) Done() <-chan struct{} {
	return p.done
}

func (p *localProcess) Result() RunnerResult {
	<-p.done
	return p.result
}

func (p *localProcess) Kill() {
	p.killOnce.Do(func() {
		close(p.kill)
	})
}

func (p *localProcess) outputExceeded() {
	p.overOnce.Do(func() {
		close(p.over)
	})
}

func (p *localProcess) wait(ctx context.Context, start time.Time) {
	defer close(p.done)

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- p.cmd.Wait()
	}()

	var (
		err    error
		status Status
	)
	select {
	case err = <-waitCh:
	case <-ctx.Done():
		status = ContextStatus(ctx.Err())
		p.killGroup()
		err = <-waitCh
	case <-p.kill:
		status = StatusTerminated
		p.killGroup()
		err = <-waitCh
	case <-p.over:
		status = StatusOutputLimitExceeded
		p.killGroup()
		err = <-waitCh
	}

	// the group may outlive its leader, kill the leftovers
	p.killGroup()

	r := RunnerResult{
		Status:     status,
		ExitStatus: exitStatus(p.cmd.ProcessState),
		Time:       time.Since(start),
		Stdout:     p.stdout.Bytes(),
		Stderr:     p.stderr.Bytes(),
	}
	if r.Status == StatusInvalid {
		r.Status = p.classify(err)
		if err != nil && r.Status == StatusInternalError {
			r.Error = err.Error()
		}
	}
	p.result = r
}

func (p *localProcess) classify(err error) Status {
	var exitErr *exec.ExitError
	switch {
	case p.stdout.Exceeded() || p.stderr.Exceeded():
		return StatusOutputLimitExceeded
	case err == nil, errors.Is(err, exec.ErrWaitDelay) && p.cmd.ProcessState.Success():
		return StatusAccepted
	case errors.As(err, &exitErr), errors.Is(err, exec.ErrWaitDelay):
		return StatusRuntimeError
	default:
		return StatusInternalError
	}
}

func (p *localProcess) killGroup() {
	if err := killProcessGroup(p.cmd); err != nil {
		p.logger.Debug("kill process group", zap.Error(err))
	}
}

func baseEnv() []string {
	env := []string{"PATH=" + os.Getenv("PATH")}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	}
	return env
}
