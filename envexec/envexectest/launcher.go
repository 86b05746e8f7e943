// Package envexectest provides an in-process launcher for tests that need
// to script program behaviour without spawning processes.
package envexectest

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/learnhub/judgecore/envexec"
)

// Handler produces the result of a launched program. stdin holds the
// content of the stdin file. Handlers that block must return once ctx is
// done.
type Handler func(ctx context.Context, param envexec.LaunchParam, stdin []byte) envexec.RunnerResult

// Launcher runs Handler in a goroutine for each launch
type Launcher struct {
	Handler Handler

	mu       sync.Mutex
	launched []envexec.LaunchParam
	live     atomic.Int64
}

var _ envexec.Launcher = &Launcher{}

// New creates a launcher with handler h
func New(h Handler) *Launcher {
	return &Launcher{Handler: h}
}

// Launch implements envexec.Launcher
func (l *Launcher) Launch(ctx context.Context, param envexec.LaunchParam) (envexec.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stdin []byte
	if param.Stdin != "" {
		b, err := os.ReadFile(param.Stdin)
		if err != nil {
			return nil, err
		}
		stdin = b
	}

	l.mu.Lock()
	l.launched = append(l.launched, param)
	l.mu.Unlock()
	l.live.Add(1)

	p := &process{
		done: make(chan struct{}),
		kill: make(chan struct{}),
	}
	hctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(p.done)
		defer l.live.Add(-1)
		defer cancel()

		resCh := make(chan envexec.RunnerResult, 1)
		go func() {
			resCh <- l.Handler(hctx, param, stdin)
		}()
		select {
		case r := <-resCh:
			p.result = r
		case <-ctx.Done():
			p.result = envexec.RunnerResult{Status: envexec.ContextStatus(ctx.Err()), ExitStatus: -1}
		case <-p.kill:
			p.result = envexec.RunnerResult{Status: envexec.StatusTerminated, ExitStatus: -1}
		}
	}()
	return p, nil
}

// Launched returns the parameters of every launch so far
func (l *Launcher) Launched() []envexec.LaunchParam {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]envexec.LaunchParam(nil), l.launched...)
}

// Live returns the number of processes not yet finished
func (l *Launcher) Live() int {
	return int(l.live.Load())
}

type process struct {
	done     chan struct{}
	kill     chan struct{}
	killOnce sync.Once
	result   envexec.RunnerResult
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Result() envexec.RunnerResult {
	<-p.done
	return p.result
}

func (p *process) Kill() {
	p.killOnce.Do(func() {
		close(p.kill)
	})
}

// Exit builds the result of a program exiting with code
func Exit(code int, stdout, stderr string) envexec.RunnerResult {
	status := envexec.StatusAccepted
	if code != 0 {
		status = envexec.StatusRuntimeError
	}
	return envexec.RunnerResult{
		Status:     status,
		ExitStatus: code,
		Stdout:     []byte(stdout),
		Stderr:     []byte(stderr),
	}
}

// Hang blocks until ctx is done, like a program that never terminates
func Hang(ctx context.Context) envexec.RunnerResult {
	<-ctx.Done()
	return envexec.RunnerResult{Status: envexec.ContextStatus(ctx.Err()), ExitStatus: -1}
}
