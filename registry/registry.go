// Package registry keeps at most one running execution per submitter key.
// Starting a new execution for a key cancels and waits for the previous one.
package registry

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/learnhub/judgecore/envexec"
	"github.com/learnhub/judgecore/pkg/keymutex"
	"github.com/learnhub/judgecore/runner"
	"github.com/learnhub/judgecore/workspace"
	"go.uber.org/zap"
)

// Cancellation causes reported by Handle.Err
var (
	ErrSuperseded = errors.New("superseded by a newer execution")
	ErrTerminated = errors.New("terminated on request")
)

var _ runner.Tracker = &Handle{}

// Registry maps submitter keys to their running execution
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Handle
	locks   *keymutex.KeyMutex
	logger  *zap.Logger
}

// New creates an empty registry
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*Handle),
		locks:   keymutex.New(),
		logger:  logger,
	}
}

// Start registers a new execution for key. A running execution of the
// same key is cancelled, its processes killed, and Start waits until it
// has finished before registering the new one.
func (r *Registry) Start(ctx context.Context, key string) (*Handle, error) {
	unlock := r.locks.Lock(key)
	defer unlock()

	if prev := r.get(key); prev != nil {
		r.logger.Info("superseding running execution", zap.String("key", key))
		if err := r.stopAndWait(ctx, prev, ErrSuperseded); err != nil {
			return nil, err
		}
	}

	hctx, cancel := context.WithCancelCause(ctx)
	h := &Handle{
		r:      r,
		key:    key,
		ctx:    hctx,
		cancel: cancel,
		done:   make(chan struct{}),
		procs:  make(map[envexec.Process]workspace.Paths),
	}
	r.mu.Lock()
	r.entries[key] = h
	r.mu.Unlock()
	return h, nil
}

// Terminate kills the running execution of key and waits for it to
// finish, or for ctx. It reports whether there was one.
func (r *Registry) Terminate(ctx context.Context, key string) bool {
	unlock := r.locks.Lock(key)
	defer unlock()

	h := r.get(key)
	if h == nil {
		return false
	}
	r.logger.Info("terminating running execution", zap.String("key", key))
	if err := r.stopAndWait(ctx, h, ErrTerminated); err != nil {
		r.logger.Warn("terminate did not finish", zap.String("key", key), zap.Error(err))
	}
	return true
}

// Running returns the keys with a running execution
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := make([]string, 0, len(r.entries))
	for k := range r.entries {
		rt = append(rt, k)
	}
	slices.Sort(rt)
	return rt
}

// Len returns the number of running executions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) get(key string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key]
}

func (r *Registry) stopAndWait(ctx context.Context, h *Handle, cause error) error {
	h.stop(cause)
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.remove(h)
	return nil
}

// remove drops the entry only when h still owns the key
func (r *Registry) remove(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[h.key] == h {
		delete(r.entries, h.key)
	}
}

// Handle is one registered execution
type Handle struct {
	r      *Registry
	key    string
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	finishOnce sync.Once

	mu    sync.Mutex
	procs map[envexec.Process]workspace.Paths
}

// Key returns the submitter key
func (h *Handle) Key() string {
	return h.key
}

// Context is cancelled when the execution is superseded or terminated
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Err returns ErrSuperseded or ErrTerminated once the execution was
// stopped by the registry, the context error if the caller went away,
// nil otherwise
func (h *Handle) Err() error {
	if h.ctx.Err() == nil {
		return nil
	}
	return context.Cause(h.ctx)
}

// Attach records a live process. A process attached after the execution
// was stopped is killed at once.
func (h *Handle) Attach(p envexec.Process, paths workspace.Paths) {
	h.mu.Lock()
	h.procs[p] = paths
	h.mu.Unlock()
	if h.ctx.Err() != nil {
		p.Kill()
	}
}

// Detach forgets a finished process
func (h *Handle) Detach(p envexec.Process) {
	h.mu.Lock()
	delete(h.procs, p)
	h.mu.Unlock()
}

// Finish marks the execution finished and unregisters it. The caller
// releases its workspace before calling Finish.
func (h *Handle) Finish() {
	h.finishOnce.Do(func() {
		h.cancel(nil)
		close(h.done)
		h.r.remove(h)
	})
}

func (h *Handle) stop(cause error) {
	h.cancel(cause)
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.procs {
		p.Kill()
	}
}
