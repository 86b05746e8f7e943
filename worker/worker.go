package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/learnhub/judgecore/runner"
)

const maxWaiting = 512

var (
	errNoRequest = errors.New("worker: request has neither prepare param nor program")
	errShutdown  = errors.New("worker: shut down")
)

// Config defines worker configuration
type Config struct {
	Runner       *runner.Runner
	Parallelism  int
	ExecObserver func(*Request, Response)
}

// Worker bounds the number of compilations and runs on the host
type Worker interface {
	Start()
	// Submit queues req, the response is delivered once on the returned
	// channel
	Submit(context.Context, *Request) <-chan Response
	// Queued is the number of requests waiting for a slot
	Queued() int
	// Busy is the number of requests being processed
	Busy() int
	Shutdown()
}

type worker struct {
	runner      *runner.Runner
	parallelism int
	observe     func(*Request, Response)

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	jobs      chan job
	done      chan struct{}
	busy      atomic.Int32
	stopped   atomic.Bool
}

// job is a queued request with the context of its caller
type job struct {
	ctx   context.Context
	req   *Request
	reply chan<- Response
}

// New creates new worker
func New(conf Config) Worker {
	if conf.Parallelism <= 0 {
		conf.Parallelism = 1
	}
	return &worker{
		runner:      conf.Runner,
		parallelism: conf.Parallelism,
		observe:     conf.ExecObserver,
		jobs:        make(chan job, maxWaiting),
		done:        make(chan struct{}),
	}
}

// Start starts Parallelism loops
func (w *worker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(w.parallelism)
		for range w.parallelism {
			go w.loop()
		}
	})
}

// Submit blocks while the queue is full, until ctx is done
func (w *worker) Submit(ctx context.Context, req *Request) <-chan Response {
	reply := make(chan Response, 1)
	if w.stopped.Load() {
		reply <- Response{RequestID: req.RequestID, Error: errShutdown}
		return reply
	}
	select {
	case w.jobs <- job{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		reply <- Response{RequestID: req.RequestID, Error: ctx.Err()}
	case <-w.done:
		reply <- Response{RequestID: req.RequestID, Error: errShutdown}
	}
	return reply
}

func (w *worker) Queued() int {
	return len(w.jobs)
}

func (w *worker) Busy() int {
	return int(w.busy.Load())
}

// Shutdown stops the loops once their current request is done. Requests
// still queued are answered with an error.
func (w *worker) Shutdown() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		close(w.done)
		w.wg.Wait()
		for {
			select {
			case j := <-w.jobs:
				w.reply(j, Response{Error: errShutdown})
			default:
				return
			}
		}
	})
}

func (w *worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case j := <-w.jobs:
			w.busy.Add(1)
			rt := w.process(j.ctx, j.req)
			w.busy.Add(-1)
			w.reply(j, rt)
		}
	}
}

func (w *worker) reply(j job, rt Response) {
	rt.RequestID = j.req.RequestID
	if w.observe != nil {
		w.observe(j.req, rt)
	}
	j.reply <- rt
}

func (w *worker) process(ctx context.Context, req *Request) Response {
	// the caller gave up while the request was queued
	if err := ctx.Err(); err != nil {
		return Response{Error: err}
	}
	switch {
	case req.Program != nil:
		res, err := req.Program.Exec(ctx, req.Stdin)
		if err != nil {
			return Response{Error: err}
		}
		return Response{Result: &res}

	case req.Prepare != nil:
		prog, failed, err := w.runner.Prepare(ctx, *req.Prepare)
		if err != nil {
			return Response{Error: err}
		}
		if prog != nil {
			return Response{Program: prog, Result: prog.Compile()}
		}
		return Response{Result: failed}

	default:
		return Response{Error: errNoRequest}
	}
}
