package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultWorkers bounds how many workspace sessions (and therefore
// subprocesses or HTTP connections) can be live at once.
const DefaultWorkers = 2

var ErrPoolClosed = errors.New("mcp: worker pool closed")

// Pool runs jobs on a fixed set of long-lived goroutines. Do hands a job to a
// free worker and blocks until it finishes; jobs beyond the worker count wait
// for a free worker.
type Pool struct {
	jobs      chan job
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type job struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan error
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	p := &Pool{
		jobs:   make(chan job),
		closed: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Do runs fn on a worker. It returns ctx.Err() if ctx ends before a worker
// accepts the job; once accepted, Do waits for fn to return.
func (p *Pool) Do(ctx context.Context, fn func(context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case <-p.closed:
		return ErrPoolClosed
	default:
	}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrPoolClosed
	}
	return <-j.done
}

// Close stops the workers after in-flight jobs finish. Safe to call twice.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.done <- run(j)
		case <-p.closed:
			return
		}
	}
}

func run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mcp: job panicked: %v", r)
		}
	}()
	j.fn(j.ctx)
	return nil
}
