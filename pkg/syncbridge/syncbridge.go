// Drives asynchronously-dispatched work to completion from blocking call
// sites, on a dedicated pool of worker goroutines.
package syncbridge

import (
	"context"
	"errors"
)

var ErrPoolClosed = errors.New("syncbridge: pool closed")

type job struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// Pool is a fixed set of worker goroutines reserved for BlockOn() calls.
//
// Hazard (caller obligation, not runtime-checked): a function already
// running on a Pool worker must not call BlockOn() on that same Pool.
// Once every worker is occupied by such callers the submission can never be
// picked up and all of them deadlock. Either reserve a Pool exclusively for
// bridged calls, or only call BlockOn() from goroutines outside the Pool.
type Pool struct {
	jobs chan job
	stop chan struct{}
}

func New(workers int) *Pool {
	p := &Pool{
		jobs: make(chan job),
		stop: make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		go p.runOneWorker()
	}

	return p
}

// BlockOn submits run to a worker and blocks the calling goroutine until it
// resolves, returning its result. ctx aborts the submission if no worker
// becomes available; once running, cancellation is run's own business (it
// receives the same ctx).
func (p *Pool) BlockOn(ctx context.Context, run func(ctx context.Context) error) error {
	select {
	case <-p.stop:
		return ErrPoolClosed
	default:
	}

	j := job{
		ctx:  ctx,
		run:  run,
		done: make(chan error, 1),
	}

	select {
	case p.jobs <- j:
	case <-p.stop:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-j.done
}

// Close stops the workers. jobs already picked up run to completion;
// subsequent BlockOn() calls fail with ErrPoolClosed.
func (p *Pool) Close() {
	close(p.stop)
}

func (p *Pool) runOneWorker() {
	for {
		select {
		case j := <-p.jobs:
			j.done <- j.run(j.ctx)
		case <-p.stop:
			return
		}
	}
}
