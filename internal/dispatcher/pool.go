// Package dispatcher manages worker fan-out over the work queue.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
)

// Runner is a unit of work started by a Pool, typically a *worker.Worker.
type Runner interface {
	Run(ctx context.Context) error
}

// Pool runs a fixed set of runners and reports when all of them have exited.
type Pool struct {
	runners []Runner

	wg      sync.WaitGroup
	done    chan struct{}
	alive   atomic.Int32
	failed  atomic.Int32
	started atomic.Bool
}

// New creates a Pool over the given runners.
func New(runners []Runner) *Pool {
	return &Pool{
		runners: runners,
		done:    make(chan struct{}),
	}
}

// Start launches every runner in its own goroutine. Calling Start twice is a
// no-op.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.alive.Store(int32(len(p.runners)))
	for _, r := range p.runners {
		p.wg.Add(1)
		go func(r Runner) {
			defer p.wg.Done()
			defer p.alive.Add(-1)
			if err := r.Run(ctx); err != nil {
				p.failed.Add(1)
			}
		}(r)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
}

// Size is the number of runners in the pool.
func (p *Pool) Size() int { return len(p.runners) }

// Alive reports how many runners have not exited yet.
func (p *Pool) Alive() int { return int(p.alive.Load()) }

// Failed reports how many runners returned an error.
func (p *Pool) Failed() int { return int(p.failed.Load()) }

// Done is closed once every runner has exited.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Wait blocks until every runner has exited or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
