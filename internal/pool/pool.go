// Package pool runs request handling on a bounded set of worker goroutines.
//
// A pool keeps min workers alive for its whole lifetime and grows on demand
// up to max. Workers above min exit once they have been idle for the idle
// timeout. Callers hand work to a worker with Do and block until it returns,
// so a request runs start to finish inside one worker.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Do once Close has been called.
var ErrClosed = errors.New("pool: closed")

type task struct {
	fn   func()
	done chan any
}

// Pool is a bounded, elastic worker pool.
type Pool struct {
	min  int
	max  int
	idle time.Duration

	tasks chan task
	slots *semaphore.Weighted
	quit  chan struct{}

	workers atomic.Int64
	busy    atomic.Int64

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a pool with min permanent workers and at most max workers.
// Out of range sizes are clamped: min to zero, max to at least one and to
// no less than min.
func New(min, max int, idle time.Duration) *Pool {
	if min < 0 {
		min = 0
	}
	if max < 1 {
		max = 1
	}
	if max < min {
		max = min
	}

	p := &Pool{
		min:   min,
		max:   max,
		idle:  idle,
		tasks: make(chan task),
		slots: semaphore.NewWeighted(int64(max)),
		quit:  make(chan struct{}),
	}
	for range min {
		p.slots.TryAcquire(1)
		p.start(true, nil)
	}
	return p
}

// Do runs fn on a worker and waits for it to return. If the caller's context
// ends while fn is still queued, Do returns ctx.Err() and fn never runs.
// A panic in fn is re-raised in the caller's goroutine.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	select {
	case <-p.quit:
		return ErrClosed
	default:
	}

	t := task{fn: fn, done: make(chan any, 1)}

	select {
	case p.tasks <- t:
	default:
		if p.slots.TryAcquire(1) {
			// The new worker runs t before taking anything from the queue.
			p.start(false, &t)
			break
		}
		select {
		case p.tasks <- t:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.quit:
			return ErrClosed
		}
	}

	if r := <-t.done; r != nil {
		panic(r)
	}
	return nil
}

// Workers returns the number of live workers.
func (p *Pool) Workers() int {
	return int(p.workers.Load())
}

// Busy returns the number of workers currently running a task.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Max returns the worker limit.
func (p *Pool) Max() int {
	return p.max
}

// Close stops accepting work and waits for running tasks to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

func (p *Pool) start(core bool, first *task) {
	p.workers.Add(1)
	p.wg.Add(1)
	go p.work(core, first)
}

func (p *Pool) work(core bool, first *task) {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	// Core workers never expire; a nil channel blocks forever.
	var expired <-chan time.Time
	var timer *time.Timer
	if !core {
		defer p.slots.Release(1)
		timer = time.NewTimer(p.idle)
		defer timer.Stop()
		expired = timer.C
	}

	if first != nil {
		p.run(*first)
		if timer != nil {
			timer.Reset(p.idle)
		}
	}

	for {
		select {
		case t := <-p.tasks:
			p.run(t)
			if timer != nil {
				timer.Reset(p.idle)
			}
		case <-expired:
			return
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) run(t task) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		t.done <- recover()
	}()
	t.fn()
}
