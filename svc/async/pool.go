// Package async runs blocking calls on a fixed set of worker goroutines and
// hands back futures.
package async

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"superpaste/svc/util"
)

var (
	ErrNotStarted = errors.New("pool not started - call Start() first")
	ErrStopped    = errors.New("pool is shutting down")
)

type Pool struct {
	jobs     chan func()
	quit     chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	started  bool
	stopped  bool
	startMu  sync.Mutex
	stopOnce sync.Once
}

// NewPool creates a pool whose queue holds up to queue pending jobs.
func NewPool(queue int) *Pool {
	if queue < 0 {
		queue = 0
	}
	return &Pool{
		jobs: make(chan func(), queue),
		quit: make(chan struct{}),
	}
}

func (p *Pool) Start(workers int) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.started {
		return errors.New("pool already started")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	p.started = true
	return nil
}

// Stop waits for running jobs. Queued jobs that never started fail with
// ErrStopped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		for {
			select {
			case run := <-p.jobs:
				run()
			default:
				return
			}
		}
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case run := <-p.jobs:
			run()
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) enqueue(ctx context.Context, run func()) error {
	p.startMu.Lock()
	started := p.started
	p.startMu.Unlock()
	if !started {
		return ErrNotStarted
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- run:
		return nil
	case <-p.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Future is the eventual outcome of a submitted call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func resolved[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	f.err = err
	close(f.done)
	return f
}

// Done is closed once the outcome is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the call finishes or ctx ends. Giving up on the wait
// does not cancel the call.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on p. fn receives ctx; a panic in fn becomes the
// future's error.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	var once sync.Once
	run := func() {
		once.Do(func() {
			defer close(f.done)
			p.mu.RLock()
			stopped := p.stopped
			p.mu.RUnlock()
			if stopped {
				f.err = ErrStopped
				return
			}
			defer func() {
				if r := recover(); r != nil {
					util.Error().Interface("panic", r).Msg("async job panicked")
					f.err = fmt.Errorf("async job panicked: %v", r)
				}
			}()
			f.val, f.err = fn(ctx)
		})
	}
	if err := p.enqueue(ctx, run); err != nil {
		return resolved[T](err)
	}
	return f
}
