package orchestrator

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrDispatcherClosed is returned once Shutdown has been called.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Dispatcher runs background work detached from request lifetimes, with
// at most max tasks in flight.
type Dispatcher struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher allowing max concurrent tasks.
func NewDispatcher(max int64) *Dispatcher {
	if max < 1 {
		max = 1
	}
	return &Dispatcher{sem: semaphore.NewWeighted(max)}
}

// Go schedules fn. It returns immediately; fn waits for a free slot.
func (d *Dispatcher) Go(fn func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		// Background is never cancelled so Acquire only fails on misuse.
		if err := d.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		fn()
	}()
	return nil
}

// Wait blocks until every scheduled task has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting work and waits for running tasks or ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
