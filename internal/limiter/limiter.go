// Package limiter bounds concurrent generations with a fixed admission
// queue, protecting the shared engine from pile-ups.
package limiter

import (
	"context"
	"errors"
	"sync"
)

// ErrFull is returned when every slot is busy and the queue is at capacity.
var ErrFull = errors.New("limiter: queue full")

// Gate admits up to maxActive concurrent holders. When all slots are busy,
// up to maxQueued callers wait their turn; further callers get ErrFull.
type Gate struct {
	slots    chan struct{}
	maxQueue int

	mu      sync.Mutex
	waiting int
}

func New(maxActive, maxQueued int) *Gate {
	return &Gate{
		slots:    make(chan struct{}, maxActive),
		maxQueue: maxQueued,
	}
}

// Acquire claims a slot, waiting in the queue when none is free. It fails
// with ErrFull when the queue is also full, or with the context error when
// the caller gives up first.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	default:
	}

	g.mu.Lock()
	if g.waiting >= g.maxQueue {
		g.mu.Unlock()
		return ErrFull
	}
	g.waiting++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.waiting--
		g.mu.Unlock()
	}()

	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot claimed by Acquire.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
	}
}

// Active reports how many slots are currently held.
func (g *Gate) Active() int {
	return len(g.slots)
}

// Queued reports how many callers are waiting for a slot.
func (g *Gate) Queued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}
