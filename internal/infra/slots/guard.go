// Package slots implements the counted permission to run headless browsers.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidCapacity is returned by New for a capacity below one.
var ErrInvalidCapacity = errors.New("slot capacity must be >= 1")

// Guard is a counting semaphore. A slot is taken by sending into sem and
// returned by receiving from it, so blocked waiters are handed free slots in
// the order they started waiting.
type Guard struct {
	sem chan struct{}

	inUse    atomic.Int64
	waiting  atomic.Int64
	peak     atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
}

// Stats is a point-in-time snapshot of the guard.
type Stats struct {
	Capacity int   `json:"capacity"`
	InUse    int64 `json:"in_use"`
	Waiting  int64 `json:"waiting"`
	Peak     int64 `json:"peak"`
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
}

// Slot is one held permission. Release is safe to call more than once.
type Slot struct {
	guard      *Guard
	once       sync.Once
	AcquiredAt time.Time
	Waited     time.Duration
}

// New creates a guard with the given number of slots.
func New(capacity int) (*Guard, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &Guard{sem: make(chan struct{}, capacity)}, nil
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Guard) Acquire(ctx context.Context) (*Slot, error) {
	start := time.Now()

	// Fast path keeps the waiting gauge accurate for uncontended acquisitions.
	select {
	case g.sem <- struct{}{}:
		return g.hold(start), nil
	default:
	}

	g.waiting.Add(1)
	defer g.waiting.Add(-1)

	select {
	case g.sem <- struct{}{}:
		return g.hold(start), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("capture slot wait canceled: %w", ctx.Err())
	}
}

func (g *Guard) hold(start time.Time) *Slot {
	n := g.inUse.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.acquired.Add(1)
	now := time.Now()
	return &Slot{guard: g, AcquiredAt: now, Waited: now.Sub(start)}
}

// Release returns the slot to the guard. Only the first call has an effect.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.guard.inUse.Add(-1)
		s.guard.released.Add(1)
		<-s.guard.sem
	})
}

// Do runs fn while holding a slot and releases it on every exit path, including panics.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	slot, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer slot.Release()
	return fn(ctx)
}

// Capacity returns the configured number of slots.
func (g *Guard) Capacity() int {
	return cap(g.sem)
}

// Stats returns current counters.
func (g *Guard) Stats() Stats {
	return Stats{
		Capacity: cap(g.sem),
		InUse:    g.inUse.Load(),
		Waiting:  g.waiting.Load(),
		Peak:     g.peak.Load(),
		Acquired: g.acquired.Load(),
		Released: g.released.Load(),
	}
}
