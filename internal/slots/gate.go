// Package slots bounds how many commands may execute at once.
//
// A Gate is a counting semaphore sized to the number of Execution Slots.
// Connections that never run a subprocess (ping, status, rejected requests)
// never touch it, so the number of open connections and the number of
// running subprocesses are limited independently.
package slots

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by Acquire when no slot frees up within the wait.
var ErrBusy = errors.New("no execution slot available")

// Gate hands out a fixed number of execution slots.
type Gate struct {
	sem   *semaphore.Weighted
	size  int64
	inUse atomic.Int64
	peak  atomic.Int64
}

// New creates a gate with size slots. Sizes below one are raised to one.
func New(size int) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Acquire takes a slot, waiting at most wait for one to become free.
//
// On success it returns a release function. Calling release more than once
// is safe; only the first call frees the slot. On timeout Acquire returns
// ErrBusy; if ctx is cancelled first it returns ctx.Err().
func (g *Gate) Acquire(ctx context.Context, wait time.Duration) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}

	return g.hold(), nil
}

// hold records a newly acquired slot and returns its release function.
func (g *Gate) hold() func() {
	n := g.inUse.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inUse.Add(-1)
			g.sem.Release(1)
		})
	}
}

// InUse returns the number of slots currently held.
func (g *Gate) InUse() int {
	return int(g.inUse.Load())
}

// Peak returns the highest number of slots held at any one time.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}

// Size returns the total number of slots.
func (g *Gate) Size() int {
	return int(g.size)
}
