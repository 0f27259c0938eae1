package backend

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bashhack/lockmux/internal/errors"
)

// writerWeight is taken by an exclusive holder; readers take 1 each
const writerWeight = math.MaxInt32

// native is the raw per-process lock of a non-global mechanism
type native interface {
	lockShared(block bool) error
	lockExclusive(block bool) error
	unlock() error
}

// guard serializes the goroutines of one process in front of a native lock
// that only excludes other processes. The first in-process reader takes the
// native shared lock and the last one drops it.
type guard struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	readers int
	writer  bool
}

func newGuard() *guard {
	return &guard{sem: semaphore.NewWeighted(writerWeight)}
}

func (g *guard) take(weight int64, block bool) error {
	if !block {
		if !g.sem.TryAcquire(weight) {
			return errors.ErrWouldBlock
		}
		return nil
	}
	// Background never expires, so Acquire only returns once weight is held
	return g.sem.Acquire(context.Background(), weight)
}

func (g *guard) exclusive(n native, block bool) error {
	if err := g.take(writerWeight, block); err != nil {
		return err
	}
	if err := n.lockExclusive(block); err != nil {
		g.sem.Release(writerWeight)
		return err
	}

	g.mu.Lock()
	g.writer = true
	g.mu.Unlock()
	return nil
}

func (g *guard) shared(n native, block bool) error {
	if err := g.take(1, block); err != nil {
		return err
	}

	if block {
		g.mu.Lock()
	} else if !g.mu.TryLock() {
		g.sem.Release(1)
		return errors.ErrWouldBlock
	}
	defer g.mu.Unlock()

	if g.readers == 0 {
		if err := n.lockShared(block); err != nil {
			g.sem.Release(1)
			return err
		}
	}
	g.readers++
	return nil
}

func (g *guard) release(n native) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.writer {
		g.writer = false
		err := n.unlock()
		g.sem.Release(writerWeight)
		return err
	}

	if g.readers == 0 {
		return errors.Wrap(errors.ErrInvalidState, "release without hold")
	}
	g.readers--

	var err error
	if g.readers == 0 {
		err = n.unlock()
	}
	g.sem.Release(1)
	return err
}

// holding reports whether any goroutine of this process holds the lock
func (g *guard) holding() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writer || g.readers > 0
}
