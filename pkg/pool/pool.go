// Package pool provides scoped lifetimes for resources such as locks.
//
// A Pool collects cleanup functions. Destroying the pool destroys its child
// pools first and then runs its own cleanups in reverse registration order,
// so a resource registered on a pool can never outlive it. Cleanup failures
// during teardown are logged and ignored: teardown always completes.
package pool

import (
	"sync"

	"github.com/bashhack/lockmux/internal/common"
	"github.com/bashhack/lockmux/internal/errors"
)

// Cleanup is the token returned by Register. It identifies one registered
// cleanup function on one pool.
type Cleanup struct {
	fn   func() error
	desc string
}

// Pool owns a set of cleanups and child pools
type Pool struct {
	mu        sync.Mutex
	parent    *Pool
	children  []*Pool
	cleanups  []*Cleanup
	destroyed bool
	logger    common.Logger
}

// New creates a pool. A non-nil parent destroys the new pool when it is
// itself destroyed. A nil logger discards teardown warnings.
func New(parent *Pool, logger common.Logger) *Pool {
	if logger == nil {
		if parent != nil {
			logger = parent.logger
		} else {
			logger = common.Nop{}
		}
	}

	p := &Pool{parent: parent, logger: logger}
	if parent != nil {
		parent.mu.Lock()
		defer parent.mu.Unlock()
		if parent.destroyed {
			p.destroyed = true
			return p
		}
		parent.children = append(parent.children, p)
	}
	return p
}

// Register adds fn to the cleanups run at teardown. desc names the resource
// in teardown log messages. Registering on a destroyed pool fails with
// ErrInvalidState.
func (p *Pool) Register(desc string, fn func() error) (*Cleanup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil, errors.Wrap(errors.ErrInvalidState, "pool already destroyed")
	}

	c := &Cleanup{fn: fn, desc: desc}
	p.cleanups = append(p.cleanups, c)
	return c, nil
}

// Kill unregisters c without running it. It reports whether c was still
// registered.
func (p *Pool) Kill(c *Cleanup) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remove(c)
}

// RunCleanup unregisters c and runs it, returning its error. A cleanup that
// is no longer registered is not run again.
func (p *Pool) RunCleanup(c *Cleanup) error {
	p.mu.Lock()
	registered := p.remove(c)
	p.mu.Unlock()

	if !registered {
		return errors.Wrap(errors.ErrInvalidState, "cleanup already run")
	}
	return c.fn()
}

func (p *Pool) remove(c *Cleanup) bool {
	for i, registered := range p.cleanups {
		if registered == c {
			p.cleanups = append(p.cleanups[:i], p.cleanups[i+1:]...)
			return true
		}
	}
	return false
}

// Destroyed reports whether the pool has been torn down
func (p *Pool) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// Logger returns the logger teardown messages go to
func (p *Pool) Logger() common.Logger {
	return p.logger
}

// Clear runs every cleanup and destroys every child pool, leaving the pool
// itself usable.
func (p *Pool) Clear() {
	p.mu.Lock()
	children := p.children
	cleanups := p.cleanups
	p.children = nil
	p.cleanups = nil
	p.mu.Unlock()

	p.teardown(children, cleanups)
}

// Destroy clears the pool and marks it unusable. Destroying a pool twice is
// a no-op.
func (p *Pool) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	children := p.children
	cleanups := p.cleanups
	p.children = nil
	p.cleanups = nil
	p.mu.Unlock()

	p.teardown(children, cleanups)

	if p.parent != nil {
		p.parent.detach(p)
	}
}

func (p *Pool) teardown(children []*Pool, cleanups []*Cleanup) {
	for i := len(children) - 1; i >= 0; i-- {
		children[i].Destroy()
	}

	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		if err := c.fn(); err != nil {
			p.logger.Warning("Cleanup of %s failed during pool teardown: %v", c.desc, err)
		}
	}
}

func (p *Pool) detach(child *Pool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.children {
		if c == child {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}
