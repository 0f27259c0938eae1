package lock

import (
	"sync"

	"github.com/petermattis/goid"

	"github.com/bashhack/lockmux/internal/backend"
	"github.com/bashhack/lockmux/internal/common"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/pkg/pool"
)

var errDestroyed = errors.Wrap(errors.ErrInvalidState, "lock already destroyed")

// binding pairs a method with the native state it created
type binding struct {
	method backend.Method
	handle backend.Handle
}

// Lock is a lock of one kind and scope, backed by one mechanism or, for
// Both, by a thread mechanism stacked in front of a process mechanism.
//
// Its lifetime is bounded by the pool it was created on: destroying the pool
// destroys the lock. A Lock must not be destroyed while another goroutine is
// still operating on it.
type Lock struct {
	env     *Env
	pool    *pool.Pool
	cleanup *pool.Cleanup
	logger  common.Logger

	kind  Kind
	scope Scope

	// primary is set for single-scope locks, inter and intra for Both
	primary *binding
	inter   *binding
	intra   *binding

	name     string
	persist  bool
	attached bool

	mu        sync.Mutex
	held      int
	owner     int64
	readers   int
	destroyed bool

	// shared holds per goroutine, kept only when recursive()
	readOwners map[int64]int
}

// New creates a lock of kind and scope whose lifetime is bounded by p
func (e *Env) New(p *pool.Pool, kind Kind, scope Scope, opts ...Option) (*Lock, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	inter, intra, err := e.resolve(kind, scope, o)
	if err != nil {
		return nil, errors.NewLockError("create", o.mech.String(), o.name, err)
	}

	create := func(method backend.Method, name string) (backend.Handle, error) {
		return method.Create(e.backend, name)
	}
	return newLock(e, p, kind, scope, inter, intra, o, create)
}

// newLock builds the bindings of a lock with create, registers the lock on
// p and tears the bindings down again if anything fails.
func newLock(e *Env, p *pool.Pool, kind Kind, scope Scope, inter, intra backend.Method, o options,
	create func(backend.Method, string) (backend.Handle, error)) (*Lock, error) {
	l := &Lock{
		env:      e,
		pool:     p,
		logger:   e.logger,
		kind:     kind,
		scope:    scope,
		persist:  o.persist,
		attached: o.attached,
	}

	mech := MechDefault
	switch {
	case inter != nil:
		mech = inter.Mech()
	case intra != nil:
		mech = intra.Mech()
	}
	if p == nil {
		return nil, errors.NewLockError("create", mech.String(), o.name, errors.Wrap(errors.ErrInvalidConfiguration, "a pool is required"))
	}
	if p.Destroyed() {
		return nil, errors.NewLockError("create", mech.String(), o.name, errors.Wrap(errors.ErrInvalidState, "pool already destroyed"))
	}

	var created []*binding
	abort := func(err error) (*Lock, error) {
		for i := len(created) - 1; i >= 0; i-- {
			if derr := created[i].handle.Destroy(!o.persist && !o.attached); derr != nil {
				l.logger.Warning("Failed to destroy partially created %s lock: %v", created[i].method.Mech(), derr)
			}
		}
		return nil, errors.NewLockError("create", mech.String(), o.name, err)
	}

	for _, method := range []backend.Method{inter, intra} {
		if method == nil {
			continue
		}
		name := ""
		if method.Caps().Has(CapNamed) {
			name = o.name
		}
		h, err := create(method, name)
		if err != nil {
			return abort(err)
		}
		b := &binding{method: method, handle: h}
		created = append(created, b)

		switch {
		case scope != Both:
			l.primary = b
		case method == inter:
			l.inter = b
		default:
			l.intra = b
		}
	}

	if b := l.process(); b != nil {
		l.name = b.handle.Ref().Name
	}

	c, err := p.Register(l.describe(), l.destroy)
	if err != nil {
		return abort(err)
	}
	l.cleanup = c

	l.logger.Info("Created %s", l.describe())
	return l, nil
}

func (l *Lock) describe() string {
	d := l.kind.String() + " " + l.scope.String() + " lock via " + l.Mech().String()
	if l.name != "" {
		d += " at " + l.name
	}
	return d
}

// process returns the process-scoped binding, or nil for ThreadOnly locks
func (l *Lock) process() *binding {
	switch l.scope {
	case Both:
		return l.inter
	case ProcessOnly:
		return l.primary
	}
	return nil
}

// chain returns the bindings in acquisition order: the thread half of a
// composite lock always comes before the process half.
func (l *Lock) chain() []*binding {
	if l.scope == Both {
		return []*binding{l.intra, l.inter}
	}
	return []*binding{l.primary}
}

// recursive reports whether exclusive holds are owned by a goroutine and may
// be re-entered by it
func (l *Lock) recursive() bool {
	return l.scope == ThreadOnly || l.scope == Both
}

// Kind returns the kind the lock was created with
func (l *Lock) Kind() Kind { return l.kind }

// Scope returns the scope the lock was created with
func (l *Lock) Scope() Scope { return l.scope }

// Name returns the backing file path, or "" for mechanisms without one
func (l *Lock) Name() string { return l.name }

// Mech returns the process mechanism, or the thread mechanism of a
// ThreadOnly lock
func (l *Lock) Mech() Mech {
	if b := l.process(); b != nil {
		return b.method.Mech()
	}
	if l.primary != nil {
		return l.primary.method.Mech()
	}
	return MechDefault
}

// Held reports whether any goroutine of this process holds the lock
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held > 0 || l.readers > 0
}

// Acquire blocks until the lock is held exclusively. On a ReadWrite lock it
// takes the write hold.
func (l *Lock) Acquire() error { return l.lock("acquire", false, true) }

// TryAcquire is Acquire without blocking; a held lock fails with
// ErrWouldBlock.
func (l *Lock) TryAcquire() error { return l.lock("tryacquire", false, false) }

// AcquireRead blocks until a shared hold is granted. Only ReadWrite locks
// have shared holds. On ThreadOnly and Both locks a goroutine holding a
// shared hold that asks for an exclusive one fails with ErrDeadlock. On
// ProcessOnly locks holds are not tied to goroutines, so that request
// blocks until the shared hold is released elsewhere.
func (l *Lock) AcquireRead() error { return l.lock("acquire_read", true, true) }

// TryAcquireRead is AcquireRead without blocking
func (l *Lock) TryAcquireRead() error { return l.lock("tryacquire_read", true, false) }

// AcquireWrite blocks until the lock is held exclusively against readers
// and writers
func (l *Lock) AcquireWrite() error { return l.lock("acquire_write", false, true) }

// TryAcquireWrite is AcquireWrite without blocking
func (l *Lock) TryAcquireWrite() error { return l.lock("tryacquire_write", false, false) }

func (l *Lock) lock(op string, shared, block bool) error {
	if shared && l.kind != ReadWrite {
		return l.fail(op, errors.Wrap(errors.ErrInvalidState, "shared holds need a read-write lock"))
	}
	var me int64
	if l.recursive() {
		me = goid.Get()
	}

	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return l.fail(op, errDestroyed)
	}
	if l.recursive() {
		switch {
		case l.held > 0 && l.owner == me:
			if shared {
				l.mu.Unlock()
				return l.fail(op, errors.Wrap(errors.ErrDeadlock, "shared acquire while holding the lock exclusively"))
			}
			l.held++
			l.mu.Unlock()
			return nil
		case !shared && l.readOwners[me] > 0:
			l.mu.Unlock()
			return l.fail(op, errors.Wrap(errors.ErrDeadlock, "exclusive acquire while holding a shared hold"))
		}
	}
	l.mu.Unlock()

	if err := l.acquireChain(shared, block); err != nil {
		return l.fail(op, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return l.fail(op, errDestroyed)
	}
	if shared {
		l.readers++
		if l.recursive() {
			if l.readOwners == nil {
				l.readOwners = make(map[int64]int)
			}
			l.readOwners[me]++
		}
	} else {
		l.held = 1
		l.owner = me
	}
	return nil
}

// acquireChain takes every binding in order. If one fails the ones already
// taken are released in reverse, so no partial hold survives.
func (l *Lock) acquireChain(shared, block bool) error {
	chain := l.chain()
	for i, b := range chain {
		if err := take(b.handle, shared, block); err != nil {
			for j := i - 1; j >= 0; j-- {
				if uerr := chain[j].handle.Release(); uerr != nil {
					l.logger.Warning("Failed to unwind %s hold: %v", chain[j].method.Mech(), uerr)
				}
			}
			return err
		}
	}
	return nil
}

func take(h backend.Handle, shared, block bool) error {
	switch {
	case shared && block:
		return h.AcquireRead()
	case shared:
		return h.TryAcquireRead()
	case block:
		return h.AcquireWrite()
	}
	return h.TryAcquireWrite()
}

// releaseChain releases every binding in reverse acquisition order. Every
// binding is released even when an earlier one fails.
func (l *Lock) releaseChain() error {
	chain := l.chain()
	var errs []error
	for i := len(chain) - 1; i >= 0; i-- {
		if err := chain[i].handle.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Release drops the calling goroutine's hold. A recursive exclusive hold is
// only released natively when the last level is released. On ThreadOnly and
// Both locks only the owning goroutine may release an exclusive hold.
func (l *Lock) Release() error {
	var me int64
	if l.recursive() {
		me = goid.Get()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return l.fail("release", errDestroyed)
	}

	switch {
	case l.held > 0:
		if l.recursive() && l.owner != me {
			return l.fail("release", errors.Wrap(errors.ErrInvalidState, "lock is held by another goroutine"))
		}
		l.held--
		if l.held > 0 {
			return nil
		}
		l.owner = 0
	case l.readers > 0:
		l.readers--
		l.dropReader(me)
	default:
		return l.fail("release", errors.Wrap(errors.ErrInvalidState, "release without hold"))
	}

	if err := l.releaseChain(); err != nil {
		return l.fail("release", err)
	}
	return nil
}

// dropReader forgets one shared hold, the caller's if it has one. Shared
// holds may be released by any goroutine.
func (l *Lock) dropReader(me int64) {
	if _, ok := l.readOwners[me]; !ok {
		for id := range l.readOwners {
			me = id
			break
		}
	}
	if l.readOwners[me] <= 1 {
		delete(l.readOwners, me)
		return
	}
	l.readOwners[me]--
}

// Destroy releases any hold still active, frees the native state and
// removes the backing file unless the lock was created to persist. A lock
// attached by ChildInit never removes shared state. Destroying twice fails
// with ErrInvalidState.
func (l *Lock) Destroy() error {
	l.pool.Kill(l.cleanup)
	return l.destroy()
}

func (l *Lock) destroy() error {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return l.fail("destroy", errDestroyed)
	}
	l.destroyed = true
	holds := l.readers
	if l.held > 0 {
		holds++
	}
	l.held, l.readers, l.owner = 0, 0, 0
	l.readOwners = nil
	l.mu.Unlock()

	var errs []error
	for ; holds > 0; holds-- {
		if err := l.releaseChain(); err != nil {
			errs = append(errs, err)
		}
	}

	remove := !l.persist && !l.attached
	chain := l.chain()
	for i := len(chain) - 1; i >= 0; i-- {
		if err := chain[i].handle.Destroy(remove); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return l.fail("destroy", err)
	}
	l.logger.Info("Destroyed %s", l.describe())
	return nil
}

func (l *Lock) fail(op string, err error) error {
	return errors.NewLockError(op, l.Mech().String(), l.name, err)
}
