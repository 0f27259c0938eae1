package lock

import (
	"os"

	"github.com/bashhack/lockmux/internal/backend"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/pkg/pool"
)

// ChildInit rejoins, in a child process, the lock a parent described with
// h. The process half is re-attached to the parent's native state (the
// backing file is reopened or remapped, a semaphore identifier revalidated);
// the thread half of a Both lock starts fresh, since no goroutine of the
// child holds it. The returned lock is unheld and never removes the shared
// state when destroyed.
//
// ChildInit must run before the child's first operation on the lock.
func ChildInit(e *Env, p *pool.Pool, h Handle) (*Lock, error) {
	inter, intra, err := e.resolve(h.Kind, h.Scope, options{mech: h.Mech})
	if err != nil {
		return nil, errors.NewLockError("child_init", h.Mech.String(), h.Name, err)
	}

	attach := func(method backend.Method, _ string) (backend.Handle, error) {
		if method == inter {
			return method.Attach(e.backend, h.ref())
		}
		return method.Attach(e.backend, backend.Ref{Mech: method.Mech()})
	}

	return newLock(e, p, h.Kind, h.Scope, inter, intra, options{name: h.Name, mech: h.Mech, attached: true}, attach)
}

// ChildInitFromEnv is ChildInit with the Handle read from HandleEnv
func ChildInitFromEnv(e *Env, p *pool.Pool) (*Lock, error) {
	s, ok := os.LookupEnv(HandleEnv)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidConfiguration, "%s is not set", HandleEnv)
	}
	h, err := ParseHandle(s)
	if err != nil {
		return nil, err
	}
	return ChildInit(e, p, h)
}
