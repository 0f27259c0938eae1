//go:build unix

package backend

import (
	"os"

	"github.com/gofrs/flock"

	"github.com/bashhack/lockmux/internal/errors"
)

// Flock takes whole-file advisory locks on a backing file. A flock belongs
// to one open file description; every lock uses a single description, so
// goroutines of one process are serialized by a guard in front of it.
var Flock Method = flockMethod{}

type flockMethod struct{}

func (flockMethod) Mech() Mech       { return MechFlock }
func (flockMethod) Caps() Caps       { return CapProcess | CapReadWrite | CapNamed }
func (flockMethod) Probe(*Env) error { return nil }

func (flockMethod) Create(env *Env, name string) (Handle, error) {
	path, err := env.backingPath(name)
	if err != nil {
		return nil, err
	}

	// Create the file up front so permission problems surface here and not
	// on the first acquire
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, env.Perm)
	if err != nil {
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}
	if err := file.Close(); err != nil {
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}

	return &flockHandle{fl: flock.New(path), path: path, guard: newGuard()}, nil
}

// Attach opens a new description of the backing file: the one inherited
// from the parent would share the parent's lock.
func (flockMethod) Attach(_ *Env, ref Ref) (Handle, error) {
	if _, err := os.Stat(ref.Name); err != nil {
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}

	return &flockHandle{fl: flock.New(ref.Name), path: ref.Name, guard: newGuard()}, nil
}

type flockHandle struct {
	fl    *flock.Flock
	path  string
	guard *guard
}

func (h *flockHandle) lockShared(block bool) error {
	if block {
		return errors.Translate(h.fl.RLock(), errors.ErrInvalidState)
	}
	ok, err := h.fl.TryRLock()
	if err != nil {
		return errors.Translate(err, errors.ErrInvalidState)
	}
	if !ok {
		return errors.ErrWouldBlock
	}
	return nil
}

func (h *flockHandle) lockExclusive(block bool) error {
	if block {
		return errors.Translate(h.fl.Lock(), errors.ErrInvalidState)
	}
	ok, err := h.fl.TryLock()
	if err != nil {
		return errors.Translate(err, errors.ErrInvalidState)
	}
	if !ok {
		return errors.ErrWouldBlock
	}
	return nil
}

func (h *flockHandle) unlock() error {
	return errors.Translate(h.fl.Unlock(), errors.ErrInvalidState)
}

func (h *flockHandle) Acquire() error         { return h.guard.exclusive(h, true) }
func (h *flockHandle) TryAcquire() error      { return h.guard.exclusive(h, false) }
func (h *flockHandle) AcquireRead() error     { return h.guard.shared(h, true) }
func (h *flockHandle) TryAcquireRead() error  { return h.guard.shared(h, false) }
func (h *flockHandle) AcquireWrite() error    { return h.Acquire() }
func (h *flockHandle) TryAcquireWrite() error { return h.TryAcquire() }
func (h *flockHandle) Release() error         { return h.guard.release(h) }

func (h *flockHandle) Destroy(remove bool) error {
	var err error
	if closeErr := h.fl.Close(); closeErr != nil {
		err = errors.Translate(closeErr, errors.ErrInvalidState)
	}

	if remove {
		if removeErr := removeBacking(h.path); removeErr != nil && err == nil {
			err = removeErr
		}
	}
	return err
}

func (h *flockHandle) Ref() Ref {
	return Ref{Mech: MechFlock, Name: h.path}
}
