//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package backend

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bashhack/lockmux/internal/errors"
)

// Fcntl locks byte 0 of a backing file with POSIX record locks. Record
// locks belong to the process, so goroutines of one process are serialized
// by a guard in front of the native lock.
//
// The guard belongs to one handle. Two handles on the same path in one
// process do not exclude each other, and closing either descriptor drops
// every record lock the process holds on the file. Use one lock per path
// per process, or flock.
var Fcntl Method = fcntlMethod{}

type fcntlMethod struct{}

func (fcntlMethod) Mech() Mech       { return MechFcntl }
func (fcntlMethod) Caps() Caps       { return CapProcess | CapReadWrite | CapNamed }
func (fcntlMethod) Probe(*Env) error { return nil }

func (fcntlMethod) Create(env *Env, name string) (Handle, error) {
	path, err := env.backingPath(name)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, env.Perm)
	if err != nil {
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}

	return &fcntlHandle{file: file, path: path, guard: newGuard()}, nil
}

// Attach reopens the backing file. Record locks are never inherited by
// another process, so the new descriptor starts unlocked.
func (fcntlMethod) Attach(_ *Env, ref Ref) (Handle, error) {
	file, err := os.OpenFile(ref.Name, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}

	return &fcntlHandle{file: file, path: ref.Name, guard: newGuard()}, nil
}

type fcntlHandle struct {
	file  *os.File
	path  string
	guard *guard
}

func (h *fcntlHandle) setlk(typ int16, block bool) error {
	lk := unix.Flock_t{
		Type:   typ,
		Whence: io.SeekStart,
		Start:  0,
		Len:    1,
	}

	cmd := unix.F_SETLK
	if block {
		cmd = unix.F_SETLKW
	}

	if err := unix.FcntlFlock(h.file.Fd(), cmd, &lk); err != nil {
		return errors.Translate(err, errors.ErrInvalidState)
	}
	return nil
}

func (h *fcntlHandle) lockShared(block bool) error    { return h.setlk(unix.F_RDLCK, block) }
func (h *fcntlHandle) lockExclusive(block bool) error { return h.setlk(unix.F_WRLCK, block) }
func (h *fcntlHandle) unlock() error                  { return h.setlk(unix.F_UNLCK, false) }

func (h *fcntlHandle) Acquire() error         { return h.guard.exclusive(h, true) }
func (h *fcntlHandle) TryAcquire() error      { return h.guard.exclusive(h, false) }
func (h *fcntlHandle) AcquireRead() error     { return h.guard.shared(h, true) }
func (h *fcntlHandle) TryAcquireRead() error  { return h.guard.shared(h, false) }
func (h *fcntlHandle) AcquireWrite() error    { return h.Acquire() }
func (h *fcntlHandle) TryAcquireWrite() error { return h.TryAcquire() }
func (h *fcntlHandle) Release() error         { return h.guard.release(h) }

// Destroy closes the descriptor, which drops any record lock this process
// still holds on the file. Removing the path leaves other processes' open
// descriptors, and the locks they hold, intact.
func (h *fcntlHandle) Destroy(remove bool) error {
	var err error
	if closeErr := h.file.Close(); closeErr != nil {
		err = errors.Translate(closeErr, errors.ErrInvalidState)
	}

	if remove {
		if removeErr := removeBacking(h.path); removeErr != nil && err == nil {
			err = removeErr
		}
	}
	return err
}

func (h *fcntlHandle) Ref() Ref {
	return Ref{Mech: MechFcntl, Name: h.path}
}
