//go:build linux

package backend

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bashhack/lockmux/internal/errors"
)

// ProcMutex is a futex-based mutex stored in a MAP_SHARED mapping of the
// backing file, so every process mapping the file shares it. The futex word
// is 0 when unlocked, 1 when locked and 2 when locked with waiters.
//
// The word lives as long as the file. A process that dies holding the mutex
// leaves it locked until the backing file is removed.
var ProcMutex Method = procMutexMethod{}

const (
	mutexSize = 8
	futexWait = 0
	futexWake = 1
	unlocked  = 0
	locked    = 1
	contended = 2
)

type procMutexMethod struct{}

func (procMutexMethod) Mech() Mech       { return MechProcMutex }
func (procMutexMethod) Caps() Caps       { return CapProcess | CapGlobal | CapNamed }
func (procMutexMethod) Probe(*Env) error { return nil }

// Create maps the backing file. A new or short file is zero filled, which
// is the unlocked state; an existing word is left alone since other
// processes may hold it.
func (procMutexMethod) Create(env *Env, name string) (Handle, error) {
	path, err := env.backingPath(name)
	if err != nil {
		return nil, err
	}
	return mapMutex(path, os.O_CREATE|os.O_RDWR, env.Perm)
}

// Attach maps the parent's backing file without touching the mutex state
func (procMutexMethod) Attach(_ *Env, ref Ref) (Handle, error) {
	return mapMutex(ref.Name, os.O_RDWR, 0)
}

func mapMutex(path string, flag int, perm os.FileMode) (*procMutexHandle, error) {
	file, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}
	if info.Size() < mutexSize {
		if err := file.Truncate(mutexSize); err != nil {
			_ = file.Close()
			return nil, errors.Translate(err, errors.ErrBackendUnavailable)
		}
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, mutexSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}

	return &procMutexHandle{file: file, path: path, mem: mem}, nil
}

type procMutexHandle struct {
	exclusiveOnly
	file *os.File
	path string
	mem  []byte
}

func (h *procMutexHandle) word() *int32 {
	return (*int32)(unsafe.Pointer(&h.mem[0]))
}

func futex(addr *int32, op int, val int32) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), uintptr(op), uintptr(val), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (h *procMutexHandle) Acquire() error {
	w := h.word()
	if atomic.CompareAndSwapInt32(w, unlocked, locked) {
		return nil
	}

	c := atomic.SwapInt32(w, contended)
	for c != unlocked {
		// EAGAIN means the word changed before we slept
		if err := futex(w, futexWait, contended); err != nil && err != unix.EAGAIN {
			return errors.Translate(err, errors.ErrInvalidState)
		}
		c = atomic.SwapInt32(w, contended)
	}
	return nil
}

func (h *procMutexHandle) TryAcquire() error {
	if !atomic.CompareAndSwapInt32(h.word(), unlocked, locked) {
		return errors.ErrWouldBlock
	}
	return nil
}

func (h *procMutexHandle) AcquireWrite() error    { return h.Acquire() }
func (h *procMutexHandle) TryAcquireWrite() error { return h.TryAcquire() }

func (h *procMutexHandle) Release() error {
	w := h.word()
	if atomic.AddInt32(w, -1) == unlocked {
		return nil
	}
	atomic.StoreInt32(w, unlocked)
	return errors.Translate(futex(w, futexWake, 1), errors.ErrInvalidState)
}

func (h *procMutexHandle) Destroy(remove bool) error {
	var err error
	if unmapErr := unix.Munmap(h.mem); unmapErr != nil {
		err = errors.Translate(unmapErr, errors.ErrInvalidState)
	}
	h.mem = nil

	if closeErr := h.file.Close(); closeErr != nil && err == nil {
		err = errors.Translate(closeErr, errors.ErrInvalidState)
	}

	if remove {
		if removeErr := removeBacking(h.path); removeErr != nil && err == nil {
			err = removeErr
		}
	}
	return err
}

func (h *procMutexHandle) Ref() Ref {
	return Ref{Mech: MechProcMutex, Name: h.path}
}
