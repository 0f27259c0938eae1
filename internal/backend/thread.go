package backend

import (
	"sync"
	"sync/atomic"

	"github.com/bashhack/lockmux/internal/errors"
)

// ThreadMutex is the in-process exclusive mechanism
var ThreadMutex Method = threadMutexMethod{}

// RWLock is the in-process reader-writer mechanism. Whether waiting writers
// block new readers is whatever sync.RWMutex does; no fairness is promised.
var RWLock Method = rwLockMethod{}

type threadMutexMethod struct{}

func (threadMutexMethod) Mech() Mech       { return MechThreadMutex }
func (threadMutexMethod) Caps() Caps       { return 0 }
func (threadMutexMethod) Probe(*Env) error { return nil }

func (threadMutexMethod) Create(*Env, string) (Handle, error) {
	return &threadMutexHandle{}, nil
}

// Attach starts from a fresh mutex: in-process state never crosses into
// another process.
func (threadMutexMethod) Attach(*Env, Ref) (Handle, error) {
	return &threadMutexHandle{}, nil
}

type threadMutexHandle struct {
	exclusiveOnly
	mu sync.Mutex
}

func (h *threadMutexHandle) Acquire() error {
	h.mu.Lock()
	return nil
}

func (h *threadMutexHandle) TryAcquire() error {
	if !h.mu.TryLock() {
		return errors.ErrWouldBlock
	}
	return nil
}

func (h *threadMutexHandle) AcquireWrite() error    { return h.Acquire() }
func (h *threadMutexHandle) TryAcquireWrite() error { return h.TryAcquire() }

func (h *threadMutexHandle) Release() error {
	h.mu.Unlock()
	return nil
}

func (h *threadMutexHandle) Destroy(bool) error { return nil }
func (h *threadMutexHandle) Ref() Ref           { return Ref{Mech: MechThreadMutex} }

type rwLockMethod struct{}

func (rwLockMethod) Mech() Mech       { return MechRWLock }
func (rwLockMethod) Caps() Caps       { return CapReadWrite }
func (rwLockMethod) Probe(*Env) error { return nil }

func (rwLockMethod) Create(*Env, string) (Handle, error) {
	return &rwLockHandle{}, nil
}

func (rwLockMethod) Attach(*Env, Ref) (Handle, error) {
	return &rwLockHandle{}, nil
}

type rwLockHandle struct {
	mu     sync.RWMutex
	writer atomic.Bool
}

func (h *rwLockHandle) Acquire() error    { return h.AcquireWrite() }
func (h *rwLockHandle) TryAcquire() error { return h.TryAcquireWrite() }

func (h *rwLockHandle) AcquireRead() error {
	h.mu.RLock()
	return nil
}

func (h *rwLockHandle) TryAcquireRead() error {
	if !h.mu.TryRLock() {
		return errors.ErrWouldBlock
	}
	return nil
}

func (h *rwLockHandle) AcquireWrite() error {
	h.mu.Lock()
	h.writer.Store(true)
	return nil
}

func (h *rwLockHandle) TryAcquireWrite() error {
	if !h.mu.TryLock() {
		return errors.ErrWouldBlock
	}
	h.writer.Store(true)
	return nil
}

func (h *rwLockHandle) Release() error {
	if h.writer.CompareAndSwap(true, false) {
		h.mu.Unlock()
		return nil
	}
	h.mu.RUnlock()
	return nil
}

func (h *rwLockHandle) Destroy(bool) error { return nil }
func (h *rwLockHandle) Ref() Ref           { return Ref{Mech: MechRWLock} }
