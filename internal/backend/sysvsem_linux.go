//go:build linux && (amd64 || arm64)

package backend

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bashhack/lockmux/internal/errors"
)

// SysVSem uses a single-semaphore System V set initialized to 1. Every
// operation carries SEM_UNDO so the kernel releases the hold of a process
// that dies while holding it. semop blocks the calling thread, so the
// semaphore excludes goroutines of the same process as well.
var SysVSem Method = sysvSemMethod{}

const (
	ipcPrivate = 0
	ipcCreat   = 0o1000
	ipcNowait  = 0o4000
	ipcRmid    = 0
	semGetVal  = 12
	semSetVal  = 16
	semUndo    = 0x1000
)

// sembuf mirrors struct sembuf
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

func semget(perm uint32) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, ipcPrivate, 1, uintptr(ipcCreat|perm))
	if errno != 0 {
		return -1, errno
	}
	return int(id), nil
}

func semctl(id, cmd, arg int) (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, uintptr(cmd), uintptr(arg), 0, 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}

func semop(id int, op int16, flg int16) error {
	b := sembuf{num: 0, op: op, flg: flg}
	_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(id), uintptr(unsafe.Pointer(&b)), 1)
	if errno != 0 {
		return errno
	}
	return nil
}

type sysvSemMethod struct{}

func (sysvSemMethod) Mech() Mech { return MechSysVSem }
func (sysvSemMethod) Caps() Caps { return CapProcess | CapGlobal }

// Probe creates and removes a throwaway set; containers and hardened
// kernels may deny System V IPC entirely.
func (sysvSemMethod) Probe(env *Env) error {
	id, err := semget(uint32(env.Perm.Perm()))
	if err != nil {
		return errors.Translate(err, errors.ErrBackendUnavailable)
	}
	_, err = semctl(id, ipcRmid, 0)
	return errors.Translate(err, errors.ErrBackendUnavailable)
}

func (sysvSemMethod) Create(env *Env, _ string) (Handle, error) {
	id, err := semget(uint32(env.Perm.Perm()))
	if err != nil {
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}

	if _, err := semctl(id, semSetVal, 1); err != nil {
		_, _ = semctl(id, ipcRmid, 0)
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}

	return &sysvSemHandle{id: id}, nil
}

// Attach checks that the set still exists; the identifier itself is valid
// in every process.
func (sysvSemMethod) Attach(_ *Env, ref Ref) (Handle, error) {
	if _, err := semctl(ref.ID, semGetVal, 0); err != nil {
		return nil, errors.Translate(err, errors.ErrBackendUnavailable)
	}
	return &sysvSemHandle{id: ref.ID}, nil
}

type sysvSemHandle struct {
	exclusiveOnly
	id int
}

func (h *sysvSemHandle) Acquire() error {
	return errors.Translate(semop(h.id, -1, semUndo), errors.ErrInvalidState)
}

func (h *sysvSemHandle) TryAcquire() error {
	return errors.Translate(semop(h.id, -1, semUndo|ipcNowait), errors.ErrInvalidState)
}

func (h *sysvSemHandle) AcquireWrite() error    { return h.Acquire() }
func (h *sysvSemHandle) TryAcquireWrite() error { return h.TryAcquire() }

func (h *sysvSemHandle) Release() error {
	return errors.Translate(semop(h.id, 1, semUndo), errors.ErrInvalidState)
}

func (h *sysvSemHandle) Destroy(remove bool) error {
	if !remove {
		return nil
	}
	_, err := semctl(h.id, ipcRmid, 0)
	return errors.Translate(err, errors.ErrInvalidState)
}

func (h *sysvSemHandle) Ref() Ref {
	return Ref{Mech: MechSysVSem, ID: h.id}
}
