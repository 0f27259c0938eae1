package lock

import "github.com/bashhack/lockmux/internal/errors"

// Error classes. Every error a Lock returns matches one of them with
// errors.Is.
var (
	ErrBackendUnavailable   = errors.ErrBackendUnavailable
	ErrWouldBlock           = errors.ErrWouldBlock
	ErrInterrupted          = errors.ErrInterrupted
	ErrDeadlock             = errors.ErrDeadlock
	ErrInvalidState         = errors.ErrInvalidState
	ErrInvalidConfiguration = errors.ErrInvalidConfiguration
)

// Error is the type of every error a Lock operation returns. It records the
// operation, the mechanism and the backing file.
type Error = errors.LockError
