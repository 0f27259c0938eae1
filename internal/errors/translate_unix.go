//go:build unix

package errors

import (
	"golang.org/x/sys/unix"
)

// Translate maps a native error onto the lock error taxonomy. Errors that
// already belong to the taxonomy pass through unchanged; errno values with
// no specific meaning are classed as fallback.
func Translate(err error, fallback error) error {
	if err == nil {
		return nil
	}
	if classified(err) {
		return err
	}

	var errno unix.Errno
	if !As(err, &errno) {
		return &OSError{Class: fallback, Err: err}
	}

	// EAGAIN and EWOULDBLOCK are distinct on some older systems; fcntl may
	// also report contention as EACCES, which at create time means a
	// permission problem instead.
	switch {
	case errno == unix.EACCES && fallback == ErrBackendUnavailable:
		return &OSError{Class: ErrBackendUnavailable, Err: err}
	case errno == unix.EAGAIN || errno == unix.EWOULDBLOCK || errno == unix.EACCES:
		return &OSError{Class: ErrWouldBlock, Err: err}
	case errno == unix.EINTR:
		return &OSError{Class: ErrInterrupted, Err: err}
	case errno == unix.EDEADLK:
		return &OSError{Class: ErrDeadlock, Err: err}
	case errno == unix.EBADF || errno == unix.EIDRM || errno == unix.EINVAL:
		if fallback == ErrBackendUnavailable {
			return &OSError{Class: ErrBackendUnavailable, Err: err}
		}
		return &OSError{Class: ErrInvalidState, Err: err}
	case unavailable(errno):
		return &OSError{Class: ErrBackendUnavailable, Err: err}
	}
	return &OSError{Class: fallback, Err: err}
}

func classified(err error) bool {
	for _, s := range []error{ErrBackendUnavailable, ErrWouldBlock, ErrInterrupted, ErrDeadlock, ErrInvalidState} {
		if Is(err, s) {
			return true
		}
	}
	return false
}

func unavailable(errno unix.Errno) bool {
	switch errno {
	case unix.ENOSPC, unix.ENOMEM, unix.EPERM, unix.ENOSYS, unix.EMFILE, unix.ENFILE, unix.ENOENT, unix.EROFS:
		return true
	}
	return false
}
