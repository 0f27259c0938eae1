//go:build !unix

package errors

// Translate maps a native error onto the lock error taxonomy. Without errno
// values to inspect every unclassified error is classed as fallback.
func Translate(err error, fallback error) error {
	if err == nil {
		return nil
	}
	for _, s := range []error{ErrBackendUnavailable, ErrWouldBlock, ErrInterrupted, ErrDeadlock, ErrInvalidState} {
		if Is(err, s) {
			return err
		}
	}
	return &OSError{Class: fallback, Err: err}
}
