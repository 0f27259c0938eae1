package errors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors that can be used with errors.Is() for error type checking
var (
	// ErrBackendUnavailable indicates the native locking facility could not be
	// initialized (resource exhaustion, permission denied, unsupported kernel).
	// It is never retryable for the lock that reported it.
	ErrBackendUnavailable = errors.New("lock backend unavailable")

	// ErrWouldBlock indicates a non-blocking acquire found the lock held
	ErrWouldBlock = errors.New("lock would block")

	// ErrInterrupted indicates a blocking call was disturbed by a signal; the
	// same call may be retried
	ErrInterrupted = errors.New("lock operation interrupted")

	// ErrDeadlock indicates the backend detected a self-deadlock
	ErrDeadlock = errors.New("lock deadlock detected")

	// ErrInvalidState indicates misuse: release without a hold, operating on a
	// destroyed lock, or an operation the lock kind does not support
	ErrInvalidState = errors.New("invalid lock state")

	// ErrInvalidConfiguration indicates an invalid or conflicting user configuration
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// New creates a new error with the given message.
// This is a convenience function that wraps errors.New.
func New(message string) error {
	return errors.New(message)
}

// Errorf creates a new formatted error.
// This is a convenience function that wraps fmt.Errorf.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Wrap wraps an error with a message for better context.
// A nil err yields nil.
func Wrap(err error, message string) error {
	return pkgerrors.WithMessage(err, message)
}

// Wrapf wraps an error with a formatted message for better context.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.WithMessagef(err, format, args...)
}

// Is reports whether target is in err's chain.
// This is a convenience function that wraps errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience function that wraps errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error wrapping every non-nil error, or nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Cause returns the innermost error of a Wrap chain.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}

// LockError represents an error that occurred while operating on a lock.
// It records the operation, the mechanism backing the lock, the backing
// path if the mechanism has one, and the underlying error.
type LockError struct {
	Op   string
	Mech string
	Name string
	Err  error
}

// Error implements the error interface with details about the lock.
func (e *LockError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("lock %s (%s, %s): %v", e.Op, e.Mech, e.Name, e.Err)
	}
	return fmt.Sprintf("lock %s (%s): %v", e.Op, e.Mech, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *LockError) Unwrap() error {
	return e.Err
}

// NewLockError creates a new LockError with the given parameters.
func NewLockError(op, mech, name string, err error) *LockError {
	return &LockError{
		Op:   op,
		Mech: mech,
		Name: name,
		Err:  err,
	}
}

// OSError is a native error translated into the lock error taxonomy.
// It matches both its Class sentinel and the raw OS error.
type OSError struct {
	Class error
	Err   error
}

func (e *OSError) Error() string {
	return fmt.Sprintf("%v: %v", e.Class, e.Err)
}

// Unwrap exposes both the taxonomy class and the raw error.
func (e *OSError) Unwrap() []error {
	return []error{e.Class, e.Err}
}

// ConfigError represents an error in the application configuration.
// It includes the parameter name, its value if available, and the underlying error.
type ConfigError struct {
	Parameter string
	Value     interface{}
	Err       error
}

// Error implements the error interface with details about the invalid configuration.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("configuration error for %s = %v: %v", e.Parameter, e.Value, e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %v", e.Parameter, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError with the given parameters.
func NewConfigError(parameter string, value interface{}, err error) *ConfigError {
	return &ConfigError{
		Parameter: parameter,
		Value:     value,
		Err:       err,
	}
}
