package lock

import (
	"strings"

	"github.com/bashhack/lockmux/internal/errors"
)

// Kind selects between exclusive-only and reader-writer locks
type Kind int

const (
	// Exclusive locks have a single holder at a time
	Exclusive Kind = iota
	// ReadWrite locks admit many readers or one writer
	ReadWrite
)

func (k Kind) String() string {
	switch k {
	case Exclusive:
		return "exclusive"
	case ReadWrite:
		return "readwrite"
	}
	return "unknown"
}

// ParseKind accepts the names returned by Kind.String
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exclusive", "":
		return Exclusive, nil
	case "readwrite", "rw", "shared":
		return ReadWrite, nil
	}
	return Exclusive, errors.Wrapf(errors.ErrInvalidConfiguration, "unknown lock kind %q", s)
}

// Scope is the domain a lock excludes across
type Scope int

const (
	// ProcessOnly locks exclude cooperating processes on the host
	ProcessOnly Scope = iota
	// ThreadOnly locks exclude goroutines of the creating process
	ThreadOnly
	// Both locks exclude goroutines and processes at once by stacking a
	// thread-scoped lock in front of a process-scoped one
	Both
)

func (s Scope) String() string {
	switch s {
	case ProcessOnly:
		return "process"
	case ThreadOnly:
		return "thread"
	case Both:
		return "both"
	}
	return "unknown"
}

// ParseScope accepts the names returned by Scope.String
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "process", "":
		return ProcessOnly, nil
	case "thread":
		return ThreadOnly, nil
	case "both":
		return Both, nil
	}
	return ProcessOnly, errors.Wrapf(errors.ErrInvalidConfiguration, "unknown lock scope %q", s)
}

func (k Kind) valid() bool  { return k == Exclusive || k == ReadWrite }
func (s Scope) valid() bool { return s >= ProcessOnly && s <= Both }
