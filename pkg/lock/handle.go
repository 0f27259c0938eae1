package lock

import (
	"strconv"
	"strings"

	"github.com/bashhack/lockmux/internal/backend"
	"github.com/bashhack/lockmux/internal/constants"
	"github.com/bashhack/lockmux/internal/errors"
)

// HandleEnv is the environment variable a parent passes a Handle to a child
// process in
const HandleEnv = constants.HandleEnv

// Handle is what a cooperating child process needs to rejoin a lock created
// by its parent. Its text form is kind:scope:mech:id:name; the name comes
// last and may itself contain colons.
type Handle struct {
	Kind  Kind
	Scope Scope
	Mech  Mech
	// ID is the kernel identifier of identifier-based mechanisms
	ID int
	// Name is the backing file of file-based mechanisms
	Name string
}

// Handle returns the lock's Handle
func (l *Lock) Handle() Handle {
	h := Handle{Kind: l.kind, Scope: l.scope, Mech: l.Mech()}
	if b := l.process(); b != nil {
		ref := b.handle.Ref()
		h.ID, h.Name = ref.ID, ref.Name
	}
	return h
}

func (h Handle) String() string {
	return strings.Join([]string{
		h.Kind.String(),
		h.Scope.String(),
		h.Mech.String(),
		strconv.Itoa(h.ID),
		h.Name,
	}, ":")
}

// ParseHandle parses the text form produced by Handle.String
func ParseHandle(s string) (Handle, error) {
	parts := strings.SplitN(s, ":", 5)
	if len(parts) != 5 {
		return Handle{}, errors.Wrapf(errors.ErrInvalidConfiguration, "malformed lock handle %q", s)
	}

	kind, err := ParseKind(parts[0])
	if err != nil {
		return Handle{}, err
	}
	scope, err := ParseScope(parts[1])
	if err != nil {
		return Handle{}, err
	}
	mech, err := ParseMech(parts[2])
	if err != nil {
		return Handle{}, err
	}
	id, err := strconv.Atoi(parts[3])
	if err != nil {
		return Handle{}, errors.Wrapf(errors.ErrInvalidConfiguration, "malformed lock handle id %q", parts[3])
	}

	return Handle{Kind: kind, Scope: scope, Mech: mech, ID: id, Name: parts[4]}, nil
}

func (h Handle) ref() backend.Ref {
	return backend.Ref{Mech: h.Mech, Name: h.Name, ID: h.ID}
}
