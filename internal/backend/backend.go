package backend

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/bashhack/lockmux/internal/constants"
	"github.com/bashhack/lockmux/internal/errors"
)

// Mech names a native locking mechanism
type Mech int

const (
	// MechDefault lets the caller's environment pick a mechanism
	MechDefault Mech = iota
	// MechSysVSem is a System V semaphore set
	MechSysVSem
	// MechFcntl is a POSIX byte-range record lock on a backing file
	MechFcntl
	// MechFlock is a whole-file advisory lock on a backing file
	MechFlock
	// MechProcMutex is a process-shared mutex living in a mapped backing file
	MechProcMutex
	// MechThreadMutex is an in-process mutex
	MechThreadMutex
	// MechRWLock is an in-process reader-writer lock
	MechRWLock
)

var mechNames = map[Mech]string{
	MechDefault:     "default",
	MechSysVSem:     "sysvsem",
	MechFcntl:       "fcntl",
	MechFlock:       "flock",
	MechProcMutex:   "procmutex",
	MechThreadMutex: "threadmutex",
	MechRWLock:      "rwlock",
}

func (m Mech) String() string {
	if name, ok := mechNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMech returns the mechanism with the given name
func ParseMech(s string) (Mech, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MechDefault, nil
	}
	for m, name := range mechNames {
		if name == s {
			return m, nil
		}
	}
	return MechDefault, errors.Wrapf(errors.ErrInvalidConfiguration, "unknown lock mechanism %q", s)
}

// Caps describes what a mechanism can do
type Caps uint8

const (
	// CapProcess marks a mechanism whose locks are visible across processes
	CapProcess Caps = 1 << iota
	// CapGlobal marks a mechanism whose native lock also excludes other
	// threads of the holding process, without an in-process guard
	CapGlobal
	// CapReadWrite marks a mechanism with shared (read) holds
	CapReadWrite
	// CapNamed marks a mechanism that needs a backing file-system path
	CapNamed
)

// Has reports whether every bit of want is set
func (c Caps) Has(want Caps) bool {
	return c&want == want
}

func (c Caps) String() string {
	var parts []string
	if c.Has(CapProcess) {
		parts = append(parts, "process")
	} else {
		parts = append(parts, "thread")
	}
	if c.Has(CapGlobal) {
		parts = append(parts, "global")
	}
	if c.Has(CapReadWrite) {
		parts = append(parts, "readwrite")
	}
	if c.Has(CapNamed) {
		parts = append(parts, "named")
	}
	return strings.Join(parts, ",")
}

// Ref is everything a cooperating process needs to reach the same native
// lock: the mechanism, the backing path for named mechanisms, and the
// kernel identifier for identifier-based ones.
type Ref struct {
	Mech Mech
	Name string
	ID   int
}

// Method is the immutable description of one mechanism. There is exactly
// one Method per Mech, shared by every lock that selects it.
type Method interface {
	Mech() Mech
	Caps() Caps

	// Probe reports whether the native facility works on this host
	Probe(env *Env) error

	// Create allocates fresh native state. Named mechanisms create or open
	// name; an empty name makes the mechanism generate a unique backing file.
	Create(env *Env, name string) (Handle, error)

	// Attach re-establishes private handles to native state created by a
	// cooperating (parent) process
	Attach(env *Env, ref Ref) (Handle, error)
}

// Handle is the per-lock native state of one mechanism. Only the concrete
// type of the selected mechanism ever exists for a given lock.
//
// Handles of non-recursive mechanisms block (or fail with ErrDeadlock) when
// the holder acquires again; recursion is handled by the caller.
type Handle interface {
	Acquire() error
	TryAcquire() error
	AcquireRead() error
	TryAcquireRead() error
	AcquireWrite() error
	TryAcquireWrite() error

	// Release drops whichever hold is active
	Release() error

	// Destroy frees the native state. remove also deletes the backing path
	// or kernel object; attached handles never pass remove.
	Destroy(remove bool) error

	Ref() Ref
}

// Lookup returns the Method for m
func Lookup(m Mech) (Method, error) {
	switch m {
	case MechSysVSem:
		return SysVSem, nil
	case MechFcntl:
		return Fcntl, nil
	case MechFlock:
		return Flock, nil
	case MechProcMutex:
		return ProcMutex, nil
	case MechThreadMutex:
		return ThreadMutex, nil
	case MechRWLock:
		return RWLock, nil
	}
	return nil, errors.Wrapf(errors.ErrBackendUnavailable, "no method for mechanism %s", m)
}

// All returns every concrete mechanism in declaration order
func All() []Mech {
	return []Mech{MechSysVSem, MechFcntl, MechFlock, MechProcMutex, MechThreadMutex, MechRWLock}
}

// Env is the initialization context handed to every Method. Setup probes
// the host once; later calls are no-ops.
type Env struct {
	// Dir holds generated backing files
	Dir string
	// Perm is the mode of created backing files and kernel objects
	Perm os.FileMode

	once  sync.Once
	avail map[Mech]error
}

// NewEnv returns an Env rooted at dir. Empty values fall back to defaults.
func NewEnv(dir string, perm os.FileMode) *Env {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), constants.DefaultDirName)
	}
	if perm == 0 {
		perm = constants.FilePerm
	}
	return &Env{Dir: dir, Perm: perm}
}

// Setup probes every mechanism
func (e *Env) Setup() {
	e.once.Do(func() {
		e.avail = make(map[Mech]error, len(All()))
		for _, m := range All() {
			method, err := Lookup(m)
			if err == nil {
				err = method.Probe(e)
			}
			e.avail[m] = err
		}
	})
}

// Available returns nil if m passed the setup probe, or why it did not
func (e *Env) Available(m Mech) error {
	e.Setup()
	err, ok := e.avail[m]
	if !ok {
		return errors.Wrapf(errors.ErrBackendUnavailable, "no method for mechanism %s", m)
	}
	return err
}

// backingPath returns name, or a fresh unique file under Dir when name is
// empty.
func (e *Env) backingPath(name string) (string, error) {
	if name != "" {
		return name, nil
	}

	if err := os.MkdirAll(e.Dir, constants.DirPerm); err != nil {
		return "", errors.Translate(err, errors.ErrBackendUnavailable)
	}
	f, err := os.CreateTemp(e.Dir, constants.TempPattern)
	if err != nil {
		return "", errors.Translate(err, errors.ErrBackendUnavailable)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", errors.Translate(err, errors.ErrBackendUnavailable)
	}
	if err := os.Chmod(path, e.Perm); err != nil {
		return "", errors.Translate(err, errors.ErrBackendUnavailable)
	}
	return path, nil
}

// removeBacking deletes a backing path, tolerating one that is already gone
func removeBacking(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Translate(err, errors.ErrInvalidState)
	}
	return nil
}

// exclusiveOnly supplies the read operations of mechanisms without shared holds
type exclusiveOnly struct{}

func (exclusiveOnly) AcquireRead() error {
	return errors.Wrap(errors.ErrInvalidState, "mechanism has no shared holds")
}

func (exclusiveOnly) TryAcquireRead() error {
	return errors.Wrap(errors.ErrInvalidState, "mechanism has no shared holds")
}

// unsupported stands in for a mechanism that is not compiled in for this
// platform
type unsupported struct {
	mech Mech
	caps Caps
}

func (u unsupported) Mech() Mech { return u.mech }
func (u unsupported) Caps() Caps { return u.caps }

func (u unsupported) Probe(*Env) error {
	return errors.Wrapf(errors.ErrBackendUnavailable, "%s is not supported on %s/%s", u.mech, runtime.GOOS, runtime.GOARCH)
}

func (u unsupported) Create(env *Env, _ string) (Handle, error) {
	return nil, u.Probe(env)
}

func (u unsupported) Attach(env *Env, _ Ref) (Handle, error) {
	return nil, u.Probe(env)
}
