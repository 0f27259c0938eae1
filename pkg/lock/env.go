package lock

import (
	"os"
	"sync"

	"github.com/bashhack/lockmux/internal/backend"
	"github.com/bashhack/lockmux/internal/common"
	"github.com/bashhack/lockmux/internal/errors"
)

// Mech names a native locking mechanism
type Mech = backend.Mech

// Caps describes what a mechanism can do
type Caps = backend.Caps

// Mechanisms, re-exported from the backend table
const (
	MechDefault     = backend.MechDefault
	MechSysVSem     = backend.MechSysVSem
	MechFcntl       = backend.MechFcntl
	MechFlock       = backend.MechFlock
	MechProcMutex   = backend.MechProcMutex
	MechThreadMutex = backend.MechThreadMutex
	MechRWLock      = backend.MechRWLock
)

// Capability flags
const (
	CapProcess   = backend.CapProcess
	CapGlobal    = backend.CapGlobal
	CapReadWrite = backend.CapReadWrite
	CapNamed     = backend.CapNamed
)

// ParseMech returns the mechanism with the given name
func ParseMech(s string) (Mech, error) {
	return backend.ParseMech(s)
}

// EnvConfig configures an Env. Zero values select defaults.
type EnvConfig struct {
	// Dir holds generated backing files, os.TempDir()/lockmux by default
	Dir string
	// Perm is the mode of created backing files and semaphore sets
	Perm os.FileMode
	// Logger receives lifecycle messages; nil discards them
	Logger common.Logger
	// DefaultExclusive is the process mechanism for exclusive locks. The
	// default is the first available of sysvsem, procmutex and fcntl.
	DefaultExclusive Mech
	// DefaultReadWrite is the process mechanism for read-write locks,
	// fcntl by default
	DefaultReadWrite Mech
}

// Env is the initialization context every lock is created in. It probes the
// host's mechanisms once, on first use or on an explicit Setup.
type Env struct {
	cfg     EnvConfig
	backend *backend.Env
	logger  common.Logger
	once    sync.Once
}

// NewEnv returns an Env for cfg
func NewEnv(cfg EnvConfig) *Env {
	logger := cfg.Logger
	if logger == nil {
		logger = common.Nop{}
	}
	be := backend.NewEnv(cfg.Dir, cfg.Perm)
	cfg.Dir, cfg.Perm = be.Dir, be.Perm

	return &Env{cfg: cfg, backend: be, logger: logger}
}

// Setup probes every mechanism. It is safe to call any number of times from
// any goroutine.
func (e *Env) Setup() {
	e.once.Do(func() {
		for _, m := range backend.All() {
			if err := e.backend.Available(m); err != nil {
				e.logger.Info("Lock mechanism %s unavailable: %v", m, err)
			}
		}
	})
}

// Dir returns the directory generated backing files are created in
func (e *Env) Dir() string {
	return e.cfg.Dir
}

// Available reports whether m works on this host
func (e *Env) Available(m Mech) bool {
	e.Setup()
	return e.backend.Available(m) == nil
}

// MechInfo describes one mechanism as probed on this host
type MechInfo struct {
	Mech Mech
	Caps Caps
	// Err is why the mechanism is unavailable, or nil
	Err error
}

// Available reports whether the mechanism passed its probe
func (i MechInfo) Available() bool {
	return i.Err == nil
}

// Mechanisms describes every mechanism in declaration order
func (e *Env) Mechanisms() []MechInfo {
	e.Setup()

	infos := make([]MechInfo, 0, len(backend.All()))
	for _, m := range backend.All() {
		method, err := backend.Lookup(m)
		if err != nil {
			infos = append(infos, MechInfo{Mech: m, Err: err})
			continue
		}
		infos = append(infos, MechInfo{Mech: m, Caps: method.Caps(), Err: e.backend.Available(m)})
	}
	return infos
}

// resolve picks the methods serving kind and scope. inter is nil for
// ThreadOnly locks and intra is nil for ProcessOnly locks.
func (e *Env) resolve(kind Kind, scope Scope, o options) (inter, intra backend.Method, err error) {
	if !kind.valid() {
		return nil, nil, errors.Wrapf(errors.ErrInvalidConfiguration, "invalid lock kind %d", kind)
	}
	if !scope.valid() {
		return nil, nil, errors.Wrapf(errors.ErrInvalidConfiguration, "invalid lock scope %d", scope)
	}

	if scope == ThreadOnly {
		intra, err = e.threadMethod(kind, o)
		return nil, intra, err
	}

	inter, err = e.processMethod(kind, o)
	if err != nil {
		return nil, nil, err
	}
	if scope == Both {
		intra, err = e.threadMethod(kind, options{})
		if err != nil {
			return nil, nil, err
		}
	}
	return inter, intra, nil
}

func (e *Env) threadMethod(kind Kind, o options) (backend.Method, error) {
	if o.name != "" {
		return nil, errors.Wrap(errors.ErrInvalidConfiguration, "thread-scoped locks have no backing file")
	}

	m := o.mech
	if m == MechDefault {
		m = MechThreadMutex
		if kind == ReadWrite {
			m = MechRWLock
		}
	}

	method, err := backend.Lookup(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfiguration, err.Error())
	}
	if method.Caps().Has(CapProcess) {
		return nil, errors.Wrapf(errors.ErrInvalidConfiguration, "%s is not a thread mechanism", m)
	}
	return e.check(method, kind)
}

func (e *Env) processMethod(kind Kind, o options) (backend.Method, error) {
	m := o.mech
	if m == MechDefault {
		m = e.defaultMech(kind, o.name != "")
	}

	method, err := backend.Lookup(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfiguration, err.Error())
	}
	if !method.Caps().Has(CapProcess) {
		return nil, errors.Wrapf(errors.ErrInvalidConfiguration, "%s cannot exclude other processes", m)
	}
	if o.name != "" && !method.Caps().Has(CapNamed) {
		return nil, errors.Wrapf(errors.ErrInvalidConfiguration, "%s does not use a backing file", m)
	}
	return e.check(method, kind)
}

// check rejects methods that cannot serve kind or failed their probe
func (e *Env) check(method backend.Method, kind Kind) (backend.Method, error) {
	if kind == ReadWrite && !method.Caps().Has(CapReadWrite) {
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "%s has no shared holds", method.Mech())
	}
	e.Setup()
	if err := e.backend.Available(method.Mech()); err != nil {
		return nil, err
	}
	return method, nil
}

func (e *Env) defaultMech(kind Kind, named bool) Mech {
	if kind == ReadWrite {
		if e.cfg.DefaultReadWrite != MechDefault {
			return e.cfg.DefaultReadWrite
		}
		return MechFcntl
	}

	if e.cfg.DefaultExclusive != MechDefault {
		return e.cfg.DefaultExclusive
	}
	candidates := []Mech{MechSysVSem, MechProcMutex, MechFcntl}
	if named {
		candidates = candidates[1:]
	}
	for _, m := range candidates {
		if e.Available(m) {
			return m
		}
	}
	return MechFcntl
}
