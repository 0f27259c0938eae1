package lock

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bashhack/lockmux/internal/backend"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/pkg/pool"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	return NewEnv(EnvConfig{Dir: t.TempDir()})
}

func testPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.New(nil, nil)
	t.Cleanup(p.Destroy)
	return p
}

// inGoroutine runs fn on a fresh goroutine and waits for its result
func inGoroutine(fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return <-done
}

type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
}

func (r *recordingLogger) Info(string, ...interface{}) {}
func (r *recordingLogger) Warning(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}
func (r *recordingLogger) Error(string, ...interface{})         {}
func (r *recordingLogger) InfoToUser(string, ...interface{})    {}
func (r *recordingLogger) WarningToUser(string, ...interface{}) {}
func (r *recordingLogger) Success(string, ...interface{})       {}
func (r *recordingLogger) StatusMessage(string, ...interface{}) {}

// journal records the native operations of fake mechanisms in call order
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// fakeMethod is a mechanism that records every operation in a journal and
// fails the ones it is told to
type fakeMethod struct {
	label   string
	mech    Mech
	caps    Caps
	journal *journal

	failAcquire error
	failDestroy error
}

func (f *fakeMethod) Mech() Mech               { return f.mech }
func (f *fakeMethod) Caps() Caps               { return f.caps }
func (f *fakeMethod) Probe(*backend.Env) error { return nil }

func (f *fakeMethod) Create(*backend.Env, string) (backend.Handle, error) {
	return &fakeHandle{method: f}, nil
}

func (f *fakeMethod) Attach(*backend.Env, backend.Ref) (backend.Handle, error) {
	return &fakeHandle{method: f}, nil
}

type fakeHandle struct {
	method *fakeMethod
	mu     sync.Mutex
	holds  int
}

func (h *fakeHandle) take(op string) error {
	h.method.journal.add(h.method.label + " " + op)
	if h.method.failAcquire != nil {
		return h.method.failAcquire
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.holds++
	return nil
}

func (h *fakeHandle) Acquire() error         { return h.take("acquire") }
func (h *fakeHandle) TryAcquire() error      { return h.take("tryacquire") }
func (h *fakeHandle) AcquireRead() error     { return h.take("acquire_read") }
func (h *fakeHandle) TryAcquireRead() error  { return h.take("tryacquire_read") }
func (h *fakeHandle) AcquireWrite() error    { return h.take("acquire") }
func (h *fakeHandle) TryAcquireWrite() error { return h.take("tryacquire") }

func (h *fakeHandle) Release() error {
	h.method.journal.add(h.method.label + " release")
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.holds == 0 {
		return errors.Wrap(errors.ErrInvalidState, "fake released without hold")
	}
	h.holds--
	return nil
}

func (h *fakeHandle) Destroy(remove bool) error {
	h.method.journal.add(fmt.Sprintf("%s destroy remove=%t", h.method.label, remove))
	return h.method.failDestroy
}

func (h *fakeHandle) Ref() backend.Ref {
	return backend.Ref{Mech: h.method.mech}
}

func (h *fakeHandle) held() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.holds
}

// newFakeComposite creates a Both lock whose halves are fakes sharing j
func newFakeComposite(t *testing.T, p *pool.Pool, kind Kind, inter, intra *fakeMethod) *Lock {
	t.Helper()
	create := func(m backend.Method, name string) (backend.Handle, error) {
		return m.Create(nil, name)
	}
	l, err := newLock(testEnv(t), p, kind, Both, inter, intra, options{}, create)
	require.NoError(t, err)
	return l
}

func fakePair(j *journal) (inter, intra *fakeMethod) {
	inter = &fakeMethod{label: "inter", mech: MechFcntl, caps: CapProcess | CapReadWrite, journal: j}
	intra = &fakeMethod{label: "intra", mech: MechRWLock, caps: CapReadWrite, journal: j}
	return inter, intra
}
