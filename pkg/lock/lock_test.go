package lock

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bashhack/lockmux/internal/backend"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/pkg/pool"
)

func TestNewSelectsCapableMechanisms(t *testing.T) {
	env := testEnv(t)
	p := testPool(t)

	for _, kind := range []Kind{Exclusive, ReadWrite} {
		for _, scope := range []Scope{ProcessOnly, ThreadOnly, Both} {
			t.Run(kind.String()+"/"+scope.String(), func(t *testing.T) {
				l, err := env.New(p, kind, scope)
				require.NoError(t, err)
				defer func() { require.NoError(t, l.Destroy()) }()

				assert.Equal(t, kind, l.Kind())
				assert.Equal(t, scope, l.Scope())

				for _, b := range l.chain() {
					require.NotNil(t, b)
					if kind == ReadWrite {
						assert.True(t, b.method.Caps().Has(CapReadWrite), "%s lacks shared holds", b.method.Mech())
					}
				}

				switch scope {
				case ThreadOnly:
					assert.NotNil(t, l.primary)
					assert.Nil(t, l.inter)
					assert.False(t, l.primary.method.Caps().Has(CapProcess))
					assert.Empty(t, l.Name())
				case ProcessOnly:
					assert.NotNil(t, l.primary)
					assert.Nil(t, l.intra)
					assert.True(t, l.primary.method.Caps().Has(CapProcess))
				case Both:
					assert.Nil(t, l.primary)
					assert.True(t, l.inter.method.Caps().Has(CapProcess))
					assert.False(t, l.intra.method.Caps().Has(CapProcess))
				}

				if b := l.process(); b != nil {
					assert.Equal(t, b.method.Caps().Has(CapNamed), l.Name() != "")
				}
			})
		}
	}
}

func TestNewRejectsInvalidRequests(t *testing.T) {
	env := testEnv(t)
	dead := pool.New(nil, nil)
	dead.Destroy()

	tests := map[string]struct {
		pool  *pool.Pool
		kind  Kind
		scope Scope
		opts  []Option
		want  error
	}{
		"read-write on exclusive-only mechanism": {
			kind: ReadWrite, scope: ProcessOnly, opts: []Option{WithMech(MechSysVSem)},
			want: errors.ErrBackendUnavailable,
		},
		"read-write on thread mutex": {
			kind: ReadWrite, scope: ThreadOnly, opts: []Option{WithMech(MechThreadMutex)},
			want: errors.ErrBackendUnavailable,
		},
		"process mechanism for thread scope": {
			kind: Exclusive, scope: ThreadOnly, opts: []Option{WithMech(MechFcntl)},
			want: errors.ErrInvalidConfiguration,
		},
		"thread mechanism for process scope": {
			kind: Exclusive, scope: ProcessOnly, opts: []Option{WithMech(MechThreadMutex)},
			want: errors.ErrInvalidConfiguration,
		},
		"name on unnamed mechanism": {
			kind: Exclusive, scope: ProcessOnly, opts: []Option{WithMech(MechSysVSem), WithName("/tmp/x.lock")},
			want: errors.ErrInvalidConfiguration,
		},
		"name on thread scope": {
			kind: Exclusive, scope: ThreadOnly, opts: []Option{WithName("/tmp/x.lock")},
			want: errors.ErrInvalidConfiguration,
		},
		"unknown kind": {
			kind: Kind(7), scope: ProcessOnly,
			want: errors.ErrInvalidConfiguration,
		},
		"unknown scope": {
			kind: Exclusive, scope: Scope(7),
			want: errors.ErrInvalidConfiguration,
		},
		"destroyed pool": {
			pool: dead, kind: Exclusive, scope: ThreadOnly,
			want: errors.ErrInvalidState,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			p := test.pool
			if p == nil {
				p = testPool(t)
			}
			_, err := env.New(p, test.kind, test.scope, test.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, test.want)

			var lockErr *Error
			assert.ErrorAs(t, err, &lockErr)
			assert.Equal(t, "create", lockErr.Op)
		})
	}

	_, err := env.New(nil, Exclusive, ThreadOnly)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
}

func TestTryAcquireFromAnotherGoroutine(t *testing.T) {
	env := testEnv(t)

	for _, scope := range []Scope{ThreadOnly, ProcessOnly, Both} {
		t.Run(scope.String(), func(t *testing.T) {
			l, err := env.New(testPool(t), Exclusive, scope, WithMech(mechFor(scope)))
			require.NoError(t, err)

			require.NoError(t, l.Acquire())
			assert.ErrorIs(t, inGoroutine(l.TryAcquire), errors.ErrWouldBlock)

			require.NoError(t, l.Release())
			require.NoError(t, inGoroutine(func() error {
				if err := l.TryAcquire(); err != nil {
					return err
				}
				return l.Release()
			}))
		})
	}
}

func TestRecursiveAcquire(t *testing.T) {
	const depth = 4
	env := testEnv(t)

	for _, scope := range []Scope{ThreadOnly, Both} {
		t.Run(scope.String(), func(t *testing.T) {
			l, err := env.New(testPool(t), Exclusive, scope, WithMech(mechFor(scope)))
			require.NoError(t, err)

			require.NoError(t, l.Acquire())
			for i := 1; i < depth; i++ {
				require.NoError(t, l.TryAcquire())
			}

			for i := 1; i < depth; i++ {
				require.NoError(t, l.Release())
				assert.True(t, l.Held(), "released natively after %d of %d releases", i, depth)
				assert.ErrorIs(t, inGoroutine(l.TryAcquire), errors.ErrWouldBlock)
			}

			require.NoError(t, l.Release())
			assert.False(t, l.Held())
			assert.ErrorIs(t, l.Release(), errors.ErrInvalidState)

			require.NoError(t, inGoroutine(func() error {
				if err := l.TryAcquire(); err != nil {
					return err
				}
				return l.Release()
			}))
		})
	}
}

func TestProcessScopeDoesNotRecurse(t *testing.T) {
	l, err := testEnv(t).New(testPool(t), Exclusive, ProcessOnly, WithMech(MechFcntl))
	require.NoError(t, err)

	require.NoError(t, l.Acquire())
	assert.ErrorIs(t, l.TryAcquire(), errors.ErrWouldBlock)
	require.NoError(t, l.Release())
	assert.ErrorIs(t, l.Release(), errors.ErrInvalidState)
}

func TestProcessScopeHoldsHaveNoOwner(t *testing.T) {
	l, err := testEnv(t).New(testPool(t), Exclusive, ProcessOnly, WithMech(MechFcntl))
	require.NoError(t, err)

	require.NoError(t, l.Acquire())
	require.NoError(t, inGoroutine(l.Release))
	assert.False(t, l.Held())
	assert.Zero(t, l.owner)
}

func TestReleaseByAnotherGoroutine(t *testing.T) {
	for _, scope := range []Scope{ThreadOnly, Both} {
		t.Run(scope.String(), func(t *testing.T) {
			l, err := testEnv(t).New(testPool(t), Exclusive, scope, WithMech(mechFor(scope)))
			require.NoError(t, err)

			require.NoError(t, l.Acquire())
			assert.ErrorIs(t, inGoroutine(l.Release), errors.ErrInvalidState)
			assert.True(t, l.Held())
			require.NoError(t, l.Release())
		})
	}
}

func TestReleaseWithoutHold(t *testing.T) {
	l, err := testEnv(t).New(testPool(t), Exclusive, ThreadOnly)
	require.NoError(t, err)

	err = l.Release()
	assert.ErrorIs(t, err, errors.ErrInvalidState)

	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "release", lockErr.Op)
	assert.Equal(t, "threadmutex", lockErr.Mech)
}

func TestSharedHoldsNeedReadWriteKind(t *testing.T) {
	l, err := testEnv(t).New(testPool(t), Exclusive, ThreadOnly)
	require.NoError(t, err)

	assert.ErrorIs(t, l.AcquireRead(), errors.ErrInvalidState)
	assert.ErrorIs(t, l.TryAcquireRead(), errors.ErrInvalidState)

	require.NoError(t, l.AcquireWrite())
	assert.ErrorIs(t, inGoroutine(l.TryAcquireWrite), errors.ErrWouldBlock)
	require.NoError(t, l.Release())
}

func TestSharedAcquireByExclusiveOwner(t *testing.T) {
	l, err := testEnv(t).New(testPool(t), ReadWrite, ThreadOnly)
	require.NoError(t, err)

	require.NoError(t, l.AcquireWrite())
	assert.ErrorIs(t, l.TryAcquireRead(), errors.ErrDeadlock)
	require.NoError(t, l.Release())
}

func TestExclusiveAcquireByReader(t *testing.T) {
	for _, scope := range []Scope{ThreadOnly, Both} {
		t.Run(scope.String(), func(t *testing.T) {
			l, err := testEnv(t).New(testPool(t), ReadWrite, scope, WithMech(mechFor(scope)))
			require.NoError(t, err)

			require.NoError(t, l.AcquireRead())
			assert.ErrorIs(t, l.Acquire(), errors.ErrDeadlock)
			assert.ErrorIs(t, l.TryAcquireWrite(), errors.ErrDeadlock)

			// Other goroutines are shut out, not refused
			assert.ErrorIs(t, inGoroutine(l.TryAcquire), errors.ErrWouldBlock)

			require.NoError(t, l.Release())
			require.NoError(t, l.Acquire())
			require.NoError(t, l.Release())
		})
	}
}

func TestSharedHoldReleasedByAnotherGoroutine(t *testing.T) {
	l, err := testEnv(t).New(testPool(t), ReadWrite, ThreadOnly)
	require.NoError(t, err)

	require.NoError(t, l.AcquireRead())
	require.NoError(t, inGoroutine(l.Release))
	assert.False(t, l.Held())

	require.NoError(t, l.TryAcquire())
	require.NoError(t, l.Release())
}

func TestReadersShareWriterExcludes(t *testing.T) {
	const readers = 5

	cases := map[string]struct {
		scope Scope
		mech  Mech
	}{
		"thread rwlock":   {ThreadOnly, MechRWLock},
		"process fcntl":   {ProcessOnly, MechFcntl},
		"process flock":   {ProcessOnly, MechFlock},
		"composite fcntl": {Both, MechFcntl},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			l, err := testEnv(t).New(testPool(t), ReadWrite, c.scope, WithMech(c.mech))
			if errors.Is(err, errors.ErrBackendUnavailable) {
				t.Skipf("%s unavailable: %v", c.mech, err)
			}
			require.NoError(t, err)

			// Every reader holds at the same time before any releases
			var all sync.WaitGroup
			all.Add(readers)
			release := make(chan struct{})

			var g errgroup.Group
			for i := 0; i < readers; i++ {
				g.Go(func() error {
					if err := l.AcquireRead(); err != nil {
						all.Done()
						return err
					}
					all.Done()
					<-release
					return l.Release()
				})
			}
			all.Wait()

			writerIn := make(chan error, 1)
			go func() { writerIn <- l.AcquireWrite() }()

			select {
			case <-writerIn:
				t.Fatal("writer acquired while readers held the lock")
			case <-time.After(50 * time.Millisecond):
			}

			close(release)
			require.NoError(t, g.Wait())

			select {
			case err := <-writerIn:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("writer did not acquire after readers released")
			}

			assert.ErrorIs(t, inGoroutine(l.TryAcquireRead), errors.ErrWouldBlock)
			// The writer's goroutine has exited; pool teardown releases its hold
			assert.True(t, l.Held())
		})
	}
}

func TestCompositeAcquireReleaseOrder(t *testing.T) {
	j := &journal{}
	inter, intra := fakePair(j)
	l := newFakeComposite(t, testPool(t), ReadWrite, inter, intra)

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
	require.NoError(t, l.TryAcquireRead())
	require.NoError(t, l.Release())

	assert.Equal(t, []string{
		"intra acquire", "inter acquire",
		"inter release", "intra release",
		"intra tryacquire_read", "inter tryacquire_read",
		"inter release", "intra release",
	}, j.list())
}

func TestCompositeTryAcquireUnwinds(t *testing.T) {
	j := &journal{}
	inter, intra := fakePair(j)
	inter.failAcquire = errors.ErrWouldBlock
	l := newFakeComposite(t, testPool(t), Exclusive, inter, intra)

	err := l.TryAcquire()
	assert.ErrorIs(t, err, errors.ErrWouldBlock)
	assert.False(t, l.Held())
	assert.Equal(t, 0, l.intra.handle.(*fakeHandle).held())
	assert.Equal(t, []string{"intra tryacquire", "inter tryacquire", "intra release"}, j.list())
}

func TestCompositeAcquireFailureLeavesThreadHalfFree(t *testing.T) {
	j := &journal{}
	inter := &fakeMethod{label: "inter", mech: MechFcntl, caps: CapProcess, journal: j, failAcquire: errors.ErrInterrupted}

	create := func(m backend.Method, name string) (backend.Handle, error) {
		return m.Create(nil, name)
	}
	l, err := newLock(testEnv(t), testPool(t), Exclusive, Both, inter, backend.ThreadMutex, options{}, create)
	require.NoError(t, err)

	err = l.Acquire()
	assert.ErrorIs(t, err, errors.ErrInterrupted)
	assert.False(t, l.Held())

	intra := l.intra.handle
	require.NoError(t, inGoroutine(func() error {
		if err := intra.TryAcquire(); err != nil {
			return err
		}
		return intra.Release()
	}))
}

func TestDestroyRemovesBackingFile(t *testing.T) {
	for _, m := range []Mech{MechFcntl, MechFlock, MechProcMutex} {
		t.Run(m.String(), func(t *testing.T) {
			env := testEnv(t)
			if !env.Available(m) {
				t.Skipf("%s unavailable", m)
			}

			generated, err := env.New(testPool(t), Exclusive, ProcessOnly, WithMech(m))
			require.NoError(t, err)
			assert.Equal(t, env.Dir(), filepath.Dir(generated.Name()))
			assert.FileExists(t, generated.Name())
			require.NoError(t, generated.Destroy())
			assert.NoFileExists(t, generated.Name())

			path := filepath.Join(t.TempDir(), "named.lock")
			named, err := env.New(testPool(t), Exclusive, Both, WithMech(m), WithName(path))
			require.NoError(t, err)
			assert.Equal(t, path, named.Name())
			require.NoError(t, named.Destroy())
			assert.NoFileExists(t, path)

			persistent, err := env.New(testPool(t), Exclusive, ProcessOnly, WithMech(m), WithName(path), WithPersist())
			require.NoError(t, err)
			require.NoError(t, persistent.Destroy())
			assert.FileExists(t, path)
		})
	}
}

func TestDestroyTwice(t *testing.T) {
	l, err := testEnv(t).New(testPool(t), Exclusive, Both, WithMech(MechFlock))
	require.NoError(t, err)

	require.NoError(t, l.Destroy())

	err = l.Destroy()
	assert.ErrorIs(t, err, errors.ErrInvalidState)
	assert.ErrorIs(t, l.Acquire(), errors.ErrInvalidState)
	assert.ErrorIs(t, l.TryAcquire(), errors.ErrInvalidState)
	assert.ErrorIs(t, l.Release(), errors.ErrInvalidState)
}

func TestDestroyReleasesHeldLock(t *testing.T) {
	env := testEnv(t)
	p := testPool(t)
	path := filepath.Join(t.TempDir(), "held.lock")

	holder, err := env.New(p, Exclusive, ProcessOnly, WithMech(MechFlock), WithName(path), WithPersist())
	require.NoError(t, err)
	other, err := env.New(p, Exclusive, ProcessOnly, WithMech(MechFlock), WithName(path), WithPersist())
	require.NoError(t, err)

	require.NoError(t, holder.Acquire())
	assert.ErrorIs(t, other.TryAcquire(), errors.ErrWouldBlock)

	require.NoError(t, holder.Destroy())
	require.NoError(t, other.TryAcquire())
	require.NoError(t, other.Release())
}

func TestPoolDestroyDestroysLocks(t *testing.T) {
	env := testEnv(t)
	parent := pool.New(nil, nil)
	child := pool.New(parent, nil)

	l, err := env.New(child, Exclusive, ProcessOnly, WithMech(MechFcntl))
	require.NoError(t, err)
	require.NoError(t, l.Acquire())
	path := l.Name()

	parent.Destroy()

	assert.NoFileExists(t, path)
	assert.False(t, l.Held())
	assert.ErrorIs(t, l.Destroy(), errors.ErrInvalidState)
}

func TestPoolTeardownLogsDestroyFailures(t *testing.T) {
	log := &recordingLogger{}
	p := pool.New(nil, log)

	j := &journal{}
	inter, intra := fakePair(j)
	inter.failDestroy = errors.Wrap(errors.ErrInvalidState, "native close failed")
	newFakeComposite(t, p, Exclusive, inter, intra)

	p.Destroy()

	assert.Equal(t, []string{"inter destroy remove=true", "intra destroy remove=true"}, j.list())
	require.Len(t, log.warnings, 1)
	assert.Contains(t, log.warnings[0], "native close failed")
}

func TestHandleRoundTrip(t *testing.T) {
	l, err := testEnv(t).New(testPool(t), ReadWrite, Both, WithMech(MechFlock))
	require.NoError(t, err)

	h := l.Handle()
	assert.Equal(t, ReadWrite, h.Kind)
	assert.Equal(t, Both, h.Scope)
	assert.Equal(t, MechFlock, h.Mech)
	assert.Equal(t, l.Name(), h.Name)

	parsed, err := ParseHandle(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHandle(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    Handle
		wantErr bool
	}{
		"name with colons": {
			input: "exclusive:process:fcntl:0:/tmp/a:b.lock",
			want:  Handle{Kind: Exclusive, Scope: ProcessOnly, Mech: MechFcntl, Name: "/tmp/a:b.lock"},
		},
		"semaphore id": {
			input: "exclusive:both:sysvsem:42:",
			want:  Handle{Kind: Exclusive, Scope: Both, Mech: MechSysVSem, ID: 42},
		},
		"too few fields": {input: "exclusive:process:fcntl", wantErr: true},
		"bad kind":       {input: "sideways:process:fcntl:0:", wantErr: true},
		"bad mechanism":  {input: "exclusive:process:spin:0:", wantErr: true},
		"bad identifier": {input: "exclusive:process:sysvsem:x:", wantErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseHandle(test.input)
			if test.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

// mechFor picks a mechanism available everywhere the tests run
func mechFor(scope Scope) Mech {
	if scope == ThreadOnly {
		return MechDefault
	}
	return MechFlock
}
