package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bashhack/lockmux/internal/config"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/pkg/lock"
	"github.com/bashhack/lockmux/pkg/pool"
)

// isolate keeps the developer's own config and environment out of a test
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	for _, key := range []string{"DIR", "MECH", "KIND", "SCOPE", "PERSIST", "NONBLOCK", "WAIT", "POLL_INTERVAL", "VERBOSE", "DEBUG", "LOG_FILE", "CONFIG", "HANDLE"} {
		t.Setenv("LOCKMUX_"+key, "")
		if err := os.Unsetenv("LOCKMUX_" + key); err != nil {
			t.Fatalf("Failed to unset LOCKMUX_%s: %v", key, err)
		}
	}
}

// testApp wraps an App wired to in-memory output and a recording runner
type testApp struct {
	*App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	runner *fakeRunner
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	isolate(t)

	ta := &testApp{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		runner: &fakeRunner{},
	}
	ta.App = NewApp(AppOptions{
		Config:     config.NewThreadSafeConfig(),
		Version:    config.VersionInfo{Version: "1.2.3", Commit: "abc1234", Date: "2026-01-02"},
		Stdout:     ta.stdout,
		Stderr:     ta.stderr,
		Exit:       func(code int) { t.Fatalf("unexpected exit(%d)", code) },
		RunCommand: ta.runner.run,
	})
	t.Cleanup(func() { _ = ta.Close() })

	return ta
}

func (ta *testApp) execute(args ...string) error {
	return ta.Execute(context.Background(), args)
}

// fakeRunner records the commands it is asked to run. during, if set, runs
// in place of the command while the lock is held.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	env    []string
	during func(env []string) error
}

func (f *fakeRunner) run(_ context.Context, env []string, argv []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	f.env = env
	during := f.during
	f.mu.Unlock()

	if during != nil {
		return during(env)
	}
	return nil
}

func (f *fakeRunner) called() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// lookupEnv finds key in an environment list
func lookupEnv(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

// holdLock takes a flock lock on path from outside the app under test
func holdLock(t *testing.T, path string, shared bool) *lock.Lock {
	t.Helper()

	env := lock.NewEnv(lock.EnvConfig{Dir: filepath.Dir(path)})
	p := pool.New(nil, nil)
	t.Cleanup(p.Destroy)

	kind := lock.Exclusive
	if shared {
		kind = lock.ReadWrite
	}
	l, err := env.New(p, kind, lock.ProcessOnly, lock.WithMech(lock.MechFlock), lock.WithName(path), lock.WithPersist())
	if err != nil {
		t.Fatalf("Failed to create holder lock: %v", err)
	}

	acquire := l.Acquire
	if shared {
		acquire = l.AcquireRead
	}
	if err := acquire(); err != nil {
		t.Fatalf("Failed to take holder lock: %v", err)
	}
	return l
}

// probeFree reports whether an exclusive flock on path can be taken right now
func probeFree(t *testing.T, path string) bool {
	t.Helper()

	env := lock.NewEnv(lock.EnvConfig{Dir: filepath.Dir(path)})
	p := pool.New(nil, nil)
	defer p.Destroy()

	l, err := env.New(p, lock.Exclusive, lock.ProcessOnly, lock.WithMech(lock.MechFlock), lock.WithName(path), lock.WithPersist())
	if err != nil {
		t.Fatalf("Failed to create probe lock: %v", err)
	}
	err = l.TryAcquire()
	if err == nil {
		_ = l.Release()
		return true
	}
	if !errors.Is(err, lock.ErrWouldBlock) {
		t.Fatalf("Unexpected probe error: %v", err)
	}
	return false
}
