// Package lockmux is a portable lock abstraction
//
// lockmux offers one lock API over the native locking facilities of the
// host: System V semaphores, fcntl record locks, flock, process-shared
// mutexes in mapped memory, and in-process mutexes and reader-writer locks.
// A lock is chosen by kind (exclusive or reader-writer) and scope (other
// processes, other goroutines, or both), and the library picks a mechanism
// that can serve that combination. Every lock lives on a pool, and
// destroying the pool destroys every lock created on it.
//
// # Quick Start
//
//	env := lock.NewEnv(lock.EnvConfig{})
//	p := pool.New(nil, nil)
//	defer p.Destroy()
//
//	l, err := env.New(p, lock.Exclusive, lock.Both, lock.WithName("/run/myapp.lock"))
//	if err != nil {
//		return err
//	}
//	if err := l.Acquire(); err != nil {
//		return err
//	}
//	defer l.Release()
//
// # Key Features
//
//   - Mechanism Choice: Six native mechanisms behind one interface, with host probing
//   - Composite Scope: Both-scoped locks exclude goroutines and processes at once
//   - Recursion: Thread-scoped exclusive locks may be re-acquired by their holder
//   - Child Processes: A serialized handle lets a child rejoin its parent's lock
//   - Scoped Lifetimes: Pools tear down locks in reverse order of creation
//   - Error Classes: Every failure matches one sentinel with errors.Is
//
// # Module Structure
//
// The module is organized into these packages:
//
//   - cmd/lockctl: Command-line interface
//   - pkg/lock: Locks, environments and child process handles
//   - pkg/pool: Scoped cleanup of locks and other resources
//   - internal/backend: The native mechanisms
//   - internal/config: Configuration and flag parsing for lockctl
//   - internal/logger: Logging facilities
//   - internal/errors: Error classes and native error translation
//
// # Command Line
//
//	# Serialize a command across processes
//	lockctl run -n /tmp/deploy.lock -- ./deploy.sh
//
//	# Give up after 30 seconds instead of waiting forever
//	lockctl run -n /tmp/deploy.lock --wait 30s -- ./deploy.sh
//
//	# See which mechanisms work on this host
//	lockctl mechs
//
//	# Remove backing files nobody holds
//	lockctl prune
package lockmux
