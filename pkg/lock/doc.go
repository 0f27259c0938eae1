/*
Package lock provides a single lock abstraction over several native locking
mechanisms.

A lock is requested by capability: its Kind (Exclusive or ReadWrite) and its
Scope (ThreadOnly, ProcessOnly or Both). The Env resolves the request to a
mechanism available on the host, or to the one named with WithMech:

	env := lock.NewEnv(lock.EnvConfig{})
	p := pool.New(nil, nil)
	defer p.Destroy()

	l, err := env.New(p, lock.Exclusive, lock.Both, lock.WithName("/run/myapp.lock"))
	if err != nil {
		return err
	}
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()

# Scopes

ThreadOnly locks exclude the goroutines of one process. ProcessOnly locks
exclude cooperating processes; goroutines of one process are excluded as well,
but a goroutine acquiring a ProcessOnly lock it already holds blocks. Both
locks stack a thread lock in front of a process lock: they are acquired thread
half first and released process half first, and a failure halfway through
leaves neither half held.

The fcntl mechanism excludes goroutines only through one Lock. Two Locks on
the same path in one process both succeed, and destroying either drops the
other's hold. Share a single Lock, or use flock, when one process opens a
path more than once.

Exclusive holds on ThreadOnly and Both locks belong to the acquiring
goroutine. The owner may acquire again; the lock is released natively only
after the matching number of releases, and no other goroutine may release it.

# Readers and writers

ReadWrite locks admit many readers or one writer. Upgrading a read hold to a
write hold is not supported. On ThreadOnly and Both locks a goroutine asking
for the hold it cannot get while holding the other kind fails with
ErrDeadlock; on ProcessOnly locks it blocks. Whether waiting writers hold
back new readers, or the reverse, depends on the mechanism: no ordering
between waiters is promised.

# Errors

Every error returned by a Lock is an *Error whose chain matches one
of ErrBackendUnavailable, ErrWouldBlock, ErrInterrupted, ErrDeadlock or
ErrInvalidState, plus ErrInvalidConfiguration for rejected requests.

# Child processes

A parent passes Lock.Handle to a child it starts, typically through HandleEnv.
The child calls ChildInit before using the lock to reopen its own handles to
the same native state.
*/
package lock
