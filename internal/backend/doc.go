// Package backend implements the native locking mechanisms behind pkg/lock.
//
// Each mechanism is described once by an immutable Method and instantiated
// per lock as a Handle holding only that mechanism's private state:
//
//   - sysvsem: System V semaphore set (linux/amd64, linux/arm64)
//   - fcntl: POSIX byte-range record lock on a backing file
//   - flock: whole-file advisory lock on a backing file
//   - procmutex: futex mutex in a shared mapping of a backing file (linux)
//   - threadmutex: sync.Mutex
//   - rwlock: sync.RWMutex
//
// Native errors are translated into the internal/errors taxonomy before they
// leave a Handle. Handles do not emulate recursion and do not track owners;
// the caller must never release a hold it does not have.
package backend
