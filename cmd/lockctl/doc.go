// Package main implements lockctl, a command-line front end to lockmux
//
// lockctl runs commands under a lock, lists the lock mechanisms the host
// supports, and removes backing files that no process holds anymore. It is
// a thin layer over pkg/lock: every lock it takes is an ordinary lockmux
// lock created on a pool that is destroyed when the command exits.
//
// # Command-Line Documentation
//
// For documentation on the underlying library, see:
// https://pkg.go.dev/github.com/bashhack/lockmux
//
// # Basic Usage
//
//	lockctl mechs                                  # Show mechanisms and availability
//	lockctl run -n /tmp/job.lock -- make release   # Serialize a command
//	lockctl run -n /tmp/db.lock --shared -- ./dump # Take a shared (read) hold
//	lockctl run -n /tmp/job.lock --nonblock -- job # Exit 75 if the lock is held
//	lockctl run -n /tmp/job.lock -w 30s -- job     # Give up after 30 seconds
//	lockctl prune                                  # Remove unused generated files
//	lockctl prune 'jobs/**/*.lock' --dry-run       # Preview a recursive prune
//
// # Configuration Options
//
// Shared flags, also settable in the config file or environment:
//
//	--config         YAML config file (env: LOCKMUX_CONFIG)
//	--lock-dir       Directory for generated backing files (env: LOCKMUX_DIR)
//	--mech           Lock mechanism (env: LOCKMUX_MECH)
//	-v, --verbose    Show diagnostic messages (env: LOCKMUX_VERBOSE)
//	--debug          Write a debug log (env: LOCKMUX_DEBUG)
//	--log-file       Debug log path (env: LOCKMUX_LOG_FILE)
//
// Flags of run:
//
//	-n, --name       Backing file of the lock
//	--scope          process, thread or both (env: LOCKMUX_SCOPE)
//	--kind           exclusive or readwrite (env: LOCKMUX_KIND)
//	-s, --shared     Take a shared hold, implies --kind=readwrite
//	--nonblock       Fail at once if the lock is held (env: LOCKMUX_NONBLOCK)
//	-w, --wait       Poll for at most this long (env: LOCKMUX_WAIT)
//	--poll-interval  First delay between polls (env: LOCKMUX_POLL_INTERVAL)
//	--persist        Keep generated backing files (env: LOCKMUX_PERSIST)
//
// # Exit Status
//
// run passes the exit status of its command through. It exits with 75
// (EX_TEMPFAIL) when the lock could not be taken without blocking or within
// --wait, with 130 when interrupted, and with 1 on any other error.
//
// # Cooperating Children
//
// The command started by run finds the serialized lock handle in
// LOCKMUX_HANDLE. A Go child attaches to the same native lock with
// lock.ChildInitFromEnv. While run holds the lock exclusively the child
// must not acquire it; under --shared the child may take shared holds of
// its own and pass the handle on to its children.
//
// # Signal Handling
//
// On SIGINT, SIGTERM or SIGHUP, lockctl interrupts the running command and
// releases its lock. If it is blocked waiting for the lock, it gives the
// wait a short grace period and then exits, destroying every lock it holds.
package main
