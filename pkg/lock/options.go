package lock

type options struct {
	name     string
	mech     Mech
	persist  bool
	attached bool
}

// Option configures a lock at creation
type Option func(*options)

// WithName backs the lock with the file at path. Only file-backed
// mechanisms accept a name; with the default mechanism a name selects one.
func WithName(path string) Option {
	return func(o *options) {
		o.name = path
	}
}

// WithMech selects the process-scoped mechanism. For ThreadOnly locks it
// must name a thread mechanism.
func WithMech(m Mech) Option {
	return func(o *options) {
		o.mech = m
	}
}

// WithPersist keeps the backing file when the lock is destroyed, so it
// survives process restarts.
func WithPersist() Option {
	return func(o *options) {
		o.persist = true
	}
}
