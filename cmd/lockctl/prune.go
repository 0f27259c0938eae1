package main

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bashhack/lockmux/internal/constants"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/pkg/lock"
	"github.com/bashhack/lockmux/pkg/pool"
)

// Prune removes the backing files matching patterns that nobody holds. It
// tells holders apart by taking a non-blocking exclusive lock on each file
// with the configured mechanism, and removes the file while holding it.
func (a *App) Prune(patterns []string, dryRun bool) error {
	cfg := a.Config.Config()

	mech := cfg.LockMech
	if mech == lock.MechDefault {
		mech = lock.MechFlock
	}
	if mech != lock.MechFlock && mech != lock.MechFcntl {
		return errors.NewConfigError("mech", mech.String(), errors.Wrap(errors.ErrInvalidConfiguration, "prune can only detect flock and fcntl holders"))
	}

	if len(patterns) == 0 {
		patterns = []string{constants.TempPattern}
	}

	// Probe locks live only as long as the prune
	p := pool.New(a.Pool, nil)
	defer p.Destroy()

	var removed, busy int
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(cfg.LockDir, pattern)
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return errors.NewConfigError("pattern", pattern, errors.Wrap(errors.ErrInvalidConfiguration, err.Error()))
		}

		for _, path := range matches {
			free, err := a.pruneFile(p, mech, path, dryRun)
			switch {
			case err != nil:
				a.Logger.WarningToUser("Skipping %s: %v", path, err)
			case !free:
				busy++
				a.Logger.InfoToUser("%s is in use", path)
			default:
				removed++
			}
		}
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	a.Logger.Success("%s %d backing files, %d in use", verb, removed, busy)
	return nil
}

// pruneFile reports whether path was free, removing it unless dryRun is set
func (a *App) pruneFile(p *pool.Pool, mech lock.Mech, path string, dryRun bool) (bool, error) {
	l, err := a.Env.New(p, lock.Exclusive, lock.ProcessOnly,
		lock.WithMech(mech), lock.WithName(path), lock.WithPersist())
	if err != nil {
		return false, err
	}
	defer func() {
		if err := l.Destroy(); err != nil {
			a.Logger.Warning("Failed to destroy probe lock on %s: %v", path, err)
		}
	}()

	if err := l.TryAcquire(); err != nil {
		if errors.Is(err, lock.ErrWouldBlock) {
			return false, nil
		}
		return false, err
	}

	if dryRun {
		a.Logger.InfoToUser("Would remove %s", path)
		return true, nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, errors.Translate(err, lock.ErrInvalidState)
	}
	a.Logger.Info("Removed %s", path)
	return true, nil
}
