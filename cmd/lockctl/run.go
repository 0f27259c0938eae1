package main

import (
	"context"
	"os"
	"time"

	"github.com/bashhack/lockmux/internal/config"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/pkg/lock"
)

// Run acquires the configured lock, runs argv while holding it and releases
// it afterwards. The command's error, if any, is returned unchanged.
func (a *App) Run(ctx context.Context, argv []string) error {
	cfg := a.Config.Config()

	l, err := a.Env.New(a.Pool, cfg.LockKind, cfg.LockScope, lockOptions(cfg)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Destroy(); err != nil {
			a.Logger.Error("Failed to destroy lock: %v", err)
		}
	}()

	if err := a.acquire(ctx, l, cfg); err != nil {
		return err
	}
	a.Logger.Info("Acquired %s hold on %s lock %s (%s)", holdName(cfg.Shared), l.Mech(), l.Name(), l.Scope())

	env := append(os.Environ(), lock.HandleEnv+"="+l.Handle().String())
	runErr := a.runCommand(ctx, env, argv)

	if err := l.Release(); err != nil {
		a.Logger.Error("Failed to release lock: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	a.Logger.Info("Released %s lock %s", l.Mech(), l.Name())

	return runErr
}

// lockOptions turns the finalized config into lock options. A backing file
// the user named outlives the command: removing it while another process
// waits on it would let a third process lock a fresh file at the same path.
func lockOptions(cfg config.Config) []lock.Option {
	opts := []lock.Option{lock.WithMech(cfg.LockMech)}
	if cfg.Name != "" {
		opts = append(opts, lock.WithName(cfg.Name))
	}
	if cfg.Persist || cfg.Name != "" {
		opts = append(opts, lock.WithPersist())
	}
	return opts
}

func holdName(shared bool) string {
	if shared {
		return "shared"
	}
	return "exclusive"
}

// acquire takes l as configured: once without blocking, by polling until
// the wait deadline, or by blocking
func (a *App) acquire(ctx context.Context, l *lock.Lock, cfg config.Config) error {
	try, block := l.TryAcquire, l.Acquire
	if cfg.Shared {
		try, block = l.TryAcquireRead, l.AcquireRead
	}

	switch {
	case cfg.NonBlock:
		return try()
	case cfg.Wait > 0:
		return a.poll(ctx, try, cfg.Wait, cfg.PollInterval)
	}

	for {
		err := block()
		if !errors.Is(err, lock.ErrInterrupted) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.Logger.Info("Lock wait interrupted, retrying")
	}
}

// poll calls try until it stops reporting contention or wait has passed.
// The delay between attempts doubles up to config.MaxPollInterval.
func (a *App) poll(ctx context.Context, try func() error, wait, interval time.Duration) error {
	deadline := time.Now().Add(wait)
	attempts := 0

	for {
		err := try()
		attempts++
		if !errors.Is(err, lock.ErrWouldBlock) {
			if err == nil && attempts > 1 {
				a.Logger.Info("Lock acquired after %d attempts", attempts)
			}
			return err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errors.Wrapf(err, "gave up after %s", wait)
		}
		if attempts == 1 {
			a.Logger.InfoToUser("Waiting up to %s for the lock", wait)
		}

		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval = min(interval*2, config.MaxPollInterval)
	}
}
