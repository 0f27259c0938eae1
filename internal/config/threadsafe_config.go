package config

import (
	"sync"

	"github.com/spf13/pflag"

	"github.com/bashhack/lockmux/internal/errors"
)

// Provider is anything that hands out a finalized Config
type Provider interface {
	Config() Config
}

// ThreadSafeConfig provides thread-safe access to configuration settings.
// Flags are bound before parsing; Initialize then loads the remaining
// sources and validates, after which the config is read-only.
type ThreadSafeConfig struct {
	mu    sync.RWMutex
	cfg   Config
	ready bool
}

// NewThreadSafeConfig creates a new thread-safe configuration with default values.
func NewThreadSafeConfig() *ThreadSafeConfig {
	return &ThreadSafeConfig{
		cfg: *New(),
	}
}

// WithVersionInfo sets the version info on the config and returns the config.
func (c *ThreadSafeConfig) WithVersionInfo(info VersionInfo) *ThreadSafeConfig {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		panic("cannot modify config after initialization")
	}

	c.cfg.VersionInfo = info
	return c
}

// BindFlags binds the shared flags to the wrapped config
func (c *ThreadSafeConfig) BindFlags(fs *pflag.FlagSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.SetupFlags(fs)
}

// BindRunFlags binds the lock acquisition flags to the wrapped config
func (c *ThreadSafeConfig) BindRunFlags(fs *pflag.FlagSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.SetupRunFlags(fs)
}

// Initialize loads the config file and environment under the already parsed
// flags of fs, then finalizes. It may only succeed once.
func (c *ThreadSafeConfig) Initialize(fs *pflag.FlagSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return errors.Wrap(errors.ErrInvalidConfiguration, "config already initialized")
	}

	if err := c.cfg.Load(fs); err != nil {
		return err
	}
	if err := c.cfg.Finalize(); err != nil {
		return err
	}

	c.ready = true
	return nil
}

// Config returns a copy of the current configuration. It panics if called
// before Initialize succeeded.
func (c *ThreadSafeConfig) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready {
		panic("config accessed before initialization")
	}

	return c.cfg
}

// IsReady returns whether the configuration has been successfully initialized
func (c *ThreadSafeConfig) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}
