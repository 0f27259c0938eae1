package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bashhack/lockmux/internal/constants"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/pkg/lock"
)

const (
	// DefaultPollInterval between non-blocking attempts while waiting
	DefaultPollInterval = 100 * time.Millisecond

	// MaxPollInterval caps the backoff between attempts
	MaxPollInterval = 2 * time.Second
)

// Config holds all lockctl settings
type Config struct {
	// Lock selection
	LockDir string `yaml:"lock_dir"`
	Mech    string `yaml:"mech"`
	Kind    string `yaml:"kind"`
	Scope   string `yaml:"scope"`
	Persist bool   `yaml:"persist"`

	// Per-invocation lock settings, only taken from flags
	Name   string `yaml:"-"`
	Shared bool   `yaml:"-"`

	// Waiting
	NonBlock     bool          `yaml:"nonblock"`
	Wait         time.Duration `yaml:"wait"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// User experience
	Verbose bool `yaml:"verbose"`

	// Debugging
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"log_file"`

	// ConfigFile is the YAML file settings were loaded from, if any
	ConfigFile string `yaml:"-"`

	// Parsed forms of Mech, Kind and Scope, set by Finalize
	LockMech  lock.Mech  `yaml:"-"`
	LockKind  lock.Kind  `yaml:"-"`
	LockScope lock.Scope `yaml:"-"`

	// Build metadata
	VersionInfo VersionInfo `yaml:"-"`
}

// VersionInfo contains build-time version metadata
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// New creates a new Config with default values
func New() *Config {
	return &Config{
		Kind:         lock.Exclusive.String(),
		Scope:        lock.ProcessOnly.String(),
		PollInterval: DefaultPollInterval,

		// Default version info, will be overridden if provided
		VersionInfo: VersionInfo{
			Version: "dev",
			Commit:  "unknown",
			Date:    "unknown",
		},
	}
}

// Load applies, in increasing precedence, the YAML config file, the
// environment and the flags of fs that were set on the command line. Flags
// must already be bound to c with SetupFlags and parsed.
func (c *Config) Load(fs *pflag.FlagSet) error {
	changed := map[string]string{}
	if fs != nil {
		fs.Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})
	}

	path, explicit := c.ConfigFile, c.ConfigFile != ""
	if !explicit {
		path, explicit = os.LookupEnv(constants.ConfigEnv)
	}
	if !explicit {
		path = DefaultConfigFile()
	}
	if err := c.LoadFile(path, explicit); err != nil {
		return err
	}

	c.LoadFromEnvironment()

	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return errors.NewConfigError(name, value, errors.Wrap(errors.ErrInvalidConfiguration, err.Error()))
		}
	}
	return nil
}

// LoadFile reads settings from a YAML file. A missing file is an error only
// when required is set. Unknown keys are rejected.
func (c *Config) LoadFile(path string, required bool) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return errors.NewConfigError("config", path, errors.Wrap(errors.ErrInvalidConfiguration, err.Error()))
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.NewConfigError("config", path, errors.Wrapf(errors.ErrInvalidConfiguration, "failed to parse YAML: %v", err))
	}

	c.ConfigFile = path
	return nil
}

// LoadFromEnvironment updates config from LOCKMUX_* environment variables
func (c *Config) LoadFromEnvironment() {
	c.LockDir = getEnvString("DIR", c.LockDir)
	c.Mech = getEnvString("MECH", c.Mech)
	c.Kind = getEnvString("KIND", c.Kind)
	c.Scope = getEnvString("SCOPE", c.Scope)
	c.Persist = getEnvBool("PERSIST", c.Persist)
	c.NonBlock = getEnvBool("NONBLOCK", c.NonBlock)
	c.Wait = getEnvDuration("WAIT", c.Wait)
	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
	c.Verbose = getEnvBool("VERBOSE", c.Verbose)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.LogFile = getEnvString("LOG_FILE", c.LogFile)
}

// SetupFlags binds the flags shared by every command
func (c *Config) SetupFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Path to YAML config file (default: $XDG_CONFIG_HOME/lockmux/config.yaml)")
	fs.StringVar(&c.LockDir, "lock-dir", c.LockDir, "Directory for generated lock files (default: $TMPDIR/lockmux)")
	fs.StringVar(&c.Mech, "mech", c.Mech, "Lock mechanism: sysvsem, fcntl, flock, procmutex, threadmutex, rwlock")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "Show diagnostic messages")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Path to log file (default: ~/.local/share/lockmux/logs/lockctl.log)")
}

// SetupRunFlags binds the flags of commands that acquire a lock
func (c *Config) SetupRunFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Name, "name", "n", c.Name, "Backing file of the lock (default: a generated file)")
	fs.StringVar(&c.Scope, "scope", c.Scope, "Lock scope: process, thread, both")
	fs.StringVar(&c.Kind, "kind", c.Kind, "Lock kind: exclusive, readwrite")
	fs.BoolVarP(&c.Shared, "shared", "s", c.Shared, "Take a shared (read) hold; implies --kind=readwrite")
	fs.BoolVar(&c.NonBlock, "nonblock", c.NonBlock, "Fail immediately if the lock is held")
	fs.DurationVarP(&c.Wait, "wait", "w", c.Wait, "Give up after waiting this long (0 waits forever)")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Initial delay between attempts while waiting")
	fs.BoolVar(&c.Persist, "persist", c.Persist, "Keep the backing file after the lock is released")
}

// Finalize validates and finalizes the configuration
func (c *Config) Finalize() error {
	var err error

	if c.Shared {
		c.Kind = lock.ReadWrite.String()
	}

	if c.LockKind, err = lock.ParseKind(c.Kind); err != nil {
		return errors.NewConfigError("kind", c.Kind, err)
	}
	if c.LockScope, err = lock.ParseScope(c.Scope); err != nil {
		return errors.NewConfigError("scope", c.Scope, err)
	}
	if c.LockMech, err = lock.ParseMech(c.Mech); err != nil {
		return errors.NewConfigError("mech", c.Mech, err)
	}

	if c.Wait < 0 {
		err := fmt.Errorf("invalid wait: %s (must not be negative)", c.Wait)
		return errors.NewConfigError("wait", c.Wait, errors.Wrap(errors.ErrInvalidConfiguration, err.Error()))
	}
	if c.NonBlock && c.Wait > 0 {
		return errors.NewConfigError("nonblock", c.NonBlock, errors.Wrap(errors.ErrInvalidConfiguration, "--nonblock and --wait are mutually exclusive"))
	}
	if c.PollInterval <= 0 {
		err := fmt.Errorf("invalid poll interval: %s (must be positive)", c.PollInterval)
		return errors.NewConfigError("poll_interval", c.PollInterval, errors.Wrap(errors.ErrInvalidConfiguration, err.Error()))
	}
	if c.PollInterval > MaxPollInterval {
		c.PollInterval = MaxPollInterval
	}

	if c.LockDir == "" {
		c.LockDir = filepath.Join(os.TempDir(), constants.DefaultDirName)
	}
	if c.LockDir, err = filepath.Abs(c.LockDir); err != nil {
		return errors.NewConfigError("lock_dir", c.LockDir, errors.Wrap(errors.ErrInvalidConfiguration, fmt.Sprintf("failed to resolve absolute path: %v", err)))
	}

	if c.Name != "" {
		if c.Name, err = filepath.Abs(c.Name); err != nil {
			return errors.NewConfigError("name", c.Name, errors.Wrap(errors.ErrInvalidConfiguration, fmt.Sprintf("failed to resolve absolute path: %v", err)))
		}
	}

	if c.LogFile == "" {
		c.LogFile = filepath.Join(dataHome(), constants.DefaultDirName, "logs", constants.AppName+".log")
	}

	return nil
}

// DefaultConfigFile is the config file read when none is named
func DefaultConfigFile() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, constants.DefaultDirName, "config.yaml")
}

// dataHome follows the XDG Base Directory Specification
func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	// Fallback to the temp directory if home dir can't be determined
	return os.TempDir()
}

// getEnvString returns an environment variable string or a default value
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(constants.EnvPrefix + key); exists {
		return value
	}
	return defaultValue
}

// getEnvDuration returns an environment variable as a duration or a default
// value. Bare integers are taken as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(constants.EnvPrefix + key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvBool returns an environment variable as bool or a default value
func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(constants.EnvPrefix + key); exists {
		valueLower := strings.ToLower(valueStr)
		if valueLower == "true" || valueLower == "1" || valueLower == "yes" {
			return true
		}
		if valueLower == "false" || valueLower == "0" || valueLower == "no" {
			return false
		}
		// For any other value, fall back to default
	}
	return defaultValue
}
