package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/pflag"

	"github.com/bashhack/lockmux/internal/common"
	"github.com/bashhack/lockmux/internal/config"
	"github.com/bashhack/lockmux/internal/constants"
	"github.com/bashhack/lockmux/internal/errors"
	"github.com/bashhack/lockmux/internal/logger"
	"github.com/bashhack/lockmux/pkg/lock"
	"github.com/bashhack/lockmux/pkg/pool"
)

// Logger alias to common.Logger
type Logger = common.Logger

// CommandRunner runs argv with the environment env and waits for it
type CommandRunner func(ctx context.Context, env []string, argv []string) error

// AppOptions contains app configuration and dependencies
type AppOptions struct {
	// Required
	Config *config.ThreadSafeConfig

	// Version is shown by --version
	Version config.VersionInfo

	// Optional components
	Logger Logger
	Env    *lock.Env
	Pool   *pool.Pool

	// I/O dependencies
	Stdout io.Writer
	Stderr io.Writer

	// System dependencies
	Exit       func(code int)
	RunCommand CommandRunner
}

// App is the lockctl application
type App struct {
	Config *config.ThreadSafeConfig
	Logger Logger
	Env    *lock.Env
	Pool   *pool.Pool

	// I/O streams
	Stdout io.Writer
	Stderr io.Writer

	version config.VersionInfo

	// System dependencies
	exit       func(code int)
	runCommand CommandRunner
}

// NewDefaultApp creates an App with standard dependencies
func NewDefaultApp(versionInfo config.VersionInfo) *App {
	opts := AppOptions{
		Config:  config.NewThreadSafeConfig().WithVersionInfo(versionInfo),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Exit:    os.Exit,
		Version: versionInfo,
	}

	return NewApp(opts)
}

// NewApp creates an App with custom dependencies
func NewApp(opts AppOptions) *App {
	if opts.Config == nil {
		panic("Config is required in AppOptions")
	}

	app := &App{
		Config:     opts.Config,
		Logger:     opts.Logger,
		Env:        opts.Env,
		Pool:       opts.Pool,
		Stdout:     opts.Stdout,
		Stderr:     opts.Stderr,
		exit:       opts.Exit,
		runCommand: opts.RunCommand,
		version:    opts.Version,
	}

	// Set defaults for nil dependencies
	if app.Stdout == nil {
		app.Stdout = os.Stdout
	}
	if app.Stderr == nil {
		app.Stderr = os.Stderr
	}
	if app.exit == nil {
		app.exit = os.Exit
	}
	if app.runCommand == nil {
		app.runCommand = app.execCommand
	}
	if app.version == (config.VersionInfo{}) {
		app.version = config.New().VersionInfo
	}

	return app
}

// Initialize finalizes the configuration from the parsed flags of fs and
// sets up components not provided during construction
func (a *App) Initialize(fs *pflag.FlagSet) error {
	if err := a.Config.Initialize(fs); err != nil {
		if errors.Is(err, errors.ErrInvalidConfiguration) {
			return err
		}
		return errors.Wrap(errors.ErrInvalidConfiguration, err.Error())
	}
	cfg := a.Config.Config()

	if a.Logger == nil {
		a.Logger = logger.NewWithOutput(cfg.Debug, cfg.LogFile, cfg.Verbose, a.Stdout, a.Stderr)
	}
	if cfg.ConfigFile != "" {
		a.Logger.Info("Configuration loaded from %s", cfg.ConfigFile)
	}

	if a.Env == nil {
		// Named locks are shared with unrelated processes, so the command
		// prefers a mechanism that opens existing backing files untouched
		a.Env = lock.NewEnv(lock.EnvConfig{
			Dir:              cfg.LockDir,
			Logger:           a.Logger,
			DefaultExclusive: lock.MechFlock,
			DefaultReadWrite: lock.MechFlock,
		})
	}

	if a.Pool == nil {
		a.Pool = pool.New(nil, a.Logger)
	}

	return nil
}

// ShowVersion displays version information
func (a *App) ShowVersion() {
	_, _ = fmt.Fprintf(a.Stdout, "%s %s\n", constants.AppName, a.versionString())
}

func (a *App) versionString() string {
	return fmt.Sprintf("%s (%s) built on %s", a.version.Version, a.version.Commit, a.version.Date)
}

// execCommand is the default CommandRunner. Cancelling ctx interrupts the
// command and kills it if it has not exited after a grace period.
func (a *App) execCommand(ctx context.Context, env []string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = a.Stdout
	cmd.Stderr = a.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = shutdownGrace

	return cmd.Run()
}

// ExitCode maps the error returned by a command to the process exit status
func (a *App) ExitCode(err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
		return 1
	case errors.Is(err, lock.ErrWouldBlock):
		return constants.ExitContended
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}

// ReportError prints err for the user. A failing command has already
// reported its own failure.
func (a *App) ReportError(err error) {
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
	case errors.Is(err, lock.ErrWouldBlock):
		_, _ = fmt.Fprintf(a.Stderr, "⚠️  Lock is held elsewhere: %v\n", err)
	default:
		_, _ = fmt.Fprintf(a.Stderr, "❌ Error: %v\n", err)
	}
}

// Close destroys every lock the app created and closes the logger
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Destroy()
	}

	if l, ok := a.Logger.(logger.Logger); ok && l != nil {
		if err := l.Close(); err != nil {
			_, _ = fmt.Fprintf(a.Stderr, "❌ Failed to close logger: %v\n", err)
			return err
		}
	}
	return nil
}

// CleanupOnSignal releases everything on interruption
func (a *App) CleanupOnSignal() {
	if err := a.Close(); err != nil {
		_, _ = fmt.Fprintf(a.Stderr, "❌ Error during cleanup: %v\n", err)
	}
}

const (
	// shutdownGrace bounds how long an interrupted command may take to exit
	shutdownGrace = 5 * time.Second

	// exitInterrupted is the conventional status of a process stopped by SIGINT
	exitInterrupted = 130
)
