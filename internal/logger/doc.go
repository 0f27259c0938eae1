// Package logger provides the logging implementation used by lockctl.
//
// DefaultLogger separates two audiences. Info, Warning and Error are
// diagnostic: they go to the log file when file logging is enabled, and Info
// and Warning are echoed to stdout in verbose mode. InfoToUser,
// WarningToUser, Success and StatusMessage are meant for the person running
// the command and are always printed. Errors are always printed to stderr.
//
// File records are written with log/slog's text handler. Terminal prefixes
// are colored with lipgloss when the destination is a terminal and plain
// otherwise.
//
// Library packages never depend on this package; they accept a
// common.Logger and default to a silent one.
//
//	log := logger.New(cfg.Debug, cfg.LogFile, cfg.Verbose)
//	defer log.Close()
//
//	env := lock.NewEnv(lock.EnvConfig{Logger: log})
//
// DefaultLogger is safe for concurrent use.
package logger
