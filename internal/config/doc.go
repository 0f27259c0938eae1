// Package config provides configuration handling for lockctl.
//
// Values are resolved with the following precedence:
//
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. The YAML config file
// 4. Default values (lowest priority)
//
// # Config File
//
// The file is named by --config or LOCKMUX_CONFIG. Without either,
// $XDG_CONFIG_HOME/lockmux/config.yaml is read if it exists. Unknown keys
// are rejected:
//
//	lock_dir: /run/lockmux
//	mech: flock
//	scope: both
//	poll_interval: 250ms
//	debug: true
//
// # Environment Variables
//
//	LOCKMUX_DIR             Directory for generated lock files
//	LOCKMUX_MECH            Lock mechanism (default: chosen per kind and host)
//	LOCKMUX_KIND            exclusive or readwrite (default: exclusive)
//	LOCKMUX_SCOPE           process, thread or both (default: process)
//	LOCKMUX_PERSIST         Keep backing files after release
//	LOCKMUX_NONBLOCK        Fail immediately on contention
//	LOCKMUX_WAIT            Maximum wait, e.g. 30s (default: forever)
//	LOCKMUX_POLL_INTERVAL   Initial delay between attempts (default: 100ms)
//	LOCKMUX_VERBOSE         Show diagnostic messages
//	LOCKMUX_DEBUG           Enable debug logging
//	LOCKMUX_LOG_FILE        Path to log file
//
// # Validation
//
// Finalize parses the mechanism, kind and scope names, rejects conflicting
// waiting options and fills in directory defaults. Every failure is a
// *errors.ConfigError wrapping ErrInvalidConfiguration.
//
// # Thread Safety
//
// ThreadSafeConfig guards a Config for use from several goroutines once
// Initialize has run.
package config
