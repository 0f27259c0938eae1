// Package constants provides module-wide constant values for lockmux.
//
// This package centralizes values shared by the library and the lockctl
// command, making them easy to maintain and update.
//
// # Core Components
//
// - Names: the command name, default lock directory and backing file pattern
// - Environment: the LOCKMUX_ prefix and the variables derived from it
// - Permissions: modes for created backing files and directories
// - Exit codes: the lockctl status reported on contention
//
// # Usage
//
//	import "github.com/bashhack/lockmux/internal/constants"
//
//	handle := os.Getenv(constants.HandleEnv)
//
// # Maintenance
//
// When adding new constants to this package:
//
// - Group related constants together
// - Provide clear documentation for each constant
// - Consider the scope and usage across the module
package constants
