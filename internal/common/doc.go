// Package common provides shared interfaces used throughout the lockmux module.
//
// This package contains core interfaces that are reused across different
// components. It serves as a central location for module-wide contracts that
// help standardize interactions between packages.
//
// # Core Components
//
// - Logger: Interface defining standardized logging methods used throughout the module
// - Nop: A Logger that discards every message
//
// # Logger Interface
//
// The Logger interface separates internal logging from user-facing messages.
// Library packages (pkg/lock, pkg/pool) only emit internal messages such as
// Info and Warning; the lockctl command additionally uses the user-facing
// methods.
//
// # Usage
//
// The Logger interface is typically injected into components that need logging capabilities:
//
//	env := lock.NewEnv(lock.EnvConfig{Logger: log})
//	p := pool.New(nil, log)
//
// # Design Principles
//
// - Minimal Dependencies: The common package has no dependencies on other internal packages
// - Interface-Based Design: Favors interfaces over concrete implementations
package common
