//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package backend

// Fcntl is not available on this platform
var Fcntl Method = unsupported{mech: MechFcntl, caps: CapProcess | CapReadWrite | CapNamed}
