//go:build !unix

package backend

// Flock is not available on this platform
var Flock Method = unsupported{mech: MechFlock, caps: CapProcess | CapReadWrite | CapNamed}
