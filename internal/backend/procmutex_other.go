//go:build !linux

package backend

// ProcMutex is not available on this platform
var ProcMutex Method = unsupported{mech: MechProcMutex, caps: CapProcess | CapGlobal | CapNamed}
