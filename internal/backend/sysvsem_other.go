//go:build !(linux && (amd64 || arm64))

package backend

// SysVSem is not available on this platform
var SysVSem Method = unsupported{mech: MechSysVSem, caps: CapProcess | CapGlobal}
