package constants

import "os"

const (
	// AppName is used for the command name and the default lock directory
	AppName = "lockctl"

	// DefaultDirName is the directory under os.TempDir() holding generated
	// backing files
	DefaultDirName = "lockmux"

	// TempPattern names generated backing files
	TempPattern = "lockmux-*.lock"

	// EnvPrefix prefixes every environment variable the module reads
	EnvPrefix = "LOCKMUX_"

	// HandleEnv carries a serialized lock handle to a cooperating child process
	HandleEnv = EnvPrefix + "HANDLE"

	// ConfigEnv points at a YAML configuration file
	ConfigEnv = EnvPrefix + "CONFIG"
)

const (
	// FilePerm is the mode of created backing files and semaphore sets
	FilePerm os.FileMode = 0o600

	// DirPerm is the mode of created lock directories
	DirPerm os.FileMode = 0o700
)

// ExitContended is the lockctl exit status when a non-blocking or bounded
// acquire gives up (EX_TEMPFAIL from sysexits.h)
const ExitContended = 75
