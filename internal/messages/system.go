package messages

// System messages for process, filesystem and lock operations.
const (
	ProcessEmptyCommand   = "command is empty"
	ProcessRunningFmt     = "Running %s\n"
	ProcessDryRunFmt      = "dry-run: %s\n"
	ProcessStartFailedFmt = "start %s: %w"
	ProcessFailedFmt      = "command %s failed with %d"
	ProcessReadOutputFmt  = "read output of %s: %w"

	FSUtilCreateTempFmt = "create temp file for %s: %w"
	FSUtilWriteTempFmt  = "write temp file for %s: %w"
	FSUtilSyncTempFmt   = "sync temp file for %s: %w"
	FSUtilCloseTempFmt  = "close temp file for %s: %w"
	FSUtilChmodTempFmt  = "chmod temp file for %s: %w"
	FSUtilRenameFmt     = "move temp file into place at %s: %w"

	LockOpenFmt        = "open lock file %s: %w"
	LockAcquireFmt     = "lock %s: %w"
	LockTimeoutFmt     = "timed out after %s waiting for lock"
	LockPathRequired   = "lock path is required"
	WorkspaceCreateFmt = "create working directory: %w"
	WorkspaceRemoveFmt = "remove working directory %s: %w"
)
