// Package errors provides typed errors with exit codes for fabric.
//
// # Error Types
//
// FabricError is the base error type that wraps an error with an exit code:
//
//	type FabricError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
//	ExitSuccess              = 0   // Success
//	ExitGeneralError         = 1   // General/unknown errors
//	ExitSandboxNotFound      = 2   // Factory does not know the sandbox
//	ExitNotRunning           = 3   // Operation against a non-running sandbox
//	ExitNotInitialized       = 4   // Session has no ready sandbox
//	ExitFactoryNotRegistered = 5   // No factory for the backend type
//	ExitTokenNotFound        = 6   // Handoff token unknown or consumed
//	ExitHandoffFailed        = 7   // Delegate or reclaim failed
//	ExitConfigError          = 8   // Configuration error
//	ExitCheckpointError      = 9   // Checkpoint persistence failed
//	ExitBackendError         = 10  // Adapter or network failure
//
// # Sentinels
//
// FabricError.Is compares codes, so the exported sentinels match any error
// produced by the constructors:
//
//	if errors.Is(err, errors.ErrNotRunning) { ... }
//
// # Extracting Exit Codes
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
