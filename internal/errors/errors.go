package errors

import (
	"errors"
	"fmt"
)

// Exit codes for fabric
const (
	ExitSuccess              = 0
	ExitGeneralError         = 1
	ExitSandboxNotFound      = 2
	ExitNotRunning           = 3
	ExitNotInitialized       = 4
	ExitFactoryNotRegistered = 5
	ExitTokenNotFound        = 6
	ExitHandoffFailed        = 7
	ExitConfigError          = 8
	ExitCheckpointError      = 9
	ExitBackendError         = 10
)

// FabricError is the base error type for fabric
type FabricError struct {
	Code    int
	Message string
	Cause   error
}

func (e *FabricError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *FabricError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a FabricError with the same code.
// This lets the sentinels below match any error built by the constructors.
func (e *FabricError) Is(target error) bool {
	t, ok := target.(*FabricError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ExitCode returns the exit code for this error
func (e *FabricError) ExitCode() int {
	return e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotRunning           = New(ExitNotRunning, "sandbox not running")
	ErrNotInitialized       = New(ExitNotInitialized, "session not initialized")
	ErrTokenNotFound        = New(ExitTokenNotFound, "token not found")
	ErrFactoryNotRegistered = New(ExitFactoryNotRegistered, "factory not registered")
	ErrSandboxNotFound      = New(ExitSandboxNotFound, "sandbox not found")
)

// New creates a new FabricError
func New(code int, message string) *FabricError {
	return &FabricError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a FabricError
func Wrap(code int, message string, cause error) *FabricError {
	return &FabricError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors

// SandboxNotFound returns an error for a sandbox a factory does not know
func SandboxNotFound(id string) *FabricError {
	return New(ExitSandboxNotFound, fmt.Sprintf("sandbox not found: %s", id))
}

// SessionNotFound returns an error for a session with no saved record
func SessionNotFound(id string) *FabricError {
	return New(ExitSandboxNotFound, fmt.Sprintf("session not found: %s", id))
}

// NotRunning returns an error for an operation against a sandbox that is not running
func NotRunning(id string) *FabricError {
	return New(ExitNotRunning, fmt.Sprintf("sandbox %s is not running", id))
}

// NotInitialized returns an error for an operation against a session without a ready sandbox
func NotInitialized(sessionID string) *FabricError {
	return New(ExitNotInitialized, fmt.Sprintf("session %s is not initialized", sessionID))
}

// TokenNotFound returns an error for a missing handoff token
func TokenNotFound(id string) *FabricError {
	return New(ExitTokenNotFound, fmt.Sprintf("Token not found: %s", id))
}

// FactoryNotRegistered returns an error for a backend without a registered factory
func FactoryNotRegistered(backend string) *FabricError {
	return New(ExitFactoryNotRegistered, fmt.Sprintf("Factory not registered: %s", backend))
}

// HandoffFailed returns an error for a failed delegate or reclaim
func HandoffFailed(op string, message string) *FabricError {
	return New(ExitHandoffFailed, fmt.Sprintf("%s failed: %s", op, message))
}

// BackendError wraps an adapter failure without replacing it
func BackendError(op string, cause error) *FabricError {
	return Wrap(ExitBackendError, fmt.Sprintf("backend %s failed", op), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *FabricError {
	return Wrap(ExitConfigError, message, cause)
}

// CheckpointError returns an error for checkpoint persistence issues
func CheckpointError(message string, cause error) *FabricError {
	return Wrap(ExitCheckpointError, message, cause)
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *FabricError {
	return New(ExitGeneralError, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var fabricErr *FabricError
	if errors.As(err, &fabricErr) {
		return fabricErr.ExitCode()
	}
	return ExitGeneralError
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
