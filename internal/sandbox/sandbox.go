package sandbox

import (
	"context"
	"time"

	"github.com/arach/fabric/internal/errors"
)

// BackendType identifies the isolation technology behind a Sandbox.
type BackendType string

const (
	BackendLocal  BackendType = "local"
	BackendCloud  BackendType = "cloud"
	BackendMemory BackendType = "memory"
)

// Status represents the lifecycle state of a sandbox
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// ExecResult holds the result of running a command to completion
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// CodeResult holds the result of running a code snippet
type CodeResult struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Sandbox is one backend-hosted isolated execution environment.
// A Sandbox has a single logical owner; implementations need not be
// safe for concurrent use by several callers.
type Sandbox interface {
	// ID is unique within the sandbox's factory
	ID() string

	// Backend returns the backend tag
	Backend() BackendType

	// Status returns the current lifecycle state
	Status() Status

	// Address returns the network address, or "" if the backend has none
	Address() string

	// Start transitions the sandbox to running
	Start(ctx context.Context) error

	// Stop transitions the sandbox to stopped. Calling it again is a no-op.
	Stop(ctx context.Context) error

	// Exec runs a shell command to completion. A non-zero exit code is
	// reported in the result, not as an error.
	Exec(ctx context.Context, command string) (*ExecResult, error)

	// WriteFile writes a file relative to the workspace root
	WriteFile(ctx context.Context, path string, data []byte) error

	// ReadFile reads a file relative to the workspace root
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// ListFiles lists entry names of a directory relative to the workspace root
	ListFiles(ctx context.Context, dir string) ([]string, error)

	// Snapshot captures the reachable workspace tree
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Restore writes every file of the snapshot, creating parents as needed.
	// Files absent from the snapshot are left alone.
	Restore(ctx context.Context, snap *Snapshot) error
}

// CodeRunner is implemented by sandboxes that can run code natively.
type CodeRunner interface {
	RunCode(ctx context.Context, code, language string) (*CodeResult, error)
}

// AsCodeRunner reports whether sb runs code natively.
func AsCodeRunner(sb Sandbox) (CodeRunner, bool) {
	cr, ok := sb.(CodeRunner)
	return cr, ok
}

// CreateOptions holds options for creating a sandbox
type CreateOptions struct {
	ID            string            // Requested id; factories generate one when empty
	Image         string            // Backend-specific image or template
	WorkspacePath string            // Workspace root inside the sandbox
	Mounts        map[string]string // host path -> sandbox path
}

// Info is the listing view of a sandbox
type Info struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Factory creates, resumes and lists sandboxes for one backend type.
type Factory interface {
	// Create provisions a sandbox and returns it running
	Create(ctx context.Context, opts CreateOptions) (Sandbox, error)

	// Resume reattaches to an existing sandbox. It returns (nil, nil)
	// when the id is unknown.
	Resume(ctx context.Context, id string) (Sandbox, error)

	// List returns every sandbox the factory knows about
	List(ctx context.Context) ([]Info, error)
}

// HandoffToken records one delegate call.
type HandoffToken struct {
	ID        string            `json:"id"`
	Source    BackendType       `json:"source"`
	Target    BackendType       `json:"target"`
	SandboxID string            `json:"sandboxId"`
	CreatedAt time.Time         `json:"createdAt"`
	Snapshot  *Snapshot         `json:"snapshot,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CheckRunning returns ErrNotRunning unless sb is running.
func CheckRunning(sb Sandbox) error {
	if sb.Status() != StatusRunning {
		return errors.NotRunning(sb.ID())
	}
	return nil
}
