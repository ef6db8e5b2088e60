package runtime

import (
	"context"
	"io"
)

// ContainerStatus represents the state of a container
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not-found"
	StatusUnknown  ContainerStatus = "unknown"
)

// ContainerInfo holds information about a container
type ContainerInfo struct {
	Name      string
	Status    ContainerStatus
	StartedAt string
	IPAddress string
}

// ExecResult holds the result of executing a command in a container
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CreateOptions holds options for creating a container
type CreateOptions struct {
	Name       string
	Image      string            // Image to run; the runtime default when empty
	WorkingDir string            // Default working directory inside the container
	Env        []string          // KEY=VALUE pairs
	BindMounts map[string]string // host path -> container path
	Start      bool              // Start immediately after creation
	ExtraArgs  []string          // Engine-specific arguments
}

// ExecOptions holds options for executing a command in a container
type ExecOptions struct {
	User       string    // User to run as
	WorkingDir string    // Working directory
	Env        []string  // Environment variables
	Stdin      io.Reader // Standard input
}

// Runtime is the interface container engines implement for the local
// backend. All methods should be safe for concurrent use.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "docker", "podman")
	Name() string

	// Create creates a new container, starting it when opts.Start is set
	Create(ctx context.Context, opts CreateOptions) error

	// Start starts an existing container
	Start(ctx context.Context, name string) error

	// Stop stops a running container
	Stop(ctx context.Context, name string) error

	// Destroy stops and removes a container
	Destroy(ctx context.Context, name string) error

	// IsRunning checks if a container is currently running
	IsRunning(ctx context.Context, name string) (bool, error)

	// Status returns detailed status of a container
	Status(ctx context.Context, name string) (*ContainerInfo, error)

	// Exec executes a command inside a container
	Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error)

	// List returns all containers managed by this runtime
	List(ctx context.Context) ([]*ContainerInfo, error)
}
