package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/arach/fabric/internal/logging"
)

// DefaultImage is used when neither the config nor the caller names one.
const DefaultImage = "docker.io/library/debian:bookworm-slim"

// DockerRuntime implements the Runtime interface using Docker or Podman.
type DockerRuntime struct {
	// Command is the container command to use (docker or podman)
	Command string

	// ContainerPrefix is prepended to sandbox ids to form container names
	ContainerPrefix string

	// Image is the default image for Create
	Image string
}

// NewDockerRuntime creates a new Docker/Podman runtime.
// It auto-detects which command is available.
func NewDockerRuntime(containerPrefix string) (*DockerRuntime, error) {
	// Try podman first (preferred for rootless)
	if _, err := exec.LookPath("podman"); err == nil {
		return &DockerRuntime{Command: "podman", ContainerPrefix: containerPrefix}, nil
	}

	if _, err := exec.LookPath("docker"); err == nil {
		return &DockerRuntime{Command: "docker", ContainerPrefix: containerPrefix}, nil
	}

	return nil, fmt.Errorf("neither podman nor docker found in PATH")
}

// containerName returns the full container name for a sandbox
func (r *DockerRuntime) containerName(sandboxID string) string {
	return r.ContainerPrefix + sandboxID
}

// Name returns the runtime identifier
func (r *DockerRuntime) Name() string {
	return r.Command
}

// runCmd executes a docker/podman command
func (r *DockerRuntime) runCmd(ctx context.Context, args ...string) (string, error) {
	logging.Debug("container command", "cmd", r.Command+" "+shellquote.Join(args...))

	cmd := exec.CommandContext(ctx, r.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s failed: %s: %w", r.Command, args[0], strings.TrimSpace(stderr.String()), err)
	}

	return stdout.String(), nil
}

// createArgs builds the argument list for "create"
func (r *DockerRuntime) createArgs(opts CreateOptions) []string {
	args := []string{"create", "--name", r.containerName(opts.Name)}

	for hostPath, containerPath := range opts.BindMounts {
		args = append(args, "-v", fmt.Sprintf("%s:%s", hostPath, containerPath))
	}

	if opts.WorkingDir != "" {
		args = append(args, "-w", opts.WorkingDir)
	}

	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}

	args = append(args, opts.ExtraArgs...)

	image := opts.Image
	if image == "" {
		image = r.Image
	}
	if image == "" {
		image = DefaultImage
	}

	return append(args, image, "sleep", "infinity")
}

// Create creates a new container kept alive with "sleep infinity"
func (r *DockerRuntime) Create(ctx context.Context, opts CreateOptions) error {
	logging.Debug("creating container", "name", r.containerName(opts.Name), "runtime", r.Command)

	if _, err := r.runCmd(ctx, r.createArgs(opts)...); err != nil {
		return err
	}

	if opts.Start {
		return r.Start(ctx, opts.Name)
	}

	return nil
}

// Start starts an existing container
func (r *DockerRuntime) Start(ctx context.Context, name string) error {
	_, err := r.runCmd(ctx, "start", r.containerName(name))
	return err
}

// Stop stops a running container
func (r *DockerRuntime) Stop(ctx context.Context, name string) error {
	_, err := r.runCmd(ctx, "stop", r.containerName(name))
	return err
}

// Destroy stops and removes a container
func (r *DockerRuntime) Destroy(ctx context.Context, name string) error {
	containerName := r.containerName(name)
	logging.Debug("destroying container", "container", containerName)

	_, err := r.runCmd(ctx, "rm", "-f", containerName)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "no such container") {
		return nil
	}

	return err
}

// IsRunning checks if a container is currently running
func (r *DockerRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	output, err := r.runCmd(ctx, "inspect", "-f", "{{.State.Running}}", r.containerName(name))
	if err != nil {
		return false, nil // Container doesn't exist
	}

	return strings.TrimSpace(output) == "true", nil
}

// dockerInspect holds the relevant fields from docker inspect
type dockerInspect struct {
	State struct {
		Status    string `json:"Status"`
		Running   bool   `json:"Running"`
		StartedAt string `json:"StartedAt"`
	} `json:"State"`
	NetworkSettings struct {
		IPAddress string `json:"IPAddress"`
	} `json:"NetworkSettings"`
}

// parseInspect maps docker inspect output onto a ContainerInfo
func parseInspect(name, output string) *ContainerInfo {
	info := &ContainerInfo{Name: name, Status: StatusNotFound}

	var inspects []dockerInspect
	if err := json.Unmarshal([]byte(output), &inspects); err != nil || len(inspects) == 0 {
		return info
	}

	inspect := inspects[0]
	switch inspect.State.Status {
	case "running":
		info.Status = StatusRunning
	case "exited", "stopped", "created":
		info.Status = StatusStopped
	default:
		info.Status = StatusUnknown
	}

	info.StartedAt = inspect.State.StartedAt
	info.IPAddress = inspect.NetworkSettings.IPAddress
	return info
}

// Status returns detailed status of a container
func (r *DockerRuntime) Status(ctx context.Context, name string) (*ContainerInfo, error) {
	output, err := r.runCmd(ctx, "inspect", r.containerName(name))
	if err != nil {
		return &ContainerInfo{Name: name, Status: StatusNotFound}, nil
	}
	return parseInspect(name, output), nil
}

// execArgs builds the argument list for "exec"
func (r *DockerRuntime) execArgs(name string, command []string, opts ExecOptions) []string {
	args := []string{"exec"}

	if opts.Stdin != nil {
		args = append(args, "-i")
	}

	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}

	if opts.WorkingDir != "" {
		args = append(args, "-w", opts.WorkingDir)
	}

	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}

	args = append(args, r.containerName(name))
	return append(args, command...)
}

// Exec executes a command inside a container. A non-zero exit status is
// reported in the result.
func (r *DockerRuntime) Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error) {
	args := r.execArgs(name, command, opts)
	logging.Debug("container exec", "cmd", r.Command+" "+shellquote.Join(args...))

	cmd := exec.CommandContext(ctx, r.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, fmt.Errorf("exec failed: %w", err)
		}
	}

	return result, nil
}

// List returns all containers managed by this runtime
func (r *DockerRuntime) List(ctx context.Context) ([]*ContainerInfo, error) {
	output, err := r.runCmd(ctx, "ps", "-a", "--format", "{{.Names}}", "--filter", fmt.Sprintf("name=%s", r.ContainerPrefix))
	if err != nil {
		return nil, err
	}

	var containers []*ContainerInfo
	for _, name := range strings.Split(strings.TrimSpace(output), "\n") {
		if name == "" || !strings.HasPrefix(name, r.ContainerPrefix) {
			continue
		}

		info, _ := r.Status(ctx, strings.TrimPrefix(name, r.ContainerPrefix))
		if info != nil {
			containers = append(containers, info)
		}
	}

	return containers, nil
}

var _ Runtime = (*DockerRuntime)(nil)
