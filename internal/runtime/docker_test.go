package runtime

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDockerRuntime_Name(t *testing.T) {
	rt := &DockerRuntime{
		Command:         "docker",
		ContainerPrefix: "fabric-",
	}

	if rt.Name() != "docker" {
		t.Errorf("Name() = %q, want %q", rt.Name(), "docker")
	}

	rt.Command = "podman"
	if rt.Name() != "podman" {
		t.Errorf("Name() = %q, want %q", rt.Name(), "podman")
	}
}

func TestDockerRuntime_containerName(t *testing.T) {
	rt := &DockerRuntime{
		Command:         "docker",
		ContainerPrefix: "fabric-",
	}

	tests := []struct {
		sandboxName string
		want        string
	}{
		{"myproject", "fabric-myproject"},
		{"test-123", "fabric-test-123"},
		{"", "fabric-"},
	}

	for _, tt := range tests {
		t.Run(tt.sandboxName, func(t *testing.T) {
			got := rt.containerName(tt.sandboxName)
			if got != tt.want {
				t.Errorf("containerName(%q) = %q, want %q", tt.sandboxName, got, tt.want)
			}
		})
	}
}

func TestDockerRuntime_containerName_CustomPrefix(t *testing.T) {
	rt := &DockerRuntime{
		Command:         "docker",
		ContainerPrefix: "custom-prefix-",
	}

	got := rt.containerName("sandbox")
	want := "custom-prefix-sandbox"
	if got != want {
		t.Errorf("containerName with custom prefix = %q, want %q", got, want)
	}
}

func TestDockerRuntime_Interface(t *testing.T) {
	// Ensure DockerRuntime implements Runtime interface
	var _ Runtime = (*DockerRuntime)(nil)
}

func TestDockerInspect_Parse(t *testing.T) {
	// Test that dockerInspect struct can parse expected JSON
	jsonData := `[{
		"State": {
			"Status": "running",
			"Running": true,
			"StartedAt": "2024-01-01T00:00:00Z"
		},
		"NetworkSettings": {
			"IPAddress": "172.17.0.2"
		}
	}]`

	var inspects []dockerInspect
	if err := json.Unmarshal([]byte(jsonData), &inspects); err != nil {
		t.Fatalf("Failed to parse dockerInspect: %v", err)
	}

	if len(inspects) != 1 {
		t.Fatalf("Expected 1 inspect result, got %d", len(inspects))
	}

	inspect := inspects[0]
	if inspect.State.Status != "running" {
		t.Errorf("State.Status = %q, want %q", inspect.State.Status, "running")
	}
	if !inspect.State.Running {
		t.Error("State.Running = false, want true")
	}
	if inspect.State.StartedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("State.StartedAt = %q, want %q", inspect.State.StartedAt, "2024-01-01T00:00:00Z")
	}
	if inspect.NetworkSettings.IPAddress != "172.17.0.2" {
		t.Errorf("NetworkSettings.IPAddress = %q, want %q", inspect.NetworkSettings.IPAddress, "172.17.0.2")
	}
}

func TestParseInspect(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   ContainerStatus
	}{
		{"running", `[{"State":{"Status":"running","Running":true}}]`, StatusRunning},
		{"exited", `[{"State":{"Status":"exited"}}]`, StatusStopped},
		{"created", `[{"State":{"Status":"created"}}]`, StatusStopped},
		{"paused", `[{"State":{"Status":"paused"}}]`, StatusUnknown},
		{"empty", `[]`, StatusNotFound},
		{"garbage", `not json`, StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := parseInspect("sb", tt.output)
			if info.Status != tt.want {
				t.Errorf("parseInspect() status = %q, want %q", info.Status, tt.want)
			}
			if info.Name != "sb" {
				t.Errorf("parseInspect() name = %q, want sb", info.Name)
			}
		})
	}
}

func TestDockerRuntime_createArgs(t *testing.T) {
	rt := &DockerRuntime{Command: "docker", ContainerPrefix: "fabric-", Image: "alpine:3"}

	args := rt.createArgs(CreateOptions{
		Name:       "sb1",
		WorkingDir: "/workspace",
		Env:        []string{"A=1"},
		BindMounts: map[string]string{"/host/ws": "/workspace"},
	})

	want := []string{
		"create", "--name", "fabric-sb1",
		"-v", "/host/ws:/workspace",
		"-w", "/workspace",
		"-e", "A=1",
		"alpine:3", "sleep", "infinity",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("createArgs() = %v, want %v", args, want)
	}

	// Per-call image beats the runtime default; no default falls back to DefaultImage.
	args = rt.createArgs(CreateOptions{Name: "sb2", Image: "busybox"})
	if args[len(args)-3] != "busybox" {
		t.Errorf("image = %q, want busybox", args[len(args)-3])
	}
	rt.Image = ""
	args = rt.createArgs(CreateOptions{Name: "sb3"})
	if args[len(args)-3] != DefaultImage {
		t.Errorf("image = %q, want %q", args[len(args)-3], DefaultImage)
	}
}

func TestDockerRuntime_execArgs(t *testing.T) {
	rt := &DockerRuntime{Command: "podman", ContainerPrefix: "fabric-"}

	args := rt.execArgs("sb1", []string{"sh", "-c", "ls"}, ExecOptions{
		User:       "agent",
		WorkingDir: "/workspace",
		Env:        []string{"K=V"},
		Stdin:      strings.NewReader("x"),
	})

	want := []string{"exec", "-i", "-u", "agent", "-w", "/workspace", "-e", "K=V", "fabric-sb1", "sh", "-c", "ls"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("execArgs() = %v, want %v", args, want)
	}
}
