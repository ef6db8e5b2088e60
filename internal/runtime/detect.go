package runtime

import (
	"fmt"
	"os/exec"
	goruntime "runtime"

	"github.com/arach/fabric/internal/logging"
)

// RuntimeType identifies which container runtime to use
type RuntimeType string

const (
	RuntimeDocker RuntimeType = "docker"
	RuntimePodman RuntimeType = "podman"
	RuntimeAuto   RuntimeType = "auto"
)

// Config holds runtime configuration
type Config struct {
	// Type specifies which runtime to use (or "auto" for auto-detection)
	Type RuntimeType

	// ContainerPrefix is prepended to sandbox ids
	ContainerPrefix string

	// Image is the default container image
	Image string
}

// DefaultConfig returns the default runtime configuration
func DefaultConfig() *Config {
	return &Config{
		Type:            RuntimeAuto,
		ContainerPrefix: "fabric-",
		Image:           DefaultImage,
	}
}

// Detect determines which container runtime is available on the system.
func Detect() (RuntimeType, error) {
	logging.Debug("detecting container runtime", "os", goruntime.GOOS)

	// Try podman (preferred for rootless)
	if _, err := exec.LookPath("podman"); err == nil {
		logging.Debug("detected podman")
		return RuntimePodman, nil
	}

	if _, err := exec.LookPath("docker"); err == nil {
		logging.Debug("detected docker")
		return RuntimeDocker, nil
	}

	return "", fmt.Errorf("no supported container runtime found on %s (tried: podman, docker)", goruntime.GOOS)
}

// New creates a new Runtime based on the configuration.
// If Type is RuntimeAuto, it auto-detects the best runtime.
func New(cfg *Config) (Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	runtimeType := cfg.Type
	if runtimeType == "" || runtimeType == RuntimeAuto {
		detected, err := Detect()
		if err != nil {
			return nil, err
		}
		runtimeType = detected
	}

	logging.Debug("creating runtime", "type", runtimeType)

	switch runtimeType {
	case RuntimeDocker, RuntimePodman:
		return &DockerRuntime{
			Command:         string(runtimeType),
			ContainerPrefix: cfg.ContainerPrefix,
			Image:           cfg.Image,
		}, nil

	default:
		return nil, fmt.Errorf("unknown runtime type: %s", runtimeType)
	}
}

// Available returns a list of available runtimes on this system
func Available() []RuntimeType {
	var available []RuntimeType

	if _, err := exec.LookPath("podman"); err == nil {
		available = append(available, RuntimePodman)
	}

	if _, err := exec.LookPath("docker"); err == nil {
		available = append(available, RuntimeDocker)
	}

	return available
}
