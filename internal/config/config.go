package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/provider"
	"github.com/arach/fabric/internal/snapshot"
)

// nameRegex validates session names.
// Names must start with a lowercase letter or digit, followed by lowercase letters, digits, underscores, or hyphens.
// Maximum length is 63 characters (common container name limit).
var nameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateName checks if a session name is valid.
// Valid names:
//   - Start with a lowercase letter or digit
//   - Contain only lowercase letters, digits, underscores, or hyphens
//   - Are between 1 and 63 characters long
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must start with a lowercase letter or digit, contain only lowercase letters, digits, underscores, or hyphens, and be at most 63 characters", name)
	}

	return nil
}

// safePath validates that a constructed path stays within the base directory.
func safePath(baseDir, name, suffix string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("name cannot be an absolute path")
	}

	if filepath.Dir(name) != "." {
		return "", fmt.Errorf("name cannot contain path separators")
	}

	path := filepath.Join(baseDir, name+suffix)

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("invalid base directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	// Separator suffix keeps /state/fabric-evil from matching /state/fabric
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return "", fmt.Errorf("path escapes base directory")
	}

	return path, nil
}

const (
	EnvPrefix        = "fabric"
	ConfigEnvVar     = "FABRIC_CONFIG"
	DefaultEngine    = "auto"
	DefaultPrefix    = "fabric-"
	DefaultCloudName = "cloud"
	DefaultTimeout   = 30 * time.Second
)

// LocalConfig is the [local] section.
type LocalConfig struct {
	Engine          string `toml:"engine"`
	Image           string `toml:"image"`
	ContainerPrefix string `toml:"container_prefix"`
	WorkspaceRoot   string `toml:"workspace_root"`
}

// Validate checks the engine name.
func (c *LocalConfig) Validate() error {
	switch c.Engine {
	case "auto", "docker", "podman", "":
		return nil
	default:
		return fmt.Errorf("invalid engine %q (must be auto, docker or podman)", c.Engine)
	}
}

// CloudConfig is the [cloud] section.
type CloudConfig struct {
	Backend string        `toml:"backend"`
	URL     string        `toml:"url"`
	Token   string        `toml:"token"`
	Timeout time.Duration `toml:"timeout"`
}

// Enabled reports whether a sandbox daemon is configured.
func (c *CloudConfig) Enabled() bool {
	return c.URL != ""
}

// Validate checks the URL shape and the timeout.
func (c *CloudConfig) Validate() error {
	if c.URL != "" && !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("cloud url must start with http:// or https:// (got %q)", c.URL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("cloud timeout cannot be negative")
	}
	return nil
}

// AgentConfig is the [agent] section.
type AgentConfig struct {
	Command string `toml:"command"`
	DotEnv  string `toml:"dotenv"`
}

// Config is the fabric configuration file.
type Config struct {
	StateDir  string            `toml:"state_dir"`
	Local     LocalConfig       `toml:"local"`
	Cloud     CloudConfig       `toml:"cloud"`
	Snapshot  snapshot.Options  `toml:"snapshot"`
	Provider  provider.Config   `toml:"provider"`
	Fallbacks []provider.Config `toml:"fallbacks"`
	Agent     AgentConfig       `toml:"agent"`

	// Path is the file the configuration was read from, if any
	Path string `toml:"-"`
}

// overrides are the environment variables layered over the file.
type overrides struct {
	StateDir    string `envconfig:"STATE_DIR"`
	CloudURL    string `envconfig:"CLOUD_URL"`
	CloudToken  string `envconfig:"CLOUD_TOKEN"`
	LocalImage  string `envconfig:"LOCAL_IMAGE"`
	LocalEngine string `envconfig:"LOCAL_ENGINE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StateDir: defaultStateDir(),
		Local: LocalConfig{
			Engine:          DefaultEngine,
			ContainerPrefix: DefaultPrefix,
		},
		Cloud: CloudConfig{
			Backend: DefaultCloudName,
			Timeout: DefaultTimeout,
		},
		Snapshot: snapshot.DefaultOptions(),
		Provider: provider.Config{Kind: provider.Anthropic},
		Agent:    AgentConfig{Command: "claude -p", DotEnv: ".env"},
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "fabric")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "fabric")
	}
	return filepath.Join(os.TempDir(), "fabric")
}

// DefaultPath returns $FABRIC_CONFIG, or config.toml under the user config
// directory.
func DefaultPath() string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fabric", "config.toml")
}

// Load reads the configuration file at path over the defaults and applies
// FABRIC_* environment overrides. An empty path means DefaultPath, which
// may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || explicit {
				return nil, errors.ConfigError("failed to read config "+path, err)
			}
		} else {
			cfg.Path = path
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("invalid config", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env overrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return errors.ConfigError("failed to read environment", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.StateDir, env.StateDir)
	set(&c.Cloud.URL, env.CloudURL)
	set(&c.Cloud.Token, env.CloudToken)
	set(&c.Local.Image, env.LocalImage)
	set(&c.Local.Engine, env.LocalEngine)
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if err := c.Local.Validate(); err != nil {
		return fmt.Errorf("local: %w", err)
	}
	if err := c.Cloud.Validate(); err != nil {
		return fmt.Errorf("cloud: %w", err)
	}
	if err := c.Snapshot.Validate(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	for i, fb := range c.Fallbacks {
		if err := fb.Validate(); err != nil {
			return fmt.Errorf("fallbacks[%d]: %w", i, err)
		}
	}
	return nil
}

// Paths holds the state directories derived from StateDir.
type Paths struct {
	StateDir       string
	CheckpointsDir string
	SessionsDir    string
	AuditDir       string
	WorkspacesDir  string
	MetricsFile    string
}

// Paths returns the state layout under StateDir.
func (c *Config) Paths() *Paths {
	return NewPaths(c.StateDir)
}

// NewPaths returns the state layout under stateDir.
func NewPaths(stateDir string) *Paths {
	return &Paths{
		StateDir:       stateDir,
		CheckpointsDir: filepath.Join(stateDir, "checkpoints"),
		SessionsDir:    filepath.Join(stateDir, "sessions"),
		AuditDir:       filepath.Join(stateDir, "audit"),
		WorkspacesDir:  filepath.Join(stateDir, "workspaces"),
		MetricsFile:    filepath.Join(stateDir, "fabric.prom"),
	}
}

// WorkspaceRoot returns the host directory holding local workspaces.
func (c *Config) WorkspaceRoot() string {
	if c.Local.WorkspaceRoot != "" {
		return c.Local.WorkspaceRoot
	}
	return c.Paths().WorkspacesDir
}
