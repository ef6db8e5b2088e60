// Package provider maps AI-provider settings onto the environment an agent
// CLI expects, and recognises rate-limit failures in its output.
package provider

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
)

// Kind identifies a model provider.
type Kind string

const (
	Anthropic  Kind = "anthropic"
	OpenAI     Kind = "openai"
	OpenRouter Kind = "openrouter"
	Bedrock    Kind = "bedrock"
	Vertex     Kind = "vertex"
	Ollama     Kind = "ollama"
)

// Kinds lists every supported provider.
var Kinds = []Kind{Anthropic, OpenAI, OpenRouter, Bedrock, Vertex, Ollama}

const (
	openRouterBaseURL = "https://openrouter.ai/api"
	ollamaBaseURL     = "http://localhost:11434"
)

// Config describes one provider to run an agent against.
type Config struct {
	Kind    Kind   `toml:"kind" json:"kind"`
	APIKey  string `toml:"api_key" json:"apiKey,omitempty"`
	BaseURL string `toml:"base_url" json:"baseUrl,omitempty"`
	Model   string `toml:"model" json:"model,omitempty"`
	Region  string `toml:"region" json:"region,omitempty"`
	Project string `toml:"project" json:"project,omitempty"`
}

// String returns "kind" or "kind/model".
func (c Config) String() string {
	if c.Model == "" {
		return string(c.Kind)
	}
	return string(c.Kind) + "/" + c.Model
}

// Validate checks the fields each kind requires.
func (c Config) Validate() error {
	switch c.Kind {
	case Anthropic, OpenAI, OpenRouter, Ollama:
		return nil
	case Bedrock:
		if c.Region == "" {
			return fmt.Errorf("provider bedrock requires a region")
		}
		return nil
	case Vertex:
		if c.Region == "" || c.Project == "" {
			return fmt.Errorf("provider vertex requires a region and a project")
		}
		return nil
	case "":
		return fmt.Errorf("provider kind is required")
	default:
		return fmt.Errorf("unknown provider kind %q", c.Kind)
	}
}

// KeyVar is the environment variable holding the API key for kind, or ""
// when the kind authenticates some other way.
func KeyVar(kind Kind) string {
	switch kind {
	case Anthropic:
		return "ANTHROPIC_API_KEY"
	case OpenAI:
		return "OPENAI_API_KEY"
	case OpenRouter:
		return "OPENROUTER_API_KEY"
	case Bedrock:
		return "AWS_BEARER_TOKEN_BEDROCK"
	default:
		return ""
	}
}

// Env maps cfg onto environment variables. Empty settings are omitted.
func Env(cfg Config) map[string]string {
	env := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			env[k] = v
		}
	}

	switch cfg.Kind {
	case Anthropic:
		set("ANTHROPIC_API_KEY", cfg.APIKey)
		set("ANTHROPIC_BASE_URL", cfg.BaseURL)
		set("ANTHROPIC_MODEL", cfg.Model)

	case OpenAI:
		set("OPENAI_API_KEY", cfg.APIKey)
		set("OPENAI_BASE_URL", cfg.BaseURL)
		set("OPENAI_MODEL", cfg.Model)

	case OpenRouter:
		base := cfg.BaseURL
		if base == "" {
			base = openRouterBaseURL
		}
		set("OPENROUTER_API_KEY", cfg.APIKey)
		set("ANTHROPIC_AUTH_TOKEN", cfg.APIKey)
		set("ANTHROPIC_BASE_URL", base)
		set("ANTHROPIC_MODEL", cfg.Model)

	case Bedrock:
		env["CLAUDE_CODE_USE_BEDROCK"] = "1"
		set("AWS_BEARER_TOKEN_BEDROCK", cfg.APIKey)
		set("AWS_REGION", cfg.Region)
		set("ANTHROPIC_BEDROCK_BASE_URL", cfg.BaseURL)
		set("ANTHROPIC_MODEL", cfg.Model)

	case Vertex:
		env["CLAUDE_CODE_USE_VERTEX"] = "1"
		set("CLOUD_ML_REGION", cfg.Region)
		set("ANTHROPIC_VERTEX_PROJECT_ID", cfg.Project)
		set("ANTHROPIC_VERTEX_BASE_URL", cfg.BaseURL)
		set("ANTHROPIC_MODEL", cfg.Model)

	case Ollama:
		base := cfg.BaseURL
		if base == "" {
			base = ollamaBaseURL
		}
		set("OLLAMA_HOST", base)
		set("OLLAMA_MODEL", cfg.Model)
	}

	return env
}

// EnvPrefix renders Env(cfg) as shell-quoted KEY=VALUE words sorted by key,
// ready to follow "env ".
func EnvPrefix(cfg Config) string {
	env := Env(cfg)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	words := make([]string, len(keys))
	for i, k := range keys {
		words[i] = k + "=" + env[k]
	}
	return shellquote.Join(words...)
}

var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"overloaded",
	"quota exceeded",
}

// statusTooMany matches 429 only as an HTTP status: "HTTP/1.1 429",
// "status: 429", `"code":429`, "error 429".
var statusTooMany = regexp.MustCompile(`(?i)\b(http(/[0-9.]+)?|status|code|error)["']?\s*[:=]?\s*429\b`)

// IsRateLimited reports whether output looks like a provider throttling
// response.
func IsRateLimited(output string) bool {
	lower := strings.ToLower(output)
	for _, m := range rateLimitMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return statusTooMany.MatchString(output)
}

// LoadDotEnv reads a .env file. A missing file yields an empty map.
func LoadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

// ResolveAPIKey fills a missing API key from dotenv, then from the process
// environment. A key already set on cfg wins.
func ResolveAPIKey(cfg Config, dotenv map[string]string) Config {
	if cfg.APIKey != "" {
		return cfg
	}
	v := KeyVar(cfg.Kind)
	if v == "" {
		return cfg
	}
	if key := dotenv[v]; key != "" {
		cfg.APIKey = key
	} else {
		cfg.APIKey = os.Getenv(v)
	}
	return cfg
}
