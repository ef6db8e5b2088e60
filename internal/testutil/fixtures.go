package testutil

import (
	"embed"

	"github.com/BurntSushi/toml"
	"github.com/bytedance/sonic"

	"github.com/arach/fabric/internal/checkpoint"
	"github.com/arach/fabric/internal/config"
)

//go:embed fixtures/*
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadConfigFixture decodes a TOML fixture over the default configuration.
func LoadConfigFixture(name string) (*config.Config, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSessionFixture loads a session record fixture.
func LoadSessionFixture(name string) (*config.SessionRecord, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	var rec config.SessionRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadCheckpointFixture loads an agent checkpoint fixture.
func LoadCheckpointFixture(name string) (*checkpoint.AgentCheckpoint, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	var cp checkpoint.AgentCheckpoint
	if err := sonic.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// ValidConfig returns the valid configuration fixture.
func ValidConfig() (*config.Config, error) {
	return LoadConfigFixture("valid_config.toml")
}

// InvalidConfig returns the invalid configuration fixture.
func InvalidConfig() (*config.Config, error) {
	return LoadConfigFixture("invalid_config.toml")
}

// ValidSession returns the valid session record fixture.
func ValidSession() (*config.SessionRecord, error) {
	return LoadSessionFixture("valid_session.json")
}

// ValidCheckpoint returns the valid checkpoint fixture.
func ValidCheckpoint() (*checkpoint.AgentCheckpoint, error) {
	return LoadCheckpointFixture("valid_checkpoint.json")
}
