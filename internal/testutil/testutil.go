// Package testutil provides test utilities for integration tests
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arach/fabric/internal/app"
	"github.com/arach/fabric/internal/backends/memory"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/runtime"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/session"
)

// TestEnv holds the test environment
type TestEnv struct {
	T       *testing.T
	TmpDir  string
	Config  *config.Config
	Runtime *runtime.MockRuntime
	Cloud   *memory.Factory
	App     *app.App
}

// NewTestEnv creates a test environment whose local backend runs on a mock
// runtime and whose cloud backend is in memory.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.StateDir = filepath.Join(tmpDir, "state")
	cfg.Agent.DotEnv = ""

	mockRuntime := runtime.NewMockRuntime()
	cloud := memory.NewFactory(memory.Options{Backend: sandbox.BackendCloud})

	env := &TestEnv{
		T:       t,
		TmpDir:  tmpDir,
		Config:  cfg,
		Runtime: mockRuntime,
		Cloud:   cloud,
	}
	env.App = app.New(env.Options()...)
	t.Cleanup(func() { env.App.Close() })

	return env
}

// Options returns the app options matching the environment, for code that
// builds its own App.
func (e *TestEnv) Options() []app.Option {
	return []app.Option{
		app.WithConfig(e.Config),
		app.WithRuntime(e.Runtime),
		app.WithFactory(sandbox.BackendCloud, e.Cloud),
	}
}

// WriteConfig writes the environment's config file and returns its path.
func (e *TestEnv) WriteConfig(contents string) string {
	e.T.Helper()

	path := filepath.Join(e.TmpDir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		e.T.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// CreateWorkspace creates a workspace directory holding files.
func (e *TestEnv) CreateWorkspace(name string, files map[string]string) string {
	e.T.Helper()

	path := filepath.Join(e.TmpDir, "workspaces", name)
	if err := os.MkdirAll(path, 0755); err != nil {
		e.T.Fatalf("Failed to create workspace: %v", err)
	}
	for rel, content := range files {
		full := filepath.Join(path, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			e.T.Fatalf("Failed to create %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			e.T.Fatalf("Failed to write %s: %v", rel, err)
		}
	}
	return path
}

// StartSession creates a local sandbox and an initialized session on it.
func (e *TestEnv) StartSession(id string) *session.Session {
	e.T.Helper()

	ctx := context.Background()
	sb, err := e.App.Local.Create(ctx, sandbox.CreateOptions{ID: id})
	if err != nil {
		e.T.Fatalf("Failed to create sandbox %s: %v", id, err)
	}

	s := e.App.NewSession(id, filepath.Join(e.TmpDir, "workspaces", id))
	if err := s.Initialize(ctx, sb); err != nil {
		e.T.Fatalf("Failed to initialize session %s: %v", id, err)
	}
	return s
}

// AddSession saves a session record, adding its container to the mock
// runtime when it lives on the local backend.
func (e *TestEnv) AddSession(rec *config.SessionRecord) {
	e.T.Helper()

	if err := config.SaveSession(e.App.Paths.SessionsDir, rec); err != nil {
		e.T.Fatalf("Failed to save session record: %v", err)
	}
	if rec.Backend == sandbox.BackendLocal {
		e.Runtime.AddContainer(rec.SandboxID, runtime.StatusRunning)
	}
}

// GetSession loads a session record, or nil.
func (e *TestEnv) GetSession(id string) *config.SessionRecord {
	e.T.Helper()

	rec, err := config.LoadSession(e.App.Paths.SessionsDir, id)
	if err != nil {
		return nil
	}
	return rec
}

// SessionExists checks if a session record exists
func (e *TestEnv) SessionExists(id string) bool {
	return config.SessionExists(e.App.Paths.SessionsDir, id)
}
