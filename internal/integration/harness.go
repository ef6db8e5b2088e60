package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arach/fabric/internal/app"
	"github.com/arach/fabric/internal/backends/memory"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/runtime"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/session"
)

// EnvVar enables the integration tests when set to 1.
const EnvVar = "FABRIC_INTEGRATION_TESTS"

// TestHarness provides utilities for integration testing with real containers.
type TestHarness struct {
	t         *testing.T
	tempDir   string
	cfg       *config.Config
	rt        runtime.Runtime
	app       *app.App
	cloud     *memory.Factory
	sandboxes []string // Track created sandboxes for cleanup
}

// NewHarness creates a new test harness over the detected container
// runtime, with an in-memory cloud backend.
// It will skip the test if FABRIC_INTEGRATION_TESTS is not set.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	if os.Getenv(EnvVar) != "1" {
		t.Skip("integration tests disabled (set " + EnvVar + "=1 to enable)")
	}

	tempDir := t.TempDir()

	cfg := config.Default()
	cfg.StateDir = filepath.Join(tempDir, "state")
	cfg.Local.ContainerPrefix = "fabric-test-"
	cfg.Agent.DotEnv = ""
	if img := os.Getenv("FABRIC_LOCAL_IMAGE"); img != "" {
		cfg.Local.Image = img
	}

	rt, err := runtime.New(&runtime.Config{
		Type:            runtime.RuntimeType(cfg.Local.Engine),
		ContainerPrefix: cfg.Local.ContainerPrefix,
		Image:           cfg.Local.Image,
	})
	if err != nil {
		t.Skipf("no container runtime available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rt.List(ctx); err != nil {
		t.Skipf("%s not responsive: %v", rt.Name(), err)
	}

	cloud := memory.NewFactory(memory.Options{Backend: sandbox.BackendCloud})

	h := &TestHarness{
		t:       t,
		tempDir: tempDir,
		cfg:     cfg,
		rt:      rt,
		cloud:   cloud,
		app: app.New(
			app.WithConfig(cfg),
			app.WithRuntime(rt),
			app.WithFactory(sandbox.BackendCloud, cloud),
		),
	}

	t.Cleanup(h.Cleanup)

	return h
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.cfg
}

// Runtime returns the container runtime.
func (h *TestHarness) Runtime() runtime.Runtime {
	return h.rt
}

// App returns the application wired to the real runtime.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Cloud returns the in-memory cloud backend.
func (h *TestHarness) Cloud() *memory.Factory {
	return h.cloud
}

// CreateSandbox creates a local container sandbox and tracks it for cleanup.
func (h *TestHarness) CreateSandbox(id string) sandbox.Sandbox {
	h.t.Helper()

	ctx := context.Background()
	_ = h.app.Local.Remove(ctx, id) // leftovers from earlier runs

	h.TrackSandbox(id)
	sb, err := h.app.Local.Create(ctx, sandbox.CreateOptions{ID: id})
	if err != nil {
		h.t.Fatalf("Failed to create sandbox %s: %v", id, err)
	}
	return sb
}

// StartSession creates a sandbox and an initialized session on it.
func (h *TestHarness) StartSession(id string) *session.Session {
	h.t.Helper()

	sb := h.CreateSandbox(id)
	s := h.app.NewSession(id, "")
	if err := s.Initialize(context.Background(), sb); err != nil {
		h.t.Fatalf("Failed to initialize session %s: %v", id, err)
	}
	return s
}

// TrackSandbox tracks a sandbox for cleanup.
func (h *TestHarness) TrackSandbox(id string) {
	h.sandboxes = append(h.sandboxes, id)
}

// Cleanup removes all created sandboxes and resources.
func (h *TestHarness) Cleanup() {
	ctx := context.Background()

	for _, id := range h.sandboxes {
		if err := h.app.Local.Remove(ctx, id); err != nil {
			h.t.Logf("Warning: failed to remove sandbox %s: %v", id, err)
		}
	}
	if err := h.app.Close(); err != nil {
		h.t.Logf("Warning: failed to write metrics: %v", err)
	}
}

// RequireRunning skips the test if the sandbox's container is not running.
func (h *TestHarness) RequireRunning(id string) {
	h.t.Helper()

	running, err := h.rt.IsRunning(context.Background(), id)
	if err != nil {
		h.t.Skipf("failed to check if %s is running: %v", id, err)
	}
	if !running {
		h.t.Skipf("sandbox %s is not running", id)
	}
}
