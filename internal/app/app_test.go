package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/arach/fabric/internal/audit"
	"github.com/arach/fabric/internal/backends/memory"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/provider"
	"github.com/arach/fabric/internal/runtime"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Agent.DotEnv = ""
	return cfg
}

func TestNew(t *testing.T) {
	app := New(WithConfig(testConfig(t)), WithRuntime(runtime.NewMockRuntime()))

	if app.Paths == nil || app.Manager == nil || app.Checkpoints == nil || app.Audit == nil || app.Metrics == nil {
		t.Fatalf("App has nil dependencies: %+v", app)
	}
	if app.Local == nil {
		t.Error("local factory should be built over the runtime")
	}

	backends := app.Manager.Backends()
	if len(backends) != 2 || backends[0] != sandbox.BackendLocal || backends[1] != sandbox.BackendMemory {
		t.Errorf("Backends() = %v, want [local memory]", backends)
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	app := New(WithRuntime(runtime.NewMockRuntime()))
	if app.Config == nil || app.Paths == nil {
		t.Fatal("New() should fall back to the default config")
	}
}

func TestNew_CloudBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cloud.URL = "https://sandboxes.example.com"
	cfg.Cloud.Backend = "e2b"

	app := New(WithConfig(cfg), WithRuntime(runtime.NewMockRuntime()))

	if _, ok := app.Manager.Factory("e2b"); !ok {
		t.Error("cloud factory should be registered under its configured tag")
	}
	if app.CloudBackend() != "e2b" {
		t.Errorf("CloudBackend() = %s", app.CloudBackend())
	}
}

func TestNew_WithFactory(t *testing.T) {
	cloud := memory.NewFactory(memory.Options{Backend: sandbox.BackendCloud})
	app := New(
		WithConfig(testConfig(t)),
		WithRuntime(runtime.NewMockRuntime()),
		WithFactory(sandbox.BackendCloud, cloud),
	)

	f, ok := app.Manager.Factory(sandbox.BackendCloud)
	if !ok || f != cloud {
		t.Error("WithFactory did not register the factory")
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	app := New(
		WithConfig(testConfig(t)),
		WithRuntime(runtime.NewMockRuntime()),
		WithFactory(sandbox.BackendCloud, memory.NewFactory(memory.Options{Backend: sandbox.BackendCloud})),
		WithTracerProvider(tp),
	)

	sb, err := app.Local.Create(ctx, sandbox.CreateOptions{ID: "demo"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	s := app.NewSession("demo", "/src/demo")
	if err := s.Initialize(ctx, sb); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := s.WriteFile(ctx, "a.txt", []byte("hi")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := s.DelegateToCloud(ctx); err != nil {
		t.Fatalf("DelegateToCloud() error = %v", err)
	}

	record := Record(s, nil)
	if record.Backend != sandbox.BackendCloud || record.SandboxID != "demo" || record.State != "ready" {
		t.Errorf("Record() = %+v", record)
	}

	events, _ := app.Audit.Events("demo")
	if len(events) == 0 {
		t.Error("session events should be audited")
	}
	if len(rec.Ended()) != 1 || rec.Ended()[0].Name() != "handoff.delegate" {
		t.Errorf("spans = %v", rec.Ended())
	}

	if err := app.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(app.Paths.MetricsFile)
	if err != nil {
		t.Fatalf("metrics textfile missing: %v", err)
	}
	if len(data) == 0 {
		t.Error("metrics textfile is empty")
	}
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	mock := runtime.NewMockRuntime()
	app := New(WithConfig(testConfig(t)), WithRuntime(mock))

	t.Run("resumes recorded sandbox", func(t *testing.T) {
		mock.AddContainer("demo", runtime.StatusStopped)
		s, err := app.Attach(ctx, &config.SessionRecord{ID: "demo", Backend: sandbox.BackendLocal, SandboxID: "demo"})
		if err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		if !s.IsReady() || s.CurrentRuntime() != sandbox.BackendLocal {
			t.Errorf("session not ready on local: %s", s.State())
		}
	})

	t.Run("missing sandbox", func(t *testing.T) {
		_, err := app.Attach(ctx, &config.SessionRecord{ID: "gone", Backend: sandbox.BackendLocal, SandboxID: "gone"})
		if errors.GetExitCode(err) != errors.ExitSandboxNotFound {
			t.Errorf("Attach() error = %v, want sandbox not found", err)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := app.Attach(ctx, &config.SessionRecord{ID: "x", Backend: "modal", SandboxID: "x"})
		if !errors.Is(err, errors.ErrFactoryNotRegistered) {
			t.Errorf("Attach() error = %v, want factory not registered", err)
		}
	})
}

func TestProviders_DotEnv(t *testing.T) {
	workspace := t.TempDir()
	os.WriteFile(filepath.Join(workspace, ".env"), []byte("ANTHROPIC_API_KEY=primary\nOPENROUTER_API_KEY=backup\n"), 0600)

	cfg := testConfig(t)
	cfg.Agent.DotEnv = ".env"
	cfg.Provider = provider.Config{Kind: provider.Anthropic}
	cfg.Fallbacks = []provider.Config{{Kind: provider.OpenRouter}}

	app := New(WithConfig(cfg), WithRuntime(runtime.NewMockRuntime()))
	primary, fallbacks := app.providers(workspace)

	if primary.APIKey != "primary" {
		t.Errorf("primary key = %q", primary.APIKey)
	}
	if len(fallbacks) != 1 || fallbacks[0].APIKey != "backup" {
		t.Errorf("fallbacks = %+v", fallbacks)
	}
}

func TestNewSession_AuditOnlyOwnHandoffs(t *testing.T) {
	ctx := context.Background()
	app := New(
		WithConfig(testConfig(t)),
		WithRuntime(runtime.NewMockRuntime()),
		WithFactory(sandbox.BackendCloud, memory.NewFactory(memory.Options{Backend: sandbox.BackendCloud})),
	)

	sessions := map[string]*session.Session{}
	for _, id := range []string{"alpha", "beta"} {
		sb, err := app.Local.Create(ctx, sandbox.CreateOptions{ID: id})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
		sessions[id] = app.NewSession(id, "")
		if err := sessions[id].Initialize(ctx, sb); err != nil {
			t.Fatalf("Initialize(%s) error = %v", id, err)
		}
	}

	if err := sessions["alpha"].DelegateToCloud(ctx); err != nil {
		t.Fatalf("DelegateToCloud() error = %v", err)
	}

	events, _ := app.Audit.Events("beta")
	for _, e := range events {
		if e.Source == audit.SourceHandoff {
			t.Errorf("beta's log has a handoff event of another sandbox: %+v", e)
		}
	}

	events, _ = app.Audit.Events("alpha")
	handoffs := 0
	for _, e := range events {
		if e.Source == audit.SourceHandoff {
			handoffs++
		}
	}
	if handoffs == 0 {
		t.Error("alpha's log should record its own delegate")
	}
}
