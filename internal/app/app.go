// Package app provides the application context for fabric.
// It allows dependency injection for testing.
package app

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/arach/fabric/internal/audit"
	"github.com/arach/fabric/internal/backends/local"
	"github.com/arach/fabric/internal/backends/memory"
	"github.com/arach/fabric/internal/backends/remote"
	"github.com/arach/fabric/internal/checkpoint"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/handoff"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/metrics"
	"github.com/arach/fabric/internal/provider"
	"github.com/arach/fabric/internal/runtime"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/session"
)

// App holds the application dependencies
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Paths holds the state layout
	Paths *config.Paths

	// Runtime is the container engine behind the local backend; nil when
	// no engine is available
	Runtime runtime.Runtime

	// Manager moves sessions between the registered backends
	Manager *handoff.Manager

	// Local is the container-backed factory, when Runtime is set
	Local *local.Factory

	Checkpoints *checkpoint.Store
	Audit       *audit.Logger
	Metrics     *metrics.Metrics

	factories      map[sandbox.BackendType]sandbox.Factory
	tracerProvider trace.TracerProvider
	unsubscribe    []func()
}

// Option is a function that configures the App
type Option func(*App)

// WithConfig sets the configuration
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithRuntime sets a custom container runtime
func WithRuntime(r runtime.Runtime) Option {
	return func(a *App) {
		a.Runtime = r
	}
}

// WithFactory registers f for bt in place of the configured backend
func WithFactory(bt sandbox.BackendType, f sandbox.Factory) Option {
	return func(a *App) {
		a.factories[bt] = f
	}
}

// WithTracerProvider sets the provider handoff spans are recorded with
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *App) {
		a.tracerProvider = tp
	}
}

// New creates a new App with the given options.
// If runtime is not provided via WithRuntime, it will be auto-detected.
func New(opts ...Option) *App {
	app := &App{factories: make(map[sandbox.BackendType]sandbox.Factory)}

	for _, opt := range opts {
		opt(app)
	}

	if app.Config == nil {
		app.Config = config.Default()
	}
	cfg := app.Config
	app.Paths = cfg.Paths()

	// Initialize runtime if not provided
	if app.Runtime == nil {
		rt, err := runtime.New(&runtime.Config{
			Type:            runtime.RuntimeType(cfg.Local.Engine),
			ContainerPrefix: cfg.Local.ContainerPrefix,
			Image:           cfg.Local.Image,
		})
		if err != nil {
			logging.Debug("failed to initialize runtime", "error", err)
		} else {
			app.Runtime = rt
		}
	}

	var managerOpts []handoff.Option
	if app.tracerProvider != nil {
		managerOpts = append(managerOpts, handoff.WithTracerProvider(app.tracerProvider))
	}
	app.Manager = handoff.NewManager(managerOpts...)
	app.Checkpoints = checkpoint.NewStore(app.Paths.CheckpointsDir)
	app.Audit = audit.NewLogger(app.Paths.AuditDir)
	app.Metrics = metrics.New()
	app.unsubscribe = append(app.unsubscribe, app.Manager.OnEvent(app.Metrics.ObserveHandoff))

	app.registerBackends()
	return app
}

func (a *App) registerBackends() {
	cfg := a.Config

	a.Manager.RegisterFactory(sandbox.BackendMemory, memory.NewFactory(memory.Options{}))

	if a.Runtime != nil {
		a.Local = local.NewFactory(local.Config{
			Runtime:       a.Runtime,
			WorkspaceRoot: cfg.WorkspaceRoot(),
			Image:         cfg.Local.Image,
			Snapshot:      cfg.Snapshot,
		})
		a.Manager.RegisterFactory(sandbox.BackendLocal, a.Local)
	}

	if cfg.Cloud.Enabled() {
		cloud := sandbox.BackendType(cfg.Cloud.Backend)
		a.Manager.RegisterFactory(cloud, remote.NewFactory(remote.Options{
			URL:     cfg.Cloud.URL,
			Token:   cfg.Cloud.Token,
			Timeout: cfg.Cloud.Timeout,
			Backend: cloud,
		}))
	}

	for bt, f := range a.factories {
		a.Manager.RegisterFactory(bt, f)
	}
}

// CloudBackend is the tag sessions delegate to.
func (a *App) CloudBackend() sandbox.BackendType {
	if a.Config.Cloud.Backend == "" {
		return sandbox.BackendCloud
	}
	return sandbox.BackendType(a.Config.Cloud.Backend)
}

// providers resolves API keys for the configured provider and fallbacks.
func (a *App) providers(workspace string) (provider.Config, []provider.Config) {
	cfg := a.Config

	dotenvPath := cfg.Agent.DotEnv
	if dotenvPath != "" && !filepath.IsAbs(dotenvPath) && workspace != "" {
		dotenvPath = filepath.Join(workspace, dotenvPath)
	}
	env, err := provider.LoadDotEnv(dotenvPath)
	if err != nil {
		logging.Warn("ignoring unreadable dotenv file", "path", dotenvPath, "error", err)
	}

	primary := provider.ResolveAPIKey(cfg.Provider, env)
	fallbacks := make([]provider.Config, len(cfg.Fallbacks))
	for i, fb := range cfg.Fallbacks {
		fallbacks[i] = provider.ResolveAPIKey(fb, env)
	}
	return primary, fallbacks
}

// NewSession creates a session wired to the audit log and metrics.
func (a *App) NewSession(id, workspace string) *session.Session {
	primary, fallbacks := a.providers(workspace)

	s := session.New(a.Manager, session.Options{
		ID:            id,
		WorkspacePath: workspace,
		LocalBackend:  sandbox.BackendLocal,
		CloudBackend:  a.CloudBackend(),
		Provider:      primary,
		Fallbacks:     fallbacks,
		AgentCommand:  a.Config.Agent.Command,
	})

	a.unsubscribe = append(a.unsubscribe,
		s.OnEvent(a.Audit.SessionRecorder()),
		s.OnEvent(a.Metrics.ObserveSession),
		a.Manager.OnEvent(a.Audit.HandoffRecorder(id, func() string {
			if sb := s.Sandbox(); sb != nil {
				return sb.ID()
			}
			return ""
		})),
	)
	return s
}

// Attach resumes the sandbox recorded for a session and initializes a
// session around it.
func (a *App) Attach(ctx context.Context, rec *config.SessionRecord) (*session.Session, error) {
	factory, ok := a.Manager.Factory(rec.Backend)
	if !ok {
		return nil, errors.FactoryNotRegistered(string(rec.Backend))
	}

	sb, err := factory.Resume(ctx, rec.SandboxID)
	if err != nil {
		return nil, err
	}
	if sb == nil {
		return nil, errors.SandboxNotFound(rec.SandboxID)
	}

	s := a.NewSession(rec.ID, rec.Workspace)
	if err := s.Initialize(ctx, sb); err != nil {
		return nil, err
	}
	return s, nil
}

// Record returns the session record describing s.
func Record(s *session.Session, prev *config.SessionRecord) *config.SessionRecord {
	rec := &config.SessionRecord{}
	if prev != nil {
		*rec = *prev
	}
	rec.ID = s.ID()
	rec.Workspace = s.WorkspacePath()
	rec.Backend = s.CurrentRuntime()
	rec.State = string(s.State())
	rec.Provider = s.Provider().String()
	if sb := s.Sandbox(); sb != nil {
		rec.SandboxID = sb.ID()
	}
	return rec
}

// Close detaches listeners and writes the metrics textfile.
func (a *App) Close() error {
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.unsubscribe = nil

	if err := os.MkdirAll(a.Paths.StateDir, 0755); err != nil {
		return err
	}
	return a.Metrics.WriteTextfile(a.Paths.MetricsFile)
}
