// Package session presents one stable execution session that proxies to
// whichever sandbox is currently active and moves between backends through
// a handoff.Manager.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/events"
	"github.com/arach/fabric/internal/handoff"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/provider"
	"github.com/arach/fabric/internal/sandbox"
)

const (
	DefaultAgentCommand = "claude -p"
	DefaultCodeDir      = ".fabric"
)

// Options configures a Session.
type Options struct {
	ID            string
	WorkspacePath string
	LocalBackend  sandbox.BackendType // "local" when empty
	CloudBackend  sandbox.BackendType // "cloud" when empty
	Provider      provider.Config
	Fallbacks     []provider.Config
	AgentCommand  string // command a prompt is appended to
	CodeDir       string // workspace directory for RunCode snippets
}

// Session is a single logical execution session. It holds at most one
// active sandbox at a time.
type Session struct {
	opts    Options
	manager *handoff.Manager
	bus     events.Bus[Event]
	now     func() time.Time

	mu           sync.Mutex
	state        State
	sb           sandbox.Sandbox
	current      sandbox.BackendType
	provider     provider.Config
	nextFallback int
}

// New creates an uninitialized session driven by manager.
func New(manager *handoff.Manager, opts Options) *Session {
	if opts.LocalBackend == "" {
		opts.LocalBackend = sandbox.BackendLocal
	}
	if opts.CloudBackend == "" {
		opts.CloudBackend = sandbox.BackendCloud
	}
	if opts.AgentCommand == "" {
		opts.AgentCommand = DefaultAgentCommand
	}
	if opts.CodeDir == "" {
		opts.CodeDir = DefaultCodeDir
	}
	return &Session{
		opts:     opts,
		manager:  manager,
		now:      func() time.Time { return time.Now().UTC() },
		state:    StateUninitialized,
		provider: opts.Provider,
	}
}

func (s *Session) ID() string            { return s.opts.ID }
func (s *Session) WorkspacePath() string { return s.opts.WorkspacePath }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentRuntime returns the backend tag of the active sandbox.
func (s *Session) CurrentRuntime() sandbox.BackendType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Sandbox returns the active sandbox, or nil.
func (s *Session) Sandbox() sandbox.Sandbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sb
}

// Provider returns the provider prompts currently run against.
func (s *Session) Provider() provider.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// OnEvent subscribes fn to session events.
func (s *Session) OnEvent(fn func(Event)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

func (s *Session) emit(t EventType, mutate func(*Event)) {
	s.mu.Lock()
	e := Event{
		Type:      t,
		SessionID: s.opts.ID,
		State:     s.state,
		Backend:   s.current,
		Provider:  s.provider.String(),
		Time:      s.now(),
	}
	if s.sb != nil {
		e.SandboxID = s.sb.ID()
	}
	s.mu.Unlock()

	if mutate != nil {
		mutate(&e)
	}
	s.bus.Emit(e)
}

func (s *Session) emitError(err error) {
	s.emit(EventError, func(e *Event) { e.Error = err.Error() })
}

// Initialize makes sb the active sandbox, starting it if needed. A stopped
// session can be initialized again.
func (s *Session) Initialize(ctx context.Context, sb sandbox.Sandbox) error {
	if sb.Status() != sandbox.StatusRunning {
		if err := sb.Start(ctx); err != nil {
			s.emitError(err)
			return err
		}
	}

	s.mu.Lock()
	s.sb = sb
	s.current = sb.Backend()
	s.state = StateReady
	s.mu.Unlock()

	logging.Debug("session initialized", "session", s.opts.ID, "backend", sb.Backend(), "sandbox", sb.ID())
	s.emit(EventInitialized, nil)
	return nil
}

// IsReady reports whether an active sandbox is present and running.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	sb, state := s.sb, s.state
	s.mu.Unlock()

	if sb == nil || state == StateStopped || state == StateUninitialized {
		return false
	}
	return sb.Status() == sandbox.StatusRunning
}

// active returns the sandbox operations are proxied to.
func (s *Session) active() (sandbox.Sandbox, error) {
	if !s.IsReady() {
		return nil, errors.NotInitialized(s.opts.ID)
	}
	return s.Sandbox(), nil
}

// Exec runs command in the active sandbox.
func (s *Session) Exec(ctx context.Context, command string) (*sandbox.ExecResult, error) {
	sb, err := s.active()
	if err != nil {
		return nil, err
	}
	return sb.Exec(ctx, command)
}

// WriteFile writes a workspace file in the active sandbox.
func (s *Session) WriteFile(ctx context.Context, path string, data []byte) error {
	sb, err := s.active()
	if err != nil {
		return err
	}
	return sb.WriteFile(ctx, path, data)
}

// ReadFile reads a workspace file from the active sandbox.
func (s *Session) ReadFile(ctx context.Context, path string) ([]byte, error) {
	sb, err := s.active()
	if err != nil {
		return nil, err
	}
	return sb.ReadFile(ctx, path)
}

// ListFiles lists a workspace directory of the active sandbox.
func (s *Session) ListFiles(ctx context.Context, dir string) ([]string, error) {
	sb, err := s.active()
	if err != nil {
		return nil, err
	}
	return sb.ListFiles(ctx, dir)
}

// Snapshot captures the active sandbox's workspace.
func (s *Session) Snapshot(ctx context.Context) (*sandbox.Snapshot, error) {
	sb, err := s.active()
	if err != nil {
		return nil, err
	}
	return sb.Snapshot(ctx)
}

// DelegateToCloud hands the workspace to the cloud backend. On failure the
// session keeps its previous, possibly stopped, sandbox and tag; callers
// should re-initialize before using it again.
func (s *Session) DelegateToCloud(ctx context.Context) error {
	return s.move(ctx, StateDelegating, s.opts.CloudBackend)
}

// ReclaimToLocal hands the workspace of the live cloud sandbox back to the
// local backend. Failure leaves the session as DelegateToCloud does.
func (s *Session) ReclaimToLocal(ctx context.Context) error {
	return s.move(ctx, StateReclaiming, s.opts.LocalBackend)
}

func (s *Session) move(ctx context.Context, via State, target sandbox.BackendType) error {
	started, done, failed := EventDelegating, EventDelegated, EventDelegateFailed
	if via == StateReclaiming {
		started, done, failed = EventReclaiming, EventReclaimed, EventReclaimFailed
	}

	sb, err := s.active()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state = via
	s.mu.Unlock()
	s.emit(started, func(e *Event) { e.Backend = target })

	var res *handoff.Result
	if via == StateDelegating {
		res = s.manager.Delegate(ctx, sb, target)
	} else {
		res = s.manager.ReclaimWithSnapshot(ctx, sb, target)
	}

	if !res.Success {
		err := res.Err
		if err == nil {
			err = errors.HandoffFailed(string(via), res.Error)
		}
		s.mu.Lock()
		s.state = StateReady
		s.mu.Unlock()

		logging.Warn("session handoff failed", "session", s.opts.ID, "target", target, "error", err)
		s.emit(failed, func(e *Event) {
			e.Error = err.Error()
			if res.Token != nil {
				e.TokenID = res.Token.ID
			}
		})
		s.emitError(err)
		return err
	}

	s.mu.Lock()
	s.sb = res.Sandbox
	s.current = res.Sandbox.Backend()
	s.state = StateReady
	s.mu.Unlock()

	s.emit(done, func(e *Event) { e.TokenID = res.Token.ID })
	return nil
}

// Stop stops the active sandbox. Stopping a stopped session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	sb := s.sb
	s.state = StateStopped
	s.mu.Unlock()

	if sb != nil {
		if err := sb.Stop(ctx); err != nil {
			s.emitError(err)
			return err
		}
	}
	s.emit(EventStopped, nil)
	return nil
}
