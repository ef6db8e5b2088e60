package handoff

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/events"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
)

const tracerName = "github.com/arach/fabric/internal/handoff"

// Manager moves execution between backends. It owns its factory registry
// and token table; both are safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	factories map[sandbox.BackendType]sandbox.Factory
	tokens    map[string]*sandbox.HandoffToken

	bus    events.Bus[Event]
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithTracerProvider sets the provider spans are recorded with.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		m.tracer = tp.Tracer(tracerName)
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides token id generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// NewManager creates a Manager with no factories registered.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		factories: make(map[sandbox.BackendType]sandbox.Factory),
		tokens:    make(map[string]*sandbox.HandoffToken),
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterFactory registers f for bt. The last registration wins.
func (m *Manager) RegisterFactory(bt sandbox.BackendType, f sandbox.Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[bt] = f
}

// Factory returns the factory registered for bt.
func (m *Manager) Factory(bt sandbox.BackendType) (sandbox.Factory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.factories[bt]
	return f, ok
}

// Backends returns the registered backend tags, sorted.
func (m *Manager) Backends() []sandbox.BackendType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sandbox.BackendType, 0, len(m.factories))
	for bt := range m.factories {
		out = append(out, bt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OnEvent subscribes fn to handoff events.
func (m *Manager) OnEvent(fn func(Event)) (unsubscribe func()) {
	return m.bus.Subscribe(fn)
}

// ListTokens returns stored tokens ordered by creation time.
func (m *Manager) ListTokens() []*sandbox.HandoffToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*sandbox.HandoffToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetToken returns the stored token with id.
func (m *Manager) GetToken(id string) (*sandbox.HandoffToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	return t, ok
}

func (m *Manager) storeToken(t *sandbox.HandoffToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
}

// takeToken removes the token only if it is still present, so a token is
// consumed by at most one reclaim.
func (m *Manager) takeToken(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return false
	}
	delete(m.tokens, id)
	return true
}

// run tracks one handoff operation: its span, its events and the
// conversion of errors and panics into a failed Result.
type run struct {
	m     *Manager
	op    Operation
	span  trace.Span
	token *sandbox.HandoffToken
	base  Event
}

func (m *Manager) begin(ctx context.Context, op Operation, source, target sandbox.BackendType, sandboxID string) (context.Context, *run) {
	ctx, span := m.tracer.Start(ctx, "handoff."+string(op), trace.WithAttributes(
		attribute.String("handoff.source", string(source)),
		attribute.String("handoff.target", string(target)),
		attribute.String("sandbox.id", sandboxID),
	))
	return ctx, &run{
		m:    m,
		op:   op,
		span: span,
		base: Event{Op: op, Source: source, Target: target, SandboxID: sandboxID},
	}
}

func (r *run) emit(t EventType, mutate func(*Event)) {
	e := r.base
	e.Type = t
	e.Time = r.m.now()
	if r.token != nil {
		e.TokenID = r.token.ID
	}
	if mutate != nil {
		mutate(&e)
	}

	attrs := []attribute.KeyValue{attribute.String("handoff.event", string(t))}
	if e.Files > 0 {
		attrs = append(attrs, attribute.Int("snapshot.files", e.Files))
	}
	r.span.AddEvent(string(t), trace.WithAttributes(attrs...))

	r.m.bus.Emit(e)
}

func (r *run) fail(err error) *Result {
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())
	r.emit(EventFailed, func(e *Event) { e.Error = err.Error() })
	logging.Debug("handoff failed", "op", r.op, "target", r.base.Target, "error", err)
	return &Result{Success: false, Token: r.token, Error: err.Error(), Err: err}
}

func (r *run) succeed(sb sandbox.Sandbox) *Result {
	r.span.SetStatus(codes.Ok, "")
	r.emit(EventCompleted, func(e *Event) { e.SandboxID = sb.ID() })
	return &Result{Success: true, Token: r.token, Sandbox: sb}
}

// end closes the span, turning an adapter panic into a failed Result.
func (r *run) end(res **Result) {
	if p := recover(); p != nil {
		*res = r.fail(errors.HandoffFailed(string(r.op), fmt.Sprintf("panic: %v", p)))
	}
	r.span.End()
}

// Delegate moves source's workspace to a new sandbox on target: snapshot,
// stop source, create target, restore. Nothing is rolled back on failure;
// the failed Result carries the token and any captured snapshot.
func (m *Manager) Delegate(ctx context.Context, source sandbox.Sandbox, target sandbox.BackendType) (res *Result) {
	ctx, r := m.begin(ctx, OpDelegate, source.Backend(), target, source.ID())
	defer r.end(&res)

	return r.transfer(ctx, source, target)
}

// ReclaimWithSnapshot runs the delegate sequence against a live remote
// sandbox. Its token is stored like a delegate's.
func (m *Manager) ReclaimWithSnapshot(ctx context.Context, remote sandbox.Sandbox, target sandbox.BackendType) (res *Result) {
	ctx, r := m.begin(ctx, OpReclaimWithSnapshot, remote.Backend(), target, remote.ID())
	defer r.end(&res)

	return r.transfer(ctx, remote, target)
}

func (r *run) transfer(ctx context.Context, source sandbox.Sandbox, target sandbox.BackendType) *Result {
	m := r.m
	r.token = &sandbox.HandoffToken{
		ID:        m.newID(),
		Source:    source.Backend(),
		Target:    target,
		SandboxID: source.ID(),
		CreatedAt: m.now(),
	}
	r.emit(EventInitiated, nil)

	factory, ok := m.Factory(target)
	if !ok {
		return r.fail(errors.FactoryNotRegistered(string(target)))
	}

	snap, err := source.Snapshot(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.token.Snapshot = snap
	r.emit(EventSnapshotCreated, func(e *Event) { e.Files = len(snap.Files) })

	if err := source.Stop(ctx); err != nil {
		return r.fail(err)
	}

	created, err := factory.Create(ctx, sandbox.CreateOptions{
		ID:            source.ID(),
		WorkspacePath: snap.WorkspacePath,
	})
	if err != nil {
		return r.fail(err)
	}
	r.emit(EventTargetStarted, func(e *Event) { e.SandboxID = created.ID() })

	if err := created.Restore(ctx, snap); err != nil {
		return r.fail(err)
	}
	r.emit(EventSnapshotTransferred, func(e *Event) { e.Files = len(snap.Files) })

	m.storeToken(r.token)
	return r.succeed(created)
}

// Reclaim restores a stored token's snapshot onto a new sandbox on target
// and deletes the token on success.
func (m *Manager) Reclaim(ctx context.Context, tokenID string, target sandbox.BackendType) (res *Result) {
	token, ok := m.GetToken(tokenID)

	var source sandbox.BackendType
	var sandboxID string
	if ok {
		source, sandboxID = token.Source, token.SandboxID
	}

	ctx, r := m.begin(ctx, OpReclaim, source, target, sandboxID)
	defer r.end(&res)

	if !ok {
		return r.fail(errors.TokenNotFound(tokenID))
	}
	r.token = token
	r.emit(EventInitiated, nil)

	factory, ok := m.Factory(target)
	if !ok {
		return r.fail(errors.FactoryNotRegistered(string(target)))
	}
	if token.Snapshot == nil {
		return r.fail(errors.HandoffFailed(string(OpReclaim), "token carries no snapshot"))
	}

	created, err := factory.Create(ctx, sandbox.CreateOptions{
		ID:            token.SandboxID,
		WorkspacePath: token.Snapshot.WorkspacePath,
	})
	if err != nil {
		return r.fail(err)
	}
	r.emit(EventTargetStarted, func(e *Event) { e.SandboxID = created.ID() })

	if err := created.Restore(ctx, token.Snapshot); err != nil {
		return r.fail(err)
	}
	r.emit(EventSnapshotTransferred, func(e *Event) { e.Files = len(token.Snapshot.Files) })

	if !m.takeToken(token.ID) {
		return r.fail(errors.TokenNotFound(tokenID))
	}
	return r.succeed(created)
}
