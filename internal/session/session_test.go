package session

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/arach/fabric/internal/backends/memory"
	"github.com/arach/fabric/internal/checkpoint"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/handoff"
	"github.com/arach/fabric/internal/provider"
	"github.com/arach/fabric/internal/sandbox"
)

type testEnv struct {
	manager *handoff.Manager
	local   *memory.Factory
	cloud   *memory.Factory
	session *Session
	events  []EventType
}

func newTestEnv(t *testing.T, localOpts, cloudOpts memory.Options, opts Options) *testEnv {
	t.Helper()

	localOpts.Backend = sandbox.BackendLocal
	cloudOpts.Backend = sandbox.BackendCloud

	env := &testEnv{
		manager: handoff.NewManager(),
		local:   memory.NewFactory(localOpts),
		cloud:   memory.NewFactory(cloudOpts),
	}
	env.manager.RegisterFactory(sandbox.BackendLocal, env.local)
	env.manager.RegisterFactory(sandbox.BackendCloud, env.cloud)

	if opts.ID == "" {
		opts.ID = "sess-1"
	}
	env.session = New(env.manager, opts)
	env.session.OnEvent(func(e Event) { env.events = append(env.events, e.Type) })
	return env
}

func (env *testEnv) init(t *testing.T) sandbox.Sandbox {
	t.Helper()
	sb, err := env.local.Create(context.Background(), sandbox.CreateOptions{ID: env.session.ID()})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.session.Initialize(context.Background(), sb); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return sb
}

func (env *testEnv) count(t EventType) int {
	n := 0
	for _, e := range env.events {
		if e == t {
			n++
		}
	}
	return n
}

func TestNew_Defaults(t *testing.T) {
	s := New(handoff.NewManager(), Options{ID: "x"})
	if s.State() != StateUninitialized {
		t.Errorf("State() = %s", s.State())
	}
	if s.opts.LocalBackend != sandbox.BackendLocal || s.opts.CloudBackend != sandbox.BackendCloud {
		t.Errorf("backends = %s, %s", s.opts.LocalBackend, s.opts.CloudBackend)
	}
	if s.opts.CodeDir != DefaultCodeDir || s.opts.AgentCommand != DefaultAgentCommand {
		t.Errorf("opts = %+v", s.opts)
	}
	if s.IsReady() {
		t.Error("new session should not be ready")
	}
}

func TestInitialize(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	ctx := context.Background()

	sb, _ := env.local.Create(ctx, sandbox.CreateOptions{ID: "sess-1"})
	sb.Stop(ctx)

	if err := env.session.Initialize(ctx, sb); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if sb.Status() != sandbox.StatusRunning {
		t.Error("Initialize() should start a stopped sandbox")
	}
	if env.session.CurrentRuntime() != sandbox.BackendLocal {
		t.Errorf("CurrentRuntime() = %s, want local", env.session.CurrentRuntime())
	}
	if !env.session.IsReady() || env.session.State() != StateReady {
		t.Errorf("session not ready, state %s", env.session.State())
	}
	if env.count(EventInitialized) != 1 {
		t.Errorf("events = %v", env.events)
	}
}

func TestInitialize_StartFailure(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	ctx := context.Background()

	sb, _ := env.local.Create(ctx, sandbox.CreateOptions{ID: "sess-1"})
	bad := &stoppedSandbox{Sandbox: sb, err: fmt.Errorf("no capacity")}

	if err := env.session.Initialize(ctx, bad); err == nil {
		t.Fatal("Initialize() should fail when Start fails")
	}
	if env.session.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", env.session.State())
	}
	if env.count(EventError) != 1 {
		t.Errorf("events = %v", env.events)
	}
}

// stoppedSandbox never starts.
type stoppedSandbox struct {
	sandbox.Sandbox
	err error
}

func (s *stoppedSandbox) Status() sandbox.Status          { return sandbox.StatusStopped }
func (s *stoppedSandbox) Start(ctx context.Context) error { return s.err }

func TestOperationsRequireInitialize(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	s := env.session
	ctx := context.Background()

	ops := map[string]func() error{
		"Exec":      func() error { _, err := s.Exec(ctx, "ls"); return err },
		"RunCode":   func() error { _, err := s.RunCode(ctx, "print(1)", "python"); return err },
		"WriteFile": func() error { return s.WriteFile(ctx, "a", nil) },
		"ReadFile":  func() error { _, err := s.ReadFile(ctx, "a"); return err },
		"ListFiles": func() error { _, err := s.ListFiles(ctx, "."); return err },
		"Snapshot":  func() error { _, err := s.Snapshot(ctx); return err },
		"Delegate":  func() error { return s.DelegateToCloud(ctx) },
		"Reclaim":   func() error { return s.ReclaimToLocal(ctx) },
		"RunPrompt": func() error { _, err := s.RunPrompt(ctx, "hi"); return err },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			if !errors.Is(err, errors.ErrNotInitialized) {
				t.Errorf("%s error = %v, want ErrNotInitialized", name, err)
			}
		})
	}
}

func TestProxying(t *testing.T) {
	env := newTestEnv(t, memory.Options{
		Exec: func(command string, files map[string][]byte) *sandbox.ExecResult {
			return &sandbox.ExecResult{Stdout: "ran " + command}
		},
	}, memory.Options{}, Options{})
	env.init(t)
	s := env.session
	ctx := context.Background()

	if err := s.WriteFile(ctx, "src/main.py", []byte("print(1)")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	data, err := s.ReadFile(ctx, "src/main.py")
	if err != nil || string(data) != "print(1)" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
	names, _ := s.ListFiles(ctx, "src")
	if len(names) != 1 || names[0] != "main.py" {
		t.Errorf("ListFiles() = %v", names)
	}
	res, _ := s.Exec(ctx, "ls")
	if res.Stdout != "ran ls" {
		t.Errorf("Exec() = %+v", res)
	}
	snap, _ := s.Snapshot(ctx)
	if len(snap.Files) != 1 || snap.Files[0].Path != "src/main.py" {
		t.Errorf("Snapshot() files = %+v", snap.Files)
	}
}

func TestDelegateToCloud(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	local := env.init(t)
	s := env.session
	ctx := context.Background()

	s.WriteFile(ctx, "a.txt", []byte("hi"))

	if err := s.DelegateToCloud(ctx); err != nil {
		t.Fatalf("DelegateToCloud() error = %v", err)
	}
	if s.CurrentRuntime() != sandbox.BackendCloud {
		t.Errorf("CurrentRuntime() = %s, want cloud", s.CurrentRuntime())
	}
	if local.Status() != sandbox.StatusStopped {
		t.Error("local sandbox should be stopped after delegation")
	}
	data, err := s.ReadFile(ctx, "a.txt")
	if err != nil || string(data) != "hi" {
		t.Errorf("ReadFile() after delegate = %q, %v", data, err)
	}

	want := []EventType{EventInitialized, EventDelegating, EventDelegated}
	if fmt.Sprint(env.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", env.events, want)
	}
}

func TestDelegateToCloud_FailureKeepsOldSandbox(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{FailStart: fmt.Errorf("quota exhausted")}, Options{})
	local := env.init(t)
	s := env.session
	ctx := context.Background()

	err := s.DelegateToCloud(ctx)
	if err == nil {
		t.Fatal("DelegateToCloud() should fail")
	}
	if !strings.Contains(err.Error(), "quota exhausted") {
		t.Errorf("error = %v", err)
	}

	if s.CurrentRuntime() != sandbox.BackendLocal {
		t.Errorf("CurrentRuntime() = %s, want local", s.CurrentRuntime())
	}
	if s.Sandbox() != local {
		t.Error("session should still hold the old sandbox")
	}
	if local.Status() != sandbox.StatusStopped {
		t.Error("old sandbox should be stopped")
	}
	if s.IsReady() {
		t.Error("session should not be ready after a failed delegation")
	}
	if env.count(EventDelegateFailed) != 1 || env.count(EventError) != 1 {
		t.Errorf("events = %v", env.events)
	}

	// Re-initializing recovers the session.
	if err := s.Initialize(ctx, local); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !s.IsReady() {
		t.Error("session should be ready after re-initialize")
	}
}

func TestReclaimToLocal(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	env.init(t)
	s := env.session
	ctx := context.Background()

	s.WriteFile(ctx, "a.txt", []byte("hi"))
	if err := s.DelegateToCloud(ctx); err != nil {
		t.Fatalf("DelegateToCloud() error = %v", err)
	}
	cloud := s.Sandbox()
	s.WriteFile(ctx, "b.txt", []byte("from cloud"))

	if err := s.ReclaimToLocal(ctx); err != nil {
		t.Fatalf("ReclaimToLocal() error = %v", err)
	}
	if s.CurrentRuntime() != sandbox.BackendLocal {
		t.Errorf("CurrentRuntime() = %s, want local", s.CurrentRuntime())
	}
	if cloud.Status() != sandbox.StatusStopped {
		t.Error("cloud sandbox should be stopped after reclaim")
	}
	for path, want := range map[string]string{"a.txt": "hi", "b.txt": "from cloud"} {
		data, err := s.ReadFile(ctx, path)
		if err != nil || string(data) != want {
			t.Errorf("ReadFile(%s) = %q, %v", path, data, err)
		}
	}
	if env.count(EventReclaiming) != 1 || env.count(EventReclaimed) != 1 {
		t.Errorf("events = %v", env.events)
	}
	if n := len(env.manager.ListTokens()); n != 2 {
		t.Errorf("stored tokens = %d, want 2", n)
	}
}

func TestReclaimToLocal_Failure(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	env.init(t)
	s := env.session
	ctx := context.Background()

	if err := s.DelegateToCloud(ctx); err != nil {
		t.Fatalf("DelegateToCloud() error = %v", err)
	}

	env.manager.RegisterFactory(sandbox.BackendLocal, memory.NewFactory(memory.Options{
		Backend:   sandbox.BackendLocal,
		FailStart: fmt.Errorf("docker down"),
	}))

	if err := s.ReclaimToLocal(ctx); err == nil {
		t.Fatal("ReclaimToLocal() should fail")
	}
	if s.CurrentRuntime() != sandbox.BackendCloud {
		t.Errorf("CurrentRuntime() = %s, want cloud", s.CurrentRuntime())
	}
	if env.count(EventReclaimFailed) != 1 {
		t.Errorf("events = %v", env.events)
	}
}

func TestStop_Idempotent(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	sb := env.init(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.session.Stop(ctx); err != nil {
			t.Fatalf("Stop() #%d error = %v", i+1, err)
		}
		if env.session.State() != StateStopped {
			t.Errorf("State() = %s", env.session.State())
		}
		if sb.Status() != sandbox.StatusStopped {
			t.Errorf("sandbox status = %s", sb.Status())
		}
	}
	if env.count(EventStopped) != 1 {
		t.Errorf("stopped events = %d, want 1", env.count(EventStopped))
	}
}

func TestStop_Uninitialized(t *testing.T) {
	s := New(handoff.NewManager(), Options{ID: "x"})
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %s", s.State())
	}
}

func TestRunCode_Native(t *testing.T) {
	env := newTestEnv(t, memory.Options{
		RunCode: func(code, language string) *sandbox.CodeResult {
			return &sandbox.CodeResult{Output: language + ":" + code}
		},
	}, memory.Options{}, Options{})
	env.init(t)

	res, err := env.session.RunCode(context.Background(), "1+1", "")
	if err != nil {
		t.Fatalf("RunCode() error = %v", err)
	}
	if res.Output != "python:1+1" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestRunCode_Fallback(t *testing.T) {
	tests := []struct {
		language string
		prefix   string
		ext      string
	}{
		{"python", "python3 ", ".py"},
		{"javascript", "node ", ".js"},
		{"node", "node ", ".js"},
		{"typescript", "npx tsx ", ".ts"},
		{"ts", "npx tsx ", ".ts"},
		{"sh", "bash ", ".sh"},
		{"ruby", "ruby ", ".rb"},
		{"go", "go run ", ".go"},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			var command string
			var written string
			env := newTestEnv(t, memory.Options{
				Exec: func(cmd string, files map[string][]byte) *sandbox.ExecResult {
					command = cmd
					file := strings.TrimPrefix(cmd, tt.prefix)
					written = string(files[file])
					return &sandbox.ExecResult{Stdout: "out"}
				},
			}, memory.Options{}, Options{})
			env.init(t)

			res, err := env.session.RunCode(context.Background(), "CODE", tt.language)
			if err != nil {
				t.Fatalf("RunCode() error = %v", err)
			}
			if !strings.HasPrefix(command, tt.prefix+DefaultCodeDir+"/snippet-") || !strings.HasSuffix(command, tt.ext) {
				t.Errorf("command = %q", command)
			}
			if written != "CODE" {
				t.Errorf("snippet content = %q", written)
			}
			if res.Output != "out" || res.Error != "" {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestRunCode_FallbackFailure(t *testing.T) {
	tests := []struct {
		name   string
		result sandbox.ExecResult
		want   string
	}{
		{"stderr", sandbox.ExecResult{Stdout: "partial", Stderr: "boom", ExitCode: 1}, "boom"},
		{"exit code only", sandbox.ExecResult{ExitCode: 2}, "exit status 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, memory.Options{
				Exec: func(string, map[string][]byte) *sandbox.ExecResult {
					r := tt.result
					return &r
				},
			}, memory.Options{}, Options{})
			env.init(t)

			res, err := env.session.RunCode(context.Background(), "x", "bash")
			if err != nil {
				t.Fatalf("RunCode() error = %v", err)
			}
			if res.Error != tt.want || res.Output != tt.result.Stdout {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestRunCode_UnsupportedLanguage(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	env.init(t)

	if _, err := env.session.RunCode(context.Background(), "x", "cobol"); err == nil {
		t.Error("RunCode() with an unknown language should fail")
	}
}

func TestPromptCommand(t *testing.T) {
	got := PromptCommand("claude -p", provider.Config{Kind: provider.Anthropic, APIKey: "k"}, "hello")
	if got != "env ANTHROPIC_API_KEY=k claude -p hello" {
		t.Errorf("PromptCommand() = %q", got)
	}

	got = PromptCommand("agent", provider.Config{Kind: provider.OpenAI}, "hello")
	if got != "agent hello" {
		t.Errorf("PromptCommand() without env = %q", got)
	}
}

// rateLimitedFor answers prompts with a rate-limit error while the command
// carries one of the listed keys.
func rateLimitedFor(calls *[]string, keys ...string) memory.ExecFunc {
	return func(command string, _ map[string][]byte) *sandbox.ExecResult {
		*calls = append(*calls, command)
		for _, k := range keys {
			if strings.Contains(command, "ANTHROPIC_API_KEY="+k) {
				return &sandbox.ExecResult{Stderr: "Error: 429 rate limit exceeded", ExitCode: 1}
			}
		}
		return &sandbox.ExecResult{Stdout: "done"}
	}
}

func TestRunPrompt_OneFallback(t *testing.T) {
	var calls []string
	env := newTestEnv(t, memory.Options{Exec: rateLimitedFor(&calls, "primary")}, memory.Options{}, Options{
		Provider:  provider.Config{Kind: provider.Anthropic, APIKey: "primary"},
		Fallbacks: []provider.Config{{Kind: provider.Anthropic, APIKey: "backup"}},
	})
	env.init(t)

	res, err := env.session.RunPrompt(context.Background(), "fix it")
	if err != nil {
		t.Fatalf("RunPrompt() error = %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("exec calls = %d, want 2", len(calls))
	}
	if env.count(EventProviderSwitched) != 1 {
		t.Errorf("provider switches = %d, want 1", env.count(EventProviderSwitched))
	}
	if res.Stdout != "done" {
		t.Errorf("result = %+v", res)
	}
	if env.session.Provider().APIKey != "backup" {
		t.Errorf("provider = %+v", env.session.Provider())
	}
}

func TestRunPrompt_NoFallbacks(t *testing.T) {
	var calls []string
	env := newTestEnv(t, memory.Options{Exec: rateLimitedFor(&calls, "primary")}, memory.Options{}, Options{
		Provider: provider.Config{Kind: provider.Anthropic, APIKey: "primary"},
	})
	env.init(t)

	res, err := env.session.RunPrompt(context.Background(), "fix it")
	if err != nil {
		t.Fatalf("RunPrompt() error = %v", err)
	}
	if len(calls) != 1 || env.count(EventProviderSwitched) != 0 {
		t.Errorf("calls = %d, switches = %d", len(calls), env.count(EventProviderSwitched))
	}
	if res.Stderr != "Error: 429 rate limit exceeded" || res.ExitCode != 1 {
		t.Errorf("result should be returned unchanged, got %+v", res)
	}
}

func TestRunPrompt_FallbacksExhausted(t *testing.T) {
	var calls []string
	env := newTestEnv(t, memory.Options{Exec: rateLimitedFor(&calls, "a", "b", "c")}, memory.Options{}, Options{
		Provider: provider.Config{Kind: provider.Anthropic, APIKey: "a"},
		Fallbacks: []provider.Config{
			{Kind: provider.Anthropic, APIKey: "b"},
			{Kind: provider.Anthropic, APIKey: "c"},
		},
	})
	env.init(t)
	ctx := context.Background()

	res, _ := env.session.RunPrompt(ctx, "go")
	if len(calls) != 3 {
		t.Errorf("exec calls = %d, want 3", len(calls))
	}
	if !provider.IsRateLimited(res.Stderr) {
		t.Errorf("result = %+v", res)
	}

	// No fallbacks remain for later prompts.
	env.session.RunPrompt(ctx, "again")
	if len(calls) != 4 {
		t.Errorf("exec calls = %d, want 4", len(calls))
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	env := newTestEnv(t, memory.Options{}, memory.Options{}, Options{})
	env.init(t)
	s := env.session
	ctx := context.Background()
	store := checkpoint.NewStore(t.TempDir())

	s.WriteFile(ctx, "notes.md", []byte("# plan"))
	cp := &checkpoint.AgentCheckpoint{Messages: []checkpoint.Message{{Role: "user", Content: "hi"}}}
	if err := s.SaveCheckpoint(ctx, store, cp); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}
	if cp.ID != "sess-1" || cp.SourceBackend != sandbox.BackendLocal || len(cp.Files) != 1 {
		t.Errorf("checkpoint = %+v", cp)
	}

	// Restore into a fresh cloud session.
	env2 := newTestEnv(t, memory.Options{}, memory.Options{}, Options{ID: "sess-2"})
	env2.init(t)
	got, err := env2.session.RestoreCheckpoint(ctx, store, "sess-1")
	if err != nil {
		t.Fatalf("RestoreCheckpoint() error = %v", err)
	}
	if len(got.Messages) != 1 {
		t.Errorf("messages = %+v", got.Messages)
	}
	data, _ := env2.session.ReadFile(ctx, "notes.md")
	if string(data) != "# plan" {
		t.Errorf("restored file = %q", data)
	}

	if _, err := env2.session.RestoreCheckpoint(ctx, store, "missing"); !errors.Is(err, errors.New(errors.ExitCheckpointError, "")) {
		t.Errorf("RestoreCheckpoint(missing) error = %v", err)
	}
}
