// Package memory is an in-process sandbox backend. Workspaces are maps of
// path to content and Exec is answered by a pluggable handler. It backs
// dry runs and the handoff and session tests.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/snapshot"
)

// ExecFunc answers Exec calls. files is the sandbox's live workspace.
type ExecFunc func(command string, files map[string][]byte) *sandbox.ExecResult

// RunCodeFunc answers RunCode calls on sandboxes created with one.
type RunCodeFunc func(code, language string) *sandbox.CodeResult

// Options configures a memory Factory.
type Options struct {
	Backend   sandbox.BackendType // tag reported by sandboxes; "memory" when empty
	Workdir   string
	Exec      ExecFunc
	RunCode   RunCodeFunc // when set, sandboxes implement sandbox.CodeRunner
	MaxFiles  int
	FailStart error // returned by Start and Create when set
}

// Factory creates in-memory sandboxes. It is safe for concurrent use.
type Factory struct {
	opts Options

	mu        sync.Mutex
	sandboxes map[string]*Sandbox
	order     []string
}

// NewFactory returns a Factory configured by opts.
func NewFactory(opts Options) *Factory {
	if opts.Backend == "" {
		opts.Backend = sandbox.BackendMemory
	}
	if opts.Workdir == "" {
		opts.Workdir = "/workspace"
	}
	return &Factory{opts: opts, sandboxes: make(map[string]*Sandbox)}
}

// Create returns a new running sandbox. An id already in use is replaced.
func (f *Factory) Create(ctx context.Context, opts sandbox.CreateOptions) (sandbox.Sandbox, error) {
	if f.opts.FailStart != nil {
		return nil, errors.BackendError("create", f.opts.FailStart)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	workdir := opts.WorkspacePath
	if workdir == "" {
		workdir = f.opts.Workdir
	}

	sb := &Sandbox{
		id:      id,
		backend: f.opts.Backend,
		workdir: workdir,
		status:  sandbox.StatusRunning,
		files:   make(map[string][]byte),
		opts:    &f.opts,
	}

	f.mu.Lock()
	if _, exists := f.sandboxes[id]; !exists {
		f.order = append(f.order, id)
	}
	f.sandboxes[id] = sb
	f.mu.Unlock()

	if f.opts.RunCode != nil {
		return &CodeSandbox{Sandbox: sb}, nil
	}
	return sb, nil
}

// Resume returns the sandbox with id, or (nil, nil).
func (f *Factory) Resume(ctx context.Context, id string) (sandbox.Sandbox, error) {
	f.mu.Lock()
	sb, ok := f.sandboxes[id]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if f.opts.RunCode != nil {
		return &CodeSandbox{Sandbox: sb}, nil
	}
	return sb, nil
}

// List returns sandboxes in creation order.
func (f *Factory) List(ctx context.Context) ([]sandbox.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	infos := make([]sandbox.Info, 0, len(f.order))
	for _, id := range f.order {
		infos = append(infos, sandbox.Info{ID: id, Status: f.sandboxes[id].Status()})
	}
	return infos, nil
}

// Get returns the concrete sandbox with id for inspection in tests.
func (f *Factory) Get(id string) *Sandbox {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sandboxes[id]
}

// Sandbox is an in-memory workspace.
type Sandbox struct {
	id      string
	backend sandbox.BackendType
	workdir string
	opts    *Options

	mu     sync.Mutex
	status sandbox.Status
	files  map[string][]byte
	stops  int
}

func (s *Sandbox) ID() string                   { return s.id }
func (s *Sandbox) Backend() sandbox.BackendType { return s.backend }
func (s *Sandbox) Address() string              { return "" }

func (s *Sandbox) Status() sandbox.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stops reports how many times Stop changed the sandbox's state.
func (s *Sandbox) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *Sandbox) Start(ctx context.Context) error {
	if s.opts.FailStart != nil {
		return errors.BackendError("start", s.opts.FailStart)
	}
	s.mu.Lock()
	s.status = sandbox.StatusRunning
	s.mu.Unlock()
	return nil
}

func (s *Sandbox) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != sandbox.StatusStopped {
		s.status = sandbox.StatusStopped
		s.stops++
	}
	return nil
}

// clean turns a workspace-relative or workdir-absolute path into a map key.
func (s *Sandbox) clean(p string) string {
	if strings.HasPrefix(p, s.workdir+"/") {
		p = strings.TrimPrefix(p, s.workdir+"/")
	}
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

func (s *Sandbox) Exec(ctx context.Context, command string) (*sandbox.ExecResult, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}
	if s.opts.Exec == nil {
		return &sandbox.ExecResult{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Exec(command, s.files), nil
}

func (s *Sandbox) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := sandbox.CheckRunning(s); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[s.clean(p)] = append([]byte(nil), data...)
	return nil
}

func (s *Sandbox) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[s.clean(p)]
	if !ok {
		return nil, fmt.Errorf("read %s: file does not exist", p)
	}
	return append([]byte(nil), data...), nil
}

// ListFiles returns the direct children of dir, files and directories alike.
func (s *Sandbox) ListFiles(ctx context.Context, dir string) ([]string, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}

	prefix := s.clean(dir)
	if prefix != "" {
		prefix += "/"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for p := range s.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimPrefix(p, prefix), "/")
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Sandbox) Snapshot(ctx context.Context) (*sandbox.Snapshot, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	snap := &sandbox.Snapshot{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		WorkspacePath: s.workdir,
		Metadata: map[string]string{
			sandbox.MetaBackend:   string(s.backend),
			sandbox.MetaSandboxID: s.id,
		},
	}
	for _, p := range paths {
		if s.opts.MaxFiles > 0 && len(snap.Files) >= s.opts.MaxFiles {
			snap.Metadata[sandbox.MetaTruncated] = "true"
			break
		}
		snap.Files = append(snap.Files, snapshot.EncodeFile(p, s.files[p]))
	}
	return snap, nil
}

func (s *Sandbox) Restore(ctx context.Context, snap *sandbox.Snapshot) error {
	if err := sandbox.CheckRunning(s); err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("restore: nil snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range snap.Files {
		data, err := f.Bytes()
		if err != nil {
			return err
		}
		s.files[s.clean(f.Path)] = data
	}
	return nil
}

// CodeSandbox is a Sandbox that also runs code natively.
type CodeSandbox struct {
	*Sandbox
}

func (c *CodeSandbox) RunCode(ctx context.Context, code, language string) (*sandbox.CodeResult, error) {
	if err := sandbox.CheckRunning(c); err != nil {
		return nil, err
	}
	return c.opts.RunCode(code, language), nil
}

var (
	_ sandbox.Sandbox    = (*Sandbox)(nil)
	_ sandbox.CodeRunner = (*CodeSandbox)(nil)
	_ sandbox.Factory    = (*Factory)(nil)
)
