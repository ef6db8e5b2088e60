// Package local implements the sandbox contract on a local container
// engine. Each sandbox is a container with a host directory bind-mounted
// as its workspace, so file operations and snapshots work on the host side
// while Exec runs inside the container.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/runtime"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/snapshot"
)

// DefaultWorkdir is the workspace path inside containers.
const DefaultWorkdir = "/workspace"

// Config configures a local Factory.
type Config struct {
	Runtime       runtime.Runtime
	WorkspaceRoot string // host directory holding one workspace per sandbox
	Image         string
	Workdir       string
	Env           []string
	Snapshot      snapshot.Options
	Backend       sandbox.BackendType // tag reported by sandboxes; "local" when empty
}

// Factory creates container-backed sandboxes.
type Factory struct {
	cfg Config
}

// NewFactory returns a Factory for cfg.
func NewFactory(cfg Config) *Factory {
	if cfg.Workdir == "" {
		cfg.Workdir = DefaultWorkdir
	}
	if cfg.Backend == "" {
		cfg.Backend = sandbox.BackendLocal
	}
	return &Factory{cfg: cfg}
}

func (f *Factory) hostDir(id string) (string, error) {
	return securejoin.SecureJoin(f.cfg.WorkspaceRoot, id)
}

func (f *Factory) newSandbox(id, hostDir, workdir string, status sandbox.Status) *Sandbox {
	return &Sandbox{
		id:       id,
		backend:  f.cfg.Backend,
		rt:       f.cfg.Runtime,
		hostDir:  hostDir,
		workdir:  workdir,
		status:   status,
		snapOpts: f.cfg.Snapshot,
	}
}

// Create provisions a container and returns it running. An existing
// container with the same id is reused.
func (f *Factory) Create(ctx context.Context, opts sandbox.CreateOptions) (sandbox.Sandbox, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()[:8]
	}

	hostDir, err := f.hostDir(id)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace for %s: %w", id, err)
	}
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace for %s: %w", id, err)
	}

	workdir := opts.WorkspacePath
	if workdir == "" {
		workdir = f.cfg.Workdir
	}

	info, err := f.cfg.Runtime.Status(ctx, id)
	if err != nil {
		return nil, errors.BackendError("status", err)
	}

	if info.Status == runtime.StatusNotFound {
		mounts := map[string]string{hostDir: workdir}
		for host, target := range opts.Mounts {
			mounts[host] = target
		}

		image := opts.Image
		if image == "" {
			image = f.cfg.Image
		}

		err := f.cfg.Runtime.Create(ctx, runtime.CreateOptions{
			Name:       id,
			Image:      image,
			WorkingDir: workdir,
			Env:        f.cfg.Env,
			BindMounts: mounts,
			Start:      true,
		})
		if err != nil {
			return nil, errors.BackendError("create", err)
		}
	} else {
		logging.Debug("reusing container", "id", id, "status", info.Status)
		if info.Status != runtime.StatusRunning {
			if err := f.cfg.Runtime.Start(ctx, id); err != nil {
				return nil, errors.BackendError("start", err)
			}
		}
	}

	return f.newSandbox(id, hostDir, workdir, sandbox.StatusRunning), nil
}

// Resume reattaches to an existing container, or returns (nil, nil).
func (f *Factory) Resume(ctx context.Context, id string) (sandbox.Sandbox, error) {
	info, err := f.cfg.Runtime.Status(ctx, id)
	if err != nil {
		return nil, errors.BackendError("status", err)
	}
	if info.Status == runtime.StatusNotFound {
		return nil, nil
	}

	hostDir, err := f.hostDir(id)
	if err != nil {
		return nil, err
	}
	return f.newSandbox(id, hostDir, f.cfg.Workdir, statusOf(info.Status)), nil
}

// List returns every container managed by the runtime.
func (f *Factory) List(ctx context.Context) ([]sandbox.Info, error) {
	containers, err := f.cfg.Runtime.List(ctx)
	if err != nil {
		return nil, errors.BackendError("list", err)
	}

	infos := make([]sandbox.Info, 0, len(containers))
	for _, c := range containers {
		infos = append(infos, sandbox.Info{ID: c.Name, Status: statusOf(c.Status)})
	}
	return infos, nil
}

// Remove destroys the container and deletes its host workspace.
func (f *Factory) Remove(ctx context.Context, id string) error {
	if err := f.cfg.Runtime.Destroy(ctx, id); err != nil {
		return errors.BackendError("destroy", err)
	}
	hostDir, err := f.hostDir(id)
	if err != nil {
		return err
	}
	return os.RemoveAll(hostDir)
}

func statusOf(s runtime.ContainerStatus) sandbox.Status {
	switch s {
	case runtime.StatusRunning:
		return sandbox.StatusRunning
	case runtime.StatusStopped:
		return sandbox.StatusStopped
	default:
		return sandbox.StatusError
	}
}

// Sandbox is one container plus its host workspace directory.
type Sandbox struct {
	id       string
	backend  sandbox.BackendType
	rt       runtime.Runtime
	hostDir  string
	workdir  string
	status   sandbox.Status
	address  string
	snapOpts snapshot.Options
}

func (s *Sandbox) ID() string                   { return s.id }
func (s *Sandbox) Backend() sandbox.BackendType { return s.backend }
func (s *Sandbox) Status() sandbox.Status       { return s.status }
func (s *Sandbox) Address() string              { return s.address }

// HostDir is the host-side workspace directory.
func (s *Sandbox) HostDir() string { return s.hostDir }

func (s *Sandbox) Start(ctx context.Context) error {
	if s.status == sandbox.StatusRunning {
		return nil
	}

	s.status = sandbox.StatusStarting
	if err := s.rt.Start(ctx, s.id); err != nil {
		s.status = sandbox.StatusError
		return errors.BackendError("start", err)
	}
	s.status = sandbox.StatusRunning

	if info, err := s.rt.Status(ctx, s.id); err == nil {
		s.address = info.IPAddress
	}
	return nil
}

func (s *Sandbox) Stop(ctx context.Context) error {
	if s.status == sandbox.StatusStopped {
		return nil
	}

	if err := s.rt.Stop(ctx, s.id); err != nil {
		s.status = sandbox.StatusError
		return errors.BackendError("stop", err)
	}
	s.status = sandbox.StatusStopped
	s.address = ""
	return nil
}

func (s *Sandbox) Exec(ctx context.Context, command string) (*sandbox.ExecResult, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}

	res, err := s.rt.Exec(ctx, s.id, []string{"sh", "-c", command}, runtime.ExecOptions{WorkingDir: s.workdir})
	if err != nil {
		return nil, errors.BackendError("exec", err)
	}
	return &sandbox.ExecResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}, nil
}

// resolve maps a workspace-relative path (or one under the container
// workdir) onto the host directory.
func (s *Sandbox) resolve(path string) (string, error) {
	rel := path
	if strings.HasPrefix(path, s.workdir+"/") {
		rel = strings.TrimPrefix(path, s.workdir+"/")
	} else if path == s.workdir {
		rel = "."
	}
	return securejoin.SecureJoin(s.hostDir, filepath.FromSlash(rel))
}

func (s *Sandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := sandbox.CheckRunning(s); err != nil {
		return err
	}

	target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0644)
}

func (s *Sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}

	target, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

func (s *Sandbox) ListFiles(ctx context.Context, dir string) ([]string, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}

	target, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Sandbox) Snapshot(ctx context.Context) (*sandbox.Snapshot, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}

	snap, err := snapshot.Capture(ctx, s.hostDir, s.snapOpts)
	if err != nil {
		return nil, err
	}

	snap.WorkspacePath = s.workdir
	if snap.Metadata == nil {
		snap.Metadata = make(map[string]string)
	}
	snap.Metadata[sandbox.MetaBackend] = string(s.backend)
	snap.Metadata[sandbox.MetaSandboxID] = s.id
	return snap, nil
}

func (s *Sandbox) Restore(ctx context.Context, snap *sandbox.Snapshot) error {
	if err := sandbox.CheckRunning(s); err != nil {
		return err
	}
	return snapshot.Restore(ctx, s.hostDir, snap)
}

var (
	_ sandbox.Sandbox = (*Sandbox)(nil)
	_ sandbox.Factory = (*Factory)(nil)
)
