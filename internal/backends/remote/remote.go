package remote

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/snapshot"
)

// Factory creates sandboxes on a sandbox daemon.
type Factory struct {
	opts   Options
	client *client
}

// NewFactory returns a Factory talking to the daemon at opts.URL.
func NewFactory(opts Options) *Factory {
	if opts.Backend == "" {
		opts.Backend = sandbox.BackendCloud
	}
	return &Factory{opts: opts, client: newClient(opts)}
}

func (f *Factory) wrap(view *sandboxView) *Sandbox {
	return &Sandbox{
		id:      view.ID,
		backend: f.opts.Backend,
		status:  view.Status,
		address: view.Address,
		client:  f.client,
	}
}

// Create provisions a sandbox and starts it if the daemon did not.
func (f *Factory) Create(ctx context.Context, opts sandbox.CreateOptions) (sandbox.Sandbox, error) {
	image := opts.Image
	if image == "" {
		image = f.opts.Image
	}

	view, err := f.client.create(ctx, createRequest{
		ID:            opts.ID,
		Image:         image,
		WorkspacePath: opts.WorkspacePath,
		Mounts:        opts.Mounts,
	})
	if err != nil {
		return nil, errors.BackendError("create", err)
	}

	sb := f.wrap(view)
	if sb.status != sandbox.StatusRunning {
		if err := sb.Start(ctx); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

// Resume looks the sandbox up on the daemon. Unknown ids yield (nil, nil).
func (f *Factory) Resume(ctx context.Context, id string) (sandbox.Sandbox, error) {
	view, err := f.client.get(ctx, id)
	if err != nil {
		var apiErr *APIError
		if stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, errors.BackendError("get", err)
	}
	return f.wrap(view), nil
}

// List returns every sandbox the daemon reports.
func (f *Factory) List(ctx context.Context) ([]sandbox.Info, error) {
	views, err := f.client.list(ctx)
	if err != nil {
		return nil, errors.BackendError("list", err)
	}

	infos := make([]sandbox.Info, 0, len(views))
	for _, v := range views {
		infos = append(infos, sandbox.Info{ID: v.ID, Status: v.Status})
	}
	return infos, nil
}

// Sandbox is a handle on a daemon-hosted sandbox. Status is the last
// state the daemon reported.
type Sandbox struct {
	id      string
	backend sandbox.BackendType
	status  sandbox.Status
	address string
	client  *client
}

func (s *Sandbox) ID() string                   { return s.id }
func (s *Sandbox) Backend() sandbox.BackendType { return s.backend }
func (s *Sandbox) Status() sandbox.Status       { return s.status }
func (s *Sandbox) Address() string              { return s.address }

func (s *Sandbox) Start(ctx context.Context) error {
	if s.status == sandbox.StatusRunning {
		return nil
	}

	view, err := s.client.lifecycle(ctx, s.id, "start")
	if err != nil {
		s.status = sandbox.StatusError
		return errors.BackendError("start", err)
	}
	s.status = view.Status
	s.address = view.Address
	return nil
}

func (s *Sandbox) Stop(ctx context.Context) error {
	if s.status == sandbox.StatusStopped {
		return nil
	}

	if _, err := s.client.lifecycle(ctx, s.id, "stop"); err != nil {
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
	res, err := s.client.exec(ctx, s.id, command)
	if err != nil {
		return nil, errors.BackendError("exec", err)
	}
	return res, nil
}

// RunCode runs a snippet with the daemon's native interpreter support.
func (s *Sandbox) RunCode(ctx context.Context, code, language string) (*sandbox.CodeResult, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}
	res, err := s.client.run(ctx, s.id, code, language)
	if err != nil {
		return nil, errors.BackendError("run", err)
	}
	return res, nil
}

func (s *Sandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := sandbox.CheckRunning(s); err != nil {
		return err
	}
	if err := s.client.writeFile(ctx, s.id, path, data); err != nil {
		return errors.BackendError("write file", err)
	}
	return nil
}

func (s *Sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}
	data, err := s.client.readFile(ctx, s.id, path)
	if err != nil {
		return nil, errors.BackendError("read file", err)
	}
	return data, nil
}

func (s *Sandbox) ListFiles(ctx context.Context, dir string) ([]string, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}
	files, err := s.client.listFiles(ctx, s.id, dir)
	if err != nil {
		return nil, errors.BackendError("list files", err)
	}
	return files, nil
}

func (s *Sandbox) Snapshot(ctx context.Context) (*sandbox.Snapshot, error) {
	if err := sandbox.CheckRunning(s); err != nil {
		return nil, err
	}
	snap, err := s.client.snapshot(ctx, s.id)
	if err != nil {
		return nil, errors.BackendError("snapshot", err)
	}
	if snap.Metadata == nil {
		snap.Metadata = make(map[string]string)
	}
	snap.Metadata[sandbox.MetaBackend] = string(s.backend)
	snap.Metadata[sandbox.MetaSandboxID] = s.id
	return snap, nil
}

// Restore uploads the snapshot as zstd-compressed JSON.
func (s *Sandbox) Restore(ctx context.Context, snap *sandbox.Snapshot) error {
	if err := sandbox.CheckRunning(s); err != nil {
		return err
	}
	packed, err := snapshot.Pack(snap)
	if err != nil {
		return err
	}
	if err := s.client.restore(ctx, s.id, packed); err != nil {
		return errors.BackendError("restore", err)
	}
	return nil
}

var (
	_ sandbox.Sandbox    = (*Sandbox)(nil)
	_ sandbox.CodeRunner = (*Sandbox)(nil)
	_ sandbox.Factory    = (*Factory)(nil)
)
