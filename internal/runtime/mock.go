package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MockRuntime is an in-memory Runtime for tests. Every call is recorded, and
// an error registered with SetError fails the named method.
type MockRuntime struct {
	mu sync.RWMutex

	// Containers is keyed by container name
	Containers map[string]*ContainerInfo

	// ExecResults maps container names to canned exec results
	ExecResults map[string]*ExecResult

	// Errors maps method names to injected failures
	Errors map[string]error

	// ExecFunc, when set, computes exec results instead of ExecResults
	ExecFunc func(name string, command []string, opts ExecOptions) *ExecResult

	CallLog []MockCall
}

// MockCall is one recorded method call.
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMockRuntime creates an empty mock runtime.
func NewMockRuntime() *MockRuntime {
	m := &MockRuntime{}
	m.Reset()
	return m
}

// call records a call and returns the failure injected for method, if any.
// The caller holds mu.
func (m *MockRuntime) call(method string, args ...interface{}) error {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
	return m.Errors[method]
}

// setStatus changes the status of a known container. The caller holds mu.
func (m *MockRuntime) setStatus(name string, status ContainerStatus) error {
	c, ok := m.Containers[name]
	if !ok {
		return fmt.Errorf("container not found: %s", name)
	}
	c.Status = status
	return nil
}

// SetError makes every later call to method fail with err.
func (m *MockRuntime) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[method] = err
}

// SetExecResult fixes the result of exec calls on a container.
func (m *MockRuntime) SetExecResult(name string, result *ExecResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecResults[name] = result
}

// AddContainer registers an existing container.
func (m *MockRuntime) AddContainer(name string, status ContainerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers[name] = &ContainerInfo{Name: name, Status: status}
}

// GetCalls returns a copy of the call log.
func (m *MockRuntime) GetCalls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockCall(nil), m.CallLog...)
}

// GetCallsFor returns the recorded calls to one method.
func (m *MockRuntime) GetCallsFor(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var calls []MockCall
	for _, c := range m.CallLog {
		if c.Method == method {
			calls = append(calls, c)
		}
	}
	return calls
}

// Reset drops all containers, canned results, errors and calls.
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers = map[string]*ContainerInfo{}
	m.ExecResults = map[string]*ExecResult{}
	m.Errors = map[string]error{}
	m.CallLog = nil
}

func (m *MockRuntime) Name() string {
	return "mock"
}

func (m *MockRuntime) Create(ctx context.Context, opts CreateOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Create", opts); err != nil {
		return err
	}
	if _, exists := m.Containers[opts.Name]; exists {
		return fmt.Errorf("container already exists: %s", opts.Name)
	}

	info := &ContainerInfo{Name: opts.Name, Status: StatusStopped}
	if opts.Start {
		info.Status = StatusRunning
	}
	m.Containers[opts.Name] = info
	return nil
}

func (m *MockRuntime) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Start", name); err != nil {
		return err
	}
	return m.setStatus(name, StatusRunning)
}

func (m *MockRuntime) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Stop", name); err != nil {
		return err
	}
	return m.setStatus(name, StatusStopped)
}

// Destroy removes a container; unknown names are ignored.
func (m *MockRuntime) Destroy(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Destroy", name); err != nil {
		return err
	}
	delete(m.Containers, name)
	return nil
}

func (m *MockRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("IsRunning", name); err != nil {
		return false, err
	}
	c, ok := m.Containers[name]
	return ok && c.Status == StatusRunning, nil
}

// Status reports StatusNotFound for unknown containers.
func (m *MockRuntime) Status(ctx context.Context, name string) (*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Status", name); err != nil {
		return nil, err
	}
	if c, ok := m.Containers[name]; ok {
		info := *c
		return &info, nil
	}
	return &ContainerInfo{Name: name, Status: StatusNotFound}, nil
}

// Exec answers from ExecFunc, then ExecResults, then an empty success.
// The container must be running.
func (m *MockRuntime) Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Exec", name, command, opts); err != nil {
		return nil, err
	}
	if c, ok := m.Containers[name]; !ok || c.Status != StatusRunning {
		return nil, fmt.Errorf("container %s is not running", name)
	}

	switch {
	case m.ExecFunc != nil:
		return m.ExecFunc(name, command, opts), nil
	case m.ExecResults[name] != nil:
		return m.ExecResults[name], nil
	}
	return &ExecResult{}, nil
}

// List returns copies of all containers sorted by name.
func (m *MockRuntime) List(ctx context.Context) ([]*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("List"); err != nil {
		return nil, err
	}

	containers := make([]*ContainerInfo, 0, len(m.Containers))
	for _, c := range m.Containers {
		info := *c
		containers = append(containers, &info)
	}
	sort.Slice(containers, func(i, j int) bool { return containers[i].Name < containers[j].Name })
	return containers, nil
}

var _ Runtime = (*MockRuntime)(nil)
