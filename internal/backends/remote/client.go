package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
)

// Options configures the daemon client.
type Options struct {
	URL     string
	Token   string
	Timeout time.Duration
	Image   string
	Backend sandbox.BackendType // tag reported by sandboxes; "cloud" when empty
}

// APIError is a non-2xx daemon response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// sandboxView is the daemon's JSON representation of a sandbox.
type sandboxView struct {
	ID            string         `json:"id"`
	Status        sandbox.Status `json:"status"`
	Address       string         `json:"address,omitempty"`
	WorkspacePath string         `json:"workspacePath,omitempty"`
}

type createRequest struct {
	ID            string            `json:"id,omitempty"`
	Image         string            `json:"image,omitempty"`
	WorkspacePath string            `json:"workspacePath,omitempty"`
	Mounts        map[string]string `json:"mounts,omitempty"`
}

type execRequest struct {
	Command string `json:"command"`
}

type runRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type listFilesResponse struct {
	Files []string `json:"files"`
}

type errorBody struct {
	Error string `json:"error"`
}

// client wraps resty with the daemon's routes. Requests are sent once;
// exec, run and restore are not idempotent.
type client struct {
	http *resty.Client
}

func newClient(opts Options) *client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	r := resty.New().
		SetBaseURL(strings.TrimRight(opts.URL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", "fabric/1").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	if opts.Token != "" {
		r.SetAuthToken(opts.Token)
	}

	return &client{http: r}
}

func (c *client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&errorBody{})
}

// check converts transport failures and non-2xx responses into errors.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
			apiErr.Message = body.Error
		} else {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		logging.Debug("daemon error", "url", resp.Request.URL, "status", resp.StatusCode(), "message", apiErr.Message)
		return apiErr
	}
	return nil
}

func sandboxPath(id, action string) string {
	p := "/v1/sandboxes/" + id
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *client) create(ctx context.Context, req createRequest) (*sandboxView, error) {
	var view sandboxView
	resp, err := c.request(ctx).SetBody(req).SetResult(&view).Post("/v1/sandboxes")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *client) get(ctx context.Context, id string) (*sandboxView, error) {
	var view sandboxView
	resp, err := c.request(ctx).SetResult(&view).Get(sandboxPath(id, ""))
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *client) list(ctx context.Context) ([]sandboxView, error) {
	var views []sandboxView
	resp, err := c.request(ctx).SetResult(&views).Get("/v1/sandboxes")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *client) lifecycle(ctx context.Context, id, action string) (*sandboxView, error) {
	var view sandboxView
	resp, err := c.request(ctx).SetResult(&view).Post(sandboxPath(id, action))
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *client) exec(ctx context.Context, id, command string) (*sandbox.ExecResult, error) {
	var res sandbox.ExecResult
	resp, err := c.request(ctx).SetBody(execRequest{Command: command}).SetResult(&res).Post(sandboxPath(id, "exec"))
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *client) run(ctx context.Context, id, code, language string) (*sandbox.CodeResult, error) {
	var res sandbox.CodeResult
	resp, err := c.request(ctx).SetBody(runRequest{Code: code, Language: language}).SetResult(&res).Post(sandboxPath(id, "run"))
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *client) writeFile(ctx context.Context, id, path string, data []byte) error {
	resp, err := c.request(ctx).
		SetQueryParam("path", path).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Put(sandboxPath(id, "files"))
	return check(resp, err)
}

func (c *client) readFile(ctx context.Context, id, path string) ([]byte, error) {
	resp, err := c.request(ctx).SetQueryParam("path", path).Get(sandboxPath(id, "files"))
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *client) listFiles(ctx context.Context, id, dir string) ([]string, error) {
	var out listFilesResponse
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{"dir": dir, "list": "1"}).
		SetResult(&out).
		Get(sandboxPath(id, "files"))
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (c *client) snapshot(ctx context.Context, id string) (*sandbox.Snapshot, error) {
	var snap sandbox.Snapshot
	resp, err := c.request(ctx).SetResult(&snap).Get(sandboxPath(id, "snapshot"))
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *client) restore(ctx context.Context, id string, packed []byte) error {
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Content-Encoding", "zstd").
		SetBody(packed).
		Post(sandboxPath(id, "restore"))
	return check(resp, err)
}
