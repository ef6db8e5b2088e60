// Package remote implements the sandbox contract against a sandbox daemon
// reachable over HTTP.
//
// Routes used (all JSON unless noted, bearer-token auth):
//
//	POST /v1/sandboxes                      create
//	GET  /v1/sandboxes                      list
//	GET  /v1/sandboxes/{id}                 get (404 when unknown)
//	POST /v1/sandboxes/{id}/start|stop      lifecycle
//	POST /v1/sandboxes/{id}/exec            {"command"} -> ExecResult
//	POST /v1/sandboxes/{id}/run             {"code","language"} -> CodeResult
//	GET  /v1/sandboxes/{id}/files?path=     raw file bytes
//	PUT  /v1/sandboxes/{id}/files?path=     raw file bytes
//	GET  /v1/sandboxes/{id}/files?dir=&list=1  {"files":[...]}
//	GET  /v1/sandboxes/{id}/snapshot        Snapshot
//	POST /v1/sandboxes/{id}/restore         zstd-compressed Snapshot JSON
//
// Requests are never retried. Transport errors and non-2xx responses are
// returned wrapped in a backend error with the daemon's message preserved.
//
// Sandboxes from this package implement sandbox.CodeRunner.
package remote
