// Package sandbox defines the contract every execution backend implements.
//
// The rest of fabric is backend-agnostic: it only sees the Sandbox and
// Factory interfaces plus the BackendType tag. Concrete adapters live under
// internal/backends.
//
// # Sandbox
//
// A Sandbox is one isolated execution environment:
//   - Start, Stop: lifecycle (Stop is idempotent)
//   - Exec: run a shell command to completion
//   - WriteFile, ReadFile, ListFiles: workspace-scoped file I/O
//   - Snapshot, Restore: capture and replay the workspace tree
//
// Every operation on a sandbox that is not running fails with an error
// matching errors.ErrNotRunning. Use CheckRunning in adapters.
//
// # Optional Capabilities
//
// Running code natively is optional. Adapters that can do it additionally
// implement CodeRunner; callers query it with AsCodeRunner and fall back
// to writing a file and calling Exec otherwise.
//
// # Factory
//
// A Factory creates, resumes and lists sandboxes for one backend type.
// Create returns a running sandbox so a handoff can restore into it
// immediately.
//
// # Snapshots and Tokens
//
// A Snapshot is an ordered list of FileRecords (utf8 or base64 content).
// A HandoffToken records one delegate call and carries its snapshot.
// Delegate and Reclaim are adapter-local conveniences; the authoritative
// cross-backend sequence is handoff.Manager.
package sandbox
