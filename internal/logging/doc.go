// Package logging provides logging utilities for fabric.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("handoff step", "step", "snapshot_created", "token", tok.ID)
//	logging.Warn("event listener panicked", "event", ev.Type)
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Delegating session %s to %s...", id, backend)
//	logging.UserSuccess("Session %s now running on %s", id, backend)
//	logging.UserWarning("Snapshot truncated at %d files", max)
//	logging.UserError("Handoff failed: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// # Status Indicators
//
// User functions prepend status indicators, colored with lipgloss:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
