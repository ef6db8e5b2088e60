// Package audit records session and handoff events as JSON Lines, one file
// per session.
package audit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/arach/fabric/internal/handoff"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/session"
)

// Source says which component produced an event.
type Source string

const (
	SourceSession Source = "session"
	SourceHandoff Source = "handoff"
	SourceCLI     Source = "cli"
)

// CLI event types.
const (
	EventUp         = "up"
	EventDown       = "down"
	EventExec       = "exec"
	EventPrompt     = "prompt"
	EventCheckpoint = "checkpoint"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time           `json:"timestamp"`
	Source    Source              `json:"source"`
	Type      string              `json:"type"`
	Session   string              `json:"session"`
	Backend   sandbox.BackendType `json:"backend,omitempty"`
	Target    sandbox.BackendType `json:"target,omitempty"`
	TokenID   string              `json:"tokenId,omitempty"`
	Details   string              `json:"details,omitempty"`
}

// Logger writes and reads audit events.
// Events are stored in {dir}/{session}.events.jsonl.
type Logger struct {
	dir string
}

// NewLogger creates a new audit logger rooted at dir.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir}
}

func (l *Logger) eventPath(id string) (string, error) {
	return securejoin.SecureJoin(l.dir, id+".events.jsonl")
}

// Log appends an event to the session's audit log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	path, err := l.eventPath(event.Session)
	if err != nil {
		return fmt.Errorf("invalid audit log path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogEvent is a convenience method that creates and logs a CLI event.
func (l *Logger) LogEvent(eventType, id, details string) error {
	return l.Log(Event{
		Source:  SourceCLI,
		Type:    eventType,
		Session: id,
		Details: details,
	})
}

func (l *Logger) logQuietly(e Event) {
	if err := l.Log(e); err != nil {
		logging.Warn("failed to write audit event", "session", e.Session, "type", e.Type, "error", err)
	}
}

// SessionRecorder returns a session listener that appends every event to
// the session's log.
func (l *Logger) SessionRecorder() func(session.Event) {
	return func(e session.Event) {
		l.logQuietly(Event{
			Timestamp: e.Time,
			Source:    SourceSession,
			Type:      string(e.Type),
			Session:   e.SessionID,
			Backend:   e.Backend,
			TokenID:   e.TokenID,
			Details:   e.Error,
		})
	}
}

// HandoffRecorder returns a handoff listener that appends events to the
// log of sessionID. Managers are shared between sessions, so only events
// about the sandbox reported by sandboxID are kept.
func (l *Logger) HandoffRecorder(sessionID string, sandboxID func() string) func(handoff.Event) {
	return func(e handoff.Event) {
		if e.SandboxID == "" || e.SandboxID != sandboxID() {
			return
		}
		details := e.Error
		if details == "" && e.Files > 0 {
			details = fmt.Sprintf("%d files", e.Files)
		}
		l.logQuietly(Event{
			Timestamp: e.Time,
			Source:    SourceHandoff,
			Type:      string(e.Op) + "." + string(e.Type),
			Session:   sessionID,
			Backend:   e.Source,
			Target:    e.Target,
			TokenID:   e.TokenID,
			Details:   details,
		})
	}
}

// Events reads all events for a session in chronological order.
func (l *Logger) Events(id string) ([]Event, error) {
	path, err := l.eventPath(id)
	if err != nil {
		return nil, fmt.Errorf("invalid audit log path: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := sonic.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Remove deletes the audit log for a session.
func (l *Logger) Remove(id string) error {
	path, err := l.eventPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
