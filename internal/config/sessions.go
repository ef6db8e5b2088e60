package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/arach/fabric/internal/sandbox"
)

// SessionRecord is the CLI's persisted view of a session between commands.
type SessionRecord struct {
	ID        string              `json:"id"`
	Workspace string              `json:"workspace"`
	Backend   sandbox.BackendType `json:"backend"`
	SandboxID string              `json:"sandboxId"`
	State     string              `json:"state"`
	TokenID   string              `json:"tokenId,omitempty"` // last handoff token
	Provider  string              `json:"provider,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Validate checks that the SessionRecord is valid.
func (r *SessionRecord) Validate() error {
	if err := ValidateName(r.ID); err != nil {
		return err
	}
	if r.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if r.SandboxID == "" {
		return fmt.Errorf("sandboxId is required")
	}
	return nil
}

// LoadSession loads the record for a session
func LoadSession(sessionsDir, id string) (*SessionRecord, error) {
	path, err := safePath(sessionsDir, id, ".json")
	if err != nil {
		return nil, fmt.Errorf("invalid session name: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session not found: %s", id)
	}

	var rec SessionRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse session record: %w", err)
	}
	return &rec, nil
}

// SaveSession writes the record for a session, stamping UpdatedAt.
func SaveSession(sessionsDir string, rec *SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid session record: %w", err)
	}
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	path, err := safePath(sessionsDir, rec.ID, ".json")
	if err != nil {
		return fmt.Errorf("invalid session name: %w", err)
	}

	rec.UpdatedAt = time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	data, err := sonic.ConfigStd.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}
	return nil
}

// DeleteSession removes the record for a session
func DeleteSession(sessionsDir, id string) error {
	path, err := safePath(sessionsDir, id, ".json")
	if err != nil {
		return fmt.Errorf("invalid session name: %w", err)
	}
	return os.Remove(path)
}

// ListSessions returns every session record, sorted by id
func ListSessions(sessionsDir string) ([]*SessionRecord, error) {
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var records []*SessionRecord
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-5]
		rec, err := LoadSession(sessionsDir, id)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// SessionExists checks if a session record exists
func SessionExists(sessionsDir, id string) bool {
	path, err := safePath(sessionsDir, id, ".json")
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
