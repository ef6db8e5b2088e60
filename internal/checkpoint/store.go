// Package checkpoint persists agent conversation state as one JSON file
// per checkpoint id.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
)

// Version is stamped on checkpoints saved without one.
const Version = 1

const fileExt = ".json"

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentCheckpoint is the persisted state of an agent conversation.
type AgentCheckpoint struct {
	Version       int                  `json:"version"`
	ID            string               `json:"id"`
	Messages      []Message            `json:"messages"`
	SystemPrompt  string               `json:"systemPrompt,omitempty"`
	LastOutput    string               `json:"lastOutput,omitempty"`
	WorkingDir    string               `json:"workingDir,omitempty"`
	Env           map[string]string    `json:"env,omitempty"`
	Files         []sandbox.FileRecord `json:"files,omitempty"`
	SourceBackend sandbox.BackendType  `json:"sourceBackend,omitempty"`
	TargetBackend sandbox.BackendType  `json:"targetBackend,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// Summary is the listing view of a checkpoint.
type Summary struct {
	ID        string
	Messages  int
	Files     int
	Source    sandbox.BackendType
	Target    sandbox.BackendType
	Timestamp time.Time
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeKey maps an id onto a file name stem. Characters outside
// [A-Za-z0-9_-] become underscores.
func SanitizeKey(id string) string {
	return unsafeKeyChars.ReplaceAllString(id, "_")
}

// Store keeps checkpoints under a directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: func() time.Time { return time.Now().UTC() }}
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, SanitizeKey(id)+fileExt)
}

// Save writes cp, replacing any checkpoint with the same id. The write goes
// through a temporary file and a rename so readers never see a partial file.
func (s *Store) Save(cp *AgentCheckpoint) error {
	if cp.ID == "" {
		return errors.ValidationError("checkpoint id is required")
	}
	if cp.Version == 0 {
		cp.Version = Version
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = s.now()
	}

	data, err := sonic.ConfigStd.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.CheckpointError("failed to encode checkpoint "+cp.ID, err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.CheckpointError("failed to create checkpoint directory", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+SanitizeKey(cp.ID)+"-*")
	if err != nil {
		return errors.CheckpointError("failed to create temporary file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.CheckpointError("failed to write checkpoint "+cp.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.CheckpointError("failed to write checkpoint "+cp.ID, err)
	}
	if err := os.Rename(tmpName, s.path(cp.ID)); err != nil {
		return errors.CheckpointError("failed to commit checkpoint "+cp.ID, err)
	}

	logging.Debug("checkpoint saved", "id", cp.ID, "files", len(cp.Files), "messages", len(cp.Messages))
	return nil
}

// Load returns the checkpoint saved under id. Absent and unreadable
// checkpoints both report false.
func (s *Store) Load(id string) (*AgentCheckpoint, bool) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Debug("checkpoint read failed", "id", id, "error", err)
		}
		return nil, false
	}

	var cp AgentCheckpoint
	if err := sonic.Unmarshal(data, &cp); err != nil {
		logging.Debug("checkpoint parse failed", "id", id, "error", err)
		return nil, false
	}
	return &cp, true
}

// Exists reports whether a checkpoint file exists for id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes the checkpoint for id. Deleting an absent checkpoint is
// not an error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return errors.CheckpointError("failed to delete checkpoint "+id, err)
	}
	return nil
}

// List returns the stored keys, sorted. A missing directory yields none.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.CheckpointError("failed to read checkpoint directory", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Summaries loads every listed checkpoint, newest first. Unreadable
// checkpoints are skipped.
func (s *Store) Summaries() ([]Summary, error) {
	keys, err := s.List()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(keys))
	for _, key := range keys {
		cp, ok := s.Load(key)
		if !ok {
			continue
		}
		id := cp.ID
		if id == "" {
			id = key
		}
		out = append(out, Summary{
			ID:        id,
			Messages:  len(cp.Messages),
			Files:     len(cp.Files),
			Source:    cp.SourceBackend,
			Target:    cp.TargetBackend,
			Timestamp: cp.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// String renders a one-line description of the summary.
func (s Summary) String() string {
	route := string(s.Source)
	if s.Target != "" {
		route += " -> " + string(s.Target)
	}
	return fmt.Sprintf("%s  %d messages  %d files  %s", s.ID, s.Messages, s.Files, route)
}
