package sandbox

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Encoding names how a FileRecord's content is represented.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf8"
	EncodingBase64 Encoding = "base64"
)

// FileRecord is one file of a snapshot, relative to the workspace root.
type FileRecord struct {
	Path     string   `json:"path"`
	Content  string   `json:"content"`
	Encoding Encoding `json:"encoding"`
}

// Bytes decodes the record's content.
func (f FileRecord) Bytes() ([]byte, error) {
	switch f.Encoding {
	case EncodingUTF8, "":
		return []byte(f.Content), nil
	case EncodingBase64:
		data, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Path, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q for %s", f.Encoding, f.Path)
	}
}

// Metadata keys set by snapshot producers.
const (
	MetaTruncated = "truncated"
	MetaBackend   = "backend"
	MetaSandboxID = "sandboxId"
)

// Snapshot is a point-in-time capture of a sandbox workspace.
// Replaying Files in order reconstructs the directory tree.
type Snapshot struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	WorkspacePath string            `json:"workspacePath"`
	Files         []FileRecord      `json:"files"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Truncated reports whether an adapter cap dropped files from the capture.
func (s *Snapshot) Truncated() bool {
	return s.Metadata[MetaTruncated] == "true"
}

// Paths returns the relative paths of the snapshot in order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, len(s.Files))
	for i, f := range s.Files {
		paths[i] = f.Path
	}
	return paths
}
