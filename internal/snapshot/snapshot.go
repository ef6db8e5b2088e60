package snapshot

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
)

const (
	DefaultMaxFiles    = 1000
	DefaultMaxFileSize = 1 << 20
)

// Options caps what a capture includes. Zero values disable a cap.
type Options struct {
	MaxFiles    int      `toml:"max_files"`
	MaxFileSize int64    `toml:"max_file_size"`
	Exclude     []string `toml:"exclude"`
}

// DefaultOptions returns the caps used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxFiles:    DefaultMaxFiles,
		MaxFileSize: DefaultMaxFileSize,
		Exclude:     []string{".git/**", "node_modules/**"},
	}
}

// Validate checks that the exclude patterns are well formed.
func (o Options) Validate() error {
	if o.MaxFiles < 0 {
		return fmt.Errorf("max_files must not be negative")
	}
	if o.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative")
	}
	for _, p := range o.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

// excluded reports whether the slash-separated relative path matches
// any exclude pattern. A directory also matches "dir/**".
func (o Options) excluded(rel string, isDir bool) bool {
	for _, p := range o.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(p, rel+"/"); ok {
				return true
			}
			if strings.HasSuffix(p, "/**") && strings.TrimSuffix(p, "/**") == rel {
				return true
			}
		}
	}
	return false
}

type entry struct {
	rel  string
	size int64
}

// Capture walks root and returns its regular files as a snapshot.
// Files are ordered by path. Symlinks are not followed. When a cap drops
// any file the snapshot's metadata records truncated=true.
func Capture(ctx context.Context, root string, opts Options) (*sandbox.Snapshot, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", root)
	}

	var (
		mu      sync.Mutex
		entries []entry
	)

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			logging.Debug("snapshot walk error", "path", p, "error", err)
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if opts.excluded(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || opts.excluded(rel, false) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}

		mu.Lock()
		entries = append(entries, entry{rel: rel, size: fi.Size()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	snap := &sandbox.Snapshot{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		WorkspacePath: root,
		Files:         make([]sandbox.FileRecord, 0, len(entries)),
	}

	truncated := false
	for _, e := range entries {
		if opts.MaxFiles > 0 && len(snap.Files) >= opts.MaxFiles {
			truncated = true
			break
		}
		if opts.MaxFileSize > 0 && e.size > opts.MaxFileSize {
			truncated = true
			continue
		}

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.rel, err)
		}
		snap.Files = append(snap.Files, EncodeFile(e.rel, data))
	}

	if truncated {
		snap.Metadata = map[string]string{sandbox.MetaTruncated: "true"}
		logging.Debug("snapshot truncated", "root", root, "files", len(snap.Files), "seen", len(entries))
	}

	return snap, nil
}

// EncodeFile builds a FileRecord, choosing utf8 for text content and
// base64 for everything else.
func EncodeFile(rel string, data []byte) sandbox.FileRecord {
	if isText(data) {
		return sandbox.FileRecord{Path: rel, Content: string(data), Encoding: sandbox.EncodingUTF8}
	}
	return sandbox.FileRecord{
		Path:     rel,
		Content:  base64.StdEncoding.EncodeToString(data),
		Encoding: sandbox.EncodingBase64,
	}
}

func isText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if !utf8.Valid(data) {
		return false
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// Restore writes every file of snap under root, creating parent
// directories. Paths are resolved with SecureJoin so records cannot
// escape root. Existing files not in snap are left alone.
func Restore(ctx context.Context, root string, snap *sandbox.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("restore: nil snapshot")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	for _, f := range snap.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := f.Bytes()
		if err != nil {
			return err
		}

		target, err := securejoin.SecureJoin(root, filepath.FromSlash(f.Path))
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("create parent of %s: %w", f.Path, err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	return nil
}
