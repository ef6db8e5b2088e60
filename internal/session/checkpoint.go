package session

import (
	"context"
	"time"

	"github.com/arach/fabric/internal/checkpoint"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/sandbox"
)

// SaveCheckpoint embeds the active workspace into cp and saves it. The
// working directory, source backend and id default from the session.
func (s *Session) SaveCheckpoint(ctx context.Context, store *checkpoint.Store, cp *checkpoint.AgentCheckpoint) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	if cp.ID == "" {
		cp.ID = s.opts.ID
	}
	if cp.WorkingDir == "" {
		cp.WorkingDir = snap.WorkspacePath
	}
	if cp.SourceBackend == "" {
		cp.SourceBackend = s.CurrentRuntime()
	}
	cp.Files = snap.Files
	return store.Save(cp)
}

// RestoreCheckpoint writes the files of checkpoint id into the active
// sandbox and returns the checkpoint.
func (s *Session) RestoreCheckpoint(ctx context.Context, store *checkpoint.Store, id string) (*checkpoint.AgentCheckpoint, error) {
	sb, err := s.active()
	if err != nil {
		return nil, err
	}

	cp, ok := store.Load(id)
	if !ok {
		return nil, errors.CheckpointError("checkpoint not found: "+id, nil)
	}

	snap := &sandbox.Snapshot{
		ID:            cp.ID,
		Timestamp:     time.Now().UTC(),
		WorkspacePath: cp.WorkingDir,
		Files:         cp.Files,
	}
	if err := sb.Restore(ctx, snap); err != nil {
		return nil, err
	}
	return cp, nil
}
