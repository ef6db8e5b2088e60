package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delegate is the adapter-local equivalent of snapshot + stop. It captures
// sb's workspace, stops sb and returns a token carrying the snapshot.
// Cross-backend handoff lives in the handoff package; this helper only
// prepares the source side.
func Delegate(ctx context.Context, sb Sandbox, target BackendType) (*HandoffToken, error) {
	snap, err := sb.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", sb.ID(), err)
	}

	if err := sb.Stop(ctx); err != nil {
		return nil, fmt.Errorf("stop %s: %w", sb.ID(), err)
	}

	return &HandoffToken{
		ID:        uuid.NewString(),
		Source:    sb.Backend(),
		Target:    target,
		SandboxID: sb.ID(),
		CreatedAt: time.Now().UTC(),
		Snapshot:  snap,
	}, nil
}

// Reclaim is the adapter-local equivalent of start + restore. snap wins
// over the token's own snapshot when both are given.
func Reclaim(ctx context.Context, sb Sandbox, token *HandoffToken, snap *Snapshot) error {
	if snap == nil && token != nil {
		snap = token.Snapshot
	}
	if snap == nil {
		return fmt.Errorf("reclaim %s: no snapshot to restore", sb.ID())
	}

	if sb.Status() != StatusRunning {
		if err := sb.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", sb.ID(), err)
		}
	}

	if err := sb.Restore(ctx, snap); err != nil {
		return fmt.Errorf("restore %s: %w", sb.ID(), err)
	}
	return nil
}
