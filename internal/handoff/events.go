package handoff

import (
	"time"

	"github.com/arach/fabric/internal/sandbox"
)

// EventType names one step of a handoff.
type EventType string

const (
	EventInitiated           EventType = "initiated"
	EventSnapshotCreated     EventType = "snapshot_created"
	EventTargetStarted       EventType = "target_started"
	EventSnapshotTransferred EventType = "snapshot_transferred"
	EventCompleted           EventType = "completed"
	EventFailed              EventType = "failed"
)

// Operation names the manager call an event belongs to.
type Operation string

const (
	OpDelegate            Operation = "delegate"
	OpReclaim             Operation = "reclaim"
	OpReclaimWithSnapshot Operation = "reclaim_with_snapshot"
)

// Event is emitted for every handoff step.
type Event struct {
	Type      EventType           `json:"type"`
	Op        Operation           `json:"op"`
	TokenID   string              `json:"tokenId,omitempty"`
	Source    sandbox.BackendType `json:"source,omitempty"`
	Target    sandbox.BackendType `json:"target"`
	SandboxID string              `json:"sandboxId,omitempty"`
	Files     int                 `json:"files,omitempty"`
	Error     string              `json:"error,omitempty"`
	Time      time.Time           `json:"time"`
}

// Result is the outcome of a handoff. Expected failures are reported
// here rather than as Go errors.
type Result struct {
	Success bool
	Token   *sandbox.HandoffToken
	Sandbox sandbox.Sandbox
	Error   string

	// Err is the underlying error when Success is false.
	Err error
}
