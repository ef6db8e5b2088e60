package session

import (
	"time"

	"github.com/arach/fabric/internal/sandbox"
)

// State is a session lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateDelegating    State = "delegating"
	StateReclaiming    State = "reclaiming"
	StateStopped       State = "stopped"
)

// EventType names a session transition.
type EventType string

const (
	EventInitialized      EventType = "initialized"
	EventDelegating       EventType = "delegating"
	EventDelegated        EventType = "delegated"
	EventDelegateFailed   EventType = "delegate_failed"
	EventReclaiming       EventType = "reclaiming"
	EventReclaimed        EventType = "reclaimed"
	EventReclaimFailed    EventType = "reclaim_failed"
	EventProviderSwitched EventType = "provider_switched"
	EventStopped          EventType = "stopped"
	EventError            EventType = "error"
)

// Event describes one session transition.
type Event struct {
	Type      EventType           `json:"type"`
	SessionID string              `json:"sessionId"`
	State     State               `json:"state"`
	Backend   sandbox.BackendType `json:"backend,omitempty"`
	SandboxID string              `json:"sandboxId,omitempty"`
	Provider  string              `json:"provider,omitempty"`
	TokenID   string              `json:"tokenId,omitempty"`
	Error     string              `json:"error,omitempty"`
	Time      time.Time           `json:"time"`
}
