package models

import "time"

// ExecutionStatus is the lifecycle state of an execution instance.
// Transitions are one-directional once a terminal status is reached.
type ExecutionStatus string

const (
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusWaitingForInput ExecutionStatus = "waiting_for_input"
	ExecutionStatusWaitingForTimer ExecutionStatus = "waiting_for_timer"
	ExecutionStatusWaitingForCall  ExecutionStatus = "waiting_for_call"
	ExecutionStatusCompleted       ExecutionStatus = "completed"
	ExecutionStatusFailed          ExecutionStatus = "failed"
	ExecutionStatusAborted         ExecutionStatus = "aborted"
)

// IsTerminal reports whether the status permits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusAborted:
		return true
	default:
		return false
	}
}

// IsWaiting reports whether the instance is suspended awaiting an event.
func (s ExecutionStatus) IsWaiting() bool {
	switch s {
	case ExecutionStatusWaitingForInput, ExecutionStatusWaitingForTimer, ExecutionStatusWaitingForCall:
		return true
	default:
		return false
	}
}

// ExecutionInstance is one running or suspended traversal of a flow for one
// contact. It pins (FlowID, FlowVersion) at creation; later flow edits never
// affect an in-flight instance.
type ExecutionInstance struct {
	ID            string          `json:"id"`
	FlowID        string          `json:"flow_id"      validate:"required"`
	FlowVersion   int             `json:"flow_version" validate:"min=1"`
	ContactID     string          `json:"contact_id"   validate:"required"`
	CurrentNodeID string          `json:"current_node_id"`
	Status        ExecutionStatus `json:"status"`
	Variables     map[string]any  `json:"variables,omitempty"`

	// LoopCounts tracks re-entries per loop node to enforce max_iterations.
	LoopCounts map[string]int `json:"loop_counts,omitempty"`

	// PendingEffects are queued, not-yet-dispatched effects. They are
	// persisted with the instance before dispatch so a crash mid-dispatch
	// can resume without losing or duplicating state.
	PendingEffects []Effect `json:"pending_effects,omitempty"`

	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	Archived       bool       `json:"archived,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SetVariable applies one variable update, allocating the store lazily.
func (i *ExecutionInstance) SetVariable(name string, value any) {
	if i.Variables == nil {
		i.Variables = make(map[string]any)
	}

	i.Variables[name] = value
}

// Snapshot returns a deep-enough copy for retry semantics: retries of a
// step recompute from the same pre-step snapshot so variable updates are
// never double-applied.
func (i *ExecutionInstance) Snapshot() *ExecutionInstance {
	clone := *i

	clone.Variables = make(map[string]any, len(i.Variables))
	for k, v := range i.Variables {
		clone.Variables[k] = v
	}

	clone.LoopCounts = make(map[string]int, len(i.LoopCounts))
	for k, v := range i.LoopCounts {
		clone.LoopCounts[k] = v
	}

	clone.PendingEffects = append([]Effect(nil), i.PendingEffects...)

	return &clone
}
