package models

import (
	"encoding/json"
	"time"
)

// TaskStatus is the state of one execution attempt of one node within one
// flow run. Transitions are driven exclusively by the external engine.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // created, not yet scheduled
	TaskStatusWaiting   TaskStatus = "waiting"   // scheduled, blocked on a dependency
	TaskStatusRunning   TaskStatus = "running"   // actively executing
	TaskStatusCompleted TaskStatus = "completed" // terminal, result available
	TaskStatusFailed    TaskStatus = "failed"    // terminal, error captured
	TaskStatusCanceled  TaskStatus = "canceled"  // terminal, externally aborted
)

// AllTaskStatuses lists every status in lifecycle order. Chart output always
// carries all of them so consumers never branch on missing keys.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusPending,
		TaskStatusWaiting,
		TaskStatusRunning,
		TaskStatusCompleted,
		TaskStatusFailed,
		TaskStatusCanceled,
	}
}

// Terminal reports whether the status absorbs further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCanceled
}

// Valid reports whether the status is one of the known states.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusWaiting, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// Task records one execution attempt of one node. Immutable once terminal.
type Task struct {
	ID            string     `json:"task_id"         validate:"required"`
	FlowID        string     `json:"flow_id"         validate:"required"`
	FlowVersionID string     `json:"flow_version_id" validate:"required"`
	NodeID        string     `json:"node_id"         validate:"required"`
	SessionID     string     `json:"session_id"      validate:"required"`
	Status        TaskStatus `json:"status"          validate:"required"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	// Result is an opaque payload from the engine runtime. Stored and
	// displayed as-is, never interpreted here.
	Result json.RawMessage `json:"result,omitempty"`
}

// Duration returns ended_at - started_at, or zero while either is unset.
// A task always passes through running before ending, so this is never
// negative for terminal tasks.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.EndedAt == nil {
		return 0
	}

	return t.EndedAt.Sub(*t.StartedAt)
}

// Clone returns a copy safe to mutate independently of the original.
func (t *Task) Clone() *Task {
	clone := *t

	if t.StartedAt != nil {
		startedAt := *t.StartedAt
		clone.StartedAt = &startedAt
	}

	if t.EndedAt != nil {
		endedAt := *t.EndedAt
		clone.EndedAt = &endedAt
	}

	clone.Result = append(json.RawMessage(nil), t.Result...)

	return &clone
}
