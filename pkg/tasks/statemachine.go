// Package tasks defines the task execution lifecycle: the legal transition
// set for one execution attempt of one node, and the read-side aggregation
// the dashboard charts are built from. Transitions are driven exclusively by
// the external engine; this package only decides whether a reported
// transition is legal and records it.
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/google/uuid"
)

// transitions is the legal move set. Completed and failed are reachable only
// from running, so a task observably enters running first and duration
// metrics stay well-defined.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusPending: {
		models.TaskStatusWaiting,
		models.TaskStatusRunning,
		models.TaskStatusCanceled,
	},
	models.TaskStatusWaiting: {
		models.TaskStatusRunning,
		models.TaskStatusCanceled,
	},
	models.TaskStatusRunning: {
		models.TaskStatusCompleted,
		models.TaskStatusFailed,
		models.TaskStatusCanceled,
	},
}

// CanTransition reports whether moving from one status to another is legal.
// No transition leaves a terminal state.
func CanTransition(from, to models.TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// IllegalTransitionError reports a transition outside the legal set. This
// indicates an engine-side bug; it is logged and rejected, never corrected.
type IllegalTransitionError struct {
	TaskID string
	From   models.TaskStatus
	To     models.TaskStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal transition %s -> %s", e.TaskID, e.From, e.To)
}

// New creates a pending task for one node within one flow run.
func New(flowID, flowVersionID, nodeID, sessionID string) *models.Task {
	return &models.Task{
		ID:            uuid.New().String(),
		FlowID:        flowID,
		FlowVersionID: flowVersionID,
		NodeID:        nodeID,
		SessionID:     sessionID,
		Status:        models.TaskStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// Apply records an engine-reported transition and returns the updated task
// as a new value; the input is never mutated. A repeat of the task's current
// terminal status is an idempotent no-op (the engine may deliver duplicates);
// any other move out of a terminal state, or a skip over running, is an
// IllegalTransitionError.
func Apply(task *models.Task, status models.TaskStatus, at time.Time, result json.RawMessage) (*models.Task, error) {
	if !status.Valid() {
		return nil, &IllegalTransitionError{TaskID: task.ID, From: task.Status, To: status}
	}

	if task.Status.Terminal() && status == task.Status {
		return task, nil
	}

	if !CanTransition(task.Status, status) {
		return nil, &IllegalTransitionError{TaskID: task.ID, From: task.Status, To: status}
	}

	next := task.Clone()
	next.Status = status

	at = at.UTC()

	if status == models.TaskStatusRunning && next.StartedAt == nil {
		startedAt := at
		next.StartedAt = &startedAt
	}

	if status.Terminal() {
		endedAt := at
		next.EndedAt = &endedAt
	}

	if len(result) > 0 {
		next.Result = append(json.RawMessage(nil), result...)
	}

	return next, nil
}
