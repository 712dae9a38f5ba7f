package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowdeck/flowdeck/pkg/events"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/tasks"
)

// Task applies the engine's transition stream to stored task records and
// answers the dashboard queries built on them.
type Task struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewTask(logger *slog.Logger, persistence persistence.Persistence) *Task {
	return &Task{
		persistence: persistence,
		logger:      logger.With("module", "task-service"),
	}
}

// Record applies one transition event. An event for an unknown task creates
// the record at the reported status, whatever that is; a consumer joining
// mid-stream may observe any suffix of the lifecycle, a lone terminal event
// included. A duplicate of an already-recorded terminal status is a no-op.
// A transition the state machine forbids returns ErrTransitionConflict and
// leaves the record unchanged.
func (t *Task) Record(ctx context.Context, transition *events.TaskTransition) (*models.Task, error) {
	if !transition.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", transition.Status, ErrUnknownTransition)
	}

	at := transition.Timestamp.UTC()
	if transition.Timestamp.IsZero() {
		at = time.Now().UTC()
	}

	task, err := t.persistence.TaskRepository().GetByID(ctx, transition.TaskID)

	switch {
	case persistence.IsTaskNotFound(err):
		// Timestamps before the first observed event are unknown and stay
		// unset; only the observed moment is stamped.
		task = tasks.New(transition.FlowID, transition.FlowVersionID, transition.NodeID, transition.SessionID)
		task.ID = transition.TaskID
		task.CreatedAt = at
		task.Status = transition.Status

		if transition.Status == models.TaskStatusRunning {
			startedAt := at
			task.StartedAt = &startedAt
		}

		if transition.Status.Terminal() {
			endedAt := at
			task.EndedAt = &endedAt
		}

		if len(transition.Result) > 0 {
			task.Result = append(json.RawMessage(nil), transition.Result...)
		}

		if err := t.persistence.TaskRepository().Save(ctx, task); err != nil {
			return nil, err
		}

		return task, nil
	case err != nil:
		return nil, err
	}

	next, err := tasks.Apply(task, transition.Status, at, transition.Result)
	if err != nil {
		var illegal *tasks.IllegalTransitionError
		if errors.As(err, &illegal) {
			t.logger.Warn("Rejected illegal task transition",
				"task_id", illegal.TaskID,
				"from", illegal.From,
				"to", illegal.To)

			return nil, fmt.Errorf("%w: %s", ErrTransitionConflict, illegal.Error())
		}

		return nil, err
	}

	// Duplicate terminal events return the stored record unchanged; nothing
	// to persist.
	if next == task {
		return task, nil
	}

	if err := t.persistence.TaskRepository().Save(ctx, next); err != nil {
		return nil, err
	}

	return next, nil
}

// Detail returns one task record.
func (t *Task) Detail(ctx context.Context, taskID string) (*models.Task, error) {
	return t.persistence.TaskRepository().GetByID(ctx, taskID)
}

// SessionTasks returns every task of one run in creation order.
func (t *Task) SessionTasks(ctx context.Context, sessionID string) ([]*models.Task, error) {
	return t.persistence.TaskRepository().ListBySession(ctx, sessionID)
}

// Chart aggregates a flow's tasks into per-day status counts over the range.
// Every returned day carries all six statuses, zero-filled.
func (t *Task) Chart(ctx context.Context, flowID string, from, to time.Time) ([]tasks.ChartBucket, error) {
	if from.After(to) {
		return nil, ErrChartRangeInvalid
	}

	taskList, err := t.persistence.TaskRepository().ListByFlowBetween(ctx, flowID, from, to)
	if err != nil {
		return nil, err
	}

	return tasks.Chart(taskList, from, to), nil
}

// AccountChart aggregates tasks across every flow owned by the account. Flow
// ownership lives on the flow version, so the account's flow ids are resolved
// first and the task streams merged before bucketing.
func (t *Task) AccountChart(ctx context.Context, accountID string, from, to time.Time) ([]tasks.ChartBucket, error) {
	if from.After(to) {
		return nil, ErrChartRangeInvalid
	}

	flowIDs, err := t.accountFlowIDs(ctx, accountID)
	if err != nil {
		return nil, err
	}

	merged := make([]*models.Task, 0)

	for flowID := range flowIDs {
		taskList, err := t.persistence.TaskRepository().ListByFlowBetween(ctx, flowID, from, to)
		if err != nil {
			return nil, err
		}

		merged = append(merged, taskList...)
	}

	return tasks.Chart(merged, from, to), nil
}

func (t *Task) accountFlowIDs(ctx context.Context, accountID string) (map[string]struct{}, error) {
	flowIDs := make(map[string]struct{})
	offset := 0

	for {
		page, err := t.persistence.FlowRepository().ListFlows(ctx, persistence.ListFlowsOptions{
			AccountID: accountID,
			Limit:     100,
			Offset:    offset,
		})
		if err != nil {
			return nil, err
		}

		for _, flow := range page.Flows {
			flowIDs[flow.ID] = struct{}{}
		}

		if !page.HasNextPage {
			return flowIDs, nil
		}

		offset += len(page.Flows)
	}
}
