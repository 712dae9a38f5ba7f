package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

const taskColumns = `id, flow_id, flow_version_id, node_id, session_id,
	status, created_at, started_at, ended_at, result`

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var (
		task   models.Task
		result []byte
	)

	err := row.Scan(
		&task.ID, &task.FlowID, &task.FlowVersionID, &task.NodeID,
		&task.SessionID, &task.Status, &task.CreatedAt, &task.StartedAt,
		&task.EndedAt, &result,
	)
	if err != nil {
		return nil, err
	}

	task.Result = result

	return &task, nil
}

func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	var result any
	if len(task.Result) > 0 {
		result = []byte(task.Result)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			result = EXCLUDED.result`,
		task.ID, task.FlowID, task.FlowVersionID, task.NodeID, task.SessionID,
		task.Status, task.CreatedAt, task.StartedAt, task.EndedAt, result,
	)
	if err != nil {
		return &persistence.TaskError{Op: "Save", TaskID: task.ID, Err: err}
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID string) (*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE id = $1", taskColumns)

	task, err := scanTask(r.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.TaskError{Op: "GetByID", TaskID: taskID, Err: persistence.ErrTaskNotFound}
		}

		return nil, &persistence.TaskError{Op: "GetByID", TaskID: taskID, Err: err}
	}

	return task, nil
}

func (r *TaskRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE session_id = $1 ORDER BY created_at", taskColumns)

	return r.list(ctx, "ListBySession", query, sessionID)
}

func (r *TaskRepository) ListByFlowBetween(ctx context.Context, flowID string, from, to time.Time) ([]*models.Task, error) {
	if flowID == "" {
		query := fmt.Sprintf(
			"SELECT %s FROM tasks WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at",
			taskColumns,
		)

		return r.list(ctx, "ListByFlowBetween", query, from.UTC(), to.UTC())
	}

	query := fmt.Sprintf(
		"SELECT %s FROM tasks WHERE flow_id = $1 AND created_at BETWEEN $2 AND $3 ORDER BY created_at",
		taskColumns,
	)

	return r.list(ctx, "ListByFlowBetween", query, flowID, from.UTC(), to.UTC())
}

func (r *TaskRepository) list(ctx context.Context, op, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &persistence.TaskError{Op: op, Err: err}
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, &persistence.TaskError{Op: op, Err: err}
		}

		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}
