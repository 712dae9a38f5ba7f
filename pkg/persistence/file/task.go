package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

// TaskRepository stores one JSON document per task under
// <root>/tasks/<task_id>.json.
type TaskRepository struct {
	root string
}

func NewTaskRepository(root string) *TaskRepository {
	return &TaskRepository{root: root}
}

func (r *TaskRepository) dir() string {
	return filepath.Join(r.root, "tasks")
}

func (r *TaskRepository) path(taskID string) string {
	return filepath.Join(r.dir(), taskID+".json")
}

func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	if err := os.MkdirAll(r.dir(), 0o755); err != nil {
		return &persistence.TaskError{Op: "Save", TaskID: task.ID, Err: err}
	}

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return &persistence.TaskError{Op: "Save", TaskID: task.ID, Err: err}
	}

	if err := os.WriteFile(r.path(task.ID), data, 0o644); err != nil {
		return &persistence.TaskError{Op: "Save", TaskID: task.ID, Err: err}
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID string) (*models.Task, error) {
	data, err := os.ReadFile(r.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.TaskError{Op: "GetByID", TaskID: taskID, Err: persistence.ErrTaskNotFound}
		}

		return nil, &persistence.TaskError{Op: "GetByID", TaskID: taskID, Err: err}
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, &persistence.TaskError{Op: "GetByID", TaskID: taskID, Err: err}
	}

	return &task, nil
}

func (r *TaskRepository) loadAll() ([]*models.Task, error) {
	if _, err := os.Stat(r.dir()); os.IsNotExist(err) {
		return []*models.Task{}, nil
	}

	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list task files: %w", err)
	}

	taskList := make([]*models.Task, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		data, err := fs.ReadFile(root, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read task file %s: %w", name, err)
		}

		var task models.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("failed to decode task file %s: %w", name, err)
		}

		taskList = append(taskList, &task)
	}

	sort.SliceStable(taskList, func(i, j int) bool {
		return taskList[i].CreatedAt.Before(taskList[j].CreatedAt)
	})

	return taskList, nil
}

func (r *TaskRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Task, error) {
	taskList, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Task, 0)

	for _, task := range taskList {
		if task.SessionID == sessionID {
			matched = append(matched, task)
		}
	}

	return matched, nil
}

func (r *TaskRepository) ListByFlowBetween(ctx context.Context, flowID string, from, to time.Time) ([]*models.Task, error) {
	taskList, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Task, 0)

	for _, task := range taskList {
		if flowID != "" && task.FlowID != flowID {
			continue
		}

		if task.CreatedAt.Before(from) || task.CreatedAt.After(to) {
			continue
		}

		matched = append(matched, task)
	}

	return matched, nil
}
