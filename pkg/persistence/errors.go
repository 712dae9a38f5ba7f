package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types every driver returns.
var (
	// ErrFlowNotFound indicates no flow version matched the identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrPublishedFlowNotFound indicates the flow has no active version.
	ErrPublishedFlowNotFound = errors.New("published flow version not found")

	// ErrVersionConflict indicates the stored version moved since the caller
	// last read it; the caller should re-read and retry.
	ErrVersionConflict = errors.New("flow version was modified concurrently")

	// ErrTemplateNotFound indicates no action template matched the identifier.
	ErrTemplateNotFound = errors.New("action template not found")

	// ErrTaskNotFound indicates no task matched the identifier.
	ErrTaskNotFound = errors.New("task not found")
)

// FlowError wraps flow storage failures with operation context.
type FlowError struct {
	Op     string // operation being performed ("Save", "GetByVersionID", ...)
	FlowID string
	Err    error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{Op: op, FlowID: flowID, Err: err}
}

// TemplateError wraps template storage failures with operation context.
type TemplateError struct {
	Op         string
	TemplateID string
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s failed for template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// TaskError wraps task storage failures with operation context.
type TaskError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsFlowNotFound checks for flow-not-found failures across drivers.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsVersionConflict checks for optimistic-concurrency rejections.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsTemplateNotFound checks for template-not-found failures across drivers.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsTaskNotFound checks for task-not-found failures across drivers.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
