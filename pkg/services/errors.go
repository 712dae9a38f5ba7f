// Package services implements the application operations behind the HTTP
// surface: flow editing, publishing, template management and task tracking.
package services

import (
	"errors"
	"fmt"

	"github.com/flowdeck/flowdeck/pkg/engine"
	"github.com/flowdeck/flowdeck/pkg/graph"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

// Business logic errors that map to 4xx responses.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrFlowNil              = errors.New("flow cannot be nil")
	ErrFlowNameRequired     = errors.New("flow name is required")
	ErrNodesRequired        = errors.New("flow must have at least one node")
	ErrVisibilityRequired   = errors.New("template requires team or marketplace visibility")
	ErrUnknownTransition    = errors.New("unknown task status")
	ErrChartRangeInvalid    = errors.New("chart range start must not be after end")
	ErrSessionInputTooLarge = errors.New("session input exceeds the size limit")

	// Business logic conflicts (409 Conflict).
	ErrVersionImmutable   = errors.New("flow version is immutable")
	ErrVersionConflict    = persistence.ErrVersionConflict
	ErrNotTemplateOwner   = errors.New("account does not own the template")
	ErrFlowNotPublished   = errors.New("flow has no published version")
	ErrAlreadyPublished   = errors.New("flow version is already published")
	ErrTransitionConflict = errors.New("task transition conflicts with recorded state")
)

// Not-found errors re-exported so callers depend on one package.
var (
	ErrFlowNotFound     = persistence.ErrFlowNotFound
	ErrTemplateNotFound = persistence.ErrTemplateNotFound
	ErrTaskNotFound     = persistence.ErrTaskNotFound
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // operation name
	Code    string // error code for API responses
	Message string // human-readable message
	Err     error  // underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: err}
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrVisibilityRequired) ||
		errors.Is(err, ErrUnknownTransition) ||
		errors.Is(err, ErrChartRangeInvalid) ||
		errors.Is(err, ErrSessionInputTooLarge) ||
		errors.Is(err, graph.ErrCycle) ||
		graph.IsValidationError(err)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrVersionImmutable) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrNotTemplateOwner) ||
		errors.Is(err, ErrFlowNotPublished) ||
		errors.Is(err, ErrAlreadyPublished) ||
		errors.Is(err, ErrTransitionConflict) ||
		errors.Is(err, graph.ErrVersionImmutable) ||
		errors.Is(err, graph.ErrDuplicateTrigger)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, persistence.ErrPublishedFlowNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, graph.ErrUnknownNode) ||
		errors.Is(err, graph.ErrUnknownEdge) ||
		errors.Is(err, engine.ErrSessionNotFound) ||
		errors.Is(err, engine.ErrEventNotFound)
}
