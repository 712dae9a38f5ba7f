// Package graph implements the workflow graph builder: node and edge
// mutations over flow versions, structural validation, and version
// snapshotting. Every mutation validates before committing and operates on a
// deep copy, so a rejected operation leaves the input flow untouched.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Structural mutation errors. The operation is rejected atomically; no
// partial node or edge insertion happens.
var (
	ErrDuplicateTrigger = errors.New("flow already has a trigger node")
	ErrUnknownNode      = errors.New("node not found in flow")
	ErrUnknownEdge      = errors.New("edge not found in flow")
	ErrCycle            = errors.New("connection would create a cycle")
	ErrVersionImmutable = errors.New("flow version is immutable; create a new version")
)

// ValidationError reports one failed validation rule with the field it
// applies to, so the builder UI can highlight the offending input.
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Rule, e.Message)
	}

	return fmt.Sprintf("%s (%s): %s", e.Field, e.Rule, e.Message)
}

// ValidationErrors aggregates every rule a flow failed.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}

	return "flow validation failed: " + strings.Join(messages, "; ")
}

// AsValidationErrors unwraps err into ValidationErrors when possible.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var validationErrors ValidationErrors

	ok := errors.As(err, &validationErrors)

	return validationErrors, ok
}

// IsValidationError reports whether err is a single or aggregated validation
// failure.
func IsValidationError(err error) bool {
	var single *ValidationError
	if errors.As(err, &single) {
		return true
	}

	var many ValidationErrors

	return errors.As(err, &many)
}
