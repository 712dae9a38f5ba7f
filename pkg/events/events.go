// Package events defines the event payloads exchanged with the external
// execution engine and emitted by the flow lifecycle.
package events

import (
	"encoding/json"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every flowdeck event; consumers filter on the event_type
// metadata key.
const Topic = "flowdeck.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// TaskTransitionEvent is produced by the engine for every task status
	// change of a running session.
	TaskTransitionEvent EventType = "task.transition"

	// Flow lifecycle events.
	FlowPublishedEvent EventType = "flow.published"
	FlowArchivedEvent  EventType = "flow.archived"
	FlowSubmittedEvent EventType = "flow.submitted"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps id, type and timestamp for an outgoing event.
func NewBaseEvent(eventType EventType, flowID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
	}
}

// TaskTransition reports one status change of one task. Each task's stream
// is strictly ordered; there is no ordering guarantee across tasks of the
// same session.
type TaskTransition struct {
	BaseEvent

	TaskID        string            `json:"task_id"`
	NodeID        string            `json:"node_id"`
	SessionID     string            `json:"session_id"`
	FlowVersionID string            `json:"flow_version_id"`
	Status        models.TaskStatus `json:"status"`
	Result        json.RawMessage   `json:"result,omitempty"`
}

func (e TaskTransition) GetType() EventType {
	return TaskTransitionEvent
}

// FlowPublished announces that a flow version became the active one.
type FlowPublished struct {
	BaseEvent

	FlowVersionID string `json:"flow_version_id"`
}

func (e FlowPublished) GetType() EventType {
	return FlowPublishedEvent
}

// FlowArchived announces that a previously active version was retired.
type FlowArchived struct {
	BaseEvent

	FlowVersionID string `json:"flow_version_id"`
}

func (e FlowArchived) GetType() EventType {
	return FlowArchivedEvent
}

// FlowSubmitted announces that a flow version was handed to the engine for
// execution.
type FlowSubmitted struct {
	BaseEvent

	FlowVersionID string `json:"flow_version_id"`
	SessionID     string `json:"session_id"`
}

func (e FlowSubmitted) GetType() EventType {
	return FlowSubmittedEvent
}
