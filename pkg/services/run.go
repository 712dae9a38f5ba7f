package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowdeck/flowdeck/pkg/engine"
	"github.com/flowdeck/flowdeck/pkg/eventbus"
	"github.com/flowdeck/flowdeck/pkg/events"
	"github.com/flowdeck/flowdeck/pkg/graph"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/version"
)

const maxSessionInputBytes = 1 << 20

// Run submits published flow versions to the external engine and reads run
// progress back. Submitting marks the version executed, which freezes it
// against further edits.
type Run struct {
	persistence persistence.Persistence
	engine      engine.Client
	builder     *graph.Builder
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewRun(
	logger *slog.Logger,
	persistence persistence.Persistence,
	versions *version.Registry,
	engineClient engine.Client,
	publisher eventbus.EventPublisher,
) *Run {
	return &Run{
		persistence: persistence,
		engine:      engineClient,
		builder:     graph.NewBuilder(versions),
		publisher:   publisher,
		logger:      logger.With("module", "run-service"),
	}
}

// RunFlow hands the flow's active version to the engine with the session
// input. The version is re-validated at the submit boundary; a stored flow
// that has drifted out of validity never reaches the engine.
func (r *Run) RunFlow(ctx context.Context, flowID string, input map[string]any) (*engine.SubmitResult, error) {
	flow, err := r.persistence.FlowRepository().GetPublished(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if input != nil {
		encoded, err := json.Marshal(input)
		if err != nil {
			return nil, NewValidationError("RunFlow", "INVALID_INPUT", err.Error(), ErrInvalidRequest)
		}

		if len(encoded) > maxSessionInputBytes {
			return nil, ErrSessionInputTooLarge
		}
	}

	if err := r.builder.ValidateForExecution(flow); err != nil {
		return nil, err
	}

	result, err := r.engine.SubmitFlow(ctx, engine.SubmitRequest{Flow: flow, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to submit flow: %w", err)
	}

	if err := r.persistence.FlowRepository().MarkExecuted(ctx, flow.VersionID, time.Now().UTC()); err != nil {
		// The run is already accepted; the freeze will land on the next
		// submit if this write failed transiently.
		r.logger.Error("Failed to mark version executed",
			"flow_version_id", flow.VersionID,
			"error", err)
	}

	if r.publisher != nil {
		submitted := events.FlowSubmitted{
			BaseEvent:     events.NewBaseEvent(events.FlowSubmittedEvent, flow.ID),
			FlowVersionID: flow.VersionID,
			SessionID:     result.SessionID,
		}
		if err := r.publisher.Publish(ctx, flow.ID, submitted); err != nil {
			r.logger.Error("Failed to publish flow.submitted event", "flow_id", flow.ID, "error", err)
		}
	}

	r.logger.Info("Submitted flow run",
		"flow_id", flow.ID,
		"flow_version_id", flow.VersionID,
		"session_id", result.SessionID)

	return result, nil
}

// SessionEvents returns the transition stream of one run.
func (r *Run) SessionEvents(ctx context.Context, sessionID string) ([]*events.TaskTransition, error) {
	return r.engine.FetchSessionEvents(ctx, sessionID)
}
