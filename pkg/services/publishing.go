package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowdeck/flowdeck/pkg/eventbus"
	"github.com/flowdeck/flowdeck/pkg/events"
	"github.com/flowdeck/flowdeck/pkg/graph"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/version"
)

// Publishing moves flow versions through the draft, published and archived
// lifecycle. At most one version of a flow is ever active; publishing a new
// one archives the previous active version in the same operation.
type Publishing struct {
	persistence persistence.Persistence
	builder     *graph.Builder
	versions    *version.Registry
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewPublishing(
	logger *slog.Logger,
	persistence persistence.Persistence,
	versions *version.Registry,
	publisher eventbus.EventPublisher,
) *Publishing {
	return &Publishing{
		persistence: persistence,
		builder:     graph.NewBuilder(versions),
		versions:    versions,
		publisher:   publisher,
		logger:      logger.With("module", "publishing-service"),
	}
}

// Publish validates the version and makes it the flow's active one. The
// graph must pass full execution validation; a flow that cannot run cannot
// be published.
func (p *Publishing) Publish(ctx context.Context, versionID string) (*models.Flow, error) {
	flow, err := p.persistence.FlowRepository().GetByVersionID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if flow.Status == models.FlowStatusPublished {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrAlreadyPublished)
	}

	if err := p.validateForPublishing(flow); err != nil {
		return nil, err
	}

	previous, err := p.persistence.FlowRepository().GetPublished(ctx, flow.ID)
	if err != nil && !errors.Is(err, persistence.ErrPublishedFlowNotFound) {
		return nil, fmt.Errorf("failed to look up active version: %w", err)
	}

	if err := p.persistence.FlowRepository().PublishVersion(ctx, flow.ID, versionID); err != nil {
		return nil, fmt.Errorf("failed to publish version: %w", err)
	}

	p.logger.Info("Published flow version", "flow_id", flow.ID, "flow_version_id", versionID)

	if p.publisher != nil {
		published := events.FlowPublished{
			BaseEvent:     events.NewBaseEvent(events.FlowPublishedEvent, flow.ID),
			FlowVersionID: versionID,
		}
		if err := p.publisher.Publish(ctx, flow.ID, published); err != nil {
			p.logger.Error("Failed to publish flow.published event", "flow_id", flow.ID, "error", err)
		}

		if previous != nil && previous.VersionID != versionID {
			archived := events.FlowArchived{
				BaseEvent:     events.NewBaseEvent(events.FlowArchivedEvent, flow.ID),
				FlowVersionID: previous.VersionID,
			}
			if err := p.publisher.Publish(ctx, flow.ID, archived); err != nil {
				p.logger.Error("Failed to publish flow.archived event", "flow_id", flow.ID, "error", err)
			}
		}
	}

	return p.persistence.FlowRepository().GetByVersionID(ctx, versionID)
}

// GetPublished returns the flow's active version.
func (p *Publishing) GetPublished(ctx context.Context, flowID string) (*models.Flow, error) {
	return p.persistence.FlowRepository().GetPublished(ctx, flowID)
}

// CreateDraftFromPublished snapshots the active version into a new editable
// draft.
func (p *Publishing) CreateDraftFromPublished(ctx context.Context, flowID string) (*models.Flow, error) {
	published, err := p.persistence.FlowRepository().GetPublished(ctx, flowID)
	if err != nil {
		return nil, err
	}

	draft := p.builder.CreateVersion(published)

	if err := p.persistence.FlowRepository().Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	return draft, nil
}

func (p *Publishing) validateForPublishing(flow *models.Flow) error {
	if flow == nil {
		return ErrFlowNil
	}

	if flow.Name == "" {
		return ErrFlowNameRequired
	}

	if len(flow.Nodes) == 0 {
		return ErrNodesRequired
	}

	if err := p.versions.CheckFlow(flow); err != nil {
		return fmt.Errorf("flow is incompatible with this server: %w", err)
	}

	return p.builder.ValidateForExecution(flow)
}
