package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/flowdeck/flowdeck/pkg/graph"
	"github.com/flowdeck/flowdeck/pkg/importer"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/registry"
	"github.com/flowdeck/flowdeck/pkg/version"
)

// Flow is the flow editing service. Every graph edit runs validate-then-
// commit: the builder produces a new snapshot, the snapshot is checked, and
// only then does it reach the repository. A failed edit leaves the stored
// flow untouched.
type Flow struct {
	persistence persistence.Persistence
	builder     *graph.Builder
	catalog     *registry.Catalog
	importer    *importer.Importer
	logger      *slog.Logger
}

func NewFlow(
	logger *slog.Logger,
	persistence persistence.Persistence,
	versions *version.Registry,
	catalog *registry.Catalog,
) *Flow {
	return &Flow{
		persistence: persistence,
		builder:     graph.NewBuilder(versions),
		catalog:     catalog,
		importer:    importer.New(logger, versions),
		logger:      logger.With("module", "flow-service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := f.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListFlowsRequest contains options for listing flow versions.
type ListFlowsRequest struct {
	Limit     int
	Offset    int
	AccountID string
	FlowID    string
	Status    *models.FlowStatus

	SortBy    string
	SortOrder string
}

// ListFlowsResponse contains the result of listing flow versions.
type ListFlowsResponse struct {
	Flows       []*models.Flow `json:"flows"`
	TotalCount  int64          `json:"total_count"`
	HasNextPage bool           `json:"has_next_page"`
}

// ListFlows retrieves flow versions with filtering, sorting and pagination.
func (f *Flow) ListFlows(ctx context.Context, req ListFlowsRequest) (*ListFlowsResponse, error) {
	if err := f.validateListFlowsRequest(&req); err != nil {
		return nil, err
	}

	result, err := f.persistence.FlowRepository().ListFlows(ctx, persistence.ListFlowsOptions{
		Limit:     req.Limit,
		Offset:    req.Offset,
		AccountID: req.AccountID,
		FlowID:    req.FlowID,
		Status:    req.Status,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return &ListFlowsResponse{
		Flows:       result.Flows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (f *Flow) validateListFlowsRequest(req *ListFlowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}
	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"ListFlows",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field %q, allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidRequest,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"ListFlows",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order %q, allowed: asc, desc", req.SortOrder),
			ErrInvalidRequest,
		)
	}

	if req.Status != nil && !slices.Contains([]models.FlowStatus{
		models.FlowStatusDraft,
		models.FlowStatusPublished,
		models.FlowStatusArchived,
	}, *req.Status) {
		return NewValidationError(
			"ListFlows",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status %q", *req.Status),
			ErrInvalidRequest,
		)
	}

	return nil
}

// ListVersions returns every version of one flow, newest first.
func (f *Flow) ListVersions(ctx context.Context, flowID string) ([]*models.Flow, error) {
	return f.persistence.FlowRepository().ListVersions(ctx, flowID)
}

// FetchVersion retrieves one flow version by its version id.
func (f *Flow) FetchVersion(ctx context.Context, versionID string) (*models.Flow, error) {
	return f.persistence.FlowRepository().GetByVersionID(ctx, versionID)
}

// Create starts a new flow with an empty draft version.
func (f *Flow) Create(ctx context.Context, name, description, ownerAccountID string) (*models.Flow, error) {
	flow, err := f.builder.CreateFlow(name, description)
	if err != nil {
		return nil, err
	}

	flow.OwnerAccountID = ownerAccountID

	if err := f.persistence.FlowRepository().Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	f.logger.Info("Created flow", "flow_id", flow.ID, "flow_version_id", flow.VersionID)

	return flow, nil
}

// UpdateMetadata renames a draft version and updates its description.
func (f *Flow) UpdateMetadata(ctx context.Context, versionID, name, description string) (*models.Flow, error) {
	return f.edit(ctx, versionID, func(flow *models.Flow) (*models.Flow, error) {
		if flow.Immutable() {
			return nil, ErrVersionImmutable
		}

		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &graph.ValidationError{Field: "name", Rule: "required", Message: "flow name cannot be empty"}
		}

		next := flow.Clone()
		next.Name = name
		next.Description = strings.TrimSpace(description)

		return next, nil
	})
}

// Delete removes every version of the flow.
func (f *Flow) Delete(ctx context.Context, flowID string) error {
	if err := f.persistence.FlowRepository().Delete(ctx, flowID); err != nil {
		return err
	}

	f.logger.Info("Deleted flow", "flow_id", flowID)

	return nil
}

// AddNode places a node of the catalog type on the draft at the position.
func (f *Flow) AddNode(ctx context.Context, versionID, nodeType string, pos models.Position) (*models.Flow, error) {
	definition, err := f.catalog.Definition(nodeType)
	if err != nil {
		return nil, NewValidationError("AddNode", "UNKNOWN_NODE_TYPE", err.Error(), ErrInvalidRequest)
	}

	return f.edit(ctx, versionID, func(flow *models.Flow) (*models.Flow, error) {
		return f.builder.AddNode(flow, definition.NewNode(), pos)
	})
}

// AddTemplateNode instantiates an action template onto the draft. The
// template's definition is deep-copied and gets a fresh id within the flow.
func (f *Flow) AddTemplateNode(ctx context.Context, versionID, templateID string, pos models.Position) (*models.Flow, error) {
	template, err := f.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	return f.edit(ctx, versionID, func(flow *models.Flow) (*models.Flow, error) {
		return f.builder.AddNode(flow, template.Instantiate(), pos)
	})
}

// RemoveNode deletes the node and its edges from the draft.
func (f *Flow) RemoveNode(ctx context.Context, versionID, nodeID string) (*models.Flow, error) {
	return f.edit(ctx, versionID, func(flow *models.Flow) (*models.Flow, error) {
		return f.builder.RemoveNode(flow, nodeID)
	})
}

// Connect adds an edge between two nodes of the draft.
func (f *Flow) Connect(ctx context.Context, versionID, sourceID, targetID string, handles graph.Handles) (*models.Flow, error) {
	return f.edit(ctx, versionID, func(flow *models.Flow) (*models.Flow, error) {
		return f.builder.Connect(flow, sourceID, targetID, handles)
	})
}

// Disconnect removes an edge from the draft.
func (f *Flow) Disconnect(ctx context.Context, versionID, edgeID string) (*models.Flow, error) {
	return f.edit(ctx, versionID, func(flow *models.Flow) (*models.Flow, error) {
		return f.builder.Disconnect(flow, edgeID)
	})
}

// UpdateNodeConfig replaces the node's config after checking it against the
// node type's schema.
func (f *Flow) UpdateNodeConfig(ctx context.Context, versionID, nodeID string, config map[string]any) (*models.Flow, error) {
	return f.edit(ctx, versionID, func(flow *models.Flow) (*models.Flow, error) {
		if flow.Immutable() {
			return nil, ErrVersionImmutable
		}

		node := flow.FindNode(nodeID)
		if node == nil {
			return nil, fmt.Errorf("update config of %q: %w", nodeID, graph.ErrUnknownNode)
		}

		if err := f.catalog.Validate(node.Type, config); err != nil {
			return nil, NewValidationError("UpdateNodeConfig", "INVALID_CONFIG", err.Error(), ErrInvalidRequest)
		}

		next := flow.Clone()
		next.FindNode(nodeID).Config = models.CloneConfig(config)

		return next, nil
	})
}

// CreateVersion snapshots a version into a fresh editable draft.
func (f *Flow) CreateVersion(ctx context.Context, versionID string) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().GetByVersionID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	draft := f.builder.CreateVersion(flow)

	if err := f.persistence.FlowRepository().Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save new version: %w", err)
	}

	f.logger.Info("Created flow version",
		"flow_id", draft.ID,
		"from_version_id", versionID,
		"flow_version_id", draft.VersionID)

	return draft, nil
}

// Import decodes an exported flow document and stores it as a new draft
// owned by the account.
func (f *Flow) Import(ctx context.Context, data []byte, ownerAccountID string) (*models.Flow, error) {
	flow, err := f.importer.Import(data, ownerAccountID)
	if err != nil {
		return nil, err
	}

	if err := f.persistence.FlowRepository().Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save imported flow: %w", err)
	}

	return flow, nil
}

// Export serializes one flow version as a portable document.
func (f *Flow) Export(ctx context.Context, versionID string) ([]byte, error) {
	flow, err := f.persistence.FlowRepository().GetByVersionID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow: %w", err)
	}

	return data, nil
}

// edit loads the version, applies the mutation and commits the resulting
// snapshot. The repository rejects the commit when the stored version moved
// since the load.
func (f *Flow) edit(ctx context.Context, versionID string, mutate func(*models.Flow) (*models.Flow, error)) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().GetByVersionID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	next, err := mutate(flow)
	if err != nil {
		return nil, err
	}

	if err := f.persistence.FlowRepository().Save(ctx, next); err != nil {
		return nil, err
	}

	return next, nil
}
