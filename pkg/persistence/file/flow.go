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

// FlowRepository stores one JSON document per flow version under
// <root>/flows/<version_id>.json.
type FlowRepository struct {
	root string
}

func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{root: root}
}

func (r *FlowRepository) dir() string {
	return filepath.Join(r.root, "flows")
}

func (r *FlowRepository) path(versionID string) string {
	return filepath.Join(r.dir(), versionID+".json")
}

func (r *FlowRepository) loadAll() ([]*models.Flow, error) {
	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list flow files: %w", err)
	}

	flows := make([]*models.Flow, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		data, err := fs.ReadFile(root, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read flow file %s: %w", name, err)
		}

		var flow models.Flow
		if err := json.Unmarshal(data, &flow); err != nil {
			return nil, fmt.Errorf("failed to decode flow file %s: %w", name, err)
		}

		flows = append(flows, &flow)
	}

	return flows, nil
}

// ListFlows returns paginated and filtered flow versions with in-memory
// sorting, mirroring the database driver's contract.
func (r *FlowRepository) ListFlows(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{"created_at": true, "updated_at": true, "name": true}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("invalid sort field: %s", opts.SortBy)
	}

	if _, err := os.Stat(r.dir()); os.IsNotExist(err) {
		return &persistence.FlowListResult{Flows: []*models.Flow{}}, nil
	}

	flows, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	filtered := flows[:0]

	for _, flow := range flows {
		if opts.AccountID != "" && flow.OwnerAccountID != opts.AccountID {
			continue
		}

		if opts.FlowID != "" && flow.ID != opts.FlowID {
			continue
		}

		if opts.Status != nil && flow.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, flow)
	}

	sortFlows(filtered, opts.SortBy, opts.SortOrder)

	total := int64(len(filtered))

	start := opts.Offset
	if start > len(filtered) {
		start = len(filtered)
	}

	end := start + opts.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return &persistence.FlowListResult{
		Flows:       filtered[start:end],
		TotalCount:  total,
		HasNextPage: int64(end) < total,
	}, nil
}

func sortFlows(flows []*models.Flow, sortBy, sortOrder string) {
	sort.SliceStable(flows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "name":
			less = flows[i].Name < flows[j].Name
		case "updated_at":
			less = flows[i].UpdatedAt.Before(flows[j].UpdatedAt)
		default:
			less = flows[i].CreatedAt.Before(flows[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// ListVersions returns every version of a flow, newest first.
func (r *FlowRepository) ListVersions(ctx context.Context, flowID string) ([]*models.Flow, error) {
	if _, err := os.Stat(r.dir()); os.IsNotExist(err) {
		return []*models.Flow{}, nil
	}

	flows, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	versions := make([]*models.Flow, 0)

	for _, flow := range flows {
		if flow.ID == flowID {
			versions = append(versions, flow)
		}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})

	return versions, nil
}

// GetByVersionID loads one flow version.
func (r *FlowRepository) GetByVersionID(ctx context.Context, versionID string) (*models.Flow, error) {
	data, err := os.ReadFile(r.path(versionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewFlowError("GetByVersionID", versionID, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetByVersionID", versionID, err)
	}

	var flow models.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, persistence.NewFlowError("GetByVersionID", versionID, err)
	}

	return &flow, nil
}

// GetPublished returns the active version of the flow.
func (r *FlowRepository) GetPublished(ctx context.Context, flowID string) (*models.Flow, error) {
	versions, err := r.ListVersions(ctx, flowID)
	if err != nil {
		return nil, err
	}

	for _, flow := range versions {
		if flow.Active {
			return flow, nil
		}
	}

	return nil, persistence.NewFlowError("GetPublished", flowID, persistence.ErrPublishedFlowNotFound)
}

// Save upserts one flow version, rejecting stale snapshots. The stored
// UpdatedAt is bumped on every successful write.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	stored, err := r.GetByVersionID(ctx, flow.VersionID)
	if err != nil && !persistence.IsFlowNotFound(err) {
		return err
	}

	if stored != nil && stored.UpdatedAt.After(flow.UpdatedAt) {
		return persistence.NewFlowError("Save", flow.ID, persistence.ErrVersionConflict)
	}

	flow.UpdatedAt = time.Now().UTC()

	return r.write(flow)
}

func (r *FlowRepository) write(flow *models.Flow) error {
	if err := os.MkdirAll(r.dir(), 0o755); err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	if err := os.WriteFile(r.path(flow.VersionID), data, 0o644); err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

// PublishVersion activates one version and archives the rest of the flow.
func (r *FlowRepository) PublishVersion(ctx context.Context, flowID, versionID string) error {
	versions, err := r.ListVersions(ctx, flowID)
	if err != nil {
		return err
	}

	target := false

	for _, flow := range versions {
		if flow.VersionID == versionID {
			target = true
		}
	}

	if !target {
		return persistence.NewFlowError("PublishVersion", flowID, persistence.ErrFlowNotFound)
	}

	now := time.Now().UTC()

	for _, flow := range versions {
		if flow.VersionID == versionID {
			flow.Active = true
			flow.Status = models.FlowStatusPublished
			flow.PublishedAt = &now
		} else if flow.Active || flow.Status == models.FlowStatusPublished {
			flow.Active = false
			flow.Status = models.FlowStatusArchived
		} else {
			continue
		}

		flow.UpdatedAt = now

		if err := r.write(flow); err != nil {
			return err
		}
	}

	return nil
}

// MarkExecuted freezes the version after its first run.
func (r *FlowRepository) MarkExecuted(ctx context.Context, versionID string, at time.Time) error {
	flow, err := r.GetByVersionID(ctx, versionID)
	if err != nil {
		return err
	}

	if flow.ExecutedAt != nil {
		return nil
	}

	at = at.UTC()
	flow.ExecutedAt = &at
	flow.UpdatedAt = time.Now().UTC()

	return r.write(flow)
}

// Delete removes every version of the flow.
func (r *FlowRepository) Delete(ctx context.Context, flowID string) error {
	versions, err := r.ListVersions(ctx, flowID)
	if err != nil {
		return err
	}

	if len(versions) == 0 {
		return persistence.NewFlowError("Delete", flowID, persistence.ErrFlowNotFound)
	}

	for _, flow := range versions {
		if err := os.Remove(r.path(flow.VersionID)); err != nil && !os.IsNotExist(err) {
			return persistence.NewFlowError("Delete", flowID, err)
		}
	}

	return nil
}
