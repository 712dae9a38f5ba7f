package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

const flowColumns = `version_id, flow_id, name, description, active, status,
	flow_version, interface_version, nodes, edges, variables,
	owner_account_id, created_at, updated_at, published_at, executed_at`

// FlowRepository stores flow versions with the graph as jsonb columns; the
// graph is always read and written as one snapshot.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

func scanFlow(row interface{ Scan(...any) error }) (*models.Flow, error) {
	var (
		flow      models.Flow
		nodes     []byte
		edges     []byte
		variables []byte
	)

	err := row.Scan(
		&flow.VersionID, &flow.ID, &flow.Name, &flow.Description, &flow.Active,
		&flow.Status, &flow.FlowVersion, &flow.InterfaceVersion, &nodes, &edges,
		&variables, &flow.OwnerAccountID, &flow.CreatedAt, &flow.UpdatedAt,
		&flow.PublishedAt, &flow.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodes, &flow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes: %w", err)
	}

	if err := json.Unmarshal(edges, &flow.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode edges: %w", err)
	}

	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &flow.Variables); err != nil {
			return nil, fmt.Errorf("failed to decode variables: %w", err)
		}
	}

	return &flow, nil
}

func encodeFlow(flow *models.Flow) (nodes, edges, variables []byte, err error) {
	nodes, err = json.Marshal(flow.Nodes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode nodes: %w", err)
	}

	edges, err = json.Marshal(flow.Edges)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode edges: %w", err)
	}

	if flow.Variables != nil {
		variables, err = json.Marshal(flow.Variables)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode variables: %w", err)
		}
	}

	return nodes, edges, variables, nil
}

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

	if opts.SortOrder != "asc" && opts.SortOrder != "desc" {
		return nil, fmt.Errorf("invalid sort order: %s", opts.SortOrder)
	}

	var (
		conditions []string
		args       []any
	)

	if opts.AccountID != "" {
		args = append(args, opts.AccountID)
		conditions = append(conditions, fmt.Sprintf("owner_account_id = $%d", len(args)))
	}

	if opts.FlowID != "" {
		args = append(args, opts.FlowID)
		conditions = append(conditions, fmt.Sprintf("flow_id = $%d", len(args)))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flows"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count flows: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		"SELECT %s FROM flows%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		flowColumns, where, opts.SortBy, strings.ToUpper(opts.SortOrder), len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flows: %w", err)
	}

	return &persistence.FlowListResult{
		Flows:       flows,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(flows)) < total,
	}, nil
}

func (r *FlowRepository) ListVersions(ctx context.Context, flowID string) ([]*models.Flow, error) {
	query := fmt.Sprintf("SELECT %s FROM flows WHERE flow_id = $1 ORDER BY created_at DESC", flowColumns)

	rows, err := r.db.QueryContext(ctx, query, flowID)
	if err != nil {
		return nil, persistence.NewFlowError("ListVersions", flowID, err)
	}
	defer func() { _ = rows.Close() }()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, persistence.NewFlowError("ListVersions", flowID, err)
		}

		flows = append(flows, flow)
	}

	return flows, rows.Err()
}

func (r *FlowRepository) GetByVersionID(ctx context.Context, versionID string) (*models.Flow, error) {
	query := fmt.Sprintf("SELECT %s FROM flows WHERE version_id = $1", flowColumns)

	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, versionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("GetByVersionID", versionID, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetByVersionID", versionID, err)
	}

	return flow, nil
}

func (r *FlowRepository) GetPublished(ctx context.Context, flowID string) (*models.Flow, error) {
	query := fmt.Sprintf("SELECT %s FROM flows WHERE flow_id = $1 AND active", flowColumns)

	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, flowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("GetPublished", flowID, persistence.ErrPublishedFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetPublished", flowID, err)
	}

	return flow, nil
}

// Save upserts one version. The update is guarded on the caller's UpdatedAt
// so a concurrently modified snapshot is rejected rather than overwritten.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	nodes, edges, variables, err := encodeFlow(flow)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	readUpdatedAt := flow.UpdatedAt
	flow.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO flows (`+flowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (version_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			status = EXCLUDED.status,
			flow_version = EXCLUDED.flow_version,
			interface_version = EXCLUDED.interface_version,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			executed_at = EXCLUDED.executed_at
		WHERE flows.updated_at <= $17`,
		flow.VersionID, flow.ID, flow.Name, flow.Description, flow.Active,
		flow.Status, flow.FlowVersion, flow.InterfaceVersion, nodes, edges,
		variables, flow.OwnerAccountID, flow.CreatedAt, flow.UpdatedAt,
		flow.PublishedAt, flow.ExecutedAt, readUpdatedAt,
	)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Save", flow.ID, persistence.ErrVersionConflict)
	}

	return nil
}

// PublishVersion atomically makes one version active and archives the rest.
func (r *FlowRepository) PublishVersion(ctx context.Context, flowID, versionID string) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewFlowError("PublishVersion", flowID, err)
	}

	now := time.Now().UTC()

	_, err = transaction.ExecContext(ctx, `
		UPDATE flows SET active = FALSE, status = 'archived', updated_at = $2
		WHERE flow_id = $1 AND active`,
		flowID, now)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewFlowError("PublishVersion", flowID, err)
	}

	result, err := transaction.ExecContext(ctx, `
		UPDATE flows SET active = TRUE, status = 'published', published_at = $3, updated_at = $3
		WHERE flow_id = $1 AND version_id = $2`,
		flowID, versionID, now)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewFlowError("PublishVersion", flowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil || affected == 0 {
		_ = transaction.Rollback()

		if err == nil {
			err = persistence.ErrFlowNotFound
		}

		return persistence.NewFlowError("PublishVersion", flowID, err)
	}

	if err := transaction.Commit(); err != nil {
		return persistence.NewFlowError("PublishVersion", flowID, err)
	}

	return nil
}

func (r *FlowRepository) MarkExecuted(ctx context.Context, versionID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE flows SET executed_at = $2, updated_at = NOW()
		WHERE version_id = $1 AND executed_at IS NULL`,
		versionID, at.UTC())
	if err != nil {
		return persistence.NewFlowError("MarkExecuted", versionID, err)
	}

	return nil
}

func (r *FlowRepository) Delete(ctx context.Context, flowID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE flow_id = $1", flowID)
	if err != nil {
		return persistence.NewFlowError("Delete", flowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Delete", flowID, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Delete", flowID, persistence.ErrFlowNotFound)
	}

	return nil
}
