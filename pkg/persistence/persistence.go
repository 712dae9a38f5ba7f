// Package persistence provides the storage abstraction for flows, action
// templates and tasks. This core never blocks on I/O itself; drivers behind
// these interfaces own that concern.
package persistence

import (
	"context"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// Persistence is the façade handed to services; each repository covers one
// aggregate.
type Persistence interface {
	FlowRepository() FlowRepository
	TemplateRepository() TemplateRepository
	TaskRepository() TaskRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListFlowsOptions filters and pages flow listings. Listings return one row
// per flow version.
type ListFlowsOptions struct {
	Limit     int
	Offset    int
	AccountID string
	FlowID    string
	Status    *models.FlowStatus
	SortBy    string
	SortOrder string
}

// FlowListResult is a page of flow versions.
type FlowListResult struct {
	Flows       []*models.Flow
	TotalCount  int64
	HasNextPage bool
}

// FlowRepository stores flow versions. A flow id groups many versions; the
// version id is the primary key.
type FlowRepository interface {
	ListFlows(ctx context.Context, opts ListFlowsOptions) (*FlowListResult, error)
	ListVersions(ctx context.Context, flowID string) ([]*models.Flow, error)
	GetByVersionID(ctx context.Context, versionID string) (*models.Flow, error)
	// GetPublished returns the active version of the flow, or
	// ErrPublishedFlowNotFound.
	GetPublished(ctx context.Context, flowID string) (*models.Flow, error)
	// Save upserts one version. Implementations reject the write with
	// ErrVersionConflict when the stored UpdatedAt has moved past the
	// caller's copy (optimistic concurrency on full graph snapshots).
	Save(ctx context.Context, flow *models.Flow) error
	// PublishVersion atomically marks the version active and archives every
	// other version of the same flow, keeping the one-active-version
	// invariant.
	PublishVersion(ctx context.Context, flowID, versionID string) error
	// MarkExecuted freezes a version after its first run.
	MarkExecuted(ctx context.Context, versionID string, at time.Time) error
	// Delete removes every version of the flow.
	Delete(ctx context.Context, flowID string) error
}

// TemplateRepository stores published action templates.
type TemplateRepository interface {
	Save(ctx context.Context, template *models.ActionTemplate) error
	GetByID(ctx context.Context, templateID string) (*models.ActionTemplate, error)
	// ListByAccount returns templates with team visibility owned by the
	// account.
	ListByAccount(ctx context.Context, accountID string) ([]*models.ActionTemplate, error)
	// ListMarketplace returns marketplace-visible templates across accounts.
	ListMarketplace(ctx context.Context) ([]*models.ActionTemplate, error)
	Delete(ctx context.Context, templateID string) error
}

// TaskRepository stores task execution records.
type TaskRepository interface {
	Save(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, taskID string) (*models.Task, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.Task, error)
	// ListByFlowBetween returns tasks for one flow created within [from, to].
	// An empty flow id matches every flow.
	ListByFlowBetween(ctx context.Context, flowID string, from, to time.Time) ([]*models.Task, error)
}
