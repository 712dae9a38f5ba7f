package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"tasks", "action_templates", "flows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowdeck_test"),
			postgres.WithUsername("flowdeck"),
			postgres.WithPassword("flowdeck"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func testFlow(name string) *models.Flow {
	now := time.Now().UTC().Truncate(time.Microsecond)

	return &models.Flow{
		ID:               uuid.New().String(),
		VersionID:        uuid.New().String(),
		Name:             name,
		Status:           models.FlowStatusDraft,
		FlowVersion:      "0.0.1",
		InterfaceVersion: "1.0.0",
		Nodes: []*models.Node{
			{
				ID:      "webhook",
				Type:    models.NodeTypeTriggerWebhook,
				Label:   "Webhook",
				Trigger: true,
				Config:  map[string]any{"path": "/hook", "method": "POST"},
			},
			{
				ID:     "fetch",
				Type:   models.NodeTypeHTTPRequest,
				Label:  "Fetch",
				Config: map[string]any{"url": "https://api.example.com"},
			},
		},
		Edges: []*models.Edge{
			{ID: uuid.New().String(), Source: "webhook", Target: "fetch"},
		},
		Variables:      map[string]any{"retries": float64(3)},
		OwnerAccountID: "acct-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"flows", "action_templates", "tasks", "schema_migrations"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestFlowRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	flow := testFlow("Order sync")
	require.NoError(t, repo.Save(ctx, flow))

	stored, err := repo.GetByVersionID(ctx, flow.VersionID)
	require.NoError(t, err)
	assert.Equal(t, flow.ID, stored.ID)
	assert.Equal(t, "Order sync", stored.Name)
	require.Len(t, stored.Nodes, 2)
	assert.Equal(t, "/hook", stored.Nodes[0].Config["path"])
	require.Len(t, stored.Edges, 1)
	assert.Equal(t, "webhook", stored.Edges[0].Source)
	assert.Equal(t, float64(3), stored.Variables["retries"])
}

func TestFlowRepository_SaveConflictOnStaleSnapshot(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	flow := testFlow("Order sync")
	require.NoError(t, repo.Save(ctx, flow))

	stale := flow.Clone()
	stale.UpdatedAt = flow.UpdatedAt.Add(-time.Hour)
	stale.Name = "Renamed"

	err := repo.Save(ctx, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)
}

func TestFlowRepository_PublishVersionKeepsOneActive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	v1 := testFlow("Order sync")
	v2 := v1.Clone()
	v2.VersionID = uuid.New().String()
	v2.FlowVersion = "0.0.2"

	require.NoError(t, repo.Save(ctx, v1))
	require.NoError(t, repo.Save(ctx, v2))

	require.NoError(t, repo.PublishVersion(ctx, v1.ID, v1.VersionID))
	require.NoError(t, repo.PublishVersion(ctx, v1.ID, v2.VersionID))

	published, err := repo.GetPublished(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.VersionID, published.VersionID)
	require.NotNil(t, published.PublishedAt)

	archived, err := repo.GetByVersionID(ctx, v1.VersionID)
	require.NoError(t, err)
	assert.False(t, archived.Active)
	assert.Equal(t, models.FlowStatusArchived, archived.Status)
}

func TestFlowRepository_PublishUnknownVersion(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	flow := testFlow("Order sync")
	require.NoError(t, repo.Save(ctx, flow))

	err := repo.PublishVersion(ctx, flow.ID, uuid.New().String())
	require.Error(t, err)
}

func TestFlowRepository_MarkExecutedOnce(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	flow := testFlow("Order sync")
	require.NoError(t, repo.Save(ctx, flow))

	first := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.MarkExecuted(ctx, flow.VersionID, first))
	require.NoError(t, repo.MarkExecuted(ctx, flow.VersionID, first.Add(time.Hour)))

	stored, err := repo.GetByVersionID(ctx, flow.VersionID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExecutedAt)
	assert.WithinDuration(t, first, *stored.ExecutedAt, time.Millisecond)
}

func TestFlowRepository_ListFlowsPagination(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, repo.Save(ctx, testFlow(name)))
	}

	result, err := repo.ListFlows(ctx, persistence.ListFlowsOptions{
		AccountID: "acct-1",
		SortBy:    "name",
		SortOrder: "asc",
		Limit:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalCount)
	assert.True(t, result.HasNextPage)
	require.Len(t, result.Flows, 2)
	assert.Equal(t, "alpha", result.Flows[0].Name)
}

func TestFlowRepository_DeleteAllVersions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	v1 := testFlow("Order sync")
	v2 := v1.Clone()
	v2.VersionID = uuid.New().String()

	require.NoError(t, repo.Save(ctx, v1))
	require.NoError(t, repo.Save(ctx, v2))
	require.NoError(t, repo.Delete(ctx, v1.ID))

	versions, err := repo.ListVersions(ctx, v1.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestTemplateRepository_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.TemplateRepository()

	now := time.Now().UTC().Truncate(time.Microsecond)
	template := &models.ActionTemplate{
		ID: uuid.New().String(),
		Definition: models.Node{
			ID:     "fetch",
			Type:   models.NodeTypeHTTPRequest,
			Label:  "Fetch orders",
			Config: map[string]any{"url": "https://api.example.com/orders"},
		},
		Visibility:     models.Visibility{Team: true, Marketplace: true},
		OwnerAccountID: "acct-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	require.NoError(t, repo.Save(ctx, template))

	stored, err := repo.GetByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fetch orders", stored.Definition.Label)

	team, err := repo.ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, team, 1)

	marketplace, err := repo.ListMarketplace(ctx)
	require.NoError(t, err)
	assert.Len(t, marketplace, 1)

	require.NoError(t, repo.Delete(ctx, template.ID))

	_, err = repo.GetByID(ctx, template.ID)
	require.Error(t, err)
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestTaskRepository_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.TaskRepository()

	base := time.Now().UTC().Truncate(time.Microsecond)
	task := &models.Task{
		ID:            uuid.New().String(),
		FlowID:        "flow-1",
		FlowVersionID: "version-1",
		NodeID:        "fetch",
		SessionID:     "session-1",
		Status:        models.TaskStatusPending,
		CreatedAt:     base,
	}

	require.NoError(t, repo.Save(ctx, task))

	started := base.Add(time.Second)
	task.Status = models.TaskStatusRunning
	task.StartedAt = &started
	require.NoError(t, repo.Save(ctx, task))

	stored, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRunning, stored.Status)
	require.NotNil(t, stored.StartedAt)

	bySession, err := repo.ListBySession(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, bySession, 1)

	between, err := repo.ListByFlowBetween(ctx, "flow-1", base.Add(-time.Minute), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, between, 1)
}
