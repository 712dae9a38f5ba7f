package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence/file"
	"github.com/flowdeck/flowdeck/pkg/registry"
	"github.com/flowdeck/flowdeck/pkg/version"
)

type templateFixture struct {
	flows     *Flow
	templates *Template
}

func newTemplateFixture(t *testing.T) *templateFixture {
	t.Helper()

	logger := slog.Default()
	store := file.NewPersistence(t.TempDir())
	catalog := registry.NewDefaultCatalog(logger)

	return &templateFixture{
		flows:     NewFlow(logger, store, version.Default(), catalog),
		templates: NewTemplate(logger, store, catalog),
	}
}

// draftWithAction returns a draft containing one configured http_request
// node and that node's id.
func (f *templateFixture) draftWithAction(t *testing.T) (*models.Flow, string) {
	t.Helper()

	flow, err := f.flows.Create(t.Context(), "Order Sync", "", "account-1")
	require.NoError(t, err)

	flow, err = f.flows.AddNode(t.Context(), flow.VersionID, models.NodeTypeHTTPRequest, models.Position{})
	require.NoError(t, err)

	nodeID := flow.Nodes[0].ID

	flow, err = f.flows.UpdateNodeConfig(t.Context(), flow.VersionID, nodeID, map[string]any{
		"url":    "https://api.example.com/orders",
		"method": "POST",
	})
	require.NoError(t, err)

	return flow, nodeID
}

func TestTemplatePublish(t *testing.T) {
	fixture := newTemplateFixture(t)
	flow, nodeID := fixture.draftWithAction(t)

	template, err := fixture.templates.Publish(t.Context(), PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        nodeID,
		Visibility:    models.Visibility{Team: true},
		AccountID:     "account-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, template.ID)
	assert.Equal(t, models.NodeTypeHTTPRequest, template.Definition.Type)
	assert.Equal(t, "POST", template.Definition.Config["method"])

	// Publishing snapshots the node: later edits never reach the template.
	_, err = fixture.flows.UpdateNodeConfig(t.Context(), flow.VersionID, nodeID, map[string]any{
		"url":    "https://api.example.com/changed",
		"method": "DELETE",
	})
	require.NoError(t, err)

	stored, err := fixture.templates.FetchByID(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, "POST", stored.Definition.Config["method"])
}

func TestTemplatePublishNoVisibility(t *testing.T) {
	fixture := newTemplateFixture(t)
	flow, nodeID := fixture.draftWithAction(t)

	_, err := fixture.templates.Publish(t.Context(), PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        nodeID,
		Visibility:    models.Visibility{},
		AccountID:     "account-1",
	})
	require.ErrorIs(t, err, ErrVisibilityRequired)
	assert.True(t, IsValidationError(err))
}

func TestTemplatePublishTriggerRejected(t *testing.T) {
	fixture := newTemplateFixture(t)

	flow, err := fixture.flows.Create(t.Context(), "Order Sync", "", "account-1")
	require.NoError(t, err)

	flow, err = fixture.flows.AddNode(t.Context(), flow.VersionID, models.NodeTypeTriggerWebhook, models.Position{})
	require.NoError(t, err)

	_, err = fixture.templates.Publish(t.Context(), PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        flow.Nodes[0].ID,
		Visibility:    models.Visibility{Team: true},
		AccountID:     "account-1",
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestTemplatePublishInvalidConfigRejected(t *testing.T) {
	fixture := newTemplateFixture(t)

	flow, err := fixture.flows.Create(t.Context(), "Order Sync", "", "account-1")
	require.NoError(t, err)

	// Default http_request config lacks the required url.
	flow, err = fixture.flows.AddNode(t.Context(), flow.VersionID, models.NodeTypeHTTPRequest, models.Position{})
	require.NoError(t, err)

	_, err = fixture.templates.Publish(t.Context(), PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        flow.Nodes[0].ID,
		Visibility:    models.Visibility{Team: true},
		AccountID:     "account-1",
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestTemplateInstantiateIntoFlow(t *testing.T) {
	fixture := newTemplateFixture(t)
	flow, nodeID := fixture.draftWithAction(t)

	template, err := fixture.templates.Publish(t.Context(), PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        nodeID,
		Visibility:    models.Visibility{Team: true},
		AccountID:     "account-1",
	})
	require.NoError(t, err)

	// Instantiating into the same flow resolves a fresh id.
	next, err := fixture.flows.AddTemplateNode(t.Context(), flow.VersionID, template.ID, models.Position{X: 300})
	require.NoError(t, err)

	require.Len(t, next.Nodes, 2)
	assert.NotEqual(t, next.Nodes[0].ID, next.Nodes[1].ID)
	assert.Equal(t, "POST", next.Nodes[1].Config["method"])

	// Mutating the inserted node leaves the template untouched.
	_, err = fixture.flows.UpdateNodeConfig(t.Context(), next.VersionID, next.Nodes[1].ID, map[string]any{
		"url":    "https://api.example.com/other",
		"method": "PUT",
	})
	require.NoError(t, err)

	stored, err := fixture.templates.FetchByID(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, "POST", stored.Definition.Config["method"])
}

func TestTemplateMarketplaceAnonymous(t *testing.T) {
	fixture := newTemplateFixture(t)
	flow, nodeID := fixture.draftWithAction(t)

	_, err := fixture.templates.Publish(t.Context(), PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        nodeID,
		Visibility:    models.Visibility{Marketplace: true},
		Anonymous:     true,
		AccountID:     "account-1",
	})
	require.NoError(t, err)

	listed, err := fixture.templates.ListMarketplace(t.Context())
	require.NoError(t, err)
	require.Len(t, listed, 1)

	assert.True(t, listed[0].Anonymous)
	assert.Empty(t, listed[0].OwnerAccountID)
	assert.Equal(t, models.NodeTypeHTTPRequest, listed[0].Definition.Type)

	// Marketplace-only templates do not show in the team listing.
	team, err := fixture.templates.ListForAccount(t.Context(), "account-1")
	require.NoError(t, err)
	assert.Empty(t, team)
}

func TestTemplateDeleteOwnerOnly(t *testing.T) {
	fixture := newTemplateFixture(t)
	flow, nodeID := fixture.draftWithAction(t)

	template, err := fixture.templates.Publish(t.Context(), PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        nodeID,
		Visibility:    models.Visibility{Team: true},
		AccountID:     "account-1",
	})
	require.NoError(t, err)

	err = fixture.templates.Delete(t.Context(), template.ID, "account-2")
	require.ErrorIs(t, err, ErrNotTemplateOwner)
	assert.True(t, IsConflictError(err))

	require.NoError(t, fixture.templates.Delete(t.Context(), template.ID, "account-1"))

	_, err = fixture.templates.FetchByID(t.Context(), template.ID)
	require.ErrorIs(t, err, ErrTemplateNotFound)
}
