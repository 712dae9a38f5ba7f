package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/pkg/engine"
	"github.com/flowdeck/flowdeck/pkg/events"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence/file"
	"github.com/flowdeck/flowdeck/pkg/registry"
	"github.com/flowdeck/flowdeck/pkg/services"
	"github.com/flowdeck/flowdeck/pkg/version"
	"github.com/flowdeck/flowdeck/pkg/web"
)

type stubEngine struct{}

func (stubEngine) SubmitFlow(_ context.Context, _ engine.SubmitRequest) (*engine.SubmitResult, error) {
	return &engine.SubmitResult{SessionID: "session-1", AcceptedAt: time.Now().UTC()}, nil
}

func (stubEngine) FetchSessionEvents(_ context.Context, sessionID string) ([]*events.TaskTransition, error) {
	if sessionID == "missing" {
		return nil, engine.ErrSessionNotFound
	}

	return []*events.TaskTransition{{SessionID: sessionID, TaskID: "task-1", Status: models.TaskStatusRunning}}, nil
}

func (stubEngine) GetEvent(_ context.Context, _ string) (*events.TaskTransition, error) {
	return nil, engine.ErrEventNotFound
}

type testApp struct {
	app   *fiber.App
	flows *services.Flow
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.Default()
	store := file.NewPersistence(t.TempDir())
	versions := version.Default()
	catalog := registry.NewDefaultCatalog(logger)

	flowService := services.NewFlow(logger, store, versions, catalog)
	publishingService := services.NewPublishing(logger, store, versions, nil)
	templateService := services.NewTemplate(logger, store, catalog)
	taskService := services.NewTask(logger, store)
	runService := services.NewRun(logger, store, versions, stubEngine{}, nil)

	handlers := web.NewAPIHandlers(
		flowService,
		publishingService,
		templateService,
		taskService,
		runService,
		validator.New(validator.WithRequiredStructEnabled()),
		catalog,
	)

	app := fiber.New()

	flows := app.Group("/flows")
	flows.Get("/", handlers.GetFlows)
	flows.Post("/", handlers.CreateFlow)
	flows.Post("/import", handlers.ImportFlow)
	flows.Get("/:flowId/versions", handlers.GetFlowVersions)
	flows.Delete("/:flowId", handlers.DeleteFlow)
	flows.Post("/:flowId/create-draft", handlers.CreateDraftFromPublished)
	flows.Post("/:flowId/run", handlers.RunFlow)
	flows.Get("/:flowId/chart", handlers.GetFlowChart)

	versionsGroup := app.Group("/versions")
	versionsGroup.Get("/:versionId", handlers.GetVersion)
	versionsGroup.Patch("/:versionId", handlers.UpdateVersion)
	versionsGroup.Post("/:versionId/publish", handlers.PublishVersion)
	versionsGroup.Post("/:versionId/versions", handlers.CreateVersion)
	versionsGroup.Get("/:versionId/export", handlers.ExportVersion)
	versionsGroup.Post("/:versionId/nodes", handlers.AddNode)
	versionsGroup.Delete("/:versionId/nodes/:nodeId", handlers.DeleteNode)
	versionsGroup.Put("/:versionId/nodes/:nodeId/config", handlers.UpdateNodeConfig)
	versionsGroup.Post("/:versionId/edges", handlers.Connect)
	versionsGroup.Delete("/:versionId/edges/:edgeId", handlers.Disconnect)

	templates := app.Group("/templates")
	templates.Post("/", handlers.PublishTemplate)
	templates.Get("/", handlers.GetTemplates)
	templates.Get("/marketplace", handlers.GetMarketplaceTemplates)
	templates.Get("/:templateId", handlers.GetTemplate)
	templates.Delete("/:templateId", handlers.DeleteTemplate)

	sessions := app.Group("/sessions")
	sessions.Get("/:sessionId/events", handlers.GetSessionEvents)
	sessions.Get("/:sessionId/tasks", handlers.GetSessionTasks)

	app.Get("/tasks/:taskId", handlers.GetTask)
	app.Get("/accounts/:accountId/chart", handlers.GetAccountChart)
	app.Get("/catalog", handlers.GetCatalog)
	app.Get("/health", handlers.HealthCheck)

	return &testApp{app: app, flows: flowService}
}

func (a *testApp) request(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func (a *testApp) createFlow(t *testing.T) *models.Flow {
	t.Helper()

	resp, body := a.request(t, http.MethodPost, "/flows/", web.CreateFlowRequest{
		Name:      "Order Sync",
		AccountID: "account-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var flow models.Flow
	require.NoError(t, json.Unmarshal(body, &flow))

	return &flow
}

func TestCreateFlowHandler(t *testing.T) {
	app := setupTestApp(t)

	flow := app.createFlow(t)
	assert.NotEmpty(t, flow.ID)
	assert.Equal(t, models.FlowStatusDraft, flow.Status)

	resp, _ := app.request(t, http.MethodPost, "/flows/", web.CreateFlowRequest{Name: "ab", AccountID: "account-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = app.request(t, http.MethodPost, "/flows/", web.CreateFlowRequest{Name: "No Account"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddNodeHandler(t *testing.T) {
	app := setupTestApp(t)
	flow := app.createFlow(t)

	resp, body := app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{
		Type:      models.NodeTypeTriggerWebhook,
		PositionX: 40,
		PositionY: 80,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var updated models.Flow
	require.NoError(t, json.Unmarshal(body, &updated))
	require.Len(t, updated.Nodes, 1)
	assert.True(t, updated.Nodes[0].Trigger)

	// Unknown catalog type.
	resp, _ = app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{Type: "action:bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Neither type nor template id.
	resp, _ = app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A second trigger conflicts.
	resp, _ = app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{
		Type: models.NodeTypeTriggerManual,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestConnectHandler(t *testing.T) {
	app := setupTestApp(t)
	flow := app.createFlow(t)

	_, body := app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{
		Type: models.NodeTypeTriggerWebhook,
	})

	var withTrigger models.Flow
	require.NoError(t, json.Unmarshal(body, &withTrigger))

	_, body = app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{
		Type: models.NodeTypeHTTPRequest,
	})

	var withAction models.Flow
	require.NoError(t, json.Unmarshal(body, &withAction))

	resp, body := app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/edges", web.ConnectRequest{
		SourceNodeID: withAction.Nodes[0].ID,
		TargetNodeID: withAction.Nodes[1].ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var connected models.Flow
	require.NoError(t, json.Unmarshal(body, &connected))
	require.Len(t, connected.Edges, 1)

	// The reverse edge would close a cycle.
	resp, _ = app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/edges", web.ConnectRequest{
		SourceNodeID: withAction.Nodes[1].ID,
		TargetNodeID: withAction.Nodes[0].ID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetVersionHandler(t *testing.T) {
	app := setupTestApp(t)
	flow := app.createFlow(t)

	resp, body := app.request(t, http.MethodGet, "/versions/"+flow.VersionID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Flow
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, flow.VersionID, fetched.VersionID)

	resp, _ = app.request(t, http.MethodGet, "/versions/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPublishAndRunHandlers(t *testing.T) {
	app := setupTestApp(t)
	flow := app.createFlow(t)

	_, body := app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{
		Type: models.NodeTypeTriggerWebhook,
	})

	var draft models.Flow
	require.NoError(t, json.Unmarshal(body, &draft))

	_, _ = app.request(t, http.MethodPut, "/versions/"+flow.VersionID+"/nodes/"+draft.Nodes[0].ID+"/config", web.UpdateNodeConfigRequest{
		Config: map[string]any{"method": "POST", "path": "/orders"},
	})

	resp, _ := app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = app.request(t, http.MethodPost, "/flows/"+flow.ID+"/run", web.RunFlowRequest{
		Input: map[string]any{"warehouse": "eu-1"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result engine.SubmitResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "session-1", result.SessionID)

	// The executed version rejects further edits.
	resp, _ = app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{
		Type: models.NodeTypeTransform,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunFlowWithoutPublishedVersion(t *testing.T) {
	app := setupTestApp(t)
	flow := app.createFlow(t)

	resp, _ := app.request(t, http.MethodPost, "/flows/"+flow.ID+"/run", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTemplateHandlers(t *testing.T) {
	app := setupTestApp(t)
	flow := app.createFlow(t)

	_, body := app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{
		Type: models.NodeTypeHTTPRequest,
	})

	var draft models.Flow
	require.NoError(t, json.Unmarshal(body, &draft))

	_, _ = app.request(t, http.MethodPut, "/versions/"+flow.VersionID+"/nodes/"+draft.Nodes[0].ID+"/config", web.UpdateNodeConfigRequest{
		Config: map[string]any{"url": "https://api.example.com/orders"},
	})

	// Visibility with neither surface selected is a validation error.
	resp, _ := app.request(t, http.MethodPost, "/templates/", web.PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        draft.Nodes[0].ID,
		AccountID:     "account-1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = app.request(t, http.MethodPost, "/templates/", web.PublishTemplateRequest{
		FlowVersionID: flow.VersionID,
		NodeID:        draft.Nodes[0].ID,
		Team:          true,
		AccountID:     "account-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var template models.ActionTemplate
	require.NoError(t, json.Unmarshal(body, &template))
	assert.NotEmpty(t, template.ID)

	resp, body = app.request(t, http.MethodGet, "/templates/?account_id=account-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), template.ID)

	// Deleting as a different account conflicts.
	resp, _ = app.request(t, http.MethodDelete, "/templates/"+template.ID+"?account_id=account-2", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = app.request(t, http.MethodDelete, "/templates/"+template.ID+"?account_id=account-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCatalogHandler(t *testing.T) {
	app := setupTestApp(t)

	resp, body := app.request(t, http.MethodGet, "/catalog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		NodeTypes []web.CatalogEntryResponse `json:"node_types"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Len(t, payload.NodeTypes, 10)
}

func TestExportImportHandlers(t *testing.T) {
	app := setupTestApp(t)
	flow := app.createFlow(t)

	_, _ = app.request(t, http.MethodPost, "/versions/"+flow.VersionID+"/nodes", web.AddNodeRequest{
		Type: models.NodeTypeTriggerWebhook,
	})

	var draft models.Flow

	_, body := app.request(t, http.MethodGet, "/versions/"+flow.VersionID, nil)
	require.NoError(t, json.Unmarshal(body, &draft))

	_, _ = app.request(t, http.MethodPut, "/versions/"+flow.VersionID+"/nodes/"+draft.Nodes[0].ID+"/config", web.UpdateNodeConfigRequest{
		Config: map[string]any{"method": "POST", "path": "/orders"},
	})

	resp, exported := app.request(t, http.MethodGet, "/versions/"+flow.VersionID+"/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/flows/import?account_id=account-2", bytes.NewReader(exported))
	req.Header.Set("Content-Type", "application/json")

	importResp, err := app.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = importResp.Body.Close() }()

	require.Equal(t, http.StatusCreated, importResp.StatusCode)

	imported, err := io.ReadAll(importResp.Body)
	require.NoError(t, err)

	var importedFlow models.Flow
	require.NoError(t, json.Unmarshal(imported, &importedFlow))
	assert.NotEqual(t, flow.ID, importedFlow.ID)
	assert.Equal(t, "account-2", importedFlow.OwnerAccountID)
}

func TestHealthCheckHandler(t *testing.T) {
	app := setupTestApp(t)

	resp, body := app.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}

func TestSessionHandlers(t *testing.T) {
	app := setupTestApp(t)

	resp, body := app.request(t, http.MethodGet, "/sessions/session-1/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "task-1")

	resp, _ = app.request(t, http.MethodGet, "/sessions/session-1/tasks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.request(t, http.MethodGet, "/sessions/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = app.request(t, http.MethodGet, "/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
