package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowdeck/flowdeck/pkg/graph"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/registry"
	"github.com/flowdeck/flowdeck/pkg/services"
)

type APIHandlers struct {
	flowService       *services.Flow
	publishingService *services.Publishing
	templateService   *services.Template
	taskService       *services.Task
	runService        *services.Run
	validator         *validator.Validate
	catalog           *registry.Catalog
}

func NewAPIHandlers(
	flowService *services.Flow,
	publishingService *services.Publishing,
	templateService *services.Template,
	taskService *services.Task,
	runService *services.Run,
	validator *validator.Validate,
	catalog *registry.Catalog,
) *APIHandlers {
	return &APIHandlers{
		flowService:       flowService,
		publishingService: publishingService,
		templateService:   templateService,
		taskService:       taskService,
		runService:        runService,
		validator:         validator,
		catalog:           catalog,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowdeck API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flowdeck API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetCatalog(c fiber.Ctx) error {
	definitions := h.catalog.List()

	entries := make([]CatalogEntryResponse, 0, len(definitions))
	for _, definition := range definitions {
		entries = append(entries, TransformCatalogEntry(definition))
	}

	return c.JSON(fiber.Map{"node_types": entries})
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	req, err := h.parseListFlowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.flowService.ListFlows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"flows":         result.Flows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

func (h *APIHandlers) parseListFlowsRequest(c fiber.Ctx) (*services.ListFlowsRequest, error) {
	req := &services.ListFlowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.AccountID = c.Query("account_id")
	req.FlowID = c.Query("flow_id")

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.FlowStatus(statusStr)
		req.Status = &status
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.flowService.Create(c.Context(), req.Name, req.Description, req.AccountID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetFlowVersions(c fiber.Ctx) error {
	flowID := c.Params("flowId")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	versions, err := h.flowService.ListVersions(c.Context(), flowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"versions": versions})
}

func (h *APIHandlers) GetVersion(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	flow, err := h.flowService.FetchVersion(c.Context(), versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) UpdateVersion(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.flowService.FetchVersion(c.Context(), versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	name := existing.Name
	if req.Name != nil {
		name = *req.Name
	}

	description := existing.Description
	if req.Description != nil {
		description = *req.Description
	}

	updated, err := h.flowService.UpdateMetadata(c.Context(), versionID, name, description)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	flowID := c.Params("flowId")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	if err := h.flowService.Delete(c.Context(), flowID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddNode(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	var req AddNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if (req.Type == "") == (req.TemplateID == "") {
		return badRequest(c, "Exactly one of type or template_id is required")
	}

	pos := models.Position{X: req.PositionX, Y: req.PositionY}

	var (
		flow *models.Flow
		err  error
	)

	if req.Type != "" {
		flow, err = h.flowService.AddNode(c.Context(), versionID, req.Type, pos)
	} else {
		flow, err = h.flowService.AddTemplateNode(c.Context(), versionID, req.TemplateID, pos)
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(flow)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	nodeID := c.Params("nodeId")

	if versionID == "" || nodeID == "" {
		return badRequest(c, "Version ID and node ID are required")
	}

	flow, err := h.flowService.RemoveNode(c.Context(), versionID, nodeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) UpdateNodeConfig(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	nodeID := c.Params("nodeId")

	if versionID == "" || nodeID == "" {
		return badRequest(c, "Version ID and node ID are required")
	}

	var req UpdateNodeConfigRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow, err := h.flowService.UpdateNodeConfig(c.Context(), versionID, nodeID, req.Config)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) Connect(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	var req ConnectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow, err := h.flowService.Connect(c.Context(), versionID, req.SourceNodeID, req.TargetNodeID, graph.Handles{
		Source: req.SourceHandle,
		Target: req.TargetHandle,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(flow)
}

func (h *APIHandlers) Disconnect(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	edgeID := c.Params("edgeId")

	if versionID == "" || edgeID == "" {
		return badRequest(c, "Version ID and edge ID are required")
	}

	flow, err := h.flowService.Disconnect(c.Context(), versionID, edgeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) PublishVersion(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	published, err := h.publishingService.Publish(c.Context(), versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) CreateVersion(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	draft, err := h.flowService.CreateVersion(c.Context(), versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *APIHandlers) CreateDraftFromPublished(c fiber.Ctx) error {
	flowID := c.Params("flowId")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	draft, err := h.publishingService.CreateDraftFromPublished(c.Context(), flowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *APIHandlers) ExportVersion(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	data, err := h.flowService.Export(c.Context(), versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(data)
}

func (h *APIHandlers) ImportFlow(c fiber.Ctx) error {
	accountID := c.Query("account_id")
	if accountID == "" {
		return badRequest(c, "account_id query parameter is required")
	}

	flow, err := h.flowService.Import(c.Context(), c.Body(), accountID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(flow)
}

func (h *APIHandlers) RunFlow(c fiber.Ctx) error {
	flowID := c.Params("flowId")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req RunFlowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.runService.RunFlow(c.Context(), flowID, req.Input)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *APIHandlers) GetSessionEvents(c fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return badRequest(c, "Session ID is required")
	}

	transitions, err := h.runService.SessionEvents(c.Context(), sessionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"events": transitions})
}

func (h *APIHandlers) GetSessionTasks(c fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return badRequest(c, "Session ID is required")
	}

	taskList, err := h.taskService.SessionTasks(c.Context(), sessionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": taskList})
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return badRequest(c, "Task ID is required")
	}

	task, err := h.taskService.Detail(c.Context(), taskID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) GetFlowChart(c fiber.Ctx) error {
	flowID := c.Params("flowId")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	from, err := parseChartTime(c.Query("from"), time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return badRequest(c, "Invalid from parameter: "+err.Error())
	}

	to, err := parseChartTime(c.Query("to"), time.Now().UTC())
	if err != nil {
		return badRequest(c, "Invalid to parameter: "+err.Error())
	}

	buckets, err := h.taskService.Chart(c.Context(), flowID, from, to)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"buckets": buckets})
}

// GetAccountChart aggregates task counts across every flow the account owns.
func (h *APIHandlers) GetAccountChart(c fiber.Ctx) error {
	accountID := c.Params("accountId")
	if accountID == "" {
		return badRequest(c, "Account ID is required")
	}

	from, err := parseChartTime(c.Query("from"), time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return badRequest(c, "Invalid from parameter: "+err.Error())
	}

	to, err := parseChartTime(c.Query("to"), time.Now().UTC())
	if err != nil {
		return badRequest(c, "Invalid to parameter: "+err.Error())
	}

	buckets, err := h.taskService.AccountChart(c.Context(), accountID, from, to)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"buckets": buckets})
}

func parseChartTime(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}

	return time.Parse(time.RFC3339, value)
}

func (h *APIHandlers) PublishTemplate(c fiber.Ctx) error {
	var req PublishTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templateService.Publish(c.Context(), services.PublishTemplateRequest{
		FlowVersionID: req.FlowVersionID,
		NodeID:        req.NodeID,
		Visibility:    models.Visibility{Team: req.Team, Marketplace: req.Marketplace},
		Anonymous:     req.Anonymous,
		AccountID:     req.AccountID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	templateID := c.Params("templateId")
	if templateID == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.FetchByID(c.Context(), templateID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	accountID := c.Query("account_id")
	if accountID == "" {
		return badRequest(c, "account_id query parameter is required")
	}

	templates, err := h.templateService.ListForAccount(c.Context(), accountID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (h *APIHandlers) GetMarketplaceTemplates(c fiber.Ctx) error {
	templates, err := h.templateService.ListMarketplace(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	templateID := c.Params("templateId")
	if templateID == "" {
		return badRequest(c, "Template ID is required")
	}

	accountID := c.Query("account_id")
	if accountID == "" {
		return badRequest(c, "account_id query parameter is required")
	}

	if err := h.templateService.Delete(c.Context(), templateID, accountID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
