// Package main provides the Flowdeck API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowdeck/flowdeck/pkg/engine"
	"github.com/flowdeck/flowdeck/pkg/eventbus"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/registry"
	"github.com/flowdeck/flowdeck/pkg/services"
	"github.com/flowdeck/flowdeck/pkg/version"
	"github.com/flowdeck/flowdeck/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	catalog     *registry.Catalog
	versions    *version.Registry
	engine      engine.Client
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	catalog *registry.Catalog,
	engineClient engine.Client,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		catalog:     catalog,
		versions:    version.Default(),
		engine:      engineClient,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	flowService := services.NewFlow(a.logger, a.persistence, a.versions, a.catalog)
	publishingService := services.NewPublishing(a.logger, a.persistence, a.versions, a.eventBus)
	templateService := services.NewTemplate(a.logger, a.persistence, a.catalog)
	taskService := services.NewTask(a.logger, a.persistence)
	runService := services.NewRun(a.logger, a.persistence, a.versions, a.engine, a.eventBus)

	handlers := web.NewAPIHandlers(
		flowService,
		publishingService,
		templateService,
		taskService,
		runService,
		a.validate,
		a.catalog,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowdeck API")
	})

	flows := app.Group("/flows")
	flows.Get("/", handlers.GetFlows)
	flows.Post("/", handlers.CreateFlow)
	flows.Post("/import", handlers.ImportFlow)
	flows.Get("/:flowId/versions", handlers.GetFlowVersions)
	flows.Delete("/:flowId", handlers.DeleteFlow)
	flows.Post("/:flowId/create-draft", handlers.CreateDraftFromPublished)
	flows.Post("/:flowId/run", handlers.RunFlow)
	flows.Get("/:flowId/chart", handlers.GetFlowChart)

	versions := app.Group("/versions")
	versions.Get("/:versionId", handlers.GetVersion)
	versions.Patch("/:versionId", handlers.UpdateVersion)
	versions.Post("/:versionId/publish", handlers.PublishVersion)
	versions.Post("/:versionId/versions", handlers.CreateVersion)
	versions.Get("/:versionId/export", handlers.ExportVersion)

	// Node and edge endpoints:
	versions.Post("/:versionId/nodes", handlers.AddNode)
	versions.Delete("/:versionId/nodes/:nodeId", handlers.DeleteNode)
	versions.Put("/:versionId/nodes/:nodeId/config", handlers.UpdateNodeConfig)
	versions.Post("/:versionId/edges", handlers.Connect)
	versions.Delete("/:versionId/edges/:edgeId", handlers.Disconnect)

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

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
