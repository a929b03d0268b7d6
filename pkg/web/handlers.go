// Package web provides the HTTP control surface of the orchestrator.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/medallionhq/conductor/pkg/cascade"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/queue"
	"github.com/medallionhq/conductor/pkg/services"
)

type APIHandlers struct {
	pipelines  *services.Pipeline
	triggers   *services.Trigger
	executions *services.Execution
	catalog    *services.Catalog
	watermarks *services.Watermark
	dispatcher *cascade.Dispatcher
	queue      queue.Queue
	validator  *validator.Validate
}

// Services bundles the dependencies of the handlers.
type Services struct {
	Pipelines  *services.Pipeline
	Triggers   *services.Trigger
	Executions *services.Execution
	Catalog    *services.Catalog
	Watermarks *services.Watermark
	Dispatcher *cascade.Dispatcher
	Queue      queue.Queue
}

func NewAPIHandlers(s Services, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		pipelines:  s.Pipelines,
		triggers:   s.Triggers,
		executions: s.Executions,
		catalog:    s.Catalog,
		watermarks: s.Watermarks,
		dispatcher: s.Dispatcher,
		queue:      s.Queue,
		validator:  validator,
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	p := router.Group("/pipelines")
	p.Get("/", h.GetPipelines)
	p.Post("/", h.CreatePipeline)
	p.Get("/:id", h.GetPipeline)
	p.Patch("/:id", h.UpdatePipeline)
	p.Get("/:id/dependencies", h.GetDependencies)
	p.Get("/:id/executions", h.GetPipelineExecutions)

	t := p.Group("/:id/triggers")
	t.Get("/", h.GetTriggers)
	t.Post("/", h.CreateTrigger)
	t.Post("/validate-dependency", h.ValidateDependency)
	t.Get("/:triggerId", h.GetTrigger)
	t.Patch("/:triggerId", h.UpdateTrigger)
	t.Delete("/:triggerId", h.DeleteTrigger)
	t.Post("/:triggerId/enable", h.EnableTrigger)
	t.Post("/:triggerId/disable", h.DisableTrigger)
	t.Get("/:triggerId/history", h.GetTriggerHistory)

	router.Get("/schedules/preview", h.PreviewSchedule)

	e := router.Group("/executions")
	e.Get("/:executionId", h.GetExecution)
	e.Post("/:executionId/complete", h.CompleteExecution)

	c := router.Group("/catalog")
	c.Put("/", h.RegisterDataset)
	c.Get("/resolve", h.DiscoverDatasets)
	c.Post("/resolve", h.ResolveDatasets)
	c.Get("/:tableIdOrName/status", h.GetDatasetStatus)
	c.Patch("/:tableIdOrName/status", h.UpdateDatasetStatus)

	w := router.Group("/sources/:sourceId/watermark")
	w.Get("/", h.GetWatermark)
	w.Put("/", h.AdvanceWatermark)
	w.Delete("/", h.ResetWatermark)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.pipelines.HealthCheck(c.Context())

	queueCheck, queueOk := "Dispatch queue is healthy", true
	if err := h.queue.HealthCheck(c.Context()); err != nil {
		queueCheck, queueOk = "Dispatch queue is unhealthy: "+err.Error(), false
	}

	pending, err := h.queue.Pending(c.Context())
	if err != nil {
		pending = -1
	}

	status := "unhealthy"
	message := "Conductor API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk && queueOk {
		status = "healthy"
		message = "Conductor API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"queue":      queueCheck,
		},
		"pendingDispatches": pending,
		"timestamp":         time.Now().UTC(),
	})
}

func (h *APIHandlers) GetPipelines(c fiber.Ctx) error {
	pipelines, err := h.pipelines.List(c.Context(), persistence.ListPipelinesOptions{
		Team:        c.Query("team"),
		Environment: models.Environment(c.Query("environment")),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"pipelines": pipelines,
		"count":     len(pipelines),
	})
}

func (h *APIHandlers) CreatePipeline(c fiber.Ctx) error {
	var req CreatePipelineRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.pipelines.Create(c.Context(), &models.Pipeline{
		Name:        req.Name,
		Description: req.Description,
		Team:        req.Team,
		Environment: req.Environment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetPipeline(c fiber.Ctx) error {
	pipeline, err := h.pipelines.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(pipeline)
}

func (h *APIHandlers) UpdatePipeline(c fiber.Ctx) error {
	var req UpdatePipelineRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.pipelines.Update(c.Context(), c.Params("id"), services.PipelineUpdate{
		Name:        req.Name,
		Description: req.Description,
		Team:        req.Team,
		Environment: req.Environment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) GetDependencies(c fiber.Ctx) error {
	dependencies, err := h.triggers.Dependencies(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(dependencies)
}

func (h *APIHandlers) GetPipelineExecutions(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.executions.ListByPipeline(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

// queryInt parses an optional integer query parameter, returning 0 when absent.
func queryInt(c fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}
