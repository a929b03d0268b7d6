package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/services"
)

func (h *APIHandlers) RegisterDataset(c fiber.Ctx) error {
	var req RegisterDatasetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	entry, created, err := h.catalog.Register(c.Context(), services.Registration{
		Layer:       req.Layer,
		TableName:   req.TableName,
		Environment: req.Environment,
		Status:      req.Status,
		ExecutionID: req.ExecutionID,
		FilePath:    req.FilePath,
		Schema:      req.Schema,
		RowCount:    req.RowCount,
		FileSize:    req.FileSize,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(entry)
}

func scope(c fiber.Ctx) services.Scope {
	return services.Scope{
		Environment: models.Environment(c.Query("environment")),
		Layer:       models.Layer(c.Query("layer")),
	}
}

func (h *APIHandlers) GetDatasetStatus(c fiber.Ctx) error {
	status, err := h.catalog.Status(c.Context(), c.Params("tableIdOrName"), scope(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) UpdateDatasetStatus(c fiber.Ctx) error {
	var req DatasetStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	status, err := h.catalog.UpdateStatus(c.Context(), c.Params("tableIdOrName"), scope(c), models.DatasetStatusUpdate{
		Status:      req.Status,
		ExecutionID: req.ExecutionID,
		RowCount:    req.RowCount,
		FilePath:    req.FilePath,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) ResolveDatasets(c fiber.Ctx) error {
	var req ResolveDatasetsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	resolution, err := h.catalog.Resolve(c.Context(), services.ResolveRequest{
		Datasets:     req.Datasets,
		Environment:  req.Environment,
		Layer:        req.Layer,
		RequireReady: req.RequireReady,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := resolution.Err(); err != nil {
		return resolutionFailure(c, resolution, err)
	}

	return c.JSON(resolution)
}

func (h *APIHandlers) DiscoverDatasets(c fiber.Ctx) error {
	discovery, err := h.catalog.Discover(c.Context(), persistence.CatalogFilter{
		Environment: models.Environment(c.Query("environment")),
		Layer:       models.Layer(c.Query("layer")),
		State:       models.DatasetState(c.Query("status")),
		Search:      c.Query("search"),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(discovery)
}

func (h *APIHandlers) GetWatermark(c fiber.Ctx) error {
	watermark, err := h.watermarks.Get(c.Context(), c.Params("sourceId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(watermark)
}

func (h *APIHandlers) AdvanceWatermark(c fiber.Ctx) error {
	var req AdvanceWatermarkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.watermarks.Advance(c.Context(), models.WatermarkAdvance{
		SourceID:      c.Params("sourceId"),
		Column:        req.WatermarkColumn,
		Type:          req.WatermarkType,
		NewValue:      req.NewValue,
		RowsProcessed: req.RowsProcessed,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ResetWatermark(c fiber.Ctx) error {
	deleted, err := h.watermarks.Reset(c.Context(), c.Params("sourceId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":          "watermark reset, next run will process all data",
		"sourceId":         deleted.SourceID,
		"deletedWatermark": deleted,
	})
}
