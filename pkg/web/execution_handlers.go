package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/medallionhq/conductor/pkg/cascade"
)

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.FetchByID(c.Context(), c.Params("executionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// CompleteExecution runs the cascade for a finished execution. Downstream
// launches happen later on the dispatch worker.
func (h *APIHandlers) CompleteExecution(c fiber.Ctx) error {
	var req CompleteExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	summary, err := h.dispatcher.Complete(c.Context(), cascade.CompleteRequest{
		PipelineID:  req.PipelineID,
		ExecutionID: c.Params("executionId"),
		Status:      req.Status,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(summary)
}
