package web

import (
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	triggers, err := h.triggers.List(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"triggers": triggers,
		"count":    len(triggers),
	})
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	trigger, err := h.triggers.Create(c.Context(), c.Params("id"), req.input())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(trigger)
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	trigger, err := h.triggers.FetchByID(c.Context(), c.Params("id"), c.Params("triggerId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) UpdateTrigger(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	trigger, err := h.triggers.Update(c.Context(), c.Params("id"), c.Params("triggerId"), req.input())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	if err := h.triggers.Delete(c.Context(), c.Params("id"), c.Params("triggerId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableTrigger(c fiber.Ctx) error {
	return h.setTriggerEnabled(c, true)
}

func (h *APIHandlers) DisableTrigger(c fiber.Ctx) error {
	return h.setTriggerEnabled(c, false)
}

func (h *APIHandlers) setTriggerEnabled(c fiber.Ctx, enabled bool) error {
	trigger, err := h.triggers.SetEnabled(c.Context(), c.Params("id"), c.Params("triggerId"), enabled)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) GetTriggerHistory(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.triggers.History(c.Context(), c.Params("id"), c.Params("triggerId"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

func (h *APIHandlers) ValidateDependency(c fiber.Ctx) error {
	var req ValidateDependencyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	check, err := h.triggers.ValidateDependency(c.Context(), c.Params("id"), req.DependsOnPipelineID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(check)
}

func (h *APIHandlers) PreviewSchedule(c fiber.Ctx) error {
	count, err := queryInt(c, "count")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	preview, err := h.triggers.PreviewSchedule(c.Query("cron"), c.Query("timezone"), count)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(preview)
}
