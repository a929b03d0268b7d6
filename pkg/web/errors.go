package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/services"
	"github.com/moogar0880/problems"
)

// chainProblem is the 422 answer for a rejected dependency. Chain holds
// pipeline names, ChainIDs the matching ids.
type chainProblem struct {
	*problems.Problem

	Chain    []string `json:"chain"`
	ChainIDs []string `json:"chainIds"`
}

// resolveProblem carries the full resolution next to the problem fields so
// callers can render the missing or unready datasets.
type resolveProblem struct {
	*problems.Problem
	*services.Resolution
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and persistence errors to problem documents.
func handleServiceError(c fiber.Ctx, err error) error {
	var cycle *services.CycleError

	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.As(err, &cycle):
		problemType := "circular_dependency"
		if errors.Is(err, services.ErrSelfDependency) {
			problemType = "self_dependency"
		}

		problem := chainProblem{
			Problem: problems.NewStatusProblem(422).
				WithInstance(c.Path()).
				WithType(problemType).
				WithDetail(err.Error()),
			Chain:    cycle.Names,
			ChainIDs: cycle.Chain,
		}

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case services.IsIntegrityError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("integrity_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case services.IsNotFoundError(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType(notFoundType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case services.IsConflictError(err), services.IsNotReadyError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		return internalError(c, err)
	}
}

func notFoundType(err error) string {
	switch {
	case errors.Is(err, persistence.ErrPipelineNotFound):
		return "pipeline_not_found"
	case errors.Is(err, persistence.ErrTriggerNotFound):
		return "trigger_not_found"
	case errors.Is(err, persistence.ErrExecutionNotFound):
		return "execution_not_found"
	case errors.Is(err, persistence.ErrDatasetNotFound), errors.Is(err, services.ErrDatasetsNotFound):
		return "dataset_not_found"
	case errors.Is(err, persistence.ErrWatermarkNotFound):
		return "watermark_not_found"
	default:
		return "not_found"
	}
}

// resolutionFailure answers a failed readiness resolution: 404 when a
// dataset is missing, 409 when one is not ready.
func resolutionFailure(c fiber.Ctx, resolution *services.Resolution, err error) error {
	status, problemType := fiber.StatusConflict, "datasets_not_ready"
	if services.IsNotFoundError(err) {
		status, problemType = fiber.StatusNotFound, "datasets_not_found"
	}

	problem := resolveProblem{
		Problem: problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType(problemType).
			WithDetail(err.Error()),
		Resolution: resolution,
	}

	return c.Status(status).JSON(problem)
}
