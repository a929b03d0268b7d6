package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/schedule"
)

type Pipeline struct {
	persistence persistence.Persistence
	resolver    *schedule.Resolver
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewPipeline creates a new pipeline service.
func NewPipeline(p persistence.Persistence, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		persistence: p,
		resolver:    schedule.NewResolver(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "pipeline_service"),
		now:         time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Pipeline) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (s *Pipeline) Create(ctx context.Context, pipeline *models.Pipeline) (*models.Pipeline, error) {
	pipeline.ID = ""
	pipeline.Name = strings.TrimSpace(pipeline.Name)

	if err := s.validate.Struct(pipeline); err != nil {
		return nil, NewValidationError("Create", "INVALID_PIPELINE", err.Error())
	}

	if err := s.persistence.PipelineRepository().Save(ctx, pipeline); err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return pipeline, nil
}

// PipelineUpdate carries the mutable pipeline metadata. Nil fields are kept.
type PipelineUpdate struct {
	Name        *string
	Description *string
	Team        *string
	Environment *models.Environment
}

func (s *Pipeline) Update(ctx context.Context, id string, update PipelineUpdate) (*models.Pipeline, error) {
	pipeline, err := s.persistence.PipelineRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		pipeline.Name = strings.TrimSpace(*update.Name)
	}

	if update.Description != nil {
		pipeline.Description = *update.Description
	}

	if update.Team != nil {
		pipeline.Team = *update.Team
	}

	if update.Environment != nil {
		pipeline.Environment = *update.Environment
	}

	if err := s.validate.Struct(pipeline); err != nil {
		return nil, NewValidationError("Update", "INVALID_PIPELINE", err.Error())
	}

	if err := s.persistence.PipelineRepository().Save(ctx, pipeline); err != nil {
		return nil, fmt.Errorf("failed to update pipeline: %w", err)
	}

	return s.withNextRun(ctx, pipeline)
}

// FetchByID returns the pipeline with its effective next run.
func (s *Pipeline) FetchByID(ctx context.Context, id string) (*models.Pipeline, error) {
	pipeline, err := s.persistence.PipelineRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.withNextRun(ctx, pipeline)
}

func (s *Pipeline) List(ctx context.Context, opts persistence.ListPipelinesOptions) ([]*models.Pipeline, error) {
	if opts.Environment != "" && !opts.Environment.IsValid() {
		return nil, NewValidationError("List", "INVALID_ENVIRONMENT", fmt.Sprintf("invalid environment %q", opts.Environment))
	}

	pipelines, err := s.persistence.PipelineRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}

	for i, pipeline := range pipelines {
		if pipelines[i], err = s.withNextRun(ctx, pipeline); err != nil {
			return nil, err
		}
	}

	return pipelines, nil
}

func (s *Pipeline) withNextRun(ctx context.Context, pipeline *models.Pipeline) (*models.Pipeline, error) {
	triggers, err := s.persistence.TriggerRepository().ListByPipeline(ctx, pipeline.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers of pipeline %s: %w", pipeline.ID, err)
	}

	healSchedules(ctx, s.logger, s.resolver, s.persistence.TriggerRepository(), triggers, s.now().UTC())
	pipeline.NextRunAt = schedule.EarliestRun(triggers)

	return pipeline, nil
}

// healSchedules recomputes stale cached next runs and rewrites the cache.
// Failures only cost a recomputation on the next read, so they are logged.
func healSchedules(ctx context.Context, logger *slog.Logger, resolver *schedule.Resolver, repo persistence.TriggerRepository, triggers []*models.Trigger, now time.Time) {
	for _, trigger := range triggers {
		if !trigger.Enabled {
			continue
		}

		changed, err := resolver.Refresh(trigger, now)
		if err != nil {
			logger.WarnContext(ctx, "stored schedule cannot be resolved",
				"trigger_id", trigger.ID, "cron", trigger.CronExpression, "error", err)

			continue
		}

		if !changed {
			continue
		}

		if err := repo.UpdateNextRun(ctx, trigger.ID, trigger.NextRunAt); err != nil {
			logger.WarnContext(ctx, "failed to rewrite next run cache", "trigger_id", trigger.ID, "error", err)
		}
	}
}
