package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

const pipelineColumns = `
			id
		  , name
		  , description
		  , team
		  , environment
		  , created_at
		  , updated_at`

// PipelineRepository handles pipeline-related database operations.
type PipelineRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Save inserts or updates a pipeline.
func (r *PipelineRepository) Save(ctx context.Context, pipeline *models.Pipeline) error {
	now := time.Now().UTC()

	if pipeline.CreatedAt.IsZero() {
		pipeline.CreatedAt = now
	}

	pipeline.UpdatedAt = now

	if pipeline.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate pipeline ID: %w", err)
		}

		pipeline.ID = id.String()
	}

	query := `
		INSERT INTO pipelines (id, name, description, team, environment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			team = EXCLUDED.team,
			environment = EXCLUDED.environment,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		pipeline.ID,
		pipeline.Name,
		pipeline.Description,
		pipeline.Team,
		pipeline.Environment,
		pipeline.CreatedAt,
		pipeline.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pipeline: %w", err)
	}

	return nil
}

func (r *PipelineRepository) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+pipelineColumns+` FROM pipelines WHERE id = $1`, id)

	pipeline, err := scanPipeline(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "pipeline", id, persistence.ErrPipelineNotFound)
		}

		return nil, fmt.Errorf("failed to scan pipeline: %w", err)
	}

	return pipeline, nil
}

func (r *PipelineRepository) List(ctx context.Context, opts persistence.ListPipelinesOptions) ([]*models.Pipeline, error) {
	query := `SELECT` + pipelineColumns + `
		FROM pipelines
		WHERE ($1 = '' OR team = $1)
		  AND ($2 = '' OR environment = $2)
		ORDER BY name, id
	`

	rows, err := r.db.QueryContext(ctx, query, opts.Team, string(opts.Environment))
	if err != nil {
		return nil, fmt.Errorf("failed to query pipelines: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	pipelines := make([]*models.Pipeline, 0)

	for rows.Next() {
		pipeline, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}

		pipelines = append(pipelines, pipeline)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating pipelines: %w", err)
	}

	return pipelines, nil
}

func scanPipeline(row scanner) (*models.Pipeline, error) {
	var pipeline models.Pipeline

	err := row.Scan(
		&pipeline.ID,
		&pipeline.Name,
		&pipeline.Description,
		&pipeline.Team,
		&pipeline.Environment,
		&pipeline.CreatedAt,
		&pipeline.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &pipeline, nil
}
