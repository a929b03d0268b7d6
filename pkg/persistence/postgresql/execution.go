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

const executionColumns = `
			id
		  , pipeline_id
		  , status
		  , trigger_id
		  , trigger_type
		  , upstream_pipeline_id
		  , upstream_execution_id
		  , started_at
		  , completed_at
		  , duration_ms
		  , created_at
		  , updated_at`

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	now := time.Now().UTC()

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = now
	}

	execution.CreatedAt = now
	execution.UpdatedAt = now

	var upstreamPipelineID, upstreamExecutionID sql.NullString

	if execution.TriggeredBy != nil {
		upstreamPipelineID = nullString(execution.TriggeredBy.UpstreamPipelineID)
		upstreamExecutionID = nullString(execution.TriggeredBy.UpstreamExecutionID)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pipeline_executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		execution.ID,
		execution.PipelineID,
		execution.Status,
		nullString(execution.TriggerID),
		nullString(string(execution.TriggerType)),
		upstreamPipelineID,
		upstreamExecutionID,
		execution.StartedAt,
		execution.CompletedAt,
		execution.DurationMs,
		execution.CreatedAt,
		execution.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+executionColumns+` FROM pipeline_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, at time.Time) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE pipeline_executions SET
			status = $2,
			updated_at = $3,
			completed_at = CASE WHEN $4 THEN $3 ELSE completed_at END,
			duration_ms = CASE WHEN $4 THEN (EXTRACT(EPOCH FROM ($3 - started_at)) * 1000)::BIGINT ELSE duration_ms END
		WHERE id = $1
		RETURNING`+executionColumns,
		id, status, at, status.IsTerminal(),
	)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("UpdateStatus", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to update execution status: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByPipeline(ctx context.Context, pipelineID string, limit int) ([]*models.Execution, error) {
	return r.list(ctx, "pipeline_id", pipelineID, limit)
}

func (r *ExecutionRepository) ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.Execution, error) {
	return r.list(ctx, "trigger_id", triggerID, limit)
}

// list filters on column, which is always a literal chosen by the caller.
func (r *ExecutionRepository) list(ctx context.Context, column, value string, limit int) ([]*models.Execution, error) {
	query := `SELECT` + executionColumns + `
		FROM pipeline_executions
		WHERE ` + column + ` = $1
		ORDER BY started_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`

	rows, err := r.db.QueryContext(ctx, query, value, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution                                        models.Execution
		triggerID, triggerType, upstreamPipeline, upExec sql.NullString
		completedAt                                      sql.NullTime
		durationMs                                       sql.NullInt64
	)

	err := row.Scan(
		&execution.ID,
		&execution.PipelineID,
		&execution.Status,
		&triggerID,
		&triggerType,
		&upstreamPipeline,
		&upExec,
		&execution.StartedAt,
		&completedAt,
		&durationMs,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.TriggerID = triggerID.String
	execution.TriggerType = models.TriggerType(triggerType.String)

	if upstreamPipeline.Valid {
		execution.TriggeredBy = &models.TriggeredBy{
			UpstreamPipelineID:  upstreamPipeline.String,
			UpstreamExecutionID: upExec.String,
		}
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	if durationMs.Valid {
		execution.DurationMs = &durationMs.Int64
	}

	return &execution, nil
}
