package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/queue"
)

// DispatchQueue is a queue.Queue backed by the pipeline_dispatches outbox table.
// Claims use FOR UPDATE SKIP LOCKED so several workers can poll concurrently.
type DispatchQueue struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ queue.Queue = (*DispatchQueue)(nil)

func (q *DispatchQueue) Enqueue(ctx context.Context, dispatch *models.Dispatch) error {
	var upstreamPipelineID, upstreamExecutionID sql.NullString

	if dispatch.TriggeredBy != nil {
		upstreamPipelineID = nullString(dispatch.TriggeredBy.UpstreamPipelineID)
		upstreamExecutionID = nullString(dispatch.TriggeredBy.UpstreamExecutionID)
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pipeline_dispatches (
			id, execution_id, pipeline_id, trigger_id, upstream_pipeline_id,
			upstream_execution_id, fire_at, attempts, last_error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		dispatch.ID,
		dispatch.ExecutionID,
		dispatch.PipelineID,
		dispatch.TriggerID,
		upstreamPipelineID,
		upstreamExecutionID,
		dispatch.FireAt,
		dispatch.Attempts,
		nullString(dispatch.LastError),
		dispatch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue dispatch: %w", err)
	}

	return nil
}

func (q *DispatchQueue) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Dispatch, error) {
	rows, err := q.db.QueryContext(ctx, `
		WITH due AS (
			SELECT id, fire_at
			FROM pipeline_dispatches
			WHERE fire_at <= $1
			ORDER BY fire_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE pipeline_dispatches d
			SET fire_at = $3
			FROM due
			WHERE d.id = due.id
			RETURNING d.id, d.execution_id, d.pipeline_id, d.trigger_id, d.upstream_pipeline_id,
				d.upstream_execution_id, due.fire_at AS due_at, d.attempts, d.last_error, d.created_at
		)
		SELECT id, execution_id, pipeline_id, trigger_id, upstream_pipeline_id,
			upstream_execution_id, due_at, attempts, last_error, created_at
		FROM claimed
		ORDER BY due_at, id
	`, now, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim dispatches: %w", err)
	}

	defer closeRows(ctx, q.logger, rows)

	dispatches := make([]*models.Dispatch, 0)

	for rows.Next() {
		var (
			dispatch                       models.Dispatch
			upstreamPipeline, upstreamExec sql.NullString
			lastError                      sql.NullString
		)

		err := rows.Scan(
			&dispatch.ID,
			&dispatch.ExecutionID,
			&dispatch.PipelineID,
			&dispatch.TriggerID,
			&upstreamPipeline,
			&upstreamExec,
			&dispatch.FireAt,
			&dispatch.Attempts,
			&lastError,
			&dispatch.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}

		if upstreamPipeline.Valid {
			dispatch.TriggeredBy = &models.TriggeredBy{
				UpstreamPipelineID:  upstreamPipeline.String,
				UpstreamExecutionID: upstreamExec.String,
			}
		}

		dispatch.LastError = lastError.String
		dispatches = append(dispatches, &dispatch)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating dispatches: %w", err)
	}

	return dispatches, nil
}

func (q *DispatchQueue) Ack(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx, "DELETE FROM pipeline_dispatches WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to ack dispatch: %w", err)
	}

	return requireAffected(result, queue.ErrDispatchNotFound)
}

func (q *DispatchQueue) Retry(ctx context.Context, dispatch *models.Dispatch, fireAt time.Time) error {
	result, err := q.db.ExecContext(ctx,
		"UPDATE pipeline_dispatches SET fire_at = $2, attempts = $3, last_error = $4 WHERE id = $1",
		dispatch.ID, fireAt, dispatch.Attempts, nullString(dispatch.LastError),
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule dispatch: %w", err)
	}

	return requireAffected(result, queue.ErrDispatchNotFound)
}

func (q *DispatchQueue) Pending(ctx context.Context) (int, error) {
	var count int

	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pipeline_dispatches").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", err)
	}

	return count, nil
}

func (q *DispatchQueue) HealthCheck(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close is a no-op; the connection belongs to the owning Persistence.
func (q *DispatchQueue) Close() error {
	return nil
}
