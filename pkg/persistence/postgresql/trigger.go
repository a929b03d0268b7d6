package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

// triggerGraphLockKey is the advisory lock serializing dependency-graph writes.
const triggerGraphLockKey = 7_245_001

const triggerColumns = `
			id
		  , pipeline_id
		  , trigger_type
		  , enabled
		  , trigger_name
		  , cron_expression
		  , timezone
		  , next_run_at
		  , last_run_at
		  , depends_on_pipeline_id
		  , dependency_condition
		  , delay_minutes
		  , event_type
		  , event_config
		  , created_at
		  , updated_at`

// TriggerRepository handles trigger-related database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *TriggerRepository) GetByID(ctx context.Context, pipelineID, triggerID string) (*models.Trigger, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+triggerColumns+` FROM pipeline_triggers WHERE id = $1 AND pipeline_id = $2`,
		triggerID, pipelineID,
	)

	trigger, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "trigger", triggerID, persistence.ErrTriggerNotFound)
		}

		return nil, fmt.Errorf("failed to scan trigger: %w", err)
	}

	return trigger, nil
}

func (r *TriggerRepository) ListByPipeline(ctx context.Context, pipelineID string) ([]*models.Trigger, error) {
	return r.list(ctx, `SELECT`+triggerColumns+`
		FROM pipeline_triggers
		WHERE pipeline_id = $1
		ORDER BY created_at, id
	`, pipelineID)
}

func (r *TriggerRepository) ListDependents(ctx context.Context, upstreamID string) ([]*models.Trigger, error) {
	return r.list(ctx, `SELECT`+triggerColumns+`
		FROM pipeline_triggers
		WHERE trigger_type = 'dependency'
		  AND enabled = true
		  AND depends_on_pipeline_id = $1
		ORDER BY created_at, id
	`, upstreamID)
}

func (r *TriggerRepository) DependencyEdges(ctx context.Context) ([]models.DependencyEdge, error) {
	return r.edges(ctx, r.db)
}

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	return r.upsert(ctx, r.db, trigger)
}

// SaveGuarded takes a transaction-scoped advisory lock, reads the edges and
// writes the trigger inside the same transaction.
func (r *TriggerRepository) SaveGuarded(ctx context.Context, trigger *models.Trigger, check persistence.EdgeCheck) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", triggerGraphLockKey)
	if err != nil {
		return fmt.Errorf("failed to lock trigger graph: %w", err)
	}

	edges, err := r.edges(ctx, tx)
	if err != nil {
		return err
	}

	err = check(edges)
	if err != nil {
		return err
	}

	err = r.upsert(ctx, tx, trigger)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit trigger: %w", err)
	}

	return nil
}

func (r *TriggerRepository) UpdateNextRun(ctx context.Context, triggerID string, nextRunAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE pipeline_triggers SET next_run_at = $2 WHERE id = $1",
		triggerID, nextRunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update trigger next run: %w", err)
	}

	return requireAffected(result, persistence.NewEntityError("UpdateNextRun", "trigger", triggerID, persistence.ErrTriggerNotFound))
}

func (r *TriggerRepository) Delete(ctx context.Context, pipelineID, triggerID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM pipeline_triggers WHERE id = $1 AND pipeline_id = $2",
		triggerID, pipelineID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	return requireAffected(result, persistence.NewEntityError("Delete", "trigger", triggerID, persistence.ErrTriggerNotFound))
}

func (r *TriggerRepository) upsert(ctx context.Context, q queryer, trigger *models.Trigger) error {
	now := time.Now().UTC()

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	if trigger.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate trigger ID: %w", err)
		}

		trigger.ID = id.String()
	}

	var eventConfig sql.NullString

	if trigger.EventConfig != nil {
		data, err := json.Marshal(trigger.EventConfig)
		if err != nil {
			return fmt.Errorf("failed to marshal event config: %w", err)
		}

		eventConfig = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO pipeline_triggers (` + triggerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			trigger_type = EXCLUDED.trigger_type,
			enabled = EXCLUDED.enabled,
			trigger_name = EXCLUDED.trigger_name,
			cron_expression = EXCLUDED.cron_expression,
			timezone = EXCLUDED.timezone,
			next_run_at = EXCLUDED.next_run_at,
			last_run_at = EXCLUDED.last_run_at,
			depends_on_pipeline_id = EXCLUDED.depends_on_pipeline_id,
			dependency_condition = EXCLUDED.dependency_condition,
			delay_minutes = EXCLUDED.delay_minutes,
			event_type = EXCLUDED.event_type,
			event_config = EXCLUDED.event_config,
			updated_at = EXCLUDED.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		trigger.ID,
		trigger.PipelineID,
		trigger.TriggerType,
		trigger.Enabled,
		nullString(trigger.Name),
		nullString(trigger.CronExpression),
		nullString(trigger.Timezone),
		trigger.NextRunAt,
		trigger.LastRunAt,
		nullString(trigger.DependsOnPipelineID),
		nullString(string(trigger.DependencyCondition)),
		trigger.DelayMinutes,
		nullString(string(trigger.EventType)),
		eventConfig,
		trigger.CreatedAt,
		trigger.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return persistence.NewEntityError("Save", "trigger", trigger.ID, persistence.ErrPipelineNotFound)
		}

		return fmt.Errorf("failed to save trigger: %w", err)
	}

	return nil
}

func (r *TriggerRepository) edges(ctx context.Context, q queryer) ([]models.DependencyEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, pipeline_id, depends_on_pipeline_id
		FROM pipeline_triggers
		WHERE trigger_type = 'dependency'
		  AND depends_on_pipeline_id IS NOT NULL
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependency edges: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	edges := make([]models.DependencyEdge, 0)

	for rows.Next() {
		var edge models.DependencyEdge

		err := rows.Scan(&edge.TriggerID, &edge.Downstream, &edge.Upstream)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency edge: %w", err)
		}

		edges = append(edges, edge)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating dependency edges: %w", err)
	}

	return edges, nil
}

func (r *TriggerRepository) list(ctx context.Context, query string, args ...any) ([]*models.Trigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func scanTrigger(row scanner) (*models.Trigger, error) {
	var (
		trigger                                           models.Trigger
		name, cron, timezone, dependsOn, condition, event sql.NullString
		nextRunAt, lastRunAt                              sql.NullTime
		eventConfig                                       []byte
	)

	err := row.Scan(
		&trigger.ID,
		&trigger.PipelineID,
		&trigger.TriggerType,
		&trigger.Enabled,
		&name,
		&cron,
		&timezone,
		&nextRunAt,
		&lastRunAt,
		&dependsOn,
		&condition,
		&trigger.DelayMinutes,
		&event,
		&eventConfig,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	trigger.Name = name.String
	trigger.CronExpression = cron.String
	trigger.Timezone = timezone.String
	trigger.DependsOnPipelineID = dependsOn.String
	trigger.DependencyCondition = models.DependencyCondition(condition.String)
	trigger.EventType = models.EventType(event.String)

	if nextRunAt.Valid {
		trigger.NextRunAt = &nextRunAt.Time
	}

	if lastRunAt.Valid {
		trigger.LastRunAt = &lastRunAt.Time
	}

	if len(eventConfig) > 0 {
		err := json.Unmarshal(eventConfig, &trigger.EventConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event config: %w", err)
		}
	}

	return &trigger, nil
}

func requireAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return notFound
	}

	return nil
}
