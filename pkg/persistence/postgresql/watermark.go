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

const watermarkColumns = `
			id
		  , source_id
		  , watermark_column
		  , watermark_type
		  , current_value
		  , previous_value
		  , last_run_rows_processed
		  , total_rows_processed
		  , last_successful_run
		  , created_at
		  , updated_at`

// WatermarkRepository handles source watermark database operations.
type WatermarkRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *WatermarkRepository) Get(ctx context.Context, sourceID string) (*models.Watermark, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+watermarkColumns+` FROM source_watermarks WHERE source_id = $1`, sourceID)

	watermark, err := scanWatermark(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("Get", "watermark", sourceID, persistence.ErrWatermarkNotFound)
		}

		return nil, fmt.Errorf("failed to scan watermark: %w", err)
	}

	return watermark, nil
}

// Advance locks the source row, then shifts current into previous and adds
// the processed rows in a single upsert.
func (r *WatermarkRepository) Advance(ctx context.Context, adv models.WatermarkAdvance) (previous, current *models.Watermark, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT`+watermarkColumns+` FROM source_watermarks WHERE source_id = $1 FOR UPDATE`, adv.SourceID)

	previous, err = scanWatermark(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("failed to lock watermark: %w", err)
		}

		previous = nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate watermark ID: %w", err)
	}

	var newValue sql.NullString
	if adv.NewValue != nil {
		newValue = sql.NullString{String: *adv.NewValue, Valid: true}
	}

	row = tx.QueryRowContext(ctx, `
		INSERT INTO source_watermarks (`+watermarkColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULL, $6, $6, $7, $7, $7)
		ON CONFLICT (source_id) DO UPDATE SET
			watermark_column = EXCLUDED.watermark_column,
			watermark_type = EXCLUDED.watermark_type,
			previous_value = source_watermarks.current_value,
			current_value = EXCLUDED.current_value,
			last_run_rows_processed = EXCLUDED.last_run_rows_processed,
			total_rows_processed = source_watermarks.total_rows_processed + EXCLUDED.last_run_rows_processed,
			last_successful_run = EXCLUDED.last_successful_run,
			updated_at = EXCLUDED.updated_at
		RETURNING`+watermarkColumns,
		id.String(),
		adv.SourceID,
		adv.Column,
		adv.Type,
		newValue,
		adv.RowsProcessed,
		time.Now().UTC(),
	)

	current, err = scanWatermark(row)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to advance watermark: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to commit watermark: %w", err)
	}

	return previous, current, nil
}

func (r *WatermarkRepository) Delete(ctx context.Context, sourceID string) (*models.Watermark, error) {
	row := r.db.QueryRowContext(ctx, `DELETE FROM source_watermarks WHERE source_id = $1 RETURNING`+watermarkColumns, sourceID)

	watermark, err := scanWatermark(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("Delete", "watermark", sourceID, persistence.ErrWatermarkNotFound)
		}

		return nil, fmt.Errorf("failed to delete watermark: %w", err)
	}

	return watermark, nil
}

func scanWatermark(row scanner) (*models.Watermark, error) {
	var (
		watermark                   models.Watermark
		currentValue, previousValue sql.NullString
		lastSuccessfulRun           sql.NullTime
	)

	err := row.Scan(
		&watermark.ID,
		&watermark.SourceID,
		&watermark.WatermarkColumn,
		&watermark.WatermarkType,
		&currentValue,
		&previousValue,
		&watermark.LastRunRowsProcessed,
		&watermark.TotalRowsProcessed,
		&lastSuccessfulRun,
		&watermark.CreatedAt,
		&watermark.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentValue.Valid {
		watermark.CurrentValue = &currentValue.String
	}

	if previousValue.Valid {
		watermark.PreviousValue = &previousValue.String
	}

	if lastSuccessfulRun.Valid {
		watermark.LastSuccessfulRun = &lastSuccessfulRun.Time
	}

	return &watermark, nil
}
