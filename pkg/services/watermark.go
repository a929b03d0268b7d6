package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

type Watermark struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewWatermark(p persistence.Persistence, logger *slog.Logger) *Watermark {
	return &Watermark{
		persistence: p,
		logger:      logger.With("module", "watermark_service"),
	}
}

const (
	WatermarkCreated = "created"
	WatermarkUpdated = "updated"
)

// AdvanceResult reports what a successful incremental run did to the cursor.
type AdvanceResult struct {
	Action        string            `json:"action"`
	PreviousValue *string           `json:"previousValue"`
	Watermark     *models.Watermark `json:"watermark"`
}

func (s *Watermark) Get(ctx context.Context, sourceID string) (*models.Watermark, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, NewValidationError("Get", "MISSING_SOURCE", "sourceId is required")
	}

	return s.persistence.WatermarkRepository().Get(ctx, sourceID)
}

// Advance records a successful incremental run. It must only be called after
// the run's data was durably written.
func (s *Watermark) Advance(ctx context.Context, adv models.WatermarkAdvance) (*AdvanceResult, error) {
	adv.SourceID = strings.TrimSpace(adv.SourceID)
	adv.Column = strings.TrimSpace(adv.Column)

	if adv.SourceID == "" {
		return nil, NewValidationError("Advance", "MISSING_SOURCE", "sourceId is required")
	}

	if adv.Column == "" || adv.Type == "" {
		return nil, NewValidationError("Advance", "MISSING_FIELDS", "missing required fields: watermarkColumn, watermarkType")
	}

	switch adv.Type {
	case models.WatermarkTypeTimestamp, models.WatermarkTypeInteger, models.WatermarkTypeDate:
	default:
		return nil, NewValidationError("Advance", "INVALID_WATERMARK_TYPE",
			fmt.Sprintf("invalid watermarkType %q, must be one of: timestamp, integer, date", adv.Type))
	}

	if adv.RowsProcessed < 0 {
		return nil, NewValidationError("Advance", "INVALID_ROWS", "rowsProcessed must not be negative")
	}

	previous, current, err := s.persistence.WatermarkRepository().Advance(ctx, adv)
	if err != nil {
		return nil, fmt.Errorf("failed to advance watermark: %w", err)
	}

	result := &AdvanceResult{Action: WatermarkCreated, Watermark: current}
	if previous != nil {
		result.Action = WatermarkUpdated
		result.PreviousValue = previous.CurrentValue
	}

	s.logger.InfoContext(ctx, "watermark advanced",
		"source_id", adv.SourceID, "action", result.Action, "rows", adv.RowsProcessed,
		"total_rows", current.TotalRowsProcessed)

	return result, nil
}

// Reset deletes the watermark so the next run performs a full load.
func (s *Watermark) Reset(ctx context.Context, sourceID string) (*models.Watermark, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, NewValidationError("Reset", "MISSING_SOURCE", "sourceId is required")
	}

	deleted, err := s.persistence.WatermarkRepository().Delete(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "watermark reset, next run will process all data", "source_id", sourceID)

	return deleted, nil
}
