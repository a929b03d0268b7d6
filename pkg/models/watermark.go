package models

import "time"

// WatermarkType is the value domain of a watermark column.
type WatermarkType string

const (
	WatermarkTypeTimestamp WatermarkType = "timestamp"
	WatermarkTypeInteger   WatermarkType = "integer"
	WatermarkTypeDate      WatermarkType = "date"
)

// Watermark is the incremental-extraction cursor of one source.
type Watermark struct {
	ID                   string        `json:"id"`
	SourceID             string        `json:"sourceId"`
	WatermarkColumn      string        `json:"watermarkColumn"`
	WatermarkType        WatermarkType `json:"watermarkType"`
	CurrentValue         *string       `json:"currentValue"`
	PreviousValue        *string       `json:"previousValue"`
	LastRunRowsProcessed int64         `json:"lastRunRowsProcessed"`
	TotalRowsProcessed   int64         `json:"totalRowsProcessed"`
	LastSuccessfulRun    *time.Time    `json:"lastSuccessfulRun,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// WatermarkAdvance is one successful incremental run reported by a source.
type WatermarkAdvance struct {
	SourceID      string
	Column        string
	Type          WatermarkType
	NewValue      *string
	RowsProcessed int64
}

// Advance shifts the current value into the previous slot and accumulates
// the processed row count. A nil receiver starts a fresh watermark.
func (w *Watermark) Advance(id string, adv WatermarkAdvance, now time.Time) *Watermark {
	if w == nil {
		return &Watermark{
			ID:                   id,
			SourceID:             adv.SourceID,
			WatermarkColumn:      adv.Column,
			WatermarkType:        adv.Type,
			CurrentValue:         adv.NewValue,
			LastRunRowsProcessed: adv.RowsProcessed,
			TotalRowsProcessed:   adv.RowsProcessed,
			LastSuccessfulRun:    &now,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
	}

	next := *w
	next.WatermarkColumn = adv.Column
	next.WatermarkType = adv.Type
	next.PreviousValue = w.CurrentValue
	next.CurrentValue = adv.NewValue
	next.LastRunRowsProcessed = adv.RowsProcessed
	next.TotalRowsProcessed = w.TotalRowsProcessed + adv.RowsProcessed
	next.LastSuccessfulRun = &now
	next.UpdatedAt = now

	return &next
}
