package services

import (
	"testing"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermark_AdvanceAndReset(t *testing.T) {
	service := NewWatermark(newTestStore(t), testLogger())

	advance := func(value string, rows int64) *AdvanceResult {
		t.Helper()

		result, err := service.Advance(t.Context(), models.WatermarkAdvance{
			SourceID:      "crm-contacts",
			Column:        "updated_at",
			Type:          models.WatermarkTypeTimestamp,
			NewValue:      ptr(value),
			RowsProcessed: rows,
		})
		require.NoError(t, err)

		return result
	}

	first := advance("2024-01-01T00:00:00Z", 500)
	assert.Equal(t, WatermarkCreated, first.Action)
	assert.Nil(t, first.PreviousValue)

	second := advance("2024-01-02T00:00:00Z", 20)
	assert.Equal(t, WatermarkUpdated, second.Action)
	require.NotNil(t, second.PreviousValue)
	assert.Equal(t, "2024-01-01T00:00:00Z", *second.PreviousValue)
	assert.Equal(t, int64(520), second.Watermark.TotalRowsProcessed)
	assert.Equal(t, int64(20), second.Watermark.LastRunRowsProcessed)

	stored, err := service.Get(t.Context(), "crm-contacts")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T00:00:00Z", *stored.CurrentValue)

	_, err = service.Reset(t.Context(), "crm-contacts")
	require.NoError(t, err)

	_, err = service.Get(t.Context(), "crm-contacts")
	assert.ErrorIs(t, err, persistence.ErrWatermarkNotFound)

	_, err = service.Reset(t.Context(), "crm-contacts")
	assert.True(t, IsNotFoundError(err))

	restarted := advance("2024-02-01T00:00:00Z", 7)
	assert.Equal(t, WatermarkCreated, restarted.Action)
	assert.Equal(t, int64(7), restarted.Watermark.TotalRowsProcessed)
}

func TestWatermark_AdvanceValidation(t *testing.T) {
	service := NewWatermark(newTestStore(t), testLogger())

	tests := []struct {
		name string
		adv  models.WatermarkAdvance
	}{
		{name: "missing source", adv: models.WatermarkAdvance{Column: "id", Type: models.WatermarkTypeInteger}},
		{name: "missing column", adv: models.WatermarkAdvance{SourceID: "s", Type: models.WatermarkTypeInteger}},
		{name: "unknown type", adv: models.WatermarkAdvance{SourceID: "s", Column: "id", Type: "uuid"}},
		{name: "negative rows", adv: models.WatermarkAdvance{SourceID: "s", Column: "id", Type: models.WatermarkTypeInteger, RowsProcessed: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Advance(t.Context(), tt.adv)
			assert.True(t, IsValidationError(err))
		})
	}
}
