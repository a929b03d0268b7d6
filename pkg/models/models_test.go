package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestPipeline_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	valid := &Pipeline{Name: "orders_bronze", Team: "data-eng", Environment: EnvironmentProd}
	assert.NoError(t, validate.Struct(valid))

	invalid := &Pipeline{Name: "ab", Team: "data-eng", Environment: "staging"}
	err := validate.Struct(invalid)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, fieldErr.Field())
	}

	assert.ElementsMatch(t, []string{"Name", "Environment"}, fields)
}

func TestEnums(t *testing.T) {
	assert.True(t, EnvironmentUAT.IsValid())
	assert.False(t, Environment("production").IsValid())
	assert.True(t, LayerGold.IsValid())
	assert.False(t, Layer("platinum").IsValid())
	assert.True(t, TriggerTypeEvent.IsValid())
	assert.False(t, TriggerType("cron").IsValid())
	assert.True(t, ConditionOnCompletion.IsValid())
	assert.False(t, DependencyCondition("always").IsValid())
	assert.True(t, ExecutionStatusCancelled.IsTerminal())
	assert.False(t, ExecutionStatusRunning.IsTerminal())
}

func TestDatasetStatus_LegacyIsReady(t *testing.T) {
	var zero DatasetStatus

	assert.True(t, zero.IsLegacy())
	assert.True(t, zero.IsReady())
	assert.Equal(t, DatasetStateReady, zero.State())
	assert.Equal(t, LegacyReadyStatus(), zero)

	running := KnownStatus(DatasetStateRunning)
	assert.False(t, running.IsLegacy())
	assert.False(t, running.IsReady())

	ready := KnownStatus(DatasetStateReady)
	assert.False(t, ready.IsLegacy())
	assert.True(t, ready.IsReady())
}

func TestDatasetStatus_JSON(t *testing.T) {
	entry := CatalogEntry{TableName: "bronze_orders", Status: LegacyReadyStatus()}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"datasetStatus":null`)

	var decoded CatalogEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Status.IsLegacy())

	entry.Status = KnownStatus(DatasetStateFailed)
	data, err = json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"datasetStatus":"failed"`)

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, KnownStatus(DatasetStateFailed), decoded.Status)

	err = json.Unmarshal([]byte(`{"datasetStatus":"done"}`), &decoded)
	assert.Error(t, err)
}

func TestDatasetStatus_Scan(t *testing.T) {
	var status DatasetStatus

	require.NoError(t, status.Scan(nil))
	assert.True(t, status.IsLegacy())

	require.NoError(t, status.Scan([]byte("running")))
	assert.Equal(t, KnownStatus(DatasetStateRunning), status)

	value, err := LegacyReadyStatus().Value()
	require.NoError(t, err)
	assert.Nil(t, value)

	value, err = KnownStatus(DatasetStatePending).Value()
	require.NoError(t, err)
	assert.Equal(t, "pending", value)

	assert.Error(t, status.Scan(42))
	assert.Error(t, status.Scan("archived"))
}

func TestDatasetStatusUpdate_Apply(t *testing.T) {
	now := time.Now().UTC()
	entry := &CatalogEntry{TableName: "silver_orders", RowCount: 10, FilePath: "s3://old"}

	update := DatasetStatusUpdate{
		Status:      ptr(DatasetStateReady),
		ExecutionID: ptr("exec-1"),
	}
	assert.False(t, update.IsEmpty())

	update.Apply(entry, now)

	assert.Equal(t, KnownStatus(DatasetStateReady), entry.Status)
	assert.Equal(t, "exec-1", entry.LastExecutionID)
	assert.Equal(t, int64(10), entry.RowCount)
	assert.Equal(t, "s3://old", entry.FilePath)
	assert.Equal(t, now, entry.UpdatedAt)

	assert.True(t, DatasetStatusUpdate{}.IsEmpty())
}

func TestWatermark_Advance(t *testing.T) {
	var watermark *Watermark

	values := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}
	rows := []int64{100, 0, 25, 7}

	var total int64

	for i, value := range values {
		now := time.Now().UTC()
		watermark = watermark.Advance("wm-1", WatermarkAdvance{
			SourceID:      "src-1",
			Column:        "updated_at",
			Type:          WatermarkTypeDate,
			NewValue:      ptr(value),
			RowsProcessed: rows[i],
		}, now)

		total += rows[i]

		assert.Equal(t, total, watermark.TotalRowsProcessed)
		assert.Equal(t, rows[i], watermark.LastRunRowsProcessed)
		assert.Equal(t, value, *watermark.CurrentValue)

		if i == 0 {
			assert.Nil(t, watermark.PreviousValue)
		} else {
			require.NotNil(t, watermark.PreviousValue)
			assert.Equal(t, values[i-1], *watermark.PreviousValue)
		}
	}

	assert.Equal(t, "wm-1", watermark.ID)
	assert.Equal(t, "src-1", watermark.SourceID)
}

func TestTrigger_Edge(t *testing.T) {
	trigger := &Trigger{
		ID:                  "t1",
		PipelineID:          "B",
		TriggerType:         TriggerTypeDependency,
		DependsOnPipelineID: "A",
	}

	assert.True(t, trigger.IsDependency())
	assert.False(t, trigger.IsScheduled())
	assert.Equal(t, DependencyEdge{TriggerID: "t1", Downstream: "B", Upstream: "A"}, trigger.Edge())
}
