package events

import (
	"encoding/json"
	"testing"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineExecutionFinished_Validate(t *testing.T) {
	tests := []struct {
		name        string
		event       PipelineExecutionFinished
		expectedErr string
	}{
		{
			name: "valid",
			event: PipelineExecutionFinished{
				BaseEvent:   NewBaseEvent(PipelineExecutionFinishedEvent, "A"),
				ExecutionID: "e1",
				Status:      models.ExecutionStatusCompleted,
			},
		},
		{
			name:        "missing pipeline",
			event:       PipelineExecutionFinished{ExecutionID: "e1", Status: models.ExecutionStatusFailed},
			expectedErr: "pipelineId is required",
		},
		{
			name: "missing execution",
			event: PipelineExecutionFinished{
				BaseEvent: NewBaseEvent(PipelineExecutionFinishedEvent, "A"),
				Status:    models.ExecutionStatusFailed,
			},
			expectedErr: "executionId is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.expectedErr == "" {
				assert.NoError(t, err)

				return
			}

			assert.EqualError(t, err, tt.expectedErr)
		})
	}
}

func TestTriggerChanged_TypeFollowsLifecycle(t *testing.T) {
	trigger := &models.Trigger{ID: "t1", PipelineID: "B", TriggerType: models.TriggerTypeDependency, Enabled: true}

	created := NewTriggerChanged(TriggerCreatedEvent, trigger)
	deleted := NewTriggerChanged(TriggerDeletedEvent, trigger)

	assert.Equal(t, TriggerCreatedEvent, created.GetType())
	assert.Equal(t, TriggerDeletedEvent, deleted.GetType())

	data, err := json.Marshal(created)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"triggerId":"t1"`)
	assert.Contains(t, string(data), `"pipelineId":"B"`)
}

func TestNewDatasetStatusChanged_LegacyReportsReady(t *testing.T) {
	event := NewDatasetStatusChanged(&models.CatalogEntry{ID: "c1", TableName: "orders", Layer: models.LayerGold})

	assert.Equal(t, models.DatasetStateReady, event.Status)
	assert.Equal(t, DatasetStatusChangedEvent, event.GetType())
}
