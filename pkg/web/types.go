package web

import (
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/services"
)

// CreatePipelineRequest represents the request body for creating a pipeline.
type CreatePipelineRequest struct {
	Name        string             `json:"name"                  validate:"required,min=3"`
	Description string             `json:"description,omitempty"`
	Team        string             `json:"team"                  validate:"required"`
	Environment models.Environment `json:"environment"           validate:"required,oneof=dev qa uat prod"`
}

// UpdatePipelineRequest represents a partial pipeline update.
type UpdatePipelineRequest struct {
	Name        *string             `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string             `json:"description,omitempty"`
	Team        *string             `json:"team,omitempty"        validate:"omitempty,min=1"`
	Environment *models.Environment `json:"environment,omitempty" validate:"omitempty,oneof=dev qa uat prod"`
}

// TriggerRequest is the body of trigger creation and partial updates.
// Fields that do not belong to the trigger type are ignored.
type TriggerRequest struct {
	TriggerType models.TriggerType `json:"triggerType"`
	TriggerName *string            `json:"triggerName,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`

	CronExpression *string `json:"cronExpression,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`

	DependsOnPipelineID *string                     `json:"dependsOnPipelineId,omitempty"`
	DependencyCondition *models.DependencyCondition `json:"dependencyCondition,omitempty"`
	DelayMinutes        *int                        `json:"delayMinutes,omitempty"`

	EventType   *models.EventType `json:"eventType,omitempty"`
	EventConfig map[string]any    `json:"eventConfig,omitempty"`
}

func (r TriggerRequest) input() services.TriggerInput {
	return services.TriggerInput{
		TriggerType:         r.TriggerType,
		Name:                r.TriggerName,
		Enabled:             r.Enabled,
		CronExpression:      r.CronExpression,
		Timezone:            r.Timezone,
		DependsOnPipelineID: r.DependsOnPipelineID,
		DependencyCondition: r.DependencyCondition,
		DelayMinutes:        r.DelayMinutes,
		EventType:           r.EventType,
		EventConfig:         r.EventConfig,
	}
}

type ValidateDependencyRequest struct {
	DependsOnPipelineID string `json:"dependsOnPipelineId" validate:"required"`
}

// CompleteExecutionRequest reports the final status of an execution.
type CompleteExecutionRequest struct {
	Status     models.ExecutionStatus `json:"status"`
	PipelineID string                 `json:"pipelineId"`
}

// RegisterDatasetRequest announces the output of a layer write.
type RegisterDatasetRequest struct {
	Layer       models.Layer              `json:"layer"                 validate:"required,oneof=bronze silver gold"`
	TableName   string                    `json:"tableName"             validate:"required"`
	Environment models.Environment        `json:"environment"           validate:"required,oneof=dev qa uat prod"`
	Status      *models.DatasetState      `json:"status,omitempty"`
	ExecutionID string                    `json:"executionId,omitempty"`
	FilePath    string                    `json:"filePath,omitempty"`
	Schema      []models.ColumnDescriptor `json:"schema,omitempty"`
	RowCount    int64                     `json:"rowCount"              validate:"gte=0"`
	FileSize    int64                     `json:"fileSize"              validate:"gte=0"`
}

// DatasetStatusRequest is the producer-side status write. At least one field
// is required.
type DatasetStatusRequest struct {
	Status      *models.DatasetState `json:"status,omitempty"`
	ExecutionID *string              `json:"executionId,omitempty"`
	RowCount    *int64               `json:"rowCount,omitempty"`
	FilePath    *string              `json:"filePath,omitempty"`
}

// ResolveDatasetsRequest asks for the readiness of a transform's inputs.
type ResolveDatasetsRequest struct {
	Datasets     []string           `json:"datasets"`
	Environment  models.Environment `json:"environment,omitempty"`
	Layer        models.Layer       `json:"layer,omitempty"`
	RequireReady bool               `json:"requireReady"`
}

// AdvanceWatermarkRequest records one successful incremental run.
type AdvanceWatermarkRequest struct {
	WatermarkColumn string               `json:"watermarkColumn"`
	WatermarkType   models.WatermarkType `json:"watermarkType"`
	NewValue        *string              `json:"newValue"`
	RowsProcessed   int64                `json:"rowsProcessed"`
}
