package models

import "time"

// ExecutionStatus is the lifecycle state of one pipeline run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is expected.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// IsValid reports whether s is a known execution status.
func (s ExecutionStatus) IsValid() bool {
	return s == ExecutionStatusPending || s == ExecutionStatusRunning || s.IsTerminal()
}

// TriggeredBy records the upstream run that caused a cascade-spawned execution.
type TriggeredBy struct {
	UpstreamPipelineID  string `json:"upstreamPipelineId"`
	UpstreamExecutionID string `json:"upstreamExecutionId"`
}

// Execution is one run instance of a pipeline.
type Execution struct {
	ID          string          `json:"id"`
	PipelineID  string          `json:"pipelineId"`
	Status      ExecutionStatus `json:"status"`
	TriggerID   string          `json:"triggerId,omitempty"`
	TriggerType TriggerType     `json:"triggerType,omitempty"`
	TriggeredBy *TriggeredBy    `json:"triggeredBy,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	DurationMs  *int64          `json:"durationMs,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
