package models

import "time"

// Dispatch is the durable intent to launch a pending downstream execution.
type Dispatch struct {
	ID          string       `json:"id"`
	ExecutionID string       `json:"executionId"`
	PipelineID  string       `json:"pipelineId"`
	TriggerID   string       `json:"triggerId"`
	TriggeredBy *TriggeredBy `json:"triggeredBy,omitempty"`
	FireAt      time.Time    `json:"fireAt"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"lastError,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}
