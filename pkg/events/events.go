// Package events defines the event types exchanged on the conductor event bus.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/models"
)

type EventType string

// Kafka topic shared by every conductor event.
const Topic = "conductor.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// PipelineExecutionFinishedEvent is published by the execution engine when a run reaches a final status.
	PipelineExecutionFinishedEvent EventType = "pipeline.execution.finished"
	// PipelineTriggeredEvent asks the execution engine to start a pending execution.
	PipelineTriggeredEvent EventType = "pipeline.triggered"

	TriggerCreatedEvent EventType = "trigger.created"
	TriggerUpdatedEvent EventType = "trigger.updated"
	TriggerDeletedEvent EventType = "trigger.deleted"

	DatasetStatusChangedEvent EventType = "dataset.status.changed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	PipelineID string         `json:"pipelineId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, pipelineID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		PipelineID: pipelineID,
		Metadata:   make(map[string]any),
	}
}

// PipelineExecutionFinished reports the final status of one execution.
type PipelineExecutionFinished struct {
	BaseEvent

	ExecutionID string                 `json:"executionId"`
	Status      models.ExecutionStatus `json:"status"`
}

func (e PipelineExecutionFinished) GetType() EventType {
	return PipelineExecutionFinishedEvent
}

// Validate checks the fields the cascade needs.
func (e PipelineExecutionFinished) Validate() error {
	if e.PipelineID == "" {
		return errors.New("pipelineId is required")
	}

	if e.ExecutionID == "" {
		return errors.New("executionId is required")
	}

	if e.Status == "" {
		return errors.New("status is required")
	}

	return nil
}

// PipelineTriggered carries a dispatch to the execution engine.
type PipelineTriggered struct {
	BaseEvent

	ExecutionID string              `json:"executionId"`
	TriggerID   string              `json:"triggerId"`
	TriggerType models.TriggerType  `json:"triggerType"`
	TriggeredBy *models.TriggeredBy `json:"triggeredBy,omitempty"`
	Attempt     int                 `json:"attempt"`
}

func (e PipelineTriggered) GetType() EventType {
	return PipelineTriggeredEvent
}

// TriggerChanged describes a trigger lifecycle change. Type tells created,
// updated and deleted apart.
type TriggerChanged struct {
	BaseEvent

	TriggerID   string             `json:"triggerId"`
	TriggerType models.TriggerType `json:"triggerType"`
	Enabled     bool               `json:"enabled"`
}

func (e TriggerChanged) GetType() EventType {
	return e.Type
}

func NewTriggerChanged(eventType EventType, trigger *models.Trigger) *TriggerChanged {
	return &TriggerChanged{
		BaseEvent:   NewBaseEvent(eventType, trigger.PipelineID),
		TriggerID:   trigger.ID,
		TriggerType: trigger.TriggerType,
		Enabled:     trigger.Enabled,
	}
}

// DatasetStatusChanged is published after a producer updates a catalog entry.
type DatasetStatusChanged struct {
	BaseEvent

	DatasetID       string              `json:"datasetId"`
	TableName       string              `json:"tableName"`
	Layer           models.Layer        `json:"layer"`
	Environment     models.Environment  `json:"environment"`
	Status          models.DatasetState `json:"status"`
	LastExecutionID string              `json:"lastExecutionId,omitempty"`
}

func (e DatasetStatusChanged) GetType() EventType {
	return DatasetStatusChangedEvent
}

func NewDatasetStatusChanged(entry *models.CatalogEntry) *DatasetStatusChanged {
	return &DatasetStatusChanged{
		BaseEvent:       NewBaseEvent(DatasetStatusChangedEvent, ""),
		DatasetID:       entry.ID,
		TableName:       entry.TableName,
		Layer:           entry.Layer,
		Environment:     entry.Environment,
		Status:          entry.Status.State(),
		LastExecutionID: entry.LastExecutionID,
	}
}
