package models

import "time"

// TriggerType identifies the automation rule kind.
type TriggerType string

const (
	TriggerTypeManual     TriggerType = "manual"
	TriggerTypeScheduled  TriggerType = "scheduled"
	TriggerTypeDependency TriggerType = "dependency"
	TriggerTypeEvent      TriggerType = "event"
)

// IsValid reports whether t is a known trigger type.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerTypeManual, TriggerTypeScheduled, TriggerTypeDependency, TriggerTypeEvent:
		return true
	default:
		return false
	}
}

// DependencyCondition decides which upstream outcomes fire a dependency trigger.
type DependencyCondition string

const (
	ConditionOnSuccess    DependencyCondition = "on_success"
	ConditionOnFailure    DependencyCondition = "on_failure"
	ConditionOnCompletion DependencyCondition = "on_completion"
)

// IsValid reports whether c is a known dependency condition.
func (c DependencyCondition) IsValid() bool {
	switch c {
	case ConditionOnSuccess, ConditionOnFailure, ConditionOnCompletion:
		return true
	default:
		return false
	}
}

// EventType names the external signal an event trigger listens for.
type EventType string

const (
	EventTypeFileArrival    EventType = "file_arrival"
	EventTypeWebhook        EventType = "webhook"
	EventTypeAPICall        EventType = "api_call"
	EventTypeS3Event        EventType = "s3_event"
	EventTypeSFTPArrival    EventType = "sftp_arrival"
	EventTypeDatabaseChange EventType = "database_change"
)

// DefaultTimezone is applied to scheduled triggers created without one.
const DefaultTimezone = "UTC"

// MaxDelayMinutes bounds the dependency delay to one week.
const MaxDelayMinutes = 7 * 24 * 60

// Trigger is an automation rule attached to exactly one pipeline.
//
// The type-specific fields are only meaningful for their TriggerType:
// scheduled triggers use the cron fields, dependency triggers the upstream
// fields and event triggers the event fields.
type Trigger struct {
	ID          string      `json:"id"`
	PipelineID  string      `json:"pipelineId"`
	TriggerType TriggerType `json:"triggerType"`
	Enabled     bool        `json:"enabled"`
	Name        string      `json:"triggerName,omitempty"`

	CronExpression string     `json:"cronExpression,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`

	DependsOnPipelineID   string              `json:"dependsOnPipelineId,omitempty"`
	DependsOnPipelineName string              `json:"dependsOnPipelineName,omitempty"`
	DependencyCondition   DependencyCondition `json:"dependencyCondition,omitempty"`
	DelayMinutes          int                 `json:"delayMinutes"`

	EventType   EventType      `json:"eventType,omitempty"`
	EventConfig map[string]any `json:"eventConfig,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsDependency reports whether the trigger is a dependency edge.
func (t *Trigger) IsDependency() bool {
	return t.TriggerType == TriggerTypeDependency && t.DependsOnPipelineID != ""
}

// IsScheduled reports whether the trigger carries a cron schedule.
func (t *Trigger) IsScheduled() bool {
	return t.TriggerType == TriggerTypeScheduled && t.CronExpression != ""
}

// Edge returns the dependency edge downstream -> upstream described by the trigger.
func (t *Trigger) Edge() DependencyEdge {
	return DependencyEdge{
		TriggerID:  t.ID,
		Downstream: t.PipelineID,
		Upstream:   t.DependsOnPipelineID,
	}
}

// DependencyEdge says Downstream runs after Upstream.
type DependencyEdge struct {
	TriggerID  string `json:"triggerId"`
	Downstream string `json:"downstream"`
	Upstream   string `json:"upstream"`
}
