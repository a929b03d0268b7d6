package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/events"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/otelhelper"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/queue"
	"github.com/medallionhq/conductor/pkg/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const reasonPipelineNotFound = "Pipeline not found"

// CompleteRequest reports the final status of one upstream execution.
type CompleteRequest struct {
	PipelineID  string
	ExecutionID string
	Status      models.ExecutionStatus
}

// Triggered is a downstream pipeline whose execution was created and queued.
type Triggered struct {
	TriggerID    string                     `json:"triggerId"`
	WorkflowID   string                     `json:"workflowId"`
	WorkflowName string                     `json:"workflowName"`
	ExecutionID  string                     `json:"executionId"`
	Condition    models.DependencyCondition `json:"condition"`
	DelayMinutes int                        `json:"delayMinutes"`
	FireAt       time.Time                  `json:"fireAt"`
}

// Skipped is a dependency trigger that did not produce a downstream run.
type Skipped struct {
	TriggerID    string `json:"triggerId"`
	WorkflowID   string `json:"workflowId"`
	WorkflowName string `json:"workflowName,omitempty"`
	Reason       string `json:"reason"`
}

// Summary is the outcome of one completion.
type Summary struct {
	TriggeredCount int         `json:"triggeredCount"`
	SkippedCount   int         `json:"skippedCount"`
	Triggered      []Triggered `json:"triggered"`
	Skipped        []Skipped   `json:"skipped"`
}

func newSummary() *Summary {
	return &Summary{Triggered: []Triggered{}, Skipped: []Skipped{}}
}

func (s *Summary) trigger(t Triggered) {
	s.Triggered = append(s.Triggered, t)
	s.TriggeredCount = len(s.Triggered)
}

func (s *Summary) skip(t Skipped) {
	s.Skipped = append(s.Skipped, t)
	s.SkippedCount = len(s.Skipped)
}

// Dispatcher evaluates the dependency triggers of a finished pipeline. Every
// trigger that fires gets a pending execution and a dispatch on the queue;
// launching is left to the Worker so completion never waits on downstream
// pipelines.
type Dispatcher struct {
	persistence persistence.Persistence
	queue       queue.Queue
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// NewDispatcher creates a dispatcher. A nil tracer disables tracing.
func NewDispatcher(p persistence.Persistence, q queue.Queue, tracer trace.Tracer, logger *slog.Logger) *Dispatcher {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("cascade")
	}

	return &Dispatcher{
		persistence: p,
		queue:       q,
		tracer:      tracer,
		logger:      logger.With("module", "cascade_dispatcher"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) validate(req CompleteRequest) error {
	if strings.TrimSpace(req.PipelineID) == "" || req.Status == "" {
		return services.NewValidationError("Complete", "MISSING_FIELDS", "missing required fields: status, pipelineId")
	}

	if !req.Status.IsTerminal() {
		return services.NewValidationError("Complete", "INVALID_STATUS",
			fmt.Sprintf("invalid status %q, must be one of: completed, failed, cancelled", req.Status))
	}

	return nil
}

// Complete runs the cascade for one finished execution. It only fails on a
// malformed request or when the trigger list cannot be read; problems with a
// single downstream pipeline are reported in Summary.Skipped.
func (d *Dispatcher) Complete(ctx context.Context, req CompleteRequest) (*Summary, error) {
	if err := d.validate(req); err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "cascade.complete",
		attribute.String(otelhelper.PipelineIDKey, req.PipelineID),
		attribute.String(otelhelper.ExecutionIDKey, req.ExecutionID),
		attribute.String("conductor.execution.status", string(req.Status)),
	)
	defer span.End()

	logger := d.logger.With("pipeline_id", req.PipelineID, "execution_id", req.ExecutionID, "status", req.Status)

	d.recordStatus(ctx, logger, req)

	summary := newSummary()

	if req.Status == models.ExecutionStatusCancelled {
		logger.InfoContext(ctx, "execution cancelled, no triggers evaluated")

		return summary, nil
	}

	triggers, err := d.persistence.TriggerRepository().ListDependents(ctx, req.PipelineID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load dependent triggers: %w", err)
	}

	for _, trigger := range triggers {
		d.evaluate(ctx, logger, req, trigger, summary)
	}

	span.SetAttributes(
		attribute.Int("conductor.cascade.triggered", summary.TriggeredCount),
		attribute.Int("conductor.cascade.skipped", summary.SkippedCount),
	)

	logger.InfoContext(ctx, "cascade evaluated",
		"triggered", summary.TriggeredCount, "skipped", summary.SkippedCount)

	return summary, nil
}

// recordStatus stores the final status on the finishing execution when the
// caller named one that exists.
func (d *Dispatcher) recordStatus(ctx context.Context, logger *slog.Logger, req CompleteRequest) {
	if req.ExecutionID == "" {
		return
	}

	_, err := d.persistence.ExecutionRepository().UpdateStatus(ctx, req.ExecutionID, req.Status, d.now())
	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrExecutionNotFound):
		logger.DebugContext(ctx, "finishing execution is not tracked")
	default:
		logger.WarnContext(ctx, "failed to record execution status", "error", err)
	}
}

func (d *Dispatcher) evaluate(ctx context.Context, logger *slog.Logger, req CompleteRequest, trigger *models.Trigger, summary *Summary) {
	logger = logger.With("trigger_id", trigger.ID, "downstream_id", trigger.PipelineID)

	fire, known := ShouldFire(trigger.DependencyCondition, req.Status)
	if !known {
		logger.WarnContext(ctx, "unknown dependency condition, trigger never fires",
			"condition", trigger.DependencyCondition, "data_integrity", true)
	}

	if !fire {
		summary.skip(Skipped{
			TriggerID:  trigger.ID,
			WorkflowID: trigger.PipelineID,
			Reason:     fmt.Sprintf("Condition %s not met (execution %s)", trigger.DependencyCondition, req.Status),
		})

		return
	}

	downstream, err := d.persistence.PipelineRepository().GetByID(ctx, trigger.PipelineID)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, persistence.ErrPipelineNotFound) {
			reason = reasonPipelineNotFound
		}

		logger.WarnContext(ctx, "downstream pipeline unavailable", "error", err)
		summary.skip(Skipped{TriggerID: trigger.ID, WorkflowID: trigger.PipelineID, Reason: reason})

		return
	}

	triggered, err := d.fire(ctx, req, trigger, downstream)
	if err != nil {
		logger.ErrorContext(ctx, "failed to fire downstream pipeline", "error", err)
		summary.skip(Skipped{
			TriggerID:    trigger.ID,
			WorkflowID:   downstream.ID,
			WorkflowName: downstream.Name,
			Reason:       err.Error(),
		})

		return
	}

	triggered.WorkflowName = downstream.Name
	summary.trigger(*triggered)

	logger.InfoContext(ctx, "downstream pipeline queued",
		"downstream_execution_id", triggered.ExecutionID, "fire_at", triggered.FireAt)
}

// fire creates the pending downstream execution and queues its dispatch. A
// queue failure cancels the execution so no pending run is left orphaned.
func (d *Dispatcher) fire(ctx context.Context, req CompleteRequest, trigger *models.Trigger, downstream *models.Pipeline) (*Triggered, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "cascade.fire",
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(trigger.TriggerType)),
		attribute.String(otelhelper.PipelineIDKey, trigger.PipelineID),
		attribute.String(otelhelper.PipelineNameKey, downstream.Name),
		attribute.String(otelhelper.ConditionKey, string(trigger.DependencyCondition)),
	)
	defer span.End()

	now := d.now()
	provenance := &models.TriggeredBy{
		UpstreamPipelineID:  req.PipelineID,
		UpstreamExecutionID: req.ExecutionID,
	}

	execution := &models.Execution{
		PipelineID:  trigger.PipelineID,
		Status:      models.ExecutionStatusPending,
		TriggerID:   trigger.ID,
		TriggerType: models.TriggerTypeDependency,
		TriggeredBy: provenance,
		StartedAt:   now,
	}

	if err := d.persistence.ExecutionRepository().Create(ctx, execution); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate dispatch ID: %w", err)
	}

	dispatch := &models.Dispatch{
		ID:          id.String(),
		ExecutionID: execution.ID,
		PipelineID:  trigger.PipelineID,
		TriggerID:   trigger.ID,
		TriggeredBy: provenance,
		FireAt:      now.Add(time.Duration(trigger.DelayMinutes) * time.Minute),
		CreatedAt:   now,
	}

	if err := d.queue.Enqueue(ctx, dispatch); err != nil {
		otelhelper.SetError(span, err)

		if _, cancelErr := d.persistence.ExecutionRepository().UpdateStatus(ctx, execution.ID, models.ExecutionStatusCancelled, d.now()); cancelErr != nil {
			d.logger.ErrorContext(ctx, "failed to cancel unqueued execution", "execution_id", execution.ID, "error", cancelErr)
		}

		return nil, fmt.Errorf("failed to queue dispatch: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.DispatchIDKey, dispatch.ID))

	return &Triggered{
		TriggerID:    trigger.ID,
		WorkflowID:   trigger.PipelineID,
		ExecutionID:  execution.ID,
		Condition:    trigger.DependencyCondition,
		DelayMinutes: trigger.DelayMinutes,
		FireAt:       dispatch.FireAt,
	}, nil
}

// Register subscribes the dispatcher to execution-finished events.
func (d *Dispatcher) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.PipelineExecutionFinishedEvent, eventbus.Typed(d.handleExecutionFinished))
}

func (d *Dispatcher) handleExecutionFinished(ctx context.Context, finished *events.PipelineExecutionFinished) error {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "cascade.event",
		attribute.String(otelhelper.EventIDKey, finished.ID),
		attribute.String(otelhelper.PipelineIDKey, finished.PipelineID),
	)
	defer span.End()

	if err := finished.Validate(); err != nil {
		d.logger.ErrorContext(ctx, "dropping invalid execution finished event", "event_id", finished.ID, "error", err)

		return nil
	}

	_, err := d.Complete(ctx, CompleteRequest{
		PipelineID:  finished.PipelineID,
		ExecutionID: finished.ExecutionID,
		Status:      finished.Status,
	})
	if services.IsValidationError(err) {
		d.logger.ErrorContext(ctx, "dropping execution finished event", "event_id", finished.ID, "error", err)

		return nil
	}

	return err
}
