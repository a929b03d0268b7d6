package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/events"
	"github.com/medallionhq/conductor/pkg/graph"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/schedule"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50

	DefaultPreviewCount = 5
)

// errEdgeRejected aborts a guarded save; the captured validation carries the details.
var errEdgeRejected = errors.New("dependency edge rejected")

type Trigger struct {
	persistence persistence.Persistence
	resolver    *schedule.Resolver
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewTrigger creates a new trigger service. publisher may be nil, in which
// case lifecycle events are not published.
func NewTrigger(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Trigger {
	return &Trigger{
		persistence: p,
		resolver:    schedule.NewResolver(),
		publisher:   publisher,
		logger:      logger.With("module", "trigger_service"),
		now:         time.Now,
	}
}

// TriggerInput holds the client supplied trigger fields. On update nil
// fields keep their stored value.
type TriggerInput struct {
	TriggerType models.TriggerType
	Name        *string
	Enabled     *bool

	CronExpression *string
	Timezone       *string

	DependsOnPipelineID *string
	DependencyCondition *models.DependencyCondition
	DelayMinutes        *int

	EventType   *models.EventType
	EventConfig map[string]any
}

func (s *Trigger) Create(ctx context.Context, pipelineID string, input TriggerInput) (*models.Trigger, error) {
	if _, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID); err != nil {
		return nil, err
	}

	if input.TriggerType == "" {
		return nil, NewValidationError("Create", "MISSING_TRIGGER_TYPE", "triggerType is required")
	}

	if !input.TriggerType.IsValid() {
		return nil, NewValidationError("Create", "INVALID_TRIGGER_TYPE",
			fmt.Sprintf("invalid triggerType %q, must be one of: manual, scheduled, dependency, event", input.TriggerType))
	}

	trigger := &models.Trigger{
		PipelineID:  pipelineID,
		TriggerType: input.TriggerType,
		Enabled:     true,
	}

	input.apply(trigger)

	if err := s.prepare(ctx, trigger); err != nil {
		return nil, err
	}

	if err := s.save(ctx, trigger); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TriggerCreatedEvent, trigger)

	return s.withUpstreamName(ctx, trigger), nil
}

func (s *Trigger) Update(ctx context.Context, pipelineID, triggerID string, input TriggerInput) (*models.Trigger, error) {
	trigger, err := s.persistence.TriggerRepository().GetByID(ctx, pipelineID, triggerID)
	if err != nil {
		return nil, err
	}

	if input.TriggerType != "" && input.TriggerType != trigger.TriggerType {
		return nil, ErrTriggerTypeImmutable
	}

	scheduleChanged := (input.CronExpression != nil && *input.CronExpression != trigger.CronExpression) ||
		(input.Timezone != nil && *input.Timezone != trigger.Timezone)

	input.apply(trigger)

	if scheduleChanged {
		trigger.NextRunAt = nil
	}

	if err := s.prepare(ctx, trigger); err != nil {
		return nil, err
	}

	if err := s.save(ctx, trigger); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TriggerUpdatedEvent, trigger)

	return s.withUpstreamName(ctx, trigger), nil
}

// SetEnabled toggles a trigger. Disabled edges still take part in cycle
// checks, so enabling never needs the guard.
func (s *Trigger) SetEnabled(ctx context.Context, pipelineID, triggerID string, enabled bool) (*models.Trigger, error) {
	trigger, err := s.persistence.TriggerRepository().GetByID(ctx, pipelineID, triggerID)
	if err != nil {
		return nil, err
	}

	trigger.Enabled = enabled

	if enabled && trigger.IsScheduled() {
		if _, err := s.resolver.Refresh(trigger, s.now().UTC()); err != nil {
			return nil, err
		}
	}

	if err := s.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	s.publish(ctx, events.TriggerUpdatedEvent, trigger)

	return s.withUpstreamName(ctx, trigger), nil
}

func (s *Trigger) Delete(ctx context.Context, pipelineID, triggerID string) error {
	trigger, err := s.persistence.TriggerRepository().GetByID(ctx, pipelineID, triggerID)
	if err != nil {
		return err
	}

	if err := s.persistence.TriggerRepository().Delete(ctx, pipelineID, triggerID); err != nil {
		return err
	}

	s.publish(ctx, events.TriggerDeletedEvent, trigger)

	return nil
}

func (s *Trigger) FetchByID(ctx context.Context, pipelineID, triggerID string) (*models.Trigger, error) {
	trigger, err := s.persistence.TriggerRepository().GetByID(ctx, pipelineID, triggerID)
	if err != nil {
		return nil, err
	}

	healSchedules(ctx, s.logger, s.resolver, s.persistence.TriggerRepository(), []*models.Trigger{trigger}, s.now().UTC())

	return s.withUpstreamName(ctx, trigger), nil
}

// List returns the pipeline's triggers with fresh next runs and upstream names.
func (s *Trigger) List(ctx context.Context, pipelineID string) ([]*models.Trigger, error) {
	if _, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID); err != nil {
		return nil, err
	}

	triggers, err := s.persistence.TriggerRepository().ListByPipeline(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	healSchedules(ctx, s.logger, s.resolver, s.persistence.TriggerRepository(), triggers, s.now().UTC())

	names := newNameCache(s.persistence.PipelineRepository())
	for _, trigger := range triggers {
		if trigger.IsDependency() {
			trigger.DependsOnPipelineName = names.name(ctx, trigger.DependsOnPipelineID)
		}
	}

	return triggers, nil
}

// DependencyCheck is the dry-run answer for a candidate dependency.
type DependencyCheck struct {
	Valid    bool         `json:"valid"`
	Reason   graph.Reason `json:"reason,omitempty"`
	Chain    []string     `json:"chain,omitempty"`
	ChainIDs []string     `json:"chainIds,omitempty"`
	Message  string       `json:"message"`
}

// ValidateDependency runs the cycle guard for pipelineID depending on
// upstreamID without persisting anything.
func (s *Trigger) ValidateDependency(ctx context.Context, pipelineID, upstreamID string) (*DependencyCheck, error) {
	if strings.TrimSpace(upstreamID) == "" {
		return nil, NewValidationError("ValidateDependency", "MISSING_UPSTREAM", "dependsOnPipelineId is required")
	}

	downstream, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	upstream, err := s.persistence.PipelineRepository().GetByID(ctx, upstreamID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUpstreamNotFound, upstreamID)
		}

		return nil, err
	}

	edges, err := s.persistence.TriggerRepository().DependencyEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependency graph: %w", err)
	}

	validation := graph.FromEdges(edges).Validate(pipelineID, upstreamID)
	if validation.Valid {
		return &DependencyCheck{
			Valid:   true,
			Message: fmt.Sprintf("%s can safely depend on %s", downstream.Name, upstream.Name),
		}, nil
	}

	cycleErr := s.cycleError(ctx, validation)

	return &DependencyCheck{
		Valid:    false,
		Reason:   validation.Reason,
		Chain:    cycleErr.Names,
		ChainIDs: cycleErr.Chain,
		Message:  cycleErr.Error(),
	}, nil
}

// History returns the executions caused by a trigger, newest first.
func (s *Trigger) History(ctx context.Context, pipelineID, triggerID string, limit int) ([]*models.Execution, error) {
	if _, err := s.persistence.TriggerRepository().GetByID(ctx, pipelineID, triggerID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	limit = min(limit, MaxHistoryLimit)

	executions, err := s.persistence.ExecutionRepository().ListByTrigger(ctx, triggerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load trigger history: %w", err)
	}

	return executions, nil
}

// DependencyLink is one neighbour in a pipeline's dependency view.
type DependencyLink struct {
	TriggerID    string                     `json:"triggerId"`
	PipelineID   string                     `json:"pipelineId"`
	PipelineName string                     `json:"pipelineName"`
	Condition    models.DependencyCondition `json:"condition"`
	DelayMinutes int                        `json:"delayMinutes"`
}

// Dependencies lists the pipelines that trigger this one and the pipelines
// this one triggers, through enabled dependency triggers.
type Dependencies struct {
	Upstream   []DependencyLink `json:"upstream"`
	Downstream []DependencyLink `json:"downstream"`
}

func (s *Trigger) Dependencies(ctx context.Context, pipelineID string) (*Dependencies, error) {
	if _, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID); err != nil {
		return nil, err
	}

	own, err := s.persistence.TriggerRepository().ListByPipeline(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	dependents, err := s.persistence.TriggerRepository().ListDependents(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependent triggers: %w", err)
	}

	names := newNameCache(s.persistence.PipelineRepository())
	result := &Dependencies{Upstream: []DependencyLink{}, Downstream: []DependencyLink{}}

	for _, trigger := range own {
		if !trigger.Enabled || !trigger.IsDependency() {
			continue
		}

		result.Upstream = append(result.Upstream, DependencyLink{
			TriggerID:    trigger.ID,
			PipelineID:   trigger.DependsOnPipelineID,
			PipelineName: names.name(ctx, trigger.DependsOnPipelineID),
			Condition:    trigger.DependencyCondition,
			DelayMinutes: trigger.DelayMinutes,
		})
	}

	for _, trigger := range dependents {
		result.Downstream = append(result.Downstream, DependencyLink{
			TriggerID:    trigger.ID,
			PipelineID:   trigger.PipelineID,
			PipelineName: names.name(ctx, trigger.PipelineID),
			Condition:    trigger.DependencyCondition,
			DelayMinutes: trigger.DelayMinutes,
		})
	}

	return result, nil
}

// SchedulePreview describes the upcoming fire times of a cron expression.
type SchedulePreview struct {
	CronExpression string      `json:"cronExpression"`
	Timezone       string      `json:"timezone"`
	Description    string      `json:"description"`
	NextRuns       []time.Time `json:"nextRuns"`
}

func (s *Trigger) PreviewSchedule(expression, timezone string, count int) (*SchedulePreview, error) {
	if timezone == "" {
		timezone = models.DefaultTimezone
	}

	if count <= 0 {
		count = DefaultPreviewCount
	}

	runs, err := s.resolver.Preview(expression, timezone, s.now().UTC(), count)
	if err != nil {
		return nil, err
	}

	return &SchedulePreview{
		CronExpression: expression,
		Timezone:       timezone,
		Description:    schedule.Describe(expression),
		NextRuns:       runs,
	}, nil
}

func (input TriggerInput) apply(trigger *models.Trigger) {
	if input.Name != nil {
		trigger.Name = strings.TrimSpace(*input.Name)
	}

	if input.Enabled != nil {
		trigger.Enabled = *input.Enabled
	}

	if input.CronExpression != nil {
		trigger.CronExpression = strings.TrimSpace(*input.CronExpression)
	}

	if input.Timezone != nil {
		trigger.Timezone = strings.TrimSpace(*input.Timezone)
	}

	if input.DependsOnPipelineID != nil {
		trigger.DependsOnPipelineID = strings.TrimSpace(*input.DependsOnPipelineID)
	}

	if input.DependencyCondition != nil {
		trigger.DependencyCondition = *input.DependencyCondition
	}

	if input.DelayMinutes != nil {
		trigger.DelayMinutes = *input.DelayMinutes
	}

	if input.EventType != nil {
		trigger.EventType = *input.EventType
	}

	if input.EventConfig != nil {
		trigger.EventConfig = input.EventConfig
	}
}

// prepare validates the type specific payload, clears the fields of other
// trigger types and computes the cached next run.
func (s *Trigger) prepare(ctx context.Context, trigger *models.Trigger) error {
	if trigger.TriggerType != models.TriggerTypeScheduled {
		trigger.CronExpression, trigger.Timezone = "", ""
		trigger.NextRunAt, trigger.LastRunAt = nil, nil
	}

	if trigger.TriggerType != models.TriggerTypeDependency {
		trigger.DependsOnPipelineID, trigger.DependencyCondition, trigger.DelayMinutes = "", "", 0
	}

	if trigger.TriggerType != models.TriggerTypeEvent {
		trigger.EventType, trigger.EventConfig = "", nil
	}

	trigger.DependsOnPipelineName = ""

	switch trigger.TriggerType {
	case models.TriggerTypeScheduled:
		return s.prepareScheduled(trigger)
	case models.TriggerTypeDependency:
		return s.prepareDependency(ctx, trigger)
	case models.TriggerTypeEvent:
		if trigger.EventType == "" {
			return NewValidationError("prepare", "MISSING_EVENT_TYPE", "eventType is required for event triggers")
		}

		return validateEventConfig(trigger.EventType, trigger.EventConfig)
	default:
		return nil
	}
}

func (s *Trigger) prepareScheduled(trigger *models.Trigger) error {
	if trigger.CronExpression == "" {
		return NewValidationError("prepare", "MISSING_CRON_EXPRESSION", "cronExpression is required for scheduled triggers")
	}

	if trigger.Timezone == "" {
		trigger.Timezone = models.DefaultTimezone
	}

	if err := s.resolver.Validate(trigger.CronExpression, trigger.Timezone); err != nil {
		return err
	}

	_, err := s.resolver.Refresh(trigger, s.now().UTC())

	return err
}

func (s *Trigger) prepareDependency(ctx context.Context, trigger *models.Trigger) error {
	if trigger.DependsOnPipelineID == "" {
		return NewValidationError("prepare", "MISSING_UPSTREAM", "dependsOnPipelineId is required for dependency triggers")
	}

	if trigger.DependencyCondition == "" {
		return NewValidationError("prepare", "MISSING_CONDITION", "dependencyCondition is required for dependency triggers")
	}

	if !trigger.DependencyCondition.IsValid() {
		return NewValidationError("prepare", "INVALID_CONDITION",
			fmt.Sprintf("invalid dependencyCondition %q, must be one of: on_success, on_failure, on_completion", trigger.DependencyCondition))
	}

	if trigger.DelayMinutes < 0 || trigger.DelayMinutes > models.MaxDelayMinutes {
		return NewValidationError("prepare", "INVALID_DELAY",
			fmt.Sprintf("delayMinutes must be between 0 and %d", models.MaxDelayMinutes))
	}

	if trigger.DependsOnPipelineID == trigger.PipelineID {
		return s.cycleError(ctx, graph.Validation{Reason: graph.ReasonSelfDependency, Chain: []string{trigger.PipelineID}})
	}

	if _, err := s.persistence.PipelineRepository().GetByID(ctx, trigger.DependsOnPipelineID); err != nil {
		if persistence.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrUpstreamNotFound, trigger.DependsOnPipelineID)
		}

		return err
	}

	return nil
}

// save persists the trigger. Dependency triggers go through the guarded
// write so the cycle check and the insert see the same graph.
func (s *Trigger) save(ctx context.Context, trigger *models.Trigger) error {
	repo := s.persistence.TriggerRepository()

	if !trigger.IsDependency() {
		if err := repo.Save(ctx, trigger); err != nil {
			return fmt.Errorf("failed to save trigger: %w", err)
		}

		return nil
	}

	var rejected graph.Validation

	err := repo.SaveGuarded(ctx, trigger, func(edges []models.DependencyEdge) error {
		g := graph.New()

		for _, edge := range edges {
			// An update replaces the trigger's own edge.
			if trigger.ID != "" && edge.TriggerID == trigger.ID {
				continue
			}

			g.AddEdge(edge.Downstream, edge.Upstream)
		}

		rejected = g.Validate(trigger.PipelineID, trigger.DependsOnPipelineID)
		if !rejected.Valid {
			return errEdgeRejected
		}

		return nil
	})

	switch {
	case errors.Is(err, errEdgeRejected):
		cycleErr := s.cycleError(ctx, rejected)
		s.logger.InfoContext(ctx, "rejected dependency trigger",
			"pipeline_id", trigger.PipelineID, "depends_on", trigger.DependsOnPipelineID, "chain", cycleErr.Chain)

		return cycleErr
	case errors.Is(err, persistence.ErrPipelineNotFound):
		return fmt.Errorf("%w: %s", ErrUpstreamNotFound, trigger.DependsOnPipelineID)
	case err != nil:
		return fmt.Errorf("failed to save trigger: %w", err)
	}

	return nil
}

func (s *Trigger) cycleError(ctx context.Context, validation graph.Validation) *CycleError {
	names := newNameCache(s.persistence.PipelineRepository())
	resolved := make([]string, len(validation.Chain))

	for i, id := range validation.Chain {
		resolved[i] = names.name(ctx, id)
	}

	return &CycleError{Reason: string(validation.Reason), Chain: validation.Chain, Names: resolved}
}

func (s *Trigger) withUpstreamName(ctx context.Context, trigger *models.Trigger) *models.Trigger {
	if trigger.IsDependency() {
		trigger.DependsOnPipelineName = newNameCache(s.persistence.PipelineRepository()).name(ctx, trigger.DependsOnPipelineID)
	}

	return trigger
}

func (s *Trigger) publish(ctx context.Context, eventType events.EventType, trigger *models.Trigger) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, trigger.PipelineID, events.NewTriggerChanged(eventType, trigger)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish trigger event",
			"event_type", eventType, "trigger_id", trigger.ID, "error", err)
	}
}

// nameCache resolves pipeline ids to names, falling back to the id.
type nameCache struct {
	repo  persistence.PipelineRepository
	names map[string]string
}

func newNameCache(repo persistence.PipelineRepository) *nameCache {
	return &nameCache{repo: repo, names: make(map[string]string)}
}

func (c *nameCache) name(ctx context.Context, id string) string {
	if name, ok := c.names[id]; ok {
		return name
	}

	name := id
	if pipeline, err := c.repo.GetByID(ctx, id); err == nil {
		name = pipeline.Name
	}

	c.names[id] = name

	return name
}
