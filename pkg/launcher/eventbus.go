package launcher

import (
	"context"
	"fmt"

	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/events"
	"github.com/medallionhq/conductor/pkg/models"
)

// EventBusLauncher publishes pipeline.triggered events keyed by pipeline id.
type EventBusLauncher struct {
	publisher eventbus.EventPublisher
}

func NewEventBusLauncher(publisher eventbus.EventPublisher) *EventBusLauncher {
	return &EventBusLauncher{publisher: publisher}
}

func (l *EventBusLauncher) Launch(ctx context.Context, dispatch *models.Dispatch) error {
	event := &events.PipelineTriggered{
		BaseEvent:   events.NewBaseEvent(events.PipelineTriggeredEvent, dispatch.PipelineID),
		ExecutionID: dispatch.ExecutionID,
		TriggerID:   dispatch.TriggerID,
		TriggerType: models.TriggerTypeDependency,
		TriggeredBy: dispatch.TriggeredBy,
		Attempt:     dispatch.Attempts + 1,
	}

	if err := l.publisher.Publish(ctx, dispatch.PipelineID, event); err != nil {
		return fmt.Errorf("failed to publish %s for pipeline %s: %w", events.PipelineTriggeredEvent, dispatch.PipelineID, err)
	}

	return nil
}
