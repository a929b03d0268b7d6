package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/medallionhq/conductor/pkg/channels/gochannel"
	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/events"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.PipelineExecutionFinished, 1)

	require.NoError(t, bus.Handle(events.PipelineExecutionFinishedEvent, eventbus.Typed(func(_ context.Context, event *events.PipelineExecutionFinished) error {
		received <- event

		return nil
	})))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "A", &events.PipelineExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.PipelineExecutionFinishedEvent, "A"),
		ExecutionID: "exec-1",
		Status:      models.ExecutionStatusCompleted,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "A", event.PipelineID)
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, models.ExecutionStatusCompleted, event.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreSkipped(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.TriggerChanged, 1)

	require.NoError(t, bus.Handle(events.TriggerDeletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.TriggerChanged)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	trigger := &models.Trigger{ID: "t1", PipelineID: "B", TriggerType: models.TriggerTypeManual}

	require.NoError(t, bus.Publish(ctx, "B", events.NewTriggerChanged(events.TriggerCreatedEvent, trigger)))
	require.NoError(t, bus.Publish(ctx, "B", events.NewTriggerChanged(events.TriggerDeletedEvent, trigger)))

	select {
	case event := <-received:
		assert.Equal(t, events.TriggerDeletedEvent, event.Type)
		assert.Equal(t, "t1", event.TriggerID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestTyped_RejectsOtherEvents(t *testing.T) {
	var got *events.TriggerChanged

	handler := eventbus.Typed(func(_ context.Context, event *events.TriggerChanged) error {
		got = event

		return nil
	})

	err := handler(t.Context(), &events.PipelineTriggered{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "*events.PipelineTriggered")
	assert.Nil(t, got)

	changed := &events.TriggerChanged{}
	require.NoError(t, handler(t.Context(), changed))
	assert.Same(t, changed, got)
}
