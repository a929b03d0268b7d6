package cascade

import (
	"errors"
	"testing"
	"time"

	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/events"
	"github.com/medallionhq/conductor/pkg/mocks"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/queue"
	"github.com/medallionhq/conductor/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *queue.MemoryQueue) {
	t.Helper()

	q := queue.NewMemoryQueue()
	d := NewDispatcher(newTestStore(t), q, nil, testLogger())
	d.now = func() time.Time { return testNow }

	return d, q
}

func TestDispatcher_FanOut(t *testing.T) {
	store := newTestStore(t)
	q := queue.NewMemoryQueue()
	d := NewDispatcher(store, q, nil, testLogger())
	d.now = func() time.Time { return testNow }

	upstream := createPipeline(t, store, "bronze_orders")
	onSuccess := createPipeline(t, store, "silver_orders")
	onCompletion := createPipeline(t, store, "audit_orders")
	onFailure := createPipeline(t, store, "alert_orders")
	disabled := createPipeline(t, store, "gold_orders")

	successTrigger := dependOn(t, store, onSuccess.ID, upstream.ID, models.ConditionOnSuccess, 0, true)
	completionTrigger := dependOn(t, store, onCompletion.ID, upstream.ID, models.ConditionOnCompletion, 15, true)
	dependOn(t, store, onFailure.ID, upstream.ID, models.ConditionOnFailure, 0, true)
	dependOn(t, store, disabled.ID, upstream.ID, models.ConditionOnSuccess, 0, false)

	summary, err := d.Complete(t.Context(), CompleteRequest{
		PipelineID:  upstream.ID,
		ExecutionID: "exec-upstream",
		Status:      models.ExecutionStatusCompleted,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TriggeredCount)
	assert.Equal(t, 1, summary.SkippedCount)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, onFailure.ID, summary.Skipped[0].WorkflowID)
	assert.Equal(t, "Condition on_failure not met (execution completed)", summary.Skipped[0].Reason)

	byTrigger := make(map[string]Triggered, len(summary.Triggered))
	for _, triggered := range summary.Triggered {
		byTrigger[triggered.TriggerID] = triggered
	}

	require.Contains(t, byTrigger, successTrigger.ID)
	require.Contains(t, byTrigger, completionTrigger.ID)
	assert.Equal(t, "silver_orders", byTrigger[successTrigger.ID].WorkflowName)
	assert.Equal(t, testNow, byTrigger[successTrigger.ID].FireAt)
	assert.Equal(t, 15, byTrigger[completionTrigger.ID].DelayMinutes)
	assert.Equal(t, testNow.Add(15*time.Minute), byTrigger[completionTrigger.ID].FireAt)

	for _, triggered := range summary.Triggered {
		execution, err := store.ExecutionRepository().GetByID(t.Context(), triggered.ExecutionID)
		require.NoError(t, err)
		assert.Equal(t, triggered.WorkflowID, execution.PipelineID)
		assert.Equal(t, models.ExecutionStatusPending, execution.Status)
		assert.Equal(t, models.TriggerTypeDependency, execution.TriggerType)
		assert.Equal(t, triggered.TriggerID, execution.TriggerID)
		require.NotNil(t, execution.TriggeredBy)
		assert.Equal(t, upstream.ID, execution.TriggeredBy.UpstreamPipelineID)
		assert.Equal(t, "exec-upstream", execution.TriggeredBy.UpstreamExecutionID)
	}

	pending, err := q.Pending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	due, err := q.Claim(t.Context(), testNow, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1, "delayed dispatch is not due yet")
	assert.Equal(t, byTrigger[successTrigger.ID].ExecutionID, due[0].ExecutionID)

	for _, pipeline := range []*models.Pipeline{onFailure, disabled} {
		executions, err := store.ExecutionRepository().ListByPipeline(t.Context(), pipeline.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, executions)
	}
}

func TestDispatcher_FailedUpstreamSkipsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	d := NewDispatcher(store, queue.NewMemoryQueue(), nil, testLogger())

	a := createPipeline(t, store, "A")
	b := createPipeline(t, store, "B")
	dependOn(t, store, b.ID, a.ID, models.ConditionOnSuccess, 0, true)

	summary, err := d.Complete(t.Context(), CompleteRequest{PipelineID: a.ID, Status: models.ExecutionStatusFailed})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.TriggeredCount)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Empty(t, summary.Triggered)
	assert.Equal(t, b.ID, summary.Skipped[0].WorkflowID)
	assert.Equal(t, "Condition on_success not met (execution failed)", summary.Skipped[0].Reason)

	executions, err := store.ExecutionRepository().ListByPipeline(t.Context(), b.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestDispatcher_CancelledEvaluatesNothing(t *testing.T) {
	store := newTestStore(t)
	d := NewDispatcher(store, queue.NewMemoryQueue(), nil, testLogger())

	a := createPipeline(t, store, "A")
	b := createPipeline(t, store, "B")
	dependOn(t, store, b.ID, a.ID, models.ConditionOnCompletion, 0, true)

	execution := &models.Execution{PipelineID: a.ID, Status: models.ExecutionStatusRunning}
	require.NoError(t, store.ExecutionRepository().Create(t.Context(), execution))

	summary, err := d.Complete(t.Context(), CompleteRequest{
		PipelineID:  a.ID,
		ExecutionID: execution.ID,
		Status:      models.ExecutionStatusCancelled,
	})
	require.NoError(t, err)
	assert.Zero(t, summary.TriggeredCount)
	assert.Zero(t, summary.SkippedCount)

	stored, err := store.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestDispatcher_Validation(t *testing.T) {
	d, _ := newTestDispatcher(t)

	tests := []struct {
		name string
		req  CompleteRequest
	}{
		{name: "missing status", req: CompleteRequest{PipelineID: "a"}},
		{name: "missing pipeline", req: CompleteRequest{Status: models.ExecutionStatusCompleted}},
		{name: "non-terminal status", req: CompleteRequest{PipelineID: "a", Status: models.ExecutionStatusRunning}},
		{name: "unknown status", req: CompleteRequest{PipelineID: "a", Status: "done"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Complete(t.Context(), tt.req)
			assert.True(t, services.IsValidationError(err))
		})
	}
}

func TestDispatcher_TriggerListFailure(t *testing.T) {
	triggers := &mocks.MockTriggerRepository{}
	triggers.On("ListDependents", mock.Anything, "a").Return(nil, errors.New("connection reset"))

	store := &mocks.MockPersistence{Persistence: newTestStore(t), Triggers: triggers}
	d := NewDispatcher(store, queue.NewMemoryQueue(), nil, testLogger())

	_, err := d.Complete(t.Context(), CompleteRequest{PipelineID: "a", Status: models.ExecutionStatusCompleted})
	require.Error(t, err)
	assert.False(t, services.IsValidationError(err))
	assert.Contains(t, err.Error(), "connection reset")

	triggers.AssertExpectations(t)
}

func TestDispatcher_PerTriggerIsolation(t *testing.T) {
	store := newTestStore(t)
	q := &mocks.MockQueue{}
	d := NewDispatcher(store, q, nil, testLogger())

	a := createPipeline(t, store, "A")
	flaky := createPipeline(t, store, "flaky")
	healthy := createPipeline(t, store, "healthy")

	dependOn(t, store, flaky.ID, a.ID, models.ConditionOnSuccess, 0, true)
	dependOn(t, store, healthy.ID, a.ID, models.ConditionOnSuccess, 0, true)
	dependOn(t, store, "deleted-pipeline", a.ID, models.ConditionOnSuccess, 0, true)
	dependOn(t, store, healthy.ID, a.ID, "on_retry", 0, true)

	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(dispatch *models.Dispatch) bool {
		return dispatch.PipelineID == flaky.ID
	})).Return(errors.New("queue unavailable"))
	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(dispatch *models.Dispatch) bool {
		return dispatch.PipelineID == healthy.ID
	})).Return(nil)

	summary, err := d.Complete(t.Context(), CompleteRequest{PipelineID: a.ID, Status: models.ExecutionStatusCompleted})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.TriggeredCount)
	assert.Equal(t, healthy.ID, summary.Triggered[0].WorkflowID)
	assert.Equal(t, 3, summary.SkippedCount)

	reasons := make(map[string]string, len(summary.Skipped))
	for _, skipped := range summary.Skipped {
		if skipped.WorkflowID == healthy.ID {
			reasons["unknown"] = skipped.Reason

			continue
		}

		reasons[skipped.WorkflowID] = skipped.Reason
	}

	assert.Equal(t, reasonPipelineNotFound, reasons["deleted-pipeline"])
	assert.Contains(t, reasons[flaky.ID], "queue unavailable")
	assert.Equal(t, "Condition on_retry not met (execution completed)", reasons["unknown"])

	executions, err := store.ExecutionRepository().ListByPipeline(t.Context(), flaky.ID, 0)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionStatusCancelled, executions[0].Status, "unqueued execution is cancelled")

	q.AssertExpectations(t)
}

func TestDispatcher_HandlesExecutionFinishedEvents(t *testing.T) {
	store := newTestStore(t)
	q := queue.NewMemoryQueue()
	d := NewDispatcher(store, q, nil, testLogger())

	a := createPipeline(t, store, "A")
	b := createPipeline(t, store, "B")
	dependOn(t, store, b.ID, a.ID, models.ConditionOnSuccess, 0, true)

	bus := &mocks.MockEventBus{}
	var handler eventbus.EventHandler
	bus.On("Handle", events.PipelineExecutionFinishedEvent, mock.Anything).Run(func(args mock.Arguments) {
		handler = args.Get(1).(eventbus.EventHandler)
	}).Return(nil)

	require.NoError(t, d.Register(bus))
	require.NotNil(t, handler)

	err := handler(t.Context(), &events.PipelineExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.PipelineExecutionFinishedEvent, a.ID),
		ExecutionID: "exec-1",
		Status:      models.ExecutionStatusCompleted,
	})
	require.NoError(t, err)

	pending, err := q.Pending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	err = handler(t.Context(), &events.PipelineExecutionFinished{
		BaseEvent: events.NewBaseEvent(events.PipelineExecutionFinishedEvent, a.ID),
	})
	assert.NoError(t, err, "invalid events are dropped, not redelivered")

	err = handler(t.Context(), &events.PipelineExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.PipelineExecutionFinishedEvent, a.ID),
		ExecutionID: "exec-2",
		Status:      models.ExecutionStatusRunning,
	})
	assert.NoError(t, err)

	bus.AssertExpectations(t)
}
