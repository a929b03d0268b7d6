package file

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/medallionhq/conductor/pkg/graph"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	p := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", p.root)

	p = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", p.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	require.NoError(t, p.HealthCheck(t.Context()))
	require.NoError(t, p.Close(t.Context()))

	missing := NewPersistence(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, missing.HealthCheck(t.Context()))
}

func TestPipelineRepository(t *testing.T) {
	testDir := t.TempDir()
	repo := NewPersistence(testDir).PipelineRepository()
	ctx := t.Context()

	next := time.Now().Add(time.Hour)
	orders := &models.Pipeline{Name: "orders", Team: "sales", Environment: models.EnvironmentProd, NextRunAt: &next}
	require.NoError(t, repo.Save(ctx, orders))
	require.NotEmpty(t, orders.ID)
	assert.False(t, orders.CreatedAt.IsZero())
	assert.FileExists(t, filepath.Join(testDir, "pipelines", orders.ID+".json"))

	customers := &models.Pipeline{Name: "customers", Team: "crm", Environment: models.EnvironmentDev}
	require.NoError(t, repo.Save(ctx, customers))

	loaded, err := repo.GetByID(ctx, orders.ID)
	require.NoError(t, err)
	assert.Equal(t, "orders", loaded.Name)
	assert.Nil(t, loaded.NextRunAt)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrPipelineNotFound)

	all, err := repo.List(ctx, persistence.ListPipelinesOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "customers", all[0].Name)

	prod, err := repo.List(ctx, persistence.ListPipelinesOptions{Environment: models.EnvironmentProd})
	require.NoError(t, err)
	require.Len(t, prod, 1)
	assert.Equal(t, orders.ID, prod[0].ID)
}

func dependency(pipelineID, upstreamID string) *models.Trigger {
	return &models.Trigger{
		PipelineID:          pipelineID,
		TriggerType:         models.TriggerTypeDependency,
		Enabled:             true,
		DependsOnPipelineID: upstreamID,
		DependencyCondition: models.ConditionOnSuccess,
	}
}

func TestTriggerRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).TriggerRepository()
	ctx := t.Context()

	first := dependency("B", "A")
	require.NoError(t, repo.Save(ctx, first))

	disabled := dependency("C", "A")
	disabled.Enabled = false
	require.NoError(t, repo.Save(ctx, disabled))

	scheduled := &models.Trigger{PipelineID: "A", TriggerType: models.TriggerTypeScheduled, Enabled: true, CronExpression: "0 * * * *"}
	require.NoError(t, repo.Save(ctx, scheduled))

	dependents, err := repo.ListDependents(ctx, "A")
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, first.ID, dependents[0].ID)

	edges, err := repo.DependencyEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	owned, err := repo.ListByPipeline(ctx, "A")
	require.NoError(t, err)
	require.Len(t, owned, 1)

	_, err = repo.GetByID(ctx, "other-pipeline", first.ID)
	assert.ErrorIs(t, err, persistence.ErrTriggerNotFound)

	next := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateNextRun(ctx, scheduled.ID, &next))

	loaded, err := repo.GetByID(ctx, "A", scheduled.ID)
	require.NoError(t, err)
	assert.True(t, next.Equal(*loaded.NextRunAt))

	require.NoError(t, repo.Delete(ctx, "B", first.ID))
	assert.ErrorIs(t, repo.Delete(ctx, "B", first.ID), persistence.ErrTriggerNotFound)
}

func TestTriggerRepository_SaveGuardedSerializesWriters(t *testing.T) {
	repo := NewPersistence(t.TempDir()).TriggerRepository()
	ctx := t.Context()

	require.NoError(t, repo.Save(ctx, dependency("B", "A")))

	rejectCycles := func(trigger *models.Trigger) persistence.EdgeCheck {
		return func(edges []models.DependencyEdge) error {
			if result := graph.FromEdges(edges).Validate(trigger.PipelineID, trigger.DependsOnPipelineID); !result.Valid {
				return errors.New("cycle")
			}

			return nil
		}
	}

	// C after B and A after C are each acyclic, together they close A -> C -> B -> A.
	candidates := []*models.Trigger{dependency("C", "B"), dependency("A", "C")}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)

	for _, candidate := range candidates {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := repo.SaveGuarded(ctx, candidate, rejectCycles(candidate)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, accepted)

	edges, err := repo.DependencyEdges(ctx)
	require.NoError(t, err)
	assert.Empty(t, graph.FromEdges(edges).FindCycles())
}

func TestExecutionRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRepository()
	ctx := t.Context()

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := range 3 {
		execution := &models.Execution{
			PipelineID: "B",
			Status:     models.ExecutionStatusPending,
			TriggerID:  "t1",
			StartedAt:  started.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, execution))
	}

	executions, err := repo.ListByTrigger(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.True(t, executions[0].StartedAt.After(executions[1].StartedAt))

	finished, err := repo.UpdateStatus(ctx, executions[1].ID, models.ExecutionStatusCompleted, executions[1].StartedAt.Add(90*time.Second))
	require.NoError(t, err)
	require.NotNil(t, finished.CompletedAt)
	assert.Equal(t, int64(90000), *finished.DurationMs)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	byPipeline, err := repo.ListByPipeline(ctx, "B", 0)
	require.NoError(t, err)
	assert.Len(t, byPipeline, 3)
}

func TestCatalogRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).CatalogRepository()
	ctx := t.Context()

	bronze := &models.CatalogEntry{Layer: models.LayerBronze, TableName: "orders", Environment: models.EnvironmentProd, Status: models.KnownStatus(models.DatasetStatePending)}
	require.NoError(t, repo.Upsert(ctx, bronze))

	silver := &models.CatalogEntry{Layer: models.LayerSilver, TableName: "orders", Environment: models.EnvironmentProd}
	require.NoError(t, repo.Upsert(ctx, silver))

	again := &models.CatalogEntry{Layer: models.LayerBronze, TableName: "orders", Environment: models.EnvironmentProd, RowCount: 5}
	require.NoError(t, repo.Upsert(ctx, again))
	assert.Equal(t, bronze.ID, again.ID)

	all, err := repo.List(ctx, persistence.CatalogFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := repo.FindByName(ctx, "orders", persistence.CatalogFilter{Environment: models.EnvironmentProd, Layer: models.LayerSilver})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Status.IsLegacy())

	ready, err := repo.List(ctx, persistence.CatalogFilter{State: models.DatasetStateReady})
	require.NoError(t, err)
	assert.Len(t, ready, 2)

	state := models.DatasetStateRunning
	updated, err := repo.UpdateStatus(ctx, bronze.ID, models.DatasetStatusUpdate{Status: &state})
	require.NoError(t, err)
	assert.Equal(t, models.KnownStatus(models.DatasetStateRunning), updated.Status)
	assert.Equal(t, int64(5), updated.RowCount)

	_, err = repo.GetByID(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, persistence.ErrDatasetNotFound)
}

func TestWatermarkRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).WatermarkRepository()
	ctx := t.Context()

	first, second := "100", "250"

	previous, current, err := repo.Advance(ctx, models.WatermarkAdvance{SourceID: "s3/orders", Column: "id", Type: models.WatermarkTypeInteger, NewValue: &first, RowsProcessed: 100})
	require.NoError(t, err)
	assert.Nil(t, previous)
	assert.NotEmpty(t, current.ID)

	previous, current, err = repo.Advance(ctx, models.WatermarkAdvance{SourceID: "s3/orders", Column: "id", Type: models.WatermarkTypeInteger, NewValue: &second, RowsProcessed: 150})
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, previous.ID, current.ID)
	assert.Equal(t, "100", *current.PreviousValue)
	assert.Equal(t, int64(250), current.TotalRowsProcessed)

	loaded, err := repo.Get(ctx, "s3/orders")
	require.NoError(t, err)
	assert.Equal(t, "250", *loaded.CurrentValue)

	deleted, err := repo.Delete(ctx, "s3/orders")
	require.NoError(t, err)
	assert.Equal(t, current.ID, deleted.ID)

	_, err = repo.Delete(ctx, "s3/orders")
	assert.ErrorIs(t, err, persistence.ErrWatermarkNotFound)
}
