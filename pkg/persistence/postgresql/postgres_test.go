package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/medallionhq/conductor/pkg/graph"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/persistence/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{
		"pipeline_dispatches", "source_watermarks", "catalog_entries",
		"pipeline_executions", "pipeline_triggers", "pipelines", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("conductor_test"),
			postgres.WithUsername("conductor"),
			postgres.WithPassword("conductor"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func savePipeline(ctx context.Context, t *testing.T, p *postgresql.Persistence, name string) *models.Pipeline {
	t.Helper()

	pipeline := &models.Pipeline{Name: name, Team: "data", Environment: models.EnvironmentProd}
	require.NoError(t, p.PipelineRepository().Save(ctx, pipeline))

	return pipeline
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestTriggers_GuardedWritesAndDependents(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	a := savePipeline(ctx, t, p, "bronze_orders")
	b := savePipeline(ctx, t, p, "silver_orders")

	repo := p.TriggerRepository()

	guard := func(trigger *models.Trigger) persistence.EdgeCheck {
		return func(edges []models.DependencyEdge) error {
			if !graph.FromEdges(edges).Validate(trigger.PipelineID, trigger.DependsOnPipelineID).Valid {
				return assert.AnError
			}

			return nil
		}
	}

	forward := &models.Trigger{
		PipelineID:          b.ID,
		TriggerType:         models.TriggerTypeDependency,
		Enabled:             true,
		DependsOnPipelineID: a.ID,
		DependencyCondition: models.ConditionOnSuccess,
		DelayMinutes:        15,
	}
	require.NoError(t, repo.SaveGuarded(ctx, forward, guard(forward)))

	backward := &models.Trigger{
		PipelineID:          a.ID,
		TriggerType:         models.TriggerTypeDependency,
		Enabled:             true,
		DependsOnPipelineID: b.ID,
		DependencyCondition: models.ConditionOnSuccess,
	}
	require.ErrorIs(t, repo.SaveGuarded(ctx, backward, guard(backward)), assert.AnError)

	dependents, err := repo.ListDependents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, 15, dependents[0].DelayMinutes)

	dangling := &models.Trigger{
		PipelineID:          b.ID,
		TriggerType:         models.TriggerTypeDependency,
		DependsOnPipelineID: "missing",
		DependencyCondition: models.ConditionOnFailure,
	}
	assert.ErrorIs(t, repo.Save(ctx, dangling), persistence.ErrPipelineNotFound)

	event := &models.Trigger{
		PipelineID:  a.ID,
		TriggerType: models.TriggerTypeEvent,
		Enabled:     true,
		EventType:   models.EventTypeS3Event,
		EventConfig: map[string]any{"bucketName": "landing"},
	}
	require.NoError(t, repo.Save(ctx, event))

	loaded, err := repo.GetByID(ctx, a.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "landing", loaded.EventConfig["bucketName"])
}

func TestExecutions_StatusAndHistory(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	repo := p.ExecutionRepository()
	started := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)

	execution := &models.Execution{
		PipelineID:  "B",
		Status:      models.ExecutionStatusPending,
		TriggerID:   "t1",
		TriggerType: models.TriggerTypeDependency,
		TriggeredBy: &models.TriggeredBy{UpstreamPipelineID: "A", UpstreamExecutionID: "ea"},
		StartedAt:   started,
	}
	require.NoError(t, repo.Create(ctx, execution))

	finished, err := repo.UpdateStatus(ctx, execution.ID, models.ExecutionStatusFailed, started.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, finished.Status)
	require.NotNil(t, finished.DurationMs)
	assert.Equal(t, int64(2000), *finished.DurationMs)
	assert.Equal(t, "A", finished.TriggeredBy.UpstreamPipelineID)

	history, err := repo.ListByTrigger(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCatalogAndWatermarks(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	catalog := p.CatalogRepository()

	entry := &models.CatalogEntry{
		Layer:       models.LayerSilver,
		TableName:   "orders",
		Environment: models.EnvironmentProd,
		Status:      models.KnownStatus(models.DatasetStatePending),
		Schema:      []models.ColumnDescriptor{{Name: "id", Type: "bigint"}},
	}
	require.NoError(t, catalog.Upsert(ctx, entry))

	again := &models.CatalogEntry{Layer: models.LayerSilver, TableName: "orders", Environment: models.EnvironmentProd}
	require.NoError(t, catalog.Upsert(ctx, again))
	assert.Equal(t, entry.ID, again.ID)

	state := models.DatasetStateReady
	rows := int64(42)
	updated, err := catalog.UpdateStatus(ctx, entry.ID, models.DatasetStatusUpdate{Status: &state, RowCount: &rows})
	require.NoError(t, err)
	assert.True(t, updated.Status.IsReady())
	assert.False(t, updated.Status.IsLegacy())
	assert.Equal(t, int64(42), updated.RowCount)

	watermarks := p.WatermarkRepository()
	first, second := "2024-01-01", "2024-02-01"

	previous, current, err := watermarks.Advance(ctx, models.WatermarkAdvance{SourceID: "crm", Column: "updated_at", Type: models.WatermarkTypeDate, NewValue: &first, RowsProcessed: 10})
	require.NoError(t, err)
	assert.Nil(t, previous)
	assert.Equal(t, int64(10), current.TotalRowsProcessed)

	previous, current, err = watermarks.Advance(ctx, models.WatermarkAdvance{SourceID: "crm", Column: "updated_at", Type: models.WatermarkTypeDate, NewValue: &second, RowsProcessed: 5})
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, first, *current.PreviousValue)
	assert.Equal(t, int64(15), current.TotalRowsProcessed)

	_, err = watermarks.Delete(ctx, "crm")
	require.NoError(t, err)

	_, err = watermarks.Get(ctx, "crm")
	assert.ErrorIs(t, err, persistence.ErrWatermarkNotFound)
}

func TestDispatchQueue_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	q := p.DispatchQueue()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, &models.Dispatch{
		ID: "d1", ExecutionID: "e1", PipelineID: "B", TriggerID: "t1",
		FireAt: now.Add(-time.Second), CreatedAt: now,
	}))
	require.NoError(t, q.Enqueue(ctx, &models.Dispatch{
		ID: "d2", ExecutionID: "e2", PipelineID: "C", TriggerID: "t2",
		FireAt: now.Add(time.Hour), CreatedAt: now,
	}))

	claimed, err := q.Claim(ctx, now, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "d1", claimed[0].ID)

	again, err := q.Claim(ctx, now, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, q.Ack(ctx, "d1"))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestDispatchQueue_ClaimsInFireOrder(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	q := p.DispatchQueue()
	now := time.Now().UTC().Truncate(time.Millisecond)

	// inserted newest first so heap order disagrees with fire order
	for i, id := range []string{"d5", "d4", "d3", "d2", "d1"} {
		require.NoError(t, q.Enqueue(ctx, &models.Dispatch{
			ID: id, ExecutionID: "e-" + id, PipelineID: "B", TriggerID: "t1",
			FireAt: now.Add(-time.Duration(i+1) * time.Minute), CreatedAt: now,
		}))
	}

	claimed, err := q.Claim(ctx, now, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 5)

	ids := make([]string, len(claimed))
	for i, dispatch := range claimed {
		ids[i] = dispatch.ID
	}

	assert.Equal(t, []string{"d1", "d2", "d3", "d4", "d5"}, ids)
}
