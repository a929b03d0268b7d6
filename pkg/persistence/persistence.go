// Package persistence provides the storage abstraction for pipelines, triggers,
// executions, the dataset catalog and source watermarks.
package persistence

import (
	"context"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
)

// Persistence groups the repositories backed by one store.
type Persistence interface {
	PipelineRepository() PipelineRepository
	TriggerRepository() TriggerRepository
	ExecutionRepository() ExecutionRepository
	CatalogRepository() CatalogRepository
	WatermarkRepository() WatermarkRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListPipelinesOptions filters pipeline listings. Empty fields match everything.
type ListPipelinesOptions struct {
	Team        string
	Environment models.Environment
}

type PipelineRepository interface {
	// Save inserts or updates a pipeline, stamping CreatedAt/UpdatedAt.
	Save(ctx context.Context, pipeline *models.Pipeline) error
	// GetByID returns ErrPipelineNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*models.Pipeline, error)
	List(ctx context.Context, opts ListPipelinesOptions) ([]*models.Pipeline, error)
}

// EdgeCheck inspects every persisted dependency edge before a guarded write.
// Returning an error aborts the write.
type EdgeCheck func(edges []models.DependencyEdge) error

type TriggerRepository interface {
	// GetByID returns ErrTriggerNotFound when the trigger does not exist or
	// belongs to another pipeline.
	GetByID(ctx context.Context, pipelineID, triggerID string) (*models.Trigger, error)
	// ListByPipeline returns the pipeline's triggers, oldest first.
	ListByPipeline(ctx context.Context, pipelineID string) ([]*models.Trigger, error)
	// ListDependents returns enabled dependency triggers whose upstream is
	// upstreamID, oldest first.
	ListDependents(ctx context.Context, upstreamID string) ([]*models.Trigger, error)
	// DependencyEdges returns one edge per dependency trigger, enabled or not.
	DependencyEdges(ctx context.Context) ([]models.DependencyEdge, error)

	// Save inserts or updates a trigger without consulting the graph.
	Save(ctx context.Context, trigger *models.Trigger) error
	// SaveGuarded runs check against a consistent view of the edges and saves
	// the trigger in the same critical section. Concurrent guarded writes are
	// serialized, so two individually acyclic edges cannot jointly close a cycle.
	SaveGuarded(ctx context.Context, trigger *models.Trigger, check EdgeCheck) error
	// UpdateNextRun rewrites only the cached schedule fields.
	UpdateNextRun(ctx context.Context, triggerID string, nextRunAt *time.Time) error
	Delete(ctx context.Context, pipelineID, triggerID string) error
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	// GetByID returns ErrExecutionNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	// UpdateStatus records a status transition; terminal statuses set
	// CompletedAt and DurationMs.
	UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, at time.Time) (*models.Execution, error)
	// ListByPipeline and ListByTrigger return newest first.
	ListByPipeline(ctx context.Context, pipelineID string, limit int) ([]*models.Execution, error)
	ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.Execution, error)
}

// CatalogFilter narrows catalog lookups. Empty fields match everything.
type CatalogFilter struct {
	Environment models.Environment
	Layer       models.Layer
	State       models.DatasetState
	Search      string
}

type CatalogRepository interface {
	// Upsert inserts or replaces the entry keyed on (layer, tableName, environment).
	Upsert(ctx context.Context, entry *models.CatalogEntry) error
	// GetByID returns ErrDatasetNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*models.CatalogEntry, error)
	// FindByName returns every entry with the table name inside the filter scope.
	FindByName(ctx context.Context, tableName string, filter CatalogFilter) ([]*models.CatalogEntry, error)
	List(ctx context.Context, filter CatalogFilter) ([]*models.CatalogEntry, error)
	// UpdateStatus applies the update to one entry and returns the result.
	UpdateStatus(ctx context.Context, id string, update models.DatasetStatusUpdate) (*models.CatalogEntry, error)
}

type WatermarkRepository interface {
	// Get returns ErrWatermarkNotFound when the source has no watermark.
	Get(ctx context.Context, sourceID string) (*models.Watermark, error)
	// Advance shifts current into previous, stores the new value and adds the
	// processed rows. It returns the previous record (nil when created) and
	// the stored one.
	Advance(ctx context.Context, adv models.WatermarkAdvance) (previous, current *models.Watermark, err error)
	// Delete returns ErrWatermarkNotFound when nothing was removed.
	Delete(ctx context.Context, sourceID string) (*models.Watermark, error)
}
