package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

// PipelineRepository handles pipeline-related file operations.
type PipelineRepository struct {
	mu        *sync.RWMutex
	pipelines entityDir[models.Pipeline]
}

// Save saves a pipeline to the file system.
func (r *PipelineRepository) Save(_ context.Context, pipeline *models.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pipeline.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate pipeline ID: %w", err)
		}

		pipeline.ID = id.String()
	}

	now := time.Now().UTC()
	if pipeline.CreatedAt.IsZero() {
		pipeline.CreatedAt = now
	}

	pipeline.UpdatedAt = now

	stored := *pipeline
	stored.NextRunAt = nil

	return r.pipelines.write(pipeline.ID, &stored)
}

// GetByID retrieves a pipeline by its ID from the file system.
func (r *PipelineRepository) GetByID(_ context.Context, id string) (*models.Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pipeline, err := r.pipelines.read(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("GetByID", "pipeline", id, persistence.ErrPipelineNotFound)
	}

	return pipeline, err
}

// List returns pipelines matching opts ordered by name.
func (r *PipelineRepository) List(_ context.Context, opts persistence.ListPipelinesOptions) ([]*models.Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.pipelines.all()
	if err != nil {
		return nil, err
	}

	pipelines := make([]*models.Pipeline, 0, len(all))

	for _, pipeline := range all {
		if opts.Team != "" && pipeline.Team != opts.Team {
			continue
		}

		if opts.Environment != "" && pipeline.Environment != opts.Environment {
			continue
		}

		pipelines = append(pipelines, pipeline)
	}

	slices.SortFunc(pipelines, func(a, b *models.Pipeline) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return pipelines, nil
}
