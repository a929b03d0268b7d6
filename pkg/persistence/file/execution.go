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

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	mu         *sync.RWMutex
	executions entityDir[models.Execution]
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	now := time.Now().UTC()
	if execution.StartedAt.IsZero() {
		execution.StartedAt = now
	}

	execution.CreatedAt = now
	execution.UpdatedAt = now

	return r.executions.write(execution.ID, execution)
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, err := r.executions.read(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	return execution, err
}

func (r *ExecutionRepository) UpdateStatus(_ context.Context, id string, status models.ExecutionStatus, at time.Time) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.executions.read(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewEntityError("UpdateStatus", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, err
	}

	execution.Status = status
	execution.UpdatedAt = at

	if status.IsTerminal() {
		completedAt := at
		durationMs := at.Sub(execution.StartedAt).Milliseconds()
		execution.CompletedAt = &completedAt
		execution.DurationMs = &durationMs
	}

	if err := r.executions.write(id, execution); err != nil {
		return nil, err
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByPipeline(_ context.Context, pipelineID string, limit int) ([]*models.Execution, error) {
	return r.newest(limit, func(execution *models.Execution) bool {
		return execution.PipelineID == pipelineID
	})
}

func (r *ExecutionRepository) ListByTrigger(_ context.Context, triggerID string, limit int) ([]*models.Execution, error) {
	return r.newest(limit, func(execution *models.Execution) bool {
		return execution.TriggerID == triggerID
	})
}

func (r *ExecutionRepository) newest(limit int, keep func(*models.Execution) bool) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.executions.all()
	if err != nil {
		return nil, err
	}

	executions := slices.DeleteFunc(all, func(execution *models.Execution) bool { return !keep(execution) })

	slices.SortFunc(executions, func(a, b *models.Execution) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}

		return strings.Compare(b.ID, a.ID)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}
