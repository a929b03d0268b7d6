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

// TriggerRepository handles trigger-related file operations.
type TriggerRepository struct {
	mu       *sync.RWMutex
	triggers entityDir[models.Trigger]
}

func (r *TriggerRepository) GetByID(_ context.Context, pipelineID, triggerID string) (*models.Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trigger, err := r.triggers.read(triggerID)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && trigger.PipelineID != pipelineID) {
		return nil, persistence.NewEntityError("GetByID", "trigger", triggerID, persistence.ErrTriggerNotFound)
	}

	return trigger, err
}

func (r *TriggerRepository) ListByPipeline(_ context.Context, pipelineID string) ([]*models.Trigger, error) {
	return r.filter(func(trigger *models.Trigger) bool {
		return trigger.PipelineID == pipelineID
	})
}

func (r *TriggerRepository) ListDependents(_ context.Context, upstreamID string) ([]*models.Trigger, error) {
	return r.filter(func(trigger *models.Trigger) bool {
		return trigger.Enabled && trigger.IsDependency() && trigger.DependsOnPipelineID == upstreamID
	})
}

func (r *TriggerRepository) DependencyEdges(_ context.Context) ([]models.DependencyEdge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.edges()
}

func (r *TriggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.save(trigger)
}

func (r *TriggerRepository) SaveGuarded(_ context.Context, trigger *models.Trigger, check persistence.EdgeCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	edges, err := r.edges()
	if err != nil {
		return err
	}

	if err := check(edges); err != nil {
		return err
	}

	return r.save(trigger)
}

func (r *TriggerRepository) UpdateNextRun(_ context.Context, triggerID string, nextRunAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trigger, err := r.triggers.read(triggerID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewEntityError("UpdateNextRun", "trigger", triggerID, persistence.ErrTriggerNotFound)
		}

		return err
	}

	trigger.NextRunAt = nextRunAt

	return r.triggers.write(trigger.ID, trigger)
}

func (r *TriggerRepository) Delete(_ context.Context, pipelineID, triggerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trigger, err := r.triggers.read(triggerID)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && trigger.PipelineID != pipelineID) {
		return persistence.NewEntityError("Delete", "trigger", triggerID, persistence.ErrTriggerNotFound)
	}

	if err != nil {
		return err
	}

	_, err = r.triggers.remove(triggerID)

	return err
}

// save expects the write lock to be held.
func (r *TriggerRepository) save(trigger *models.Trigger) error {
	if trigger.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate trigger ID: %w", err)
		}

		trigger.ID = id.String()
	}

	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	return r.triggers.write(trigger.ID, trigger)
}

// edges expects a lock to be held.
func (r *TriggerRepository) edges() ([]models.DependencyEdge, error) {
	triggers, err := r.triggers.all()
	if err != nil {
		return nil, err
	}

	sortTriggers(triggers)

	edges := make([]models.DependencyEdge, 0, len(triggers))

	for _, trigger := range triggers {
		if trigger.IsDependency() {
			edges = append(edges, trigger.Edge())
		}
	}

	return edges, nil
}

func (r *TriggerRepository) filter(keep func(*models.Trigger) bool) ([]*models.Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.triggers.all()
	if err != nil {
		return nil, err
	}

	triggers := slices.DeleteFunc(all, func(trigger *models.Trigger) bool { return !keep(trigger) })
	sortTriggers(triggers)

	return triggers, nil
}

func sortTriggers(triggers []*models.Trigger) {
	slices.SortFunc(triggers, func(a, b *models.Trigger) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})
}
