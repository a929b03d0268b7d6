package mocks

import (
	"context"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence delegates every repository to the embedded store except
// the trigger repository, which can be replaced with a mock.
type MockPersistence struct {
	persistence.Persistence

	Triggers persistence.TriggerRepository
}

func (m *MockPersistence) TriggerRepository() persistence.TriggerRepository {
	if m.Triggers != nil {
		return m.Triggers
	}

	return m.Persistence.TriggerRepository()
}

// MockTriggerRepository is a mock implementation of persistence.TriggerRepository interface.
type MockTriggerRepository struct {
	mock.Mock
}

func (m *MockTriggerRepository) GetByID(ctx context.Context, pipelineID, triggerID string) (*models.Trigger, error) {
	args := m.Called(ctx, pipelineID, triggerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Trigger), args.Error(1)
}

func (m *MockTriggerRepository) ListByPipeline(ctx context.Context, pipelineID string) ([]*models.Trigger, error) {
	args := m.Called(ctx, pipelineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Trigger), args.Error(1)
}

func (m *MockTriggerRepository) ListDependents(ctx context.Context, upstreamID string) ([]*models.Trigger, error) {
	args := m.Called(ctx, upstreamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Trigger), args.Error(1)
}

func (m *MockTriggerRepository) DependencyEdges(ctx context.Context) ([]models.DependencyEdge, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.DependencyEdge), args.Error(1)
}

func (m *MockTriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	args := m.Called(ctx, trigger)

	return args.Error(0)
}

func (m *MockTriggerRepository) SaveGuarded(ctx context.Context, trigger *models.Trigger, check persistence.EdgeCheck) error {
	args := m.Called(ctx, trigger, check)

	return args.Error(0)
}

func (m *MockTriggerRepository) UpdateNextRun(ctx context.Context, triggerID string, nextRunAt *time.Time) error {
	args := m.Called(ctx, triggerID, nextRunAt)

	return args.Error(0)
}

func (m *MockTriggerRepository) Delete(ctx context.Context, pipelineID, triggerID string) error {
	args := m.Called(ctx, pipelineID, triggerID)

	return args.Error(0)
}
