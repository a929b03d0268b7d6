package mocks

import (
	"context"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockQueue is a mock implementation of queue.Queue interface.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, dispatch *models.Dispatch) error {
	args := m.Called(ctx, dispatch)

	return args.Error(0)
}

func (m *MockQueue) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Dispatch, error) {
	args := m.Called(ctx, now, limit, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Dispatch), args.Error(1)
}

func (m *MockQueue) Ack(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockQueue) Retry(ctx context.Context, dispatch *models.Dispatch, fireAt time.Time) error {
	args := m.Called(ctx, dispatch, fireAt)

	return args.Error(0)
}

func (m *MockQueue) Pending(ctx context.Context) (int, error) {
	args := m.Called(ctx)

	return args.Int(0), args.Error(1)
}

func (m *MockQueue) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockQueue) Close() error {
	args := m.Called()

	return args.Error(0)
}
