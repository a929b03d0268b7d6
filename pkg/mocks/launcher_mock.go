package mocks

import (
	"context"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockLauncher is a mock implementation of launcher.Launcher interface.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, dispatch *models.Dispatch) error {
	args := m.Called(ctx, dispatch)

	return args.Error(0)
}
