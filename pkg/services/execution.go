package services

import (
	"context"
	"fmt"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

const (
	DefaultExecutionLimit = 20
	MaxExecutionLimit     = 100
)

type Execution struct {
	persistence persistence.Persistence
}

func NewExecution(p persistence.Persistence) *Execution {
	return &Execution{persistence: p}
}

func (s *Execution) FetchByID(ctx context.Context, id string) (*models.Execution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, id)
}

// ListByPipeline returns the pipeline's executions, newest first.
func (s *Execution) ListByPipeline(ctx context.Context, pipelineID string, limit int) ([]*models.Execution, error) {
	if _, err := s.persistence.PipelineRepository().GetByID(ctx, pipelineID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultExecutionLimit
	}

	executions, err := s.persistence.ExecutionRepository().ListByPipeline(ctx, pipelineID, min(limit, MaxExecutionLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}
