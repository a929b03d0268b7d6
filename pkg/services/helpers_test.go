package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestStore(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func createPipeline(t *testing.T, p *file.Persistence, name string) *models.Pipeline {
	t.Helper()

	pipeline := &models.Pipeline{Name: name, Team: "data-eng", Environment: models.EnvironmentProd}
	require.NoError(t, p.PipelineRepository().Save(t.Context(), pipeline))

	return pipeline
}

func ptr[T any](v T) *T {
	return &v
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
