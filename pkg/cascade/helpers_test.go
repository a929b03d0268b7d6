package cascade

import (
	"log/slog"
	"testing"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

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

func dependOn(t *testing.T, p *file.Persistence, downstreamID, upstreamID string, condition models.DependencyCondition, delay int, enabled bool) *models.Trigger {
	t.Helper()

	trigger := &models.Trigger{
		PipelineID:          downstreamID,
		TriggerType:         models.TriggerTypeDependency,
		Enabled:             enabled,
		DependsOnPipelineID: upstreamID,
		DependencyCondition: condition,
		DelayMinutes:        delay,
	}
	require.NoError(t, p.TriggerRepository().Save(t.Context(), trigger))

	return trigger
}
