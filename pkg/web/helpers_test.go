package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/medallionhq/conductor/pkg/cascade"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence/file"
	"github.com/medallionhq/conductor/pkg/queue"
	"github.com/medallionhq/conductor/pkg/services"
	"github.com/medallionhq/conductor/pkg/web"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app   *fiber.App
	store *file.Persistence
	queue *queue.MemoryQueue
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := file.NewPersistence(t.TempDir())
	q := queue.NewMemoryQueue()

	handlers := web.NewAPIHandlers(web.Services{
		Pipelines:  services.NewPipeline(store, logger),
		Triggers:   services.NewTrigger(store, nil, logger),
		Executions: services.NewExecution(store),
		Catalog:    services.NewCatalog(store, nil, logger),
		Watermarks: services.NewWatermark(store, logger),
		Dispatcher: cascade.NewDispatcher(store, q, nil, logger),
		Queue:      q,
	}, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return &testEnv{app: app, store: store, queue: q}
}

// do sends body as JSON (a string is sent verbatim) and decodes the answer
// into out when out is not nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func (e *testEnv) createPipeline(t *testing.T, name string) *models.Pipeline {
	t.Helper()

	var pipeline models.Pipeline
	status := e.do(t, http.MethodPost, "/pipelines", web.CreatePipelineRequest{
		Name:        name,
		Team:        "data-eng",
		Environment: models.EnvironmentProd,
	}, &pipeline)
	require.Equal(t, http.StatusCreated, status)

	return &pipeline
}

func (e *testEnv) dependOn(t *testing.T, downstream, upstream *models.Pipeline, condition models.DependencyCondition) *models.Trigger {
	t.Helper()

	var trigger models.Trigger
	status := e.do(t, http.MethodPost, "/pipelines/"+downstream.ID+"/triggers", web.TriggerRequest{
		TriggerType:         models.TriggerTypeDependency,
		DependsOnPipelineID: &upstream.ID,
		DependencyCondition: &condition,
	}, &trigger)
	require.Equal(t, http.StatusCreated, status)

	return &trigger
}

type problem struct {
	Type     string   `json:"type"`
	Status   int      `json:"status"`
	Detail   string   `json:"detail"`
	Chain    []string `json:"chain"`
	ChainIDs []string `json:"chainIds"`
	NotFound []string `json:"notFound"`
	NotReady []string `json:"notReady"`
}

func ptr[T any](v T) *T {
	return &v
}
