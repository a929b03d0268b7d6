package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence/file"
	"github.com/medallionhq/conductor/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	api := NewAPI(slog.New(slog.DiscardHandler), store, queue.NewMemoryQueue(), nil, nil)

	return api.App(), store
}

func send(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()

	resp, err := app.Test(req)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	})

	return resp
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := send(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Conductor API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp := send(t, app, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp := send(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_GetPipelines_WithData(t *testing.T) {
	app, store := setupTestApp(t)

	require.NoError(t, store.PipelineRepository().Save(context.Background(), &models.Pipeline{
		ID:          "orders-bronze",
		Name:        "Orders bronze",
		Team:        "ingestion",
		Environment: models.EnvironmentProd,
	}))

	req := httptest.NewRequest(http.MethodGet, "/pipelines?team=ingestion", nil)
	req.Header.Set("Accept", "application/json")

	resp := send(t, app, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var body struct {
		Pipelines []models.Pipeline `json:"pipelines"`
		Count     int               `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "orders-bronze", body.Pipelines[0].ID)
}

func TestAPI_CompleteExecution_WithoutBus(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/executions/exec-1/complete",
		strings.NewReader(`{"status":"completed","pipelineId":"orders-bronze"}`))
	req.Header.Set("Content-Type", "application/json")

	resp := send(t, app, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.InDelta(t, 0, summary["triggeredCount"], 0)
}

func TestAPI_CORS_Headers(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/pipelines", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp := send(t, app, req)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return port
}

func TestCommand_StartsWithOnlyDatabaseURL(t *testing.T) {
	port := freePort(t)

	t.Setenv("DATABASE_URL", "file://"+t.TempDir())
	t.Setenv("PORT", strconv.Itoa(port))

	for _, key := range []string{
		"EVENT_BUS_TYPE", "LAUNCHER", "LAUNCH_URL", "EMBEDDED_WORKER", "DISPATCH_QUEUE_URL",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- newCommand().Run(ctx, []string{"conductor-api"})
	}()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/livez"

	require.Eventually(t, func() bool {
		select {
		case err := <-done:
			done <- err

			return true
		default:
		}

		resp, err := http.Get(url) //nolint:noctx
		if err != nil {
			return false
		}

		_ = resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err, "the server exited before serving")
	default:
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}
