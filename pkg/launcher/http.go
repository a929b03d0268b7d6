package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/medallionhq/conductor/pkg/models"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPError reports a non-2xx answer of the execution endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPLauncher POSTs to {baseURL}/pipelines/{id}/execute.
type HTTPLauncher struct {
	baseURL string
	client  *http.Client
}

type executeRequest struct {
	ExecutionID string              `json:"executionId"`
	TriggerID   string              `json:"triggerId"`
	TriggeredBy *models.TriggeredBy `json:"triggeredBy,omitempty"`
}

// NewHTTPLauncher uses a client with a 30s timeout when client is nil.
func NewHTTPLauncher(baseURL string, client *http.Client) *HTTPLauncher {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &HTTPLauncher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (l *HTTPLauncher) Launch(ctx context.Context, dispatch *models.Dispatch) error {
	body, err := json.Marshal(executeRequest{
		ExecutionID: dispatch.ExecutionID,
		TriggerID:   dispatch.TriggerID,
		TriggeredBy: dispatch.TriggeredBy,
	})
	if err != nil {
		return backoff.Permanent(err)
	}

	endpoint := l.baseURL + "/pipelines/" + url.PathEscape(dispatch.PipelineID) + "/execute"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", dispatch.ExecutionID)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call execution endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}

	// Client errors will not get better on retry, except throttling.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(httpErr)
	}

	return httpErr
}
