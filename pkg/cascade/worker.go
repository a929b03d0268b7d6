package cascade

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/medallionhq/conductor/pkg/launcher"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/otelhelper"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	DefaultPollInterval   = time.Second
	DefaultMaxAttempts    = 5
	DefaultBatchSize      = 50
	DefaultLease          = time.Minute
	DefaultInitialBackoff = 5 * time.Second
	DefaultMaxBackoff     = 10 * time.Minute
)

type WorkerConfig struct {
	// ID names the worker in logs and spans.
	ID             string
	PollInterval   time.Duration
	MaxAttempts    int
	BatchSize      int
	Lease          time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	if c.Lease <= 0 {
		c.Lease = DefaultLease
	}

	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}

	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}

	return c
}

// Worker launches due dispatches. A failed launch is rescheduled with
// exponential backoff until MaxAttempts is reached, then dropped and its
// pending execution cancelled.
type Worker struct {
	queue       queue.Queue
	launcher    launcher.Launcher
	persistence persistence.Persistence
	tracer      trace.Tracer
	logger      *slog.Logger
	config      WorkerConfig
	now         func() time.Time
}

// NewWorker creates a worker. A nil tracer disables tracing.
func NewWorker(q queue.Queue, l launcher.Launcher, p persistence.Persistence, tracer trace.Tracer, logger *slog.Logger, config WorkerConfig) *Worker {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("cascade")
	}

	return &Worker{
		queue:       q,
		launcher:    l,
		persistence: p,
		tracer:      tracer,
		logger:      logger.With("module", "dispatch_worker", "worker_id", config.ID),
		config:      config.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "dispatch worker started",
		"poll_interval", w.config.PollInterval, "max_attempts", w.config.MaxAttempts)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "failed to poll dispatch queue", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "dispatch worker stopped")

			return nil
		case <-ticker.C:
		}
	}
}

// Poll claims the due dispatches once and processes them in FireAt order. It
// returns the number of dispatches launched successfully.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	dispatches, err := w.queue.Claim(ctx, w.now(), w.config.BatchSize, w.config.Lease)
	if err != nil {
		return 0, err
	}

	launched := 0

	for _, dispatch := range dispatches {
		if ctx.Err() != nil {
			break
		}

		if w.process(ctx, dispatch) {
			launched++
		}
	}

	return launched, nil
}

func (w *Worker) process(ctx context.Context, dispatch *models.Dispatch) bool {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "cascade.launch",
		attribute.String(otelhelper.WorkerIDKey, w.config.ID),
		attribute.String(otelhelper.DispatchIDKey, dispatch.ID),
		attribute.String(otelhelper.PipelineIDKey, dispatch.PipelineID),
		attribute.String(otelhelper.ExecutionIDKey, dispatch.ExecutionID),
		attribute.String(otelhelper.TriggerIDKey, dispatch.TriggerID),
		attribute.Int("conductor.dispatch.attempt", dispatch.Attempts+1),
	)
	defer span.End()

	logger := w.logger.With("dispatch_id", dispatch.ID, "pipeline_id", dispatch.PipelineID,
		"execution_id", dispatch.ExecutionID, "attempt", dispatch.Attempts+1)

	err := w.launcher.Launch(ctx, dispatch)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, dispatch.ID); ackErr != nil {
			logger.WarnContext(ctx, "launched dispatch could not be acknowledged", "error", ackErr)
		}

		logger.InfoContext(ctx, "downstream pipeline launched")

		return true
	}

	otelhelper.SetError(span, err)

	dispatch.Attempts++
	dispatch.LastError = err.Error()

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) || dispatch.Attempts >= w.config.MaxAttempts {
		logger.ErrorContext(ctx, "dropping dispatch", "error", err, "attempts", dispatch.Attempts, "data_integrity", true)
		w.drop(ctx, logger, dispatch)

		return false
	}

	fireAt := w.now().Add(w.retryDelay(dispatch.Attempts))
	if retryErr := w.queue.Retry(ctx, dispatch, fireAt); retryErr != nil {
		logger.ErrorContext(ctx, "failed to reschedule dispatch", "error", retryErr)

		return false
	}

	logger.WarnContext(ctx, "launch failed, dispatch rescheduled", "error", err, "fire_at", fireAt)

	return false
}

func (w *Worker) drop(ctx context.Context, logger *slog.Logger, dispatch *models.Dispatch) {
	if err := w.queue.Ack(ctx, dispatch.ID); err != nil {
		logger.ErrorContext(ctx, "failed to remove dropped dispatch", "error", err)
	}

	if _, err := w.persistence.ExecutionRepository().UpdateStatus(ctx, dispatch.ExecutionID, models.ExecutionStatusCancelled, w.now()); err != nil {
		logger.ErrorContext(ctx, "failed to cancel execution of dropped dispatch", "error", err)
	}
}

// retryDelay is the exponential backoff interval after the given number of
// failed attempts, without jitter.
func (w *Worker) retryDelay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     w.config.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         w.config.MaxBackoff,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	delay := b.NextBackOff()
	for range attempts - 1 {
		delay = b.NextBackOff()
	}

	return delay
}
