package otelhelper

import (
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, retried := tracer.Start(t.Context(), "retried")
	SetError(retried, errors.New("connection refused"), attribute.String(DispatchIDKey, "d-1"))
	retried.End()

	_, dropped := tracer.Start(t.Context(), "dropped")
	SetError(dropped, backoff.Permanent(errors.New("404 Not Found")))
	dropped.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "connection refused", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.String(DispatchIDKey, "d-1"))
	assert.NotContains(t, spans[0].Attributes(), attribute.Bool(PermanentErrorKey, true))

	assert.Contains(t, spans[1].Attributes(), attribute.Bool(PermanentErrorKey, true))
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}
