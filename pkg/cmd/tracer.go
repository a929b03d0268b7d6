package cmd

import (
	"context"
	"os"

	"github.com/medallionhq/conductor/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NewTracer exports spans over OTLP HTTP when an OTLP endpoint is configured
// and returns a no-op tracer otherwise.
//
//nolint:ireturn
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" {
		return noop.NewTracerProvider().Tracer(serviceName), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
