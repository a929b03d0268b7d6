package otelhelper

import (
	"errors"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PermanentErrorKey marks failures that will not be retried.
const PermanentErrorKey = "conductor.error.permanent"

// SetError marks the span as failed. Errors wrapped with backoff.Permanent
// are flagged so dropped launches can be told apart from retried ones.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		attrs = append(attrs, attribute.Bool(PermanentErrorKey, true))
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attrs...)
}
