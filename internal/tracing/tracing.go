// Package tracing provides the GuardDuty span attributes and operation spans.
// Handler spans, error recording and propagation come from jmap-service-libs/tracing.
package tracing

import (
	"context"

	libtracing "github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of operation spans
const TracerName = "aws-sec-mcp"

// Operation returns the GuardDuty operation attribute
func Operation(name string) attribute.KeyValue {
	return attribute.String("guardduty.operation", name)
}

// SessionContext returns the session context attribute
func SessionContext(key string) attribute.KeyValue {
	return attribute.String("guardduty.session_context", key)
}

// DetectorID returns the detector ID attribute
func DetectorID(id string) attribute.KeyValue {
	return attribute.String("guardduty.detector_id", id)
}

// Outcome returns the dispatch outcome attribute
func Outcome(outcome string) attribute.KeyValue {
	return attribute.String("guardduty.outcome", outcome)
}

// StartOperationSpan starts a span covering a single dispatched operation.
// Caller must defer span.End().
func StartOperationSpan(ctx context.Context, operation, sessionContext string) (context.Context, trace.Span) {
	return libtracing.Tracer(TracerName).Start(ctx, "GuardDutyOperation",
		trace.WithAttributes(
			Operation(operation),
			SessionContext(sessionContext),
		),
	)
}
