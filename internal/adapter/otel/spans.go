package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "torbit"

// StartChargeSpan starts a span for one eager cost charge.
func StartChargeSpan(ctx context.Context, executionID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "charge",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("charge.kind", kind),
		),
	)
}

// StartHoldSpan starts a span covering a hold operation.
func StartHoldSpan(ctx context.Context, holdID, executionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "hold",
		trace.WithAttributes(
			attribute.String("hold.id", holdID),
			attribute.String("execution.id", executionID),
		),
	)
}

// StartCloseSpan starts a span for an execution close.
func StartCloseSpan(ctx context.Context, executionID, status string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "close",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("close.status", status),
		),
	)
}
