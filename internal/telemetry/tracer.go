// Package telemetry wraps the orchestrator pipeline in OpenTelemetry spans,
// correlated with the per-request trace id already carried through
// internal/requestlog (spec.md §4.10's accounting trace id).
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName identifies this gateway's spans in any configured exporter.
const TracerName = "cursor-gateway"

// GetTracer returns the global tracer when tracing is enabled, or a no-op
// tracer otherwise, mirroring the pack's own enabled/disabled tracer
// selection pattern.
func GetTracer(enabled bool) trace.Tracer {
	if !enabled {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return otel.Tracer(TracerName)
}

// StartRequestSpan opens a span for one orchestrator pass, tagging it with
// the trace id accounting already assigned to the request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, traceID, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "chatservice.Run", trace.WithAttributes(
		attribute.String("gateway.trace_id", traceID),
		attribute.String("gateway.model", model),
	))
}

// EndRequestSpan closes span, recording err on it if non-nil.
func EndRequestSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
