package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartRunSpan starts the root span of one benchmark run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, runID string, endpoints int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "benchan run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("benchan.run_id", runID),
			attribute.Int("benchan.endpoints", endpoints),
		),
	)
}

// StartConnectionSpan starts a client span covering one endpoint connection
// from dial to its terminal event.
func StartConnectionSpan(ctx context.Context, tracer trace.Tracer, endpoint string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "websocket "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("network.protocol.name", "websocket"),
		attribute.String("benchan.endpoint", endpoint),
	)
	return ctx, span
}

// AddPhaseEvent records a connection phase change on span.
func AddPhaseEvent(span trace.Span, phase string) {
	span.AddEvent(phase)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into the handshake headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
