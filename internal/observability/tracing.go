package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName  = "github.com/danmuck/nmead"
	ServiceName = "nmead"
)

// Tracer resolves the nmead tracer from the global provider, which is a
// no-op until InitTracing (or a test) installs one.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracing installs a global SDK provider exporting finished spans to w as
// JSON. The returned func flushes and stops the provider.
func InitTracing(w io.Writer) (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("observability: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	logger := Component("tracing")
	logger.Info().Msg("trace exporter enabled")
	return tp.Shutdown, nil
}

// StartDispatchSpan opens a server span around one dispatched line.
func StartDispatchSpan(ctx context.Context, remote string) (context.Context, trace.Span) {
	return Tracer().Start(
		ctx,
		"nmea.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("nmea.remote", remote)),
	)
}

// EndDispatchSpan records the outcome on span and ends it.
func EndDispatchSpan(span trace.Span, sentenceID, outcome string, err error) {
	span.SetAttributes(
		attribute.String("nmea.sentence_id", sentenceID),
		attribute.String("nmea.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
