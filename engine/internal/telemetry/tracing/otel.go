package tracing

// OTel bridge: an alternative Tracer backend built on a real OpenTelemetry
// SDK TracerProvider, for deployments that want spans exported through the
// OTel ecosystem instead of the package's own lightweight SpanContext
// threading. Grounded on the monitoring package's OpenTelemetryTracer,
// narrowed to just span start/end/attribute since subflow's Tracer
// interface doesn't carry business-metrics recording.

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OTelTracerOptions configures NewOTelTracer.
type OTelTracerOptions struct {
	ServiceName string
	Environment string
}

// NewOTelTracer returns a Tracer backed by a fresh OTel SDK TracerProvider
// (no exporter attached by default -- callers that need spans to leave the
// process register one against the returned *sdktrace.TracerProvider) along
// with that provider, so callers can attach exporters or call Shutdown.
func NewOTelTracer(opts OTelTracerOptions) (Tracer, *sdktrace.TracerProvider) {
	res := resource.NewWithAttributes("",
		attribute.String("service.name", opts.ServiceName),
		attribute.String("deployment.environment", opts.Environment),
	)
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	return &otelTracer{tracer: tp.Tracer(opts.ServiceName)}, tp
}

type otelTracer struct{ tracer oteltrace.Tracer }

func (t *otelTracer) Noop() bool { return false }

func (t *otelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	newCtx, sp := t.tracer.Start(ctx, name)
	return newCtx, &otelSpan{span: sp}
}

type otelSpan struct{ span oteltrace.Span }

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value any) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

// Context returns a zero SpanContext; the OTel backend threads
// trace/span correlation through context.Context itself rather than this
// package's SpanContext, so callers needing the raw ids should use
// oteltrace.SpanContextFromContext on the context StartSpan returns.
func (s *otelSpan) Context() SpanContext { return SpanContext{} }

func (s *otelSpan) IsEnded() bool { return !s.span.IsRecording() }
