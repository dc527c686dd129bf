package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoopTracer(t *testing.T) {
	tr := NewTracer(false)
	require.True(t, tr.Noop())
	ctx, sp := tr.StartSpan(context.Background(), "noop")
	require.NotNil(t, ctx)
	require.NotNil(t, sp)
	sp.End()
}

func TestSimpleTracerHierarchy(t *testing.T) {
	tr := NewTracer(true)
	require.False(t, tr.Noop())
	ctx, root := tr.StartSpan(context.Background(), "root")
	require.NotEmpty(t, root.Context().TraceID)
	require.NotEmpty(t, root.Context().SpanID)

	_, child := tr.StartSpan(ctx, "child")
	require.Equal(t, root.Context().TraceID, child.Context().TraceID)
	require.Equal(t, root.Context().SpanID, child.Context().ParentSpanID)

	child.End()
	root.End()
	require.True(t, root.IsEnded())
	require.True(t, child.IsEnded())
	require.False(t, root.Context().End.IsZero())
	require.False(t, child.Context().End.IsZero())
}

func TestAdaptiveTracerSamplesAtPolicyPercent(t *testing.T) {
	always := NewAdaptiveTracer(func() float64 { return 100 })
	_, sp := always.StartSpan(context.Background(), "always")
	require.NotEmpty(t, sp.Context().TraceID)

	never := NewAdaptiveTracer(func() float64 { return 0 })
	_, sp = never.StartSpan(context.Background(), "never")
	require.Empty(t, sp.Context().TraceID, "zero percent never samples a fresh trace")
}

func TestAdaptiveTracerAlwaysContinuesInFlightTrace(t *testing.T) {
	root := NewTracer(true)
	ctx, rootSpan := root.StartSpan(context.Background(), "root")

	never := NewAdaptiveTracer(func() float64 { return 0 })
	_, child := never.StartSpan(ctx, "child")
	require.Equal(t, rootSpan.Context().TraceID, child.Context().TraceID, "a trace already in flight is always continued regardless of sample rate")
}

func TestSpanTimingOrder(t *testing.T) {
	tr := NewTracer(true)
	_, sp := tr.StartSpan(context.Background(), "timing")
	time.Sleep(5 * time.Millisecond)
	sp.End()
	require.False(t, sp.Context().End.Before(sp.Context().Start))
}

func TestOTelTracerStartEndAndExtractIDs(t *testing.T) {
	tr, tp := NewOTelTracer(OTelTracerOptions{ServiceName: "subflow-test", Environment: "test"})
	defer func() { _ = tp.Shutdown(context.Background()) }()

	require.False(t, tr.Noop())
	ctx, sp := tr.StartSpan(context.Background(), "otel-span")
	require.False(t, sp.IsEnded())

	traceID, spanID := ExtractIDs(ctx)
	require.NotEmpty(t, traceID)
	require.NotEmpty(t, spanID)

	sp.SetAttribute("k", "v")
	sp.End()
	require.True(t, sp.IsEnded())
}
