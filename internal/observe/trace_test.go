package observe

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID outside a trace = %q, want empty", got)
	}

	tp, _ := recordingTracer(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "utterance")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID = %q, want 32 hex chars", cid)
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID %q is not lowercase hex", cid)
	}
}

func TestStartSpanRecordsUnderGlobalProvider(t *testing.T) {
	tp, exp := recordingTracer(t)

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	ctx, span := StartSpan(context.Background(), "pipeline.process")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan produced no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "pipeline.process" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestLoggerTraceAnnotations(t *testing.T) {
	tp, _ := recordingTracer(t)

	var sb strings.Builder
	slog.SetDefault(slog.New(slog.NewTextHandler(&sb, nil)))
	t.Cleanup(func() { slog.SetDefault(slog.Default()) })

	Logger(context.Background()).Info("outside trace")
	if strings.Contains(sb.String(), "trace_id") {
		t.Errorf("untraced log carries trace_id: %s", sb.String())
	}

	sb.Reset()
	ctx, span := tp.Tracer("test").Start(context.Background(), "reply")
	defer span.End()
	Logger(ctx).Info("inside trace")

	out := sb.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("traced log missing trace annotations: %s", out)
	}
}
