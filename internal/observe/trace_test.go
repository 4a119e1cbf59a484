package observe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/voxdesk/internal/observe"
)

// installTracer makes an in-memory tracer provider global for the test.
// Tests that call it must not run in parallel.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger to a JSON buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_RecordsOnGlobalProvider(t *testing.T) {
	exp := installTracer(t)

	ctx, span := observe.StartSpan(context.Background(), "assistant.session")
	cid := observe.CorrelationID(ctx)
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "assistant.session" {
		t.Fatalf("spans = %v", spans)
	}
	if got := spans[0].SpanContext.TraceID().String(); got != cid {
		t.Errorf("CorrelationID = %q, span trace = %q", cid, got)
	}
	if len(cid) != 32 {
		t.Errorf("CorrelationID length = %d, want 32 hex chars", len(cid))
	}
}

func TestCorrelationID_NoSpan(t *testing.T) {
	t.Parallel()

	if got := observe.CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestLogger_TagsSpanIDs(t *testing.T) {
	installTracer(t)
	buf := captureLogs(t)

	observe.Logger(context.Background()).Info("untraced")
	ctx, span := observe.StartSpan(context.Background(), "tools.dispatch")
	defer span.End()
	observe.Logger(ctx).Info("traced")

	dec := json.NewDecoder(buf)
	var untraced, traced map[string]any
	if err := dec.Decode(&untraced); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if err := dec.Decode(&traced); err != nil {
		t.Fatalf("decode second line: %v", err)
	}

	if _, ok := untraced["trace_id"]; ok {
		t.Error("untraced line carries trace_id")
	}
	if traced["trace_id"] != observe.CorrelationID(ctx) {
		t.Errorf("trace_id = %v, want %s", traced["trace_id"], observe.CorrelationID(ctx))
	}
	if traced["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("span_id = %v", traced["span_id"])
	}
}
