package observe_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxdesk/internal/observe"
)

// serve runs one request through a mux wrapped by the middleware.
func serve(t *testing.T, m meter, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/assistant/{surface}/toggle", func(w http.ResponseWriter, r *http.Request) {
		if observe.CorrelationID(r.Context()) == "" {
			t.Error("handler context carries no span")
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	observe.Middleware(m.Metrics)(mux).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_SpanAndCorrelationHeader(t *testing.T) {
	exp := installTracer(t)
	m := newMeter(t)

	rec := serve(t, m, httptest.NewRequest(http.MethodPost, "/api/assistant/dashboard/toggle", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.SpanKind != trace.SpanKindServer {
		t.Errorf("span kind = %v", s.SpanKind)
	}
	if s.Name != "POST /api/assistant/{surface}/toggle" {
		t.Errorf("span name = %q, want the route pattern", s.Name)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != s.SpanContext.TraceID().String() {
		t.Errorf("X-Correlation-ID = %q, span trace = %s", got, s.SpanContext.TraceID())
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	exp := installTracer(t)
	m := newMeter(t)

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/tasks/toggle", nil)
	propagation.HeaderCarrier(req.Header).Set("traceparent", parent)
	serve(t, m, req)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace ID = %s, want the caller's", got)
	}
	if got := spans[0].Parent.SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("parent span = %s", got)
	}
}

func TestMiddleware_LatencyByRoute(t *testing.T) {
	installTracer(t)
	m := newMeter(t)

	serve(t, m, httptest.NewRequest(http.MethodPost, "/api/assistant/dashboard/toggle", nil))
	serve(t, m, httptest.NewRequest(http.MethodPost, "/api/assistant/campaigns/toggle", nil))
	serve(t, m, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	hist, ok := m.instrument(t, "voxdesk.http.request.duration").(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("request duration is not a float64 histogram")
	}
	byRoute := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		byRoute[route.AsString()] += dp.Count
	}
	if got := byRoute["POST /api/assistant/{surface}/toggle"]; got != 2 {
		t.Errorf("toggle route samples = %d, want 2 (routes: %v)", got, byRoute)
	}
	if got := byRoute["unmatched"]; got != 1 {
		t.Errorf("unmatched samples = %d, want 1", got)
	}
}

func TestMiddleware_ServerErrorsLogAtWarn(t *testing.T) {
	installTracer(t)
	buf := captureLogs(t)
	m := newMeter(t)

	rec := serve(t, m, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}

	var line map[string]any
	if err := json.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&line); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if line["level"] != "WARN" || line["msg"] != "http request" {
		t.Errorf("log line = %v", line)
	}
	if line["status"] != float64(http.StatusInternalServerError) {
		t.Errorf("logged status = %v", line["status"])
	}
}
