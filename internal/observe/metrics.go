// Package observe holds the telemetry of the voxdesk server: OpenTelemetry
// instruments for the voice session, span helpers that tie log lines to
// traces, and the HTTP middleware in front of the UI API.
//
// Instruments are created from a [metric.MeterProvider] by [NewMetrics].
// Production code uses [DefaultMetrics], bound to the global provider that
// [InitProvider] exports to Prometheus; tests pass their own provider.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every voxdesk instrument.
const meterName = "github.com/MrWong99/voxdesk"

// latencyBuckets are histogram boundaries in seconds. Opens and tool calls
// sit between tens of milliseconds and a few seconds.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics is the set of instruments recorded by the server.
type Metrics struct {
	// Session.
	ActiveSessions    metric.Int64UpDownCounter
	StatusTransitions metric.Int64Counter // attr: status
	SessionErrors     metric.Int64Counter // attr: kind
	TurnsCompleted    metric.Int64Counter

	// Transport. TransportOpens carries transport and outcome attributes.
	TransportOpenDuration metric.Float64Histogram
	TransportOpens        metric.Int64Counter

	// Audio path.
	FramesSent      metric.Int64Counter
	FramesDropped   metric.Int64Counter
	ChunksScheduled metric.Int64Counter

	// Tools. ToolCalls carries tool and status attributes.
	ToolCalls             metric.Int64Counter
	ToolExecutionDuration metric.Float64Histogram

	// HTTP. Attributes: method, route.
	HTTPRequestDuration metric.Float64Histogram
}

// instruments creates instruments on one meter and remembers the first
// failure of each.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.note(name, err)
	return c
}

func (in *instruments) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.note(name, err)
	return c
}

func (in *instruments) seconds(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	in.note(name, err)
	return h
}

func (in *instruments) note(name string, err error) {
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("%s: %w", name, err))
	}
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		ActiveSessions:        in.upDown("voxdesk.session.active", "Voice sessions currently open (0 or 1)."),
		StatusTransitions:     in.counter("voxdesk.session.status_transitions", "Assistant status changes by target status."),
		SessionErrors:         in.counter("voxdesk.session.errors", "Errors that failed or ended a session, by kind."),
		TurnsCompleted:        in.counter("voxdesk.session.turns_completed", "Model turns finalised into history."),
		TransportOpenDuration: in.seconds("voxdesk.transport.open.duration", "Time from dial to channel open."),
		TransportOpens:        in.counter("voxdesk.transport.opens", "Channel open attempts by transport and outcome."),
		FramesSent:            in.counter("voxdesk.audio.frames_sent", "Microphone frames accepted by the channel."),
		FramesDropped:         in.counter("voxdesk.audio.frames_dropped", "Microphone frames rejected by the send path."),
		ChunksScheduled:       in.counter("voxdesk.audio.chunks_scheduled", "Model audio chunks placed on the output clock."),
		ToolCalls:             in.counter("voxdesk.tool.calls", "Tool invocations by tool and status."),
		ToolExecutionDuration: in.seconds("voxdesk.tool.duration", "Latency of tool side effects."),
		HTTPRequestDuration:   in.seconds("voxdesk.http.request.duration", "HTTP request latency by method and route."),
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return m, nil
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
})

// DefaultMetrics returns the instruments bound to the global meter provider.
// They are created on first use, so call [InitProvider] before it.
func DefaultMetrics() *Metrics { return defaultMetrics() }

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall counts one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status)))
}

// RecordSessionError counts one session error of kind ("device",
// "transport", "remote", ...).
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordStatus counts a transition into status.
func (m *Metrics) RecordStatus(ctx context.Context, status string) {
	m.StatusTransitions.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordTransportOpen counts one open attempt on transport. outcome is "ok",
// "error" or "rejected" (breaker open).
func (m *Metrics) RecordTransportOpen(ctx context.Context, transport, outcome string) {
	m.TransportOpens.Add(ctx, 1, metric.WithAttributes(Attr("transport", transport), Attr("outcome", outcome)))
}
