package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

// SendFunc delivers one tool result back to the model.
type SendFunc func(live.ToolResult) error

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithMetrics records tool call counts and latencies on m.
func WithMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTimeout bounds each side effect. Zero means no bound beyond the
// dispatch context.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// Dispatcher routes model tool calls to a [Sink].
//
// Calls run one at a time in the order they were dispatched, across batches
// as well as within one, so a later call observes the effects of earlier ones.
// Every call produces exactly one [live.ToolResult] carrying its ID, sent as
// soon as its side effect returns. Failures never surface as errors:
// an unknown tool, malformed arguments or a failing side effect all resolve
// to [Ack]. A result that cannot be sent because the channel has closed is
// dropped.
type Dispatcher struct {
	sink    Sink
	metrics *observe.Metrics
	timeout time.Duration

	mu   sync.Mutex
	tail chan struct{} // closed once the most recent batch has finished
	wg   sync.WaitGroup
}

// NewDispatcher creates a Dispatcher running side effects through sink.
func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sink: sink}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch queues calls behind any batch still running and returns without
// waiting for them. The calls execute sequentially in the order given. Use
// [Dispatcher.Wait] to block until they have finished.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []live.ToolCall, send SendFunc) {
	if len(calls) == 0 {
		return
	}
	calls = slices.Clone(calls)

	d.mu.Lock()
	prev := d.tail
	done := make(chan struct{})
	d.tail = done
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		for _, call := range calls {
			d.handle(ctx, call, send)
		}
	}()
}

// Wait blocks until every dispatched call has sent (or dropped) its result.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, call live.ToolCall, send SendFunc) {
	ctx, span := observe.StartSpan(ctx, "tools.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	)

	start := time.Now()
	output, err := d.execute(ctx, call)
	status := "ok"
	if err != nil {
		status = "error"
		output = Ack
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.Logger(ctx).Warn("tools: call failed, acknowledging",
			"call_id", call.ID,
			"tool", call.Name,
			"err", err,
		)
	}
	if output == "" {
		output = Ack
	}
	if d.metrics != nil {
		d.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
		d.metrics.RecordToolCall(ctx, call.Name, status)
	}

	result := live.ToolResult{ID: call.ID, Name: call.Name, Output: output}
	if send == nil {
		return
	}
	if err := send(result); err != nil {
		slog.Debug("tools: result dropped", "call_id", call.ID, "tool", call.Name, "err", err)
	}
}

// execute runs the side effect for call and returns its confirmation.
func (d *Dispatcher) execute(ctx context.Context, call live.ToolCall) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tools: %s: panic: %v", call.Name, r)
		}
	}()

	name := Name(call.Name)
	if !name.Valid() {
		return "", fmt.Errorf("tools: unknown tool %q", call.Name)
	}
	if d.sink == nil {
		return "", fmt.Errorf("tools: %s: no sink configured", name)
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	switch name {
	case Navigate:
		var args navigateArgs
		if err := decodeArgs(name, call.Args, &args); err != nil {
			return "", err
		}
		if args.Path == "" {
			return "", fmt.Errorf("tools: navigate: path is required")
		}
		return d.sink.Navigate(ctx, args.Path)

	case CreateRecord:
		var args createRecordArgs
		if err := decodeArgs(name, call.Args, &args); err != nil {
			return "", err
		}
		if args.Kind == "" {
			return "", fmt.Errorf("tools: create_record: kind is required")
		}
		fields := make(map[string]string, len(args.Fields)+1)
		for k, v := range args.Fields {
			s, err := scalarString(v)
			if err != nil {
				return "", fmt.Errorf("tools: create_record: field %q: %w", k, err)
			}
			fields[k] = s
		}
		fields["kind"] = args.Kind
		return d.sink.CreateRecord(ctx, fields)

	case UpdateRecord:
		var args updateRecordArgs
		if err := decodeArgs(name, call.Args, &args); err != nil {
			return "", err
		}
		if args.Selector == "" || args.Field == "" {
			return "", fmt.Errorf("tools: update_record: selector and field are required")
		}
		value, err := scalarString(args.Value)
		if err != nil {
			return "", fmt.Errorf("tools: update_record: value: %w", err)
		}
		return d.sink.UpdateRecord(ctx, args.Selector, args.Field, value)
	}
	return "", fmt.Errorf("tools: unhandled tool %q", name)
}
