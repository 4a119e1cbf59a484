package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

// ErrAllFailed is returned (wrapped with the last failure) when no
// transport in a [Transport] could be opened.
var ErrAllFailed = errors.New("resilience: all transports failed")

var _ live.Transport = (*Transport)(nil)

type entry struct {
	name      string
	transport live.Transport
	breaker   *CircuitBreaker
}

// Transport is a [live.Transport] over a primary and zero or more fallback
// transports, each behind its own [CircuitBreaker]. Open tries them in
// order and returns the first channel that opens.
type Transport struct {
	cfg     BreakerConfig
	entries []entry
	observe OpenObserver
}

// Outcomes reported to an [OpenObserver].
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// OpenObserver is told about every attempt [Transport.Open] makes.
type OpenObserver func(ctx context.Context, transport, outcome string)

// TransportOption is a functional option for [NewTransport].
type TransportOption func(*Transport)

// WithFallback appends a transport tried after the primary and after any
// fallback added before it.
func WithFallback(name string, t live.Transport) TransportOption {
	return func(tr *Transport) { tr.add(name, t) }
}

// WithBreakerConfig sets the breaker tuning used for every entry. Its Name
// field is ignored. It must precede any [WithFallback] option.
func WithBreakerConfig(cfg BreakerConfig) TransportOption {
	return func(tr *Transport) {
		tr.cfg = cfg
		for i := range tr.entries {
			tr.entries[i].breaker = tr.newBreaker(tr.entries[i].name)
		}
	}
}

// WithOpenObserver reports each open attempt to fn.
func WithOpenObserver(fn OpenObserver) TransportOption {
	return func(tr *Transport) { tr.observe = fn }
}

// NewTransport wraps primary.
func NewTransport(name string, primary live.Transport, opts ...TransportOption) *Transport {
	tr := &Transport{}
	tr.add(name, primary)
	for _, o := range opts {
		o(tr)
	}
	return tr
}

func (tr *Transport) newBreaker(name string) *CircuitBreaker {
	cfg := tr.cfg
	cfg.Name = name
	return NewCircuitBreaker(cfg)
}

func (tr *Transport) add(name string, t live.Transport) {
	tr.entries = append(tr.entries, entry{name: name, transport: t, breaker: tr.newBreaker(name)})
}

// Open implements [live.Transport]. Transports whose breaker is open are
// skipped. A cancelled ctx stops the search immediately.
func (tr *Transport) Open(ctx context.Context, cfg live.Config, cb live.Callbacks) (live.Channel, error) {
	var lastErr error
	for i := range tr.entries {
		e := &tr.entries[i]
		var ch live.Channel
		err := e.breaker.Execute(func() error {
			var err error
			ch, err = e.transport.Open(ctx, cfg, cb)
			return err
		})
		tr.report(ctx, e.name, err)
		if err == nil {
			if i > 0 {
				slog.Info("resilience: opened fallback transport", "transport", e.name)
			}
			return ch, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping transport, circuit open", "transport", e.name)
		} else {
			slog.Warn("resilience: transport failed to open, trying next", "transport", e.name, "err", err)
		}
	}
	if len(tr.entries) == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (tr *Transport) report(ctx context.Context, name string, err error) {
	if tr.observe == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case errors.Is(err, ErrCircuitOpen):
		outcome = OutcomeRejected
	case err != nil:
		outcome = OutcomeError
	}
	tr.observe(ctx, name, outcome)
}

// States returns the breaker state of every transport by name.
func (tr *Transport) States() map[string]State {
	out := make(map[string]State, len(tr.entries))
	for _, e := range tr.entries {
		out[e.name] = e.breaker.State()
	}
	return out
}
