package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/resilience"
)

// BuildTransport creates the transport named by ac and its fallbacks from
// reg, each behind a circuit breaker tuned by ac.Breaker. extra options are
// applied after the fallbacks.
func BuildTransport(ctx context.Context, reg *config.Registry, ac config.AssistantConfig, extra ...resilience.TransportOption) (*resilience.Transport, error) {
	primary, err := reg.CreateTransport(ctx, ac)
	if err != nil {
		return nil, fmt.Errorf("app: transport %q: %w", ac.Transport, err)
	}

	opts := []resilience.TransportOption{
		resilience.WithBreakerConfig(resilience.BreakerConfig{
			MaxFailures:  ac.Breaker.MaxFailures,
			ResetTimeout: ac.Breaker.ResetTimeout,
		}),
	}
	for _, name := range ac.Fallbacks {
		fc := ac
		fc.Transport = name
		t, err := reg.CreateTransport(ctx, fc)
		if err != nil {
			return nil, fmt.Errorf("app: fallback transport %q: %w", name, err)
		}
		opts = append(opts, resilience.WithFallback(name, t))
	}
	opts = append(opts, extra...)
	return resilience.NewTransport(ac.Transport, primary, opts...), nil
}
