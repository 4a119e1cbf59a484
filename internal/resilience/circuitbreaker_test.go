package resilience_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/resilience"
)

var errDial = errors.New("dial refused")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fail() error    { return errDial }
func succeed() error { return nil }

func newBreaker(clock *fakeClock) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: time.Minute,
		Now:          clock.Now,
	})
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := newBreaker(newFakeClock())
	_ = cb.Execute(fail)
	if cb.State() != resilience.StateClosed {
		t.Fatalf("state after one failure = %s", cb.State())
	}
	_ = cb.Execute(fail)
	if cb.State() != resilience.StateOpen {
		t.Fatalf("state after two failures = %s", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) || called {
		t.Errorf("open breaker: err = %v, called = %v", err, called)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	cb := newBreaker(newFakeClock())
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	if cb.State() != resilience.StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_ProbeAfterTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe func() error
		want  resilience.State
	}{
		{"probe succeeds", succeed, resilience.StateClosed},
		{"probe fails", fail, resilience.StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			cb := newBreaker(clock)
			_ = cb.Execute(fail)
			_ = cb.Execute(fail)

			clock.Advance(time.Minute)
			if cb.State() != resilience.StateHalfOpen {
				t.Fatalf("state after timeout = %s", cb.State())
			}
			_ = cb.Execute(tt.probe)
			if cb.State() != tt.want {
				t.Errorf("state after probe = %s, want %s", cb.State(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb := newBreaker(clock)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	if err := cb.Execute(succeed); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("second call during probe: err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_CancellationIsNeutral(t *testing.T) {
	t.Parallel()

	cb := newBreaker(newFakeClock())
	cancelled := func() error { return context.Canceled }
	for range 5 {
		_ = cb.Execute(cancelled)
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := newBreaker(newFakeClock())
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	cb.Reset()
	if err := cb.Execute(succeed); err != nil {
		t.Errorf("after Reset: %v", err)
	}
}
