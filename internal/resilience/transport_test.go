package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/resilience"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
	livemock "github.com/MrWong99/voxdesk/pkg/provider/live/mock"
)

func TestTransport_PrimaryOpens(t *testing.T) {
	t.Parallel()

	primary, fallback := &livemock.Transport{}, &livemock.Transport{}
	tr := resilience.NewTransport("gemini-live", primary, resilience.WithFallback("genai-live", fallback))

	ch, err := tr.Open(context.Background(), live.Config{Voice: "Puck"}, live.Callbacks{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ch != primary.Last() {
		t.Error("channel did not come from the primary")
	}
	if fallback.OpenCallCount() != 0 {
		t.Error("fallback dialled although the primary opened")
	}
}

func TestTransport_FallsBack(t *testing.T) {
	t.Parallel()

	primary := &livemock.Transport{OpenErr: errDial}
	fallback := &livemock.Transport{}
	tr := resilience.NewTransport("gemini-live", primary, resilience.WithFallback("genai-live", fallback))

	ch, err := tr.Open(context.Background(), live.Config{Voice: "Kore"}, live.Callbacks{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ch != fallback.Last() {
		t.Error("channel did not come from the fallback")
	}
	if got := fallback.OpenCalls[0].Voice; got != "Kore" {
		t.Errorf("fallback config voice = %q", got)
	}
}

func TestTransport_SkipsTrippedPrimary(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	primary := &livemock.Transport{OpenErr: errDial}
	fallback := &livemock.Transport{}
	tr := resilience.NewTransport("gemini-live", primary,
		resilience.WithBreakerConfig(resilience.BreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute, Now: clock.Now}),
		resilience.WithFallback("genai-live", fallback),
	)

	for range 4 {
		if _, err := tr.Open(context.Background(), live.Config{}, live.Callbacks{}); err != nil {
			t.Fatalf("Open: %v", err)
		}
	}
	if n := primary.OpenCallCount(); n != 2 {
		t.Errorf("primary dialled %d times, want 2 before its breaker opened", n)
	}
	if got := tr.States()["gemini-live"]; got != resilience.StateOpen {
		t.Errorf("primary breaker = %s", got)
	}

	clock.Advance(time.Minute)
	_, _ = tr.Open(context.Background(), live.Config{}, live.Callbacks{})
	if n := primary.OpenCallCount(); n != 3 {
		t.Errorf("primary dialled %d times, want a probe after the reset timeout", n)
	}
}

func TestTransport_AllFail(t *testing.T) {
	t.Parallel()

	tr := resilience.NewTransport("gemini-live", &livemock.Transport{OpenErr: errDial},
		resilience.WithFallback("genai-live", &livemock.Transport{OpenErr: errors.New("quota exceeded")}))

	_, err := tr.Open(context.Background(), live.Config{}, live.Callbacks{})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if err.Error() == resilience.ErrAllFailed.Error() {
		t.Error("last failure not included in the error")
	}
}

func TestTransport_SinglePassesErrorThrough(t *testing.T) {
	t.Parallel()

	tr := resilience.NewTransport("gemini-live", &livemock.Transport{OpenErr: errDial})
	_, err := tr.Open(context.Background(), live.Config{}, live.Callbacks{})
	if !errors.Is(err, errDial) || errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("err = %v, want the primary's own error", err)
	}
}

func TestTransport_CancelledStopsSearch(t *testing.T) {
	t.Parallel()

	fallback := &livemock.Transport{}
	tr := resilience.NewTransport("gemini-live", &livemock.Transport{OpenErr: context.Canceled},
		resilience.WithFallback("genai-live", fallback))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Open(ctx, live.Config{}, live.Callbacks{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if fallback.OpenCallCount() != 0 {
		t.Error("fallback dialled after cancellation")
	}
}

func TestTransport_ReportsOutcomes(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var got []string
	tr := resilience.NewTransport("gemini-live", &livemock.Transport{OpenErr: errDial},
		resilience.WithBreakerConfig(resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clock.Now}),
		resilience.WithFallback("genai-live", &livemock.Transport{}),
		resilience.WithOpenObserver(func(_ context.Context, name, outcome string) {
			got = append(got, name+"="+outcome)
		}),
	)

	for range 2 {
		if _, err := tr.Open(context.Background(), live.Config{}, live.Callbacks{}); err != nil {
			t.Fatalf("Open: %v", err)
		}
	}
	want := []string{
		"gemini-live=error", "genai-live=ok",
		"gemini-live=rejected", "genai-live=ok",
	}
	if len(got) != len(want) {
		t.Fatalf("reports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
