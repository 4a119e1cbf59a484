package live_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

func TestIsBenign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"canceled", context.Canceled, true},
		{"wrapped canceled", fmt.Errorf("gemini: read: %w", context.Canceled), true},
		{"closed", live.ErrClosed, true},
		{"normal close", websocket.CloseError{Code: websocket.StatusNormalClosure}, true},
		{"going away", fmt.Errorf("x: %w", websocket.CloseError{Code: websocket.StatusGoingAway}), true},
		{"policy violation", websocket.CloseError{Code: websocket.StatusPolicyViolation, Reason: "bad key"}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := live.IsBenign(tt.err); got != tt.want {
				t.Errorf("IsBenign(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCallbacks_NilFieldsIgnored(t *testing.T) {
	t.Parallel()

	var cb live.Callbacks
	cb.Open()
	cb.Message(live.TurnCompleteEvent{})
	cb.Closed("bye")
	cb.Error(errors.New("x"))

	var got []string
	cb = live.Callbacks{
		OnOpen:    func() { got = append(got, "open") },
		OnMessage: func(live.Event) { got = append(got, "msg") },
		OnClose:   func(r string) { got = append(got, "close:"+r) },
		OnError:   func(error) { got = append(got, "err") },
	}
	cb.Open()
	cb.Message(live.AudioEvent{})
	cb.Closed("bye")
	cb.Error(errors.New("x"))

	want := []string{"open", "msg", "close:bye", "err"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}
