package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/health"
)

type body struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Details map[string]string `json:"details"`
}

func get(t *testing.T, h *health.Handler, path string) (int, body) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var b body
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	return rec.Code, b
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthz_Details(t *testing.T) {
	t.Parallel()

	h := health.New(nil, health.WithDetails(func() map[string]string {
		return map[string]string{"active_surface": "dashboard"}
	}))
	code, b := get(t, h, "/healthz")
	if code != http.StatusOK || b.Status != "ok" {
		t.Errorf("healthz = %d %+v", code, b)
	}
	if b.Details["active_surface"] != "dashboard" {
		t.Errorf("details = %v", b.Details)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		checkers []health.Checker
		wantCode int
		wantFail []string
	}{
		{name: "no checkers", wantCode: http.StatusOK},
		{
			name:     "all pass",
			checkers: []health.Checker{health.PingCheck("postgres", pinger{}), health.PingCheck("redis", pinger{})},
			wantCode: http.StatusOK,
		},
		{
			name:     "one fails",
			checkers: []health.Checker{health.PingCheck("postgres", pinger{}), health.PingCheck("redis", pinger{errors.New("connection refused")})},
			wantCode: http.StatusServiceUnavailable,
			wantFail: []string{"redis"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, b := get(t, health.New(tt.checkers), "/readyz")
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			for _, name := range tt.wantFail {
				if !strings.HasPrefix(b.Checks[name], "fail: ") {
					t.Errorf("checks[%s] = %q", name, b.Checks[name])
				}
			}
			if len(tt.wantFail) == 0 && b.Status != "ok" {
				t.Errorf("status = %q", b.Status)
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	slow := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	h := health.New([]health.Checker{{Name: "a", Check: slow}, {Name: "b", Check: slow}, {Name: "c", Check: slow}})

	if code, _ := get(t, h, "/readyz"); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want checks to overlap", peak.Load())
	}
}

func TestReadyz_CheckSeesDeadline(t *testing.T) {
	t.Parallel()

	h := health.New([]health.Checker{{Name: "deadline", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}}})
	if code, b := get(t, h, "/readyz"); code != http.StatusOK {
		t.Errorf("code = %d, checks = %v", code, b.Checks)
	}
}
