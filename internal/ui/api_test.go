package ui_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/assistant"
	"github.com/MrWong99/voxdesk/internal/ui"
)

// fakeController is a single-session controller.
type fakeController struct {
	mu        sync.Mutex
	surface   string
	status    assistant.Status
	toggleErr error

	ToggleCalls []string
	StopCalls   []string
}

func (f *fakeController) Toggle(_ context.Context, surface string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ToggleCalls = append(f.ToggleCalls, surface)
	if f.surface == surface {
		f.surface = ""
		return false, nil
	}
	if f.toggleErr != nil {
		return true, f.toggleErr
	}
	f.surface = surface
	f.status = assistant.StatusConnecting
	return true, nil
}

func (f *fakeController) Stop(surface string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls = append(f.StopCalls, surface)
	if f.surface != surface {
		return false
	}
	f.surface = ""
	return true
}

func (f *fakeController) Status(surface string) assistant.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.surface != surface {
		return assistant.StatusIdle
	}
	return f.status
}

func (f *fakeController) Active() (assistant.SessionInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.surface == "" {
		return assistant.SessionInfo{}, false
	}
	return assistant.SessionInfo{SessionID: "s1", Surface: f.surface, Status: f.status, StartedAt: time.Unix(100, 0)}, true
}

func newMux(ctrl ui.Controller, surfaces ...string) *http.ServeMux {
	mux := http.NewServeMux()
	ui.NewAPI(ctrl, ui.NewHub(), surfaces).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestAPI_ToggleOnAndOff(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	mux := newMux(ctrl)

	var st ui.SurfaceState
	if code := do(t, mux, http.MethodPost, "/api/assistant/dashboard/toggle", &st); code != http.StatusOK {
		t.Fatalf("toggle on: %d", code)
	}
	if !st.Active || st.Status != "connecting" || st.Surface != "dashboard" {
		t.Errorf("after on = %+v", st)
	}

	if code := do(t, mux, http.MethodPost, "/api/assistant/dashboard/toggle", &st); code != http.StatusOK {
		t.Fatalf("toggle off: %d", code)
	}
	if st.Active || st.Status != "idle" {
		t.Errorf("after off = %+v", st)
	}
}

func TestAPI_ToggleFailure(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{toggleErr: errors.New("assistant: open channel: refused")}
	var st ui.SurfaceState
	code := do(t, newMux(ctrl), http.MethodPost, "/api/assistant/dashboard/toggle", &st)
	if code != http.StatusBadGateway {
		t.Errorf("code = %d, want 502", code)
	}
	if st.Error == "" || st.Status != "idle" {
		t.Errorf("state = %+v", st)
	}
}

func TestAPI_UnmountStopsOnlyOwner(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{surface: "campaigns", status: assistant.StatusListening}
	mux := newMux(ctrl)

	var st ui.SurfaceState
	do(t, mux, http.MethodDelete, "/api/assistant/dashboard", &st)
	if ctrl.Status("campaigns") != assistant.StatusListening {
		t.Error("unmounting another surface stopped the session")
	}
	do(t, mux, http.MethodDelete, "/api/assistant/campaigns", &st)
	if st.Status != "idle" {
		t.Errorf("after unmount = %+v", st)
	}
}

func TestAPI_StatusAndActive(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{surface: "tasks", status: assistant.StatusSpeaking}
	mux := newMux(ctrl)

	var st ui.SurfaceState
	do(t, mux, http.MethodGet, "/api/assistant/tasks", &st)
	if st.Status != "speaking" || !st.Active {
		t.Errorf("status = %+v", st)
	}

	var active ui.ActiveState
	do(t, mux, http.MethodGet, "/api/assistant", &active)
	if !active.Active || active.Surface != "tasks" || active.SessionID != "s1" {
		t.Errorf("active = %+v", active)
	}
}

func TestAPI_UnknownSurface(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	mux := newMux(ctrl, "dashboard", "campaigns")

	if code := do(t, mux, http.MethodPost, "/api/assistant/billing/toggle", nil); code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", code)
	}
	if len(ctrl.ToggleCalls) != 0 {
		t.Error("controller called for unknown surface")
	}
}
