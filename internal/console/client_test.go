package console_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/assistant"
	"github.com/MrWong99/voxdesk/internal/console"
	"github.com/MrWong99/voxdesk/internal/ui"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Toggle(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		writeJSON(w, http.StatusOK, ui.SurfaceState{Surface: "dashboard", Status: "connecting", Active: true})
	}))
	t.Cleanup(srv.Close)

	st, err := console.NewClient(srv.URL+"/").Toggle(context.Background(), "dashboard")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/assistant/dashboard/toggle" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if !st.Active || st.Status != "connecting" {
		t.Errorf("state = %+v", st)
	}
}

func TestClient_ToggleFailureCarriesServerMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadGateway, ui.SurfaceState{Surface: "dashboard", Status: "idle", Error: "dial refused"})
	}))
	t.Cleanup(srv.Close)

	st, err := console.NewClient(srv.URL).Toggle(context.Background(), "dashboard")
	if err == nil || err.Error() != "dial refused" {
		t.Fatalf("err = %v, want server message", err)
	}
	if st.Status != "idle" {
		t.Errorf("state = %+v", st)
	}
}

func TestClient_UnknownSurface(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	if _, err := console.NewClient(srv.URL).Unmount(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown surface")
	}
}

func TestClient_Active(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/assistant" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, ui.ActiveState{Active: true, Surface: "tasks", SessionID: "s-1", Status: "listening"})
	}))
	t.Cleanup(srv.Close)

	st, err := console.NewClient(srv.URL).Active(context.Background())
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if !st.Active || st.Surface != "tasks" || st.SessionID != "s-1" {
		t.Errorf("state = %+v", st)
	}
}

func TestClient_SubscribeReceivesHubEvents(t *testing.T) {
	t.Parallel()

	hub := ui.NewHub()
	mux := http.NewServeMux()
	mux.Handle("GET /api/ws", hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, wait, err := console.NewClient(srv.URL).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Publish(assistant.Update{Surface: "dashboard", Status: assistant.StatusListening, At: time.Now()})

	select {
	case ev := <-events:
		if ev.Type != ui.EventStatus || ev.Surface != "dashboard" || ev.Status != "listening" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	for range events {
	}
	if err := wait(); err != nil {
		t.Errorf("stream error after cancel = %v, want nil", err)
	}
}
