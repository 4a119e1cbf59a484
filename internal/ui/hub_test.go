package ui_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdesk/internal/assistant"
	"github.com/MrWong99/voxdesk/internal/backoffice"
	"github.com/MrWong99/voxdesk/internal/transcript"
	"github.com/MrWong99/voxdesk/internal/ui"
)

// dialHub starts hub behind an httptest server and connects one client. It
// returns once the hub has registered the client.
func dialHub(t *testing.T, hub *ui.Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	before := hub.Clients()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	waitFor(t, func() bool { return hub.Clients() > before })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) ui.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev ui.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestHub_PublishReachesClient(t *testing.T) {
	t.Parallel()

	hub := ui.NewHub()
	conn := dialHub(t, hub)

	hub.Publish(assistant.Update{
		Surface:    "dashboard",
		SessionID:  "s1",
		Status:     assistant.StatusSpeaking,
		Transcript: transcript.Snapshot{User: "open tasks", Assistant: "Sure"},
		At:         time.Now(),
	})

	ev := readEvent(t, conn)
	if ev.Type != ui.EventStatus || ev.Surface != "dashboard" || ev.Status != "speaking" {
		t.Errorf("event = %+v", ev)
	}
	if ev.UserTranscript != "open tasks" || ev.AssistantTranscript != "Sure" {
		t.Errorf("transcripts = %q / %q", ev.UserTranscript, ev.AssistantTranscript)
	}
}

func TestHub_ReplaysLastStatus(t *testing.T) {
	t.Parallel()

	hub := ui.NewHub()
	hub.Publish(assistant.Update{Surface: "tasks", Status: assistant.StatusConnecting})
	hub.Publish(assistant.Update{Surface: "tasks", Status: assistant.StatusListening})

	conn := dialHub(t, hub)
	ev := readEvent(t, conn)
	if ev.Surface != "tasks" || ev.Status != "listening" {
		t.Errorf("replayed = %+v, want latest tasks status", ev)
	}
}

func TestHub_Navigate(t *testing.T) {
	t.Parallel()

	hub := ui.NewHub()
	if err := hub.Navigate(context.Background(), "/clients"); !errors.Is(err, ui.ErrNoClients) {
		t.Errorf("Navigate without clients = %v, want ErrNoClients", err)
	}

	conn := dialHub(t, hub)
	if err := hub.Navigate(context.Background(), "/clients/7"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Type != ui.EventNavigate || ev.Path != "/clients/7" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHub_RecordChanged(t *testing.T) {
	t.Parallel()

	hub := ui.NewHub()
	conn := dialHub(t, hub)

	hub.RecordChanged(backoffice.Record{ID: "c1", Kind: backoffice.KindClient, Name: "Acme", Fields: map[string]string{"owner": "Dana"}})
	ev := readEvent(t, conn)
	if ev.Type != ui.EventRecord || ev.Record == nil || ev.Record.Name != "Acme" || ev.Record.Fields["owner"] != "Dana" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := ui.NewHub(ui.WithBufferSize(1))
	_ = dialHub(t, hub) // never read

	done := make(chan struct{})
	go func() {
		for range 500 {
			hub.Publish(assistant.Update{Surface: "dashboard", Status: assistant.StatusListening})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow client")
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	t.Parallel()

	hub := ui.NewHub()
	conn := dialHub(t, hub)
	conn.Close(websocket.StatusNormalClosure, "bye")

	waitFor(t, func() bool { return hub.Clients() == 0 })
}
