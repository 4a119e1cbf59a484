package console_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/voxdesk/internal/console"
	"github.com/MrWong99/voxdesk/internal/ui"
)

type fakeToggler struct {
	mu    sync.Mutex
	calls []string
	state ui.SurfaceState
	err   error
}

func (f *fakeToggler) Toggle(_ context.Context, surface string) (ui.SurfaceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, surface)
	st := f.state
	st.Surface = surface
	return st, f.err
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_EnterTogglesSelectedSurface(t *testing.T) {
	t.Parallel()

	api := &fakeToggler{state: ui.SurfaceState{Status: "connecting", Active: true}}
	m := console.NewModel(api, nil, []string{"dashboard", "campaigns"})

	m.Update(key("down"))
	_, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	msg, ok := cmd().(console.ToggledMsg)
	if !ok {
		t.Fatalf("command produced %T", cmd())
	}
	if msg.Surface != "campaigns" {
		t.Errorf("toggled %q, want campaigns", msg.Surface)
	}

	m.Update(msg)
	if got := m.Status("campaigns"); got != "connecting" {
		t.Errorf("status = %q, want connecting", got)
	}
	if s, ok := m.ActiveSurface(); !ok || s != "campaigns" {
		t.Errorf("ActiveSurface = %q, %v", s, ok)
	}
}

func TestModel_SecondEnterWaitsForPendingToggle(t *testing.T) {
	t.Parallel()

	m := console.NewModel(&fakeToggler{}, nil, []string{"dashboard"})
	if _, cmd := m.Update(key("enter")); cmd == nil {
		t.Fatal("first enter returned no command")
	}
	if _, cmd := m.Update(key("enter")); cmd != nil {
		t.Error("second enter issued another toggle while one is pending")
	}
}

func TestModel_ToggleErrorShown(t *testing.T) {
	t.Parallel()

	m := console.NewModel(&fakeToggler{}, nil, []string{"dashboard"})
	m.Update(console.ToggledMsg{
		Surface: "dashboard",
		State:   ui.SurfaceState{Surface: "dashboard", Status: "idle"},
		Err:     errors.New("microphone unavailable"),
	})
	if !strings.Contains(m.View(), "microphone unavailable") {
		t.Errorf("view does not show the error:\n%s", m.View())
	}
	if _, ok := m.ActiveSurface(); ok {
		t.Error("failed toggle left a surface active")
	}
}

func TestModel_StatusEventsMoveSessionBetweenSurfaces(t *testing.T) {
	t.Parallel()

	m := console.NewModel(&fakeToggler{}, nil, []string{"dashboard", "tasks"})
	m.Update(console.EventMsg{Event: ui.Event{Type: ui.EventStatus, Surface: "dashboard", Status: "listening"}})
	m.Update(console.EventMsg{Event: ui.Event{Type: ui.EventStatus, Surface: "dashboard", Status: "idle"}})
	m.Update(console.EventMsg{Event: ui.Event{
		Type:                ui.EventStatus,
		Surface:             "tasks",
		Status:              "speaking",
		UserTranscript:      "add a task",
		AssistantTranscript: "Created task",
	}})

	if s, _ := m.ActiveSurface(); s != "tasks" {
		t.Errorf("ActiveSurface = %q, want tasks", s)
	}
	view := m.View()
	for _, want := range []string{"add a task", "Created task", "speaking"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_ActivityLogIsBounded(t *testing.T) {
	t.Parallel()

	m := console.NewModel(&fakeToggler{}, nil, []string{"dashboard"})
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range 12 {
		m.Update(console.EventMsg{Event: ui.Event{Type: ui.EventNavigate, At: at, Path: "/page" + string(rune('a'+i))}})
	}
	m.Update(console.EventMsg{Event: ui.Event{
		Type:   ui.EventRecord,
		At:     at,
		Record: &ui.RecordView{ID: "1", Kind: "client", Name: "Acme"},
	}})

	view := m.View()
	if strings.Contains(view, "/pagea") {
		t.Error("oldest activity line still shown")
	}
	if !strings.Contains(view, "/pagel") || !strings.Contains(view, `client "Acme" changed`) {
		t.Errorf("latest activity missing:\n%s", view)
	}
}

func TestModel_StreamConsumption(t *testing.T) {
	t.Parallel()

	events := make(chan ui.Event, 1)
	m := console.NewModel(&fakeToggler{}, events, []string{"dashboard"})

	events <- ui.Event{Type: ui.EventStatus, Surface: "dashboard", Status: "listening"}
	msg := m.Init()()
	if _, ok := msg.(console.EventMsg); !ok {
		t.Fatalf("Init command produced %T", msg)
	}
	_, next := m.Update(msg)
	if m.Status("dashboard") != "listening" {
		t.Errorf("status = %q", m.Status("dashboard"))
	}

	close(events)
	closed := next()
	if _, ok := closed.(console.StreamClosedMsg); !ok {
		t.Fatalf("closed stream produced %T", closed)
	}
	m.Update(closed)
	if !strings.Contains(m.View(), "disconnected") {
		t.Error("view does not report the lost stream")
	}
}

func TestModel_Quit(t *testing.T) {
	t.Parallel()

	m := console.NewModel(&fakeToggler{}, nil, nil)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
