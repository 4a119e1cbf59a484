package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/voxdesk/internal/ui"
)

// maxActivity bounds the activity log shown under the surfaces.
const maxActivity = 8

// Toggler is the part of [Client] the model calls.
type Toggler interface {
	Toggle(ctx context.Context, surface string) (ui.SurfaceState, error)
}

// ── Messages ───────────────────────────────────────────────────────────────────

// EventMsg carries one websocket event into the model.
type EventMsg struct{ Event ui.Event }

// StreamClosedMsg reports that the event stream ended.
type StreamClosedMsg struct{ Err error }

// ToggledMsg is the result of a toggle request.
type ToggledMsg struct {
	Surface string
	State   ui.SurfaceState
	Err     error
}

// surfaceView is what the model knows about one surface.
type surfaceView struct {
	status    string
	user      string
	assistant string
	err       string
}

// Model is the bubbletea model of the console.
type Model struct {
	api      Toggler
	events   <-chan ui.Event
	surfaces []string
	timeout  time.Duration

	cursor   int
	states   map[string]surfaceView
	activity []string
	pending  string
	lost     string
}

// NewModel creates a Model for surfaces. events may be nil when the console
// runs without a live stream.
func NewModel(api Toggler, events <-chan ui.Event, surfaces []string) *Model {
	return &Model{
		api:      api,
		events:   events,
		surfaces: surfaces,
		timeout:  30 * time.Second,
		states:   make(map[string]surfaceView, len(surfaces)),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m *Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

func (m *Model) toggle(surface string) tea.Cmd {
	api, timeout := m.api, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := api.Toggle(ctx, surface)
		return ToggledMsg{Surface: surface, State: st, Err: err}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.apply(msg.Event)
		return m, m.waitForEvent()

	case StreamClosedMsg:
		m.events = nil
		m.lost = "event stream closed"
		if msg.Err != nil {
			m.lost = msg.Err.Error()
		}
		return m, nil

	case ToggledMsg:
		m.pending = ""
		v := m.states[msg.Surface]
		if msg.State.Status != "" {
			v.status = msg.State.Status
		}
		v.err = ""
		if msg.Err != nil {
			v.err = msg.Err.Error()
		}
		m.states[msg.Surface] = v
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.surfaces)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.surfaces) == 0 || m.pending != "" {
			return m, nil
		}
		m.pending = m.surfaces[m.cursor]
		return m, m.toggle(m.pending)
	}
	return m, nil
}

// apply folds one server event into the model.
func (m *Model) apply(ev ui.Event) {
	switch ev.Type {
	case ui.EventStatus:
		m.states[ev.Surface] = surfaceView{
			status:    ev.Status,
			user:      ev.UserTranscript,
			assistant: ev.AssistantTranscript,
			err:       ev.Error,
		}
	case ui.EventNavigate:
		m.log(ev.At, "opened "+ev.Path)
	case ui.EventRecord:
		if ev.Record != nil {
			m.log(ev.At, fmt.Sprintf("%s %q changed", ev.Record.Kind, ev.Record.Name))
		}
	}
}

func (m *Model) log(at time.Time, line string) {
	if at.IsZero() {
		at = time.Now()
	}
	m.activity = append(m.activity, at.Format("15:04:05")+"  "+line)
	if len(m.activity) > maxActivity {
		m.activity = m.activity[len(m.activity)-maxActivity:]
	}
}

// Status returns the last known status of surface.
func (m *Model) Status(surface string) string {
	if s := m.states[surface].status; s != "" {
		return s
	}
	return "idle"
}

// ActiveSurface returns the surface whose session is not idle, if any.
func (m *Model) ActiveSurface() (string, bool) {
	for _, s := range m.surfaces {
		if m.Status(s) != "idle" {
			return s, true
		}
	}
	return "", false
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("voxdesk assistant"))
	b.WriteString("\n\n")

	for i, s := range m.surfaces {
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
		}
		status := m.Status(s)
		if m.pending == s {
			status += "…"
		}
		b.WriteString(marker + surfaceStyle.Render(s) + statusStyle(m.Status(s)).Render(status) + "\n")
		if v := m.states[s]; v.err != "" {
			b.WriteString("    " + errorStyle.Render(v.err) + "\n")
		}
	}

	if s, ok := m.ActiveSurface(); ok {
		v := m.states[s]
		var t strings.Builder
		t.WriteString(youStyle.Render("you ") + orDash(v.user) + "\n")
		t.WriteString(botStyle.Render("bot ") + orDash(v.assistant))
		b.WriteString("\n" + panelStyle.Render(t.String()) + "\n")
	}

	if len(m.activity) > 0 {
		b.WriteString("\n" + dimStyle.Render("activity") + "\n")
		for _, line := range m.activity {
			b.WriteString("  " + line + "\n")
		}
	}

	if m.lost != "" {
		b.WriteString("\n" + errorStyle.Render("disconnected: "+m.lost) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("↑/↓ select · enter toggle · q quit") + "\n")
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return dimStyle.Render("-")
	}
	return s
}
