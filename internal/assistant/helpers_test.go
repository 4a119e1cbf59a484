package assistant_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/assistant"
	toolsmock "github.com/MrWong99/voxdesk/internal/tools/mock"
	transcriptmock "github.com/MrWong99/voxdesk/internal/transcript/mock"
	audiomock "github.com/MrWong99/voxdesk/pkg/audio/mock"
	livemock "github.com/MrWong99/voxdesk/pkg/provider/live/mock"
)

// statusLog records every published update and mirrors status changes into
// an optional journal as "status.<surface>.<status>".
type statusLog struct {
	mu      sync.Mutex
	updates []assistant.Update
	journal *audiomock.Journal
	notify  chan struct{}
}

func newStatusLog(j *audiomock.Journal) *statusLog {
	return &statusLog{journal: j, notify: make(chan struct{}, 1)}
}

func (l *statusLog) Publish(u assistant.Update) {
	l.mu.Lock()
	l.updates = append(l.updates, u)
	l.mu.Unlock()
	l.journal.Add(fmt.Sprintf("status.%s.%s", u.Surface, u.Status))
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *statusLog) all() []assistant.Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]assistant.Update(nil), l.updates...)
}

// statuses returns the sequence of distinct status transitions for surface.
func (l *statusLog) statuses(surface string) []assistant.Status {
	var out []assistant.Status
	for _, u := range l.all() {
		if u.Surface != surface {
			continue
		}
		if len(out) == 0 || out[len(out)-1] != u.Status {
			out = append(out, u.Status)
		}
	}
	return out
}

func (l *statusLog) last() assistant.Update {
	all := l.all()
	if len(all) == 0 {
		return assistant.Update{}
	}
	return all[len(all)-1]
}

// manualTimer replaces time.AfterFunc so tests fire the quiet delay by hand.
type manualTimer struct {
	mu      sync.Mutex
	pending []*timerEntry
	delays  []time.Duration
}

type timerEntry struct {
	f       func()
	stopped bool
}

func (m *manualTimer) AfterFunc(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &timerEntry{f: f}
	m.pending = append(m.pending, e)
	m.delays = append(m.delays, d)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		was := !e.stopped
		e.stopped = true
		return was
	}
}

// Fire runs every timer that was neither stopped nor fired yet and returns
// how many ran.
func (m *manualTimer) Fire() int {
	m.mu.Lock()
	var due []func()
	for _, e := range m.pending {
		if !e.stopped {
			e.stopped = true
			due = append(due, e.f)
		}
	}
	m.mu.Unlock()
	for _, f := range due {
		f()
	}
	return len(due)
}

// fixture bundles one session's collaborators.
type fixture struct {
	journal   *audiomock.Journal
	platform  *audiomock.Platform
	transport *livemock.Transport
	history   *transcriptmock.Sink
	tools     *toolsmock.Sink
	status    *statusLog
	timer     *manualTimer
	cfg       assistant.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	j := &audiomock.Journal{}
	f := &fixture{
		journal:   j,
		platform:  &audiomock.Platform{Journal: j},
		transport: &livemock.Transport{Journal: j},
		history:   &transcriptmock.Sink{},
		tools:     &toolsmock.Sink{NavigateResult: "navigated"},
		status:    newStatusLog(j),
		timer:     &manualTimer{},
	}
	f.cfg = assistant.Config{
		Transport:    f.transport,
		Platform:     f.platform,
		Tools:        f.tools,
		History:      f.history,
		Status:       f.status,
		Model:        "gemini-2.0-flash-live-001",
		Voice:        "Puck",
		Instructions: "You are the agency assistant.",
		FrameSize:    160,
		QuietDelay:   2 * time.Second,
		AfterFunc:    f.timer.AfterFunc,
	}
	return f
}

// open starts a session on surface and fires the channel's open signal.
func (f *fixture) open(t *testing.T, surface string) *assistant.Session {
	t.Helper()
	s := assistant.NewSession(context.Background(), surface, f.cfg)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.transport.Last().FireOpen()
	if got := s.Status(); got != assistant.StatusListening {
		t.Fatalf("status after open = %s, want listening", got)
	}
	t.Cleanup(func() {
		_ = s.Close()
		s.Wait()
	})
	return s
}

// pcm returns n silent PCM16 samples.
func pcm(n int) []byte { return make([]byte, 2*n) }

func block(n int) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = 0.25
	}
	return b
}
