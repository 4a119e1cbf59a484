package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Surface is the UI surface that started the session.
	Surface string

	// StartedAt is when the session was started.
	StartedAt time.Time

	Status Status
}

// Manager owns the single active [Session] shared by all UI surfaces.
// Starting a session on one surface closes the session of any other surface
// first, so two sessions never compete for the microphone.
// All exported methods are safe for concurrent use.
type Manager struct {
	ctx context.Context

	mu     sync.Mutex
	cfg    Config
	active *Session

	// sessions tracks every session until its background teardown finishes.
	sessions sync.WaitGroup
}

// NewManager creates a Manager. Sessions it starts live at most as long as
// ctx.
func NewManager(ctx context.Context, cfg Config) *Manager {
	return &Manager{ctx: ctx, cfg: cfg}
}

// SetConfig replaces the configuration used for sessions started from now
// on. A running session keeps the configuration it was opened with.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Config returns the configuration the next session will use.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// liveLocked returns the active session unless it already ended.
func (m *Manager) liveLocked() *Session {
	if m.active == nil || m.active.Ended() {
		return nil
	}
	return m.active
}

// Start opens a session for surface. A session already running on surface is
// left alone. A session running on another surface is closed first; its
// cleanup has completed and published idle before the new session publishes
// connecting.
func (m *Manager) Start(ctx context.Context, surface string) error {
	m.mu.Lock()
	if cur := m.liveLocked(); cur != nil {
		if cur.Surface() == surface {
			m.mu.Unlock()
			return nil
		}
		slog.Info("assistant: closing session for another surface",
			"session_id", cur.ID(),
			"surface", cur.Surface(),
			"next_surface", surface,
		)
		_ = cur.Close()
	}
	s := NewSession(m.ctx, surface, m.cfg)
	m.active = s
	m.sessions.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.sessions.Done()
		<-s.Done()
		s.Wait()
	}()

	return s.Start(ctx)
}

// Stop closes the session owned by surface, if any. It is used for both
// toggle-off and surface unmount, and reports whether a session was closed.
func (m *Manager) Stop(surface string) bool {
	m.mu.Lock()
	cur := m.liveLocked()
	if cur == nil || cur.Surface() != surface {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()
	_ = cur.Close()
	return true
}

// Toggle stops the session of surface when one is active and starts one
// otherwise. It reports whether a session is now starting.
func (m *Manager) Toggle(ctx context.Context, surface string) (bool, error) {
	if m.Stop(surface) {
		return false, nil
	}
	return true, m.Start(ctx, surface)
}

// Status returns the status of surface. Surfaces without a live session are
// idle.
func (m *Manager) Status(surface string) Status {
	m.mu.Lock()
	cur := m.liveLocked()
	m.mu.Unlock()
	if cur == nil || cur.Surface() != surface {
		return StatusIdle
	}
	return cur.Status()
}

// Active returns information about the live session, if any.
func (m *Manager) Active() (SessionInfo, bool) {
	m.mu.Lock()
	cur := m.liveLocked()
	m.mu.Unlock()
	if cur == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		SessionID: cur.ID(),
		Surface:   cur.Surface(),
		StartedAt: cur.StartedAt(),
		Status:    cur.Status(),
	}, true
}

// Shutdown closes the live session and waits for all sessions to finish
// their background teardown, or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	cur := m.liveLocked()
	m.mu.Unlock()
	if cur != nil {
		_ = cur.Close()
	}

	done := make(chan struct{})
	go func() {
		m.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
