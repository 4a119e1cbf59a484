package ui

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdesk/internal/assistant"
	"github.com/MrWong99/voxdesk/internal/backoffice"
)

// ErrNoClients is returned by [Hub.Navigate] when no UI is connected.
var ErrNoClients = errors.New("ui: no connected clients")

// Compile-time interface assertions.
var (
	_ assistant.StatusSink = (*Hub)(nil)
	_ backoffice.Navigator = (*Hub)(nil)
	_ http.Handler         = (*Hub)(nil)
)

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithBufferSize sets how many events may queue per client before further
// events to that client are dropped. Default: 64.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) { h.bufSize = n }
}

// WithWriteTimeout bounds a single websocket write. Default: 5s.
func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.writeTimeout = d }
}

// WithOriginPatterns allows cross-origin websocket upgrades from the given
// host patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// Hub broadcasts events to websocket clients. Publishing never blocks: each
// client has its own bounded queue drained by its connection goroutine.
type Hub struct {
	bufSize      int
	writeTimeout time.Duration
	origins      []string

	mu      sync.Mutex
	clients map[*client]struct{}
	// last holds the latest status event per surface, replayed to new clients.
	last map[string]Event

	dropped atomic.Int64
	now     func() time.Time
}

type client struct {
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		bufSize:      64,
		writeTimeout: 5 * time.Second,
		clients:      make(map[*client]struct{}),
		last:         make(map[string]Event),
		now:          time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Publish implements [assistant.StatusSink].
func (h *Hub) Publish(u assistant.Update) {
	h.broadcast(StatusEvent(u))
}

// Navigate implements [backoffice.Navigator]. The command reaches every
// connected client.
func (h *Hub) Navigate(_ context.Context, path string) error {
	if h.broadcast(Event{Type: EventNavigate, At: h.now(), Path: path}) == 0 {
		return ErrNoClients
	}
	return nil
}

// RecordChanged tells clients a record was created or updated.
func (h *Hub) RecordChanged(r backoffice.Record) {
	h.broadcast(RecordEvent(r, h.now()))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because a client's queue
// was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// broadcast queues ev for every client and returns how many accepted it.
func (h *Hub) broadcast(ev Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("ui: marshal event", "type", ev.Type, "err", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Type == EventStatus {
		h.last[ev.Surface] = ev
	}
	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- data:
			delivered++
		default:
			h.dropped.Add(1)
			slog.Debug("ui: client queue full, dropping event", "type", ev.Type)
		}
	}
	return delivered
}

func (h *Hub) register() *client {
	c := &client{send: make(chan []byte, h.bufSize)}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ev := range h.last {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client goes away. Messages from the client are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("ui: websocket accept", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	c := h.register()
	defer h.unregister(c)
	slog.Debug("ui: client connected", "remote", r.RemoteAddr)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("ui: client write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}
