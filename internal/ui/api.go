package ui

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/MrWong99/voxdesk/internal/assistant"
)

// Controller is the session control surface the API drives.
// [assistant.Manager] implements it.
type Controller interface {
	Toggle(ctx context.Context, surface string) (bool, error)
	Stop(surface string) bool
	Status(surface string) assistant.Status
	Active() (assistant.SessionInfo, bool)
}

var _ Controller = (*assistant.Manager)(nil)

// SurfaceState is the JSON body of the per-surface endpoints.
type SurfaceState struct {
	Surface string `json:"surface"`
	Status  string `json:"status"`
	Active  bool   `json:"active"`
	Error   string `json:"error,omitempty"`
}

// ActiveState is the JSON body of GET /api/assistant.
type ActiveState struct {
	Active    bool      `json:"active"`
	SessionID string    `json:"session_id,omitempty"`
	Surface   string    `json:"surface,omitempty"`
	Status    string    `json:"status,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// API serves the assistant HTTP endpoints.
type API struct {
	ctrl     Controller
	hub      *Hub
	surfaces []string
}

// NewAPI creates an API. surfaces restricts which surface names are
// accepted; an empty list accepts any name. hub may be nil, in which case
// the websocket route is not registered.
func NewAPI(ctrl Controller, hub *Hub, surfaces []string) *API {
	return &API{ctrl: ctrl, hub: hub, surfaces: surfaces}
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/assistant", a.handleActive)
	mux.HandleFunc("GET /api/assistant/{surface}", a.handleStatus)
	mux.HandleFunc("POST /api/assistant/{surface}/toggle", a.handleToggle)
	mux.HandleFunc("DELETE /api/assistant/{surface}", a.handleUnmount)
	if a.hub != nil {
		mux.Handle("GET /api/ws", a.hub)
	}
}

func (a *API) surface(w http.ResponseWriter, r *http.Request) (string, bool) {
	s := r.PathValue("surface")
	if len(a.surfaces) > 0 && !slices.Contains(a.surfaces, s) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown surface " + s})
		return "", false
	}
	return s, true
}

func (a *API) state(surface string) SurfaceState {
	st := a.ctrl.Status(surface)
	return SurfaceState{Surface: surface, Status: string(st), Active: st.Active()}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.surface(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.state(surface))
}

// handleToggle starts or stops the session of a surface. A failed start
// answers 502; the surface is back to idle by then.
func (a *API) handleToggle(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.surface(w, r)
	if !ok {
		return
	}
	on, err := a.ctrl.Toggle(r.Context(), surface)
	state := a.state(surface)
	if err != nil {
		slog.Warn("ui: toggle failed", "surface", surface, "err", err)
		state.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, state)
		return
	}
	slog.Info("ui: assistant toggled", "surface", surface, "on", on)
	writeJSON(w, http.StatusOK, state)
}

// handleUnmount closes the session of a surface that is going away.
func (a *API) handleUnmount(w http.ResponseWriter, r *http.Request) {
	surface, ok := a.surface(w, r)
	if !ok {
		return
	}
	a.ctrl.Stop(surface)
	writeJSON(w, http.StatusOK, a.state(surface))
}

func (a *API) handleActive(w http.ResponseWriter, _ *http.Request) {
	info, ok := a.ctrl.Active()
	if !ok {
		writeJSON(w, http.StatusOK, ActiveState{})
		return
	}
	writeJSON(w, http.StatusOK, ActiveState{
		Active:    true,
		SessionID: info.SessionID,
		Surface:   info.Surface,
		Status:    string(info.Status),
		StartedAt: info.StartedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("ui: write response", "err", err)
	}
}
