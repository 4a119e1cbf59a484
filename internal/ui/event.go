// Package ui connects browser and terminal clients to the assistant.
//
// [Hub] fans session status, navigation commands and record changes out to
// every websocket client. [API] exposes the per-surface toggle, unmount and
// status endpoints the UI calls.
package ui

import (
	"time"

	"github.com/MrWong99/voxdesk/internal/assistant"
	"github.com/MrWong99/voxdesk/internal/backoffice"
)

// Event types sent over the websocket.
const (
	EventStatus   = "status"
	EventNavigate = "navigate"
	EventRecord   = "record"
)

// Event is one websocket message. Which fields are set depends on Type.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`

	// status
	Surface             string `json:"surface,omitempty"`
	SessionID           string `json:"session_id,omitempty"`
	Status              string `json:"status,omitempty"`
	UserTranscript      string `json:"user_transcript,omitempty"`
	AssistantTranscript string `json:"assistant_transcript,omitempty"`
	Error               string `json:"error,omitempty"`

	// navigate
	Path string `json:"path,omitempty"`

	// record
	Record *RecordView `json:"record,omitempty"`
}

// RecordView is the wire form of a back-office record.
type RecordView struct {
	ID     string            `json:"id"`
	Kind   string            `json:"kind"`
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields,omitempty"`
}

// StatusEvent converts a session update.
func StatusEvent(u assistant.Update) Event {
	return Event{
		Type:                EventStatus,
		At:                  u.At,
		Surface:             u.Surface,
		SessionID:           u.SessionID,
		Status:              string(u.Status),
		UserTranscript:      u.Transcript.User,
		AssistantTranscript: u.Transcript.Assistant,
		Error:               u.Err,
	}
}

// RecordEvent converts a changed record.
func RecordEvent(r backoffice.Record, at time.Time) Event {
	return Event{
		Type: EventRecord,
		At:   at,
		Record: &RecordView{
			ID:     r.ID,
			Kind:   string(r.Kind),
			Name:   r.Name,
			Fields: r.Fields,
		},
	}
}
