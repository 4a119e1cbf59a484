// Package assistant runs realtime voice sessions between the back-office user
// and a live model.
//
// A [Session] owns everything one conversation needs: a fresh output context,
// the playback scheduler, the capture stream with its frame encoder, the
// transcript accumulator, the tool dispatcher and the live channel. It moves
// through [StatusIdle], [StatusConnecting], [StatusListening] and
// [StatusSpeaking], and every exit path funnels into a single idempotent
// cleanup.
//
// The [Manager] is the only entry point used by UI surfaces. It guarantees
// that at most one session is active across all surfaces: toggling on a second
// surface first tears down the session of the first.
package assistant

import (
	"errors"
	"time"

	"github.com/MrWong99/voxdesk/internal/transcript"
)

// Status is the externally visible state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusListening  Status = "listening"
	StatusSpeaking   Status = "speaking"
)

// Active reports whether s holds devices or a channel.
func (s Status) Active() bool {
	return s != StatusIdle && s != ""
}

var (
	// ErrNoTransport is returned when a session is started without a transport.
	ErrNoTransport = errors.New("assistant: no transport configured")

	// ErrNoPlatform is returned when a session is started without audio devices.
	ErrNoPlatform = errors.New("assistant: no audio platform configured")
)

// Update is one observation published to a [StatusSink].
type Update struct {
	// Surface names the UI surface that owns the session.
	Surface string

	SessionID string
	Status    Status

	// Transcript is a copy of both live transcript buffers.
	Transcript transcript.Snapshot

	// Err is a user-visible error message. It is set only on the update that
	// reports a device failure or a non-benign remote error.
	Err string

	At time.Time
}

// StatusSink observes session updates. Publish must not block; sinks that
// fan out to slow consumers drop or coalesce instead.
type StatusSink interface {
	Publish(u Update)
}

// StatusFunc adapts a function to [StatusSink].
type StatusFunc func(Update)

// Publish calls f.
func (f StatusFunc) Publish(u Update) { f(u) }

// MultiStatus publishes every update to all of its sinks in order.
type MultiStatus []StatusSink

// Publish implements [StatusSink].
func (m MultiStatus) Publish(u Update) {
	for _, s := range m {
		if s != nil {
			s.Publish(u)
		}
	}
}

type discardStatus struct{}

func (discardStatus) Publish(Update) {}
