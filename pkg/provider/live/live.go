// Package live defines the transport boundary to a realtime conversational
// model endpoint.
//
// A [Transport] opens one bidirectional [Channel] per session. Outbound, the
// channel carries microphone frames and tool results; inbound, the transport
// turns every server frame into zero or more [Event] values and delivers them
// through [Callbacks.OnMessage].
//
// Delivery contract for implementations:
//
//   - All callbacks run on a single goroutine, strictly in wire order.
//   - OnOpen fires once, when the remote side acknowledges the session setup.
//   - Exactly one of OnClose or OnError ends a channel that was not closed
//     locally. After [Channel.Close] returns no further callback fires.
//
// The wire audio format is fixed: 16 kHz PCM16 mono in, 24 kHz PCM16 mono
// out, base64 in JSON text frames.
package live

import (
	"context"
	"errors"
	"net"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// ErrClosed is returned by Channel sends after the channel was closed, either
// locally or by the remote side.
var ErrClosed = errors.New("live: channel closed")

// FunctionDeclaration describes one tool offered to the model.
type FunctionDeclaration struct {
	Name        string
	Description string

	// Parameters is a JSON schema object.
	Parameters map[string]any
}

// Config is the one-shot session configuration sent when the channel opens.
// It is immutable for the lifetime of the session.
type Config struct {
	Model string
	Voice string

	// Instructions is the system context built from the back-office snapshot.
	Instructions string

	Tools []FunctionDeclaration
}

// Callbacks receives channel lifecycle and inbound events. Nil fields are
// ignored.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(Event)
	OnClose   func(reason string)
	OnError   func(err error)
}

// Open invokes OnOpen when set.
func (c Callbacks) Open() {
	if c.OnOpen != nil {
		c.OnOpen()
	}
}

// Message invokes OnMessage when set.
func (c Callbacks) Message(ev Event) {
	if c.OnMessage != nil {
		c.OnMessage(ev)
	}
}

// Closed invokes OnClose when set.
func (c Callbacks) Closed(reason string) {
	if c.OnClose != nil {
		c.OnClose(reason)
	}
}

// Error invokes OnError when set.
func (c Callbacks) Error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// ToolCall is a model-issued function call.
type ToolCall struct {
	ID   string
	Name string

	// Args is the weakly typed argument map as decoded from the wire.
	Args map[string]any
}

// ToolResult answers exactly one ToolCall, correlated by ID.
type ToolResult struct {
	ID     string
	Name   string
	Output string
}

// Channel is an open duplex session. All methods are safe for concurrent use.
type Channel interface {
	// SendAudio transmits one captured frame. It returns ErrClosed (possibly
	// wrapped) when the channel is no longer open.
	SendAudio(frame audio.AudioFrame) error

	// SendToolResult transmits one tool result.
	SendToolResult(result ToolResult) error

	// Close terminates the session. It is idempotent.
	Close() error
}

// Transport opens channels to a model endpoint.
type Transport interface {
	// Open dials the endpoint and sends cfg. The returned Channel is owned by
	// the caller. Callbacks may start firing before Open returns.
	Open(ctx context.Context, cfg Config, cb Callbacks) (Channel, error)
}

// IsBenign reports whether err only reflects a shutdown already in progress:
// context cancellation, a locally closed channel, or a normal or going-away
// websocket close.
func IsBenign(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
