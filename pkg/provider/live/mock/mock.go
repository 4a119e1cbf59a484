// Package mock provides a scripted [live.Transport] for unit tests.
//
// Open records the configuration and returns a [Channel] whose callbacks the
// test fires explicitly, from its own goroutine, in the order it wants the
// session to observe them:
//
//	tr := &mock.Transport{}
//	ch, _ := tr.Open(ctx, cfg, callbacks)
//	tr.Last().FireOpen()
//	tr.Last().Emit(live.TranscriptEvent{Role: live.RoleAssistant, Text: "Hi"})
//	tr.Last().Emit(live.TurnCompleteEvent{})
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

var (
	_ live.Transport = (*Transport)(nil)
	_ live.Channel   = (*Channel)(nil)
)

// Journal receives ordered entries such as "transport.open" and
// "channel.close". It is satisfied by the audio mock journal.
type Journal interface {
	Add(entry string)
}

// Transport is a mock [live.Transport].
type Transport struct {
	mu sync.Mutex

	// OpenErr is returned by Open when non-nil.
	OpenErr error

	// Journal, when set, records "transport.open" and each channel's
	// "channel.close".
	Journal Journal

	// OpenCalls records the configuration of every Open call.
	OpenCalls []live.Config

	// OnOpenCall, when set, runs inside Open after the channel is created
	// and before Open returns. Tests use it to fire callbacks early.
	OnOpenCall func(ch *Channel)

	channels []*Channel
}

// Open implements [live.Transport].
func (t *Transport) Open(_ context.Context, cfg live.Config, cb live.Callbacks) (live.Channel, error) {
	t.mu.Lock()
	t.OpenCalls = append(t.OpenCalls, cfg)
	if t.Journal != nil {
		t.Journal.Add("transport.open")
	}
	if t.OpenErr != nil {
		err := t.OpenErr
		t.mu.Unlock()
		return nil, err
	}
	ch := &Channel{cb: cb, journal: t.Journal, done: make(chan struct{})}
	t.channels = append(t.channels, ch)
	hook := t.OnOpenCall
	t.mu.Unlock()

	if hook != nil {
		hook(ch)
	}
	return ch, nil
}

// OpenCallCount returns the number of Open calls.
func (t *Transport) OpenCallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.OpenCalls)
}

// Last returns the most recently opened channel, or nil.
func (t *Transport) Last() *Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.channels) == 0 {
		return nil
	}
	return t.channels[len(t.channels)-1]
}

// Channels returns every channel opened so far.
func (t *Transport) Channels() []*Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.channels)
}

// Channel is a mock [live.Channel]. Sends after Close, or after a simulated
// remote close or error, fail with [live.ErrClosed] and are not recorded.
type Channel struct {
	mu      sync.Mutex
	cb      live.Callbacks
	journal Journal

	// SendAudioErr is returned by SendAudio when non-nil.
	SendAudioErr error

	// SendToolResultErr is returned by SendToolResult when non-nil.
	SendToolResultErr error

	// SendAudioCalls records every frame accepted by SendAudio.
	SendAudioCalls []audio.AudioFrame

	// SendToolResultCalls records every result accepted by SendToolResult.
	SendToolResultCalls []live.ToolResult

	// CloseCallCount counts Close calls.
	CloseCallCount int

	closed bool
	ended  bool
	done   chan struct{}
}

// SendAudio implements [live.Channel].
func (c *Channel) SendAudio(frame audio.AudioFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ended {
		return live.ErrClosed
	}
	if c.SendAudioErr != nil {
		return c.SendAudioErr
	}
	c.SendAudioCalls = append(c.SendAudioCalls, frame)
	return nil
}

// SendToolResult implements [live.Channel].
func (c *Channel) SendToolResult(r live.ToolResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ended {
		return live.ErrClosed
	}
	if c.SendToolResultErr != nil {
		return c.SendToolResultErr
	}
	c.SendToolResultCalls = append(c.SendToolResultCalls, r)
	return nil
}

// Close implements [live.Channel].
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	if c.closed {
		return nil
	}
	c.closed = true
	if c.journal != nil {
		c.journal.Add("channel.close")
	}
	close(c.done)
	return nil
}

// Done is closed by the first Close call.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AudioFrames returns a copy of the frames sent so far.
func (c *Channel) AudioFrames() []audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.SendAudioCalls)
}

// ToolResults returns a copy of the tool results sent so far.
func (c *Channel) ToolResults() []live.ToolResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.SendToolResultCalls)
}

// active reports whether callbacks may still be delivered.
func (c *Channel) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.ended
}

// FireOpen delivers OnOpen.
func (c *Channel) FireOpen() {
	if c.active() {
		c.cb.Open()
	}
}

// Emit delivers OnMessage for each event in order.
func (c *Channel) Emit(events ...live.Event) {
	for _, ev := range events {
		if !c.active() {
			return
		}
		c.cb.Message(ev)
	}
}

// RemoteClose simulates the server ending the session.
func (c *Channel) RemoteClose(reason string) {
	if !c.end() {
		return
	}
	c.cb.Closed(reason)
}

// RemoteError simulates a transport failure.
func (c *Channel) RemoteError(err error) {
	if !c.end() {
		return
	}
	c.cb.Error(err)
}

func (c *Channel) end() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ended {
		return false
	}
	c.ended = true
	return true
}
