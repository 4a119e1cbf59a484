// Package genai implements [live.Transport] on the Live API of the official
// google.golang.org/genai SDK.
//
// The SDK owns the websocket and the protocol framing; this package only
// translates between the SDK's message types and the [live] boundary.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	genaisdk "google.golang.org/genai"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

var (
	_ live.Transport = (*Transport)(nil)
	_ live.Channel   = (*channel)(nil)
)

const defaultModel = "gemini-2.0-flash-live-001"

// Option is a functional option for configuring a Transport.
type Option func(*options)

type options struct {
	model   string
	baseURL string
}

// WithModel sets the default model used when [live.Config.Model] is empty.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL overrides the SDK's API endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// Transport opens Live sessions through a shared SDK client.
type Transport struct {
	client *genaisdk.Client
	model  string
}

// New creates the SDK client for the Gemini API backend.
func New(ctx context.Context, apiKey string, opts ...Option) (*Transport, error) {
	o := options{model: defaultModel}
	for _, fn := range opts {
		fn(&o)
	}
	cc := &genaisdk.ClientConfig{
		APIKey:  apiKey,
		Backend: genaisdk.BackendGeminiAPI,
	}
	if o.baseURL != "" {
		cc.HTTPOptions = genaisdk.HTTPOptions{BaseURL: o.baseURL}
	}
	client, err := genaisdk.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}
	return &Transport{client: client, model: strings.TrimPrefix(o.model, "models/")}, nil
}

// Model returns the default model identifier.
func (t *Transport) Model() string { return t.model }

// Open connects a Live session. OnOpen fires when the server acknowledges the
// setup.
func (t *Transport) Open(ctx context.Context, cfg live.Config, cb live.Callbacks) (live.Channel, error) {
	model := strings.TrimPrefix(cfg.Model, "models/")
	if model == "" {
		model = t.model
	}
	sess, err := t.client.Live.Connect(ctx, model, ConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("genai: connect: %w", err)
	}
	c := &channel{sess: sess, cb: cb}
	go c.receiveLoop()
	return c, nil
}

// ConnectConfig maps a session configuration onto the SDK's setup payload.
// Both audio transcriptions are always enabled.
func ConnectConfig(cfg live.Config) *genaisdk.LiveConnectConfig {
	lc := &genaisdk.LiveConnectConfig{
		ResponseModalities:       []genaisdk.Modality{genaisdk.ModalityAudio},
		InputAudioTranscription:  &genaisdk.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genaisdk.AudioTranscriptionConfig{},
	}
	if cfg.Instructions != "" {
		lc.SystemInstruction = &genaisdk.Content{
			Parts: []*genaisdk.Part{{Text: cfg.Instructions}},
		}
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genaisdk.SpeechConfig{
			VoiceConfig: &genaisdk.VoiceConfig{
				PrebuiltVoiceConfig: &genaisdk.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genaisdk.FunctionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = &genaisdk.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			}
		}
		lc.Tools = []*genaisdk.Tool{{FunctionDeclarations: decls}}
	}
	return lc
}

// Translate turns one SDK message into inbound events, in the same order as
// the raw websocket transport: user transcription, model parts, model
// transcription, tool calls, interruption, turn completion.
func Translate(msg *genaisdk.LiveServerMessage) []live.Event {
	if msg == nil {
		return nil
	}
	var events []live.Event
	sc := msg.ServerContent
	if sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			events = append(events, live.TranscriptEvent{Role: live.RoleUser, Text: sc.InputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p == nil {
					continue
				}
				if p.InlineData != nil && len(p.InlineData.Data) > 0 && strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
					events = append(events, live.AudioEvent{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType})
				}
				if p.Text != "" && !p.Thought {
					events = append(events, live.TranscriptEvent{Role: live.RoleAssistant, Text: p.Text})
				}
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, live.TranscriptEvent{Role: live.RoleAssistant, Text: sc.OutputTranscription.Text})
		}
	}
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := make([]live.ToolCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			calls = append(calls, live.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		events = append(events, live.ToolCallEvent{Calls: calls})
	}
	if sc != nil {
		if sc.Interrupted {
			events = append(events, live.InterruptedEvent{})
		}
		if sc.TurnComplete {
			events = append(events, live.TurnCompleteEvent{})
		}
	}
	return events
}

// ToolResponse builds the SDK payload answering one call.
func ToolResponse(r live.ToolResult) genaisdk.LiveToolResponseInput {
	return genaisdk.LiveToolResponseInput{
		FunctionResponses: []*genaisdk.FunctionResponse{{
			ID:       r.ID,
			Name:     r.Name,
			Response: map[string]any{"result": r.Output},
		}},
	}
}

// ── channel ────────────────────────────────────────────────────────────────────

type channel struct {
	sess *genaisdk.Session
	cb   live.Callbacks

	closed atomic.Bool
	ended  atomic.Bool

	// The SDK connection does not support concurrent writers.
	writeMu sync.Mutex
}

func (c *channel) receiveLoop() {
	opened := false
	for {
		msg, err := c.sess.Receive()
		if err != nil && isMalformed(err) {
			slog.Debug("genai: skipping malformed frame", "err", err)
			continue
		}
		if err != nil {
			c.ended.Store(true)
			if c.closed.Load() {
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
				c.cb.Closed(ce.Text)
				return
			}
			c.cb.Error(fmt.Errorf("genai: receive: %w", err))
			return
		}
		if msg.SetupComplete != nil && !opened {
			opened = true
			if c.closed.Load() {
				return
			}
			c.cb.Open()
		}
		if msg.GoAway != nil {
			slog.Debug("genai: server announced disconnect", "time_left", msg.GoAway.TimeLeft)
		}
		for _, ev := range Translate(msg) {
			if c.closed.Load() {
				return
			}
			c.cb.Message(ev)
		}
	}
}

// isMalformed reports whether Receive failed to decode a frame that was read
// intact. The SDK does not export a sentinel for this case.
func isMalformed(err error) bool {
	return strings.HasPrefix(err.Error(), "invalid message format")
}

func (c *channel) usable() bool {
	return !c.closed.Load() && !c.ended.Load()
}

// SendAudio streams one 16 kHz PCM16 frame.
func (c *channel) SendAudio(frame audio.AudioFrame) error {
	if !c.usable() {
		return live.ErrClosed
	}
	c.writeMu.Lock()
	err := c.sess.SendRealtimeInput(genaisdk.LiveRealtimeInput{
		Audio: &genaisdk.Blob{MIMEType: audio.InputMIMEType, Data: frame.Data},
	})
	c.writeMu.Unlock()
	return c.sendErr("send audio", err)
}

// SendToolResult answers one function call.
func (c *channel) SendToolResult(r live.ToolResult) error {
	if !c.usable() {
		return live.ErrClosed
	}
	c.writeMu.Lock()
	err := c.sess.SendToolResponse(ToolResponse(r))
	c.writeMu.Unlock()
	return c.sendErr("send tool result", err)
}

func (c *channel) sendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if !c.usable() {
		return fmt.Errorf("genai: %s: %w", op, live.ErrClosed)
	}
	return fmt.Errorf("genai: %s: %w", op, err)
}

// Close ends the session. Idempotent.
func (c *channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if err := c.sess.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("genai: close: %w", err)
	}
	return nil
}
