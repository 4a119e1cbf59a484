// Package gemini implements [live.Transport] directly on Google's Gemini Live
// BidiGenerateContent websocket protocol.
//
// Every message is a JSON object. The client sends one setup message, then
// realtimeInput audio chunks and toolResponse messages; the server answers
// with setupComplete, serverContent (audio, transcriptions, turn markers) and
// toolCall messages. Audio is base64-encoded PCM16.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

var (
	_ live.Transport = (*Transport)(nil)
	_ live.Channel   = (*channel)(nil)
)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Transport.
type Option func(*Transport)

// WithModel sets the default model used when [live.Config.Model] is empty.
func WithModel(model string) Option {
	return func(t *Transport) { t.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(t *Transport) { t.baseURL = url }
}

// ── Transport ──────────────────────────────────────────────────────────────────

// Transport opens Gemini Live channels.
type Transport struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Transport with the given API key and options.
func New(apiKey string, opts ...Option) *Transport {
	t := &Transport{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Model returns the default model identifier.
func (t *Transport) Model() string { return t.model }

// Open dials the endpoint and sends the setup message. OnOpen fires once the
// server acknowledges the setup.
func (t *Transport) Open(ctx context.Context, cfg live.Config, cb live.Callbacks) (live.Channel, error) {
	endpoint := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		t.baseURL, url.QueryEscape(t.apiKey),
	)

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	// Server frames carrying audio easily exceed the 32 KiB default.
	conn.SetReadLimit(16 << 20)

	chCtx, chCancel := context.WithCancel(context.Background())
	c := &channel{
		conn:   conn,
		cb:     cb,
		done:   make(chan struct{}),
		ctx:    chCtx,
		cancel: chCancel,
	}

	model := cfg.Model
	if model == "" {
		model = t.model
	}
	if err := c.writeJSON(buildSetup(model, cfg)); err != nil {
		chCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go c.receiveLoop()
	go c.keepaliveLoop()

	return c, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	Tools                    []geminiTool     `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type geminiTool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCallMsg     `json:"toolCall,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallMsg struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// RemoteError is an error message sent by the server.
type RemoteError struct {
	Code    int
	Status  string
	Message string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Status != "" {
		return fmt.Sprintf("gemini: %s (%d %s)", msg, e.Code, e.Status)
	}
	return "gemini: " + msg
}

// buildSetup assembles the one-shot session configuration.
func buildSetup(model string, cfg live.Config) setupMessage {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	msg := setupMessage{
		Setup: setupConfig{
			Model: model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
			InputAudioTranscription:  &struct{}{},
			OutputAudioTranscription: &struct{}{},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		msg.Setup.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return msg
}

// translate turns one server message into inbound events in wire order:
// user transcription, model parts, model transcription, tool calls,
// interruption and finally turn completion.
func translate(msg *serverMessage) []live.Event {
	var events []live.Event
	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			events = append(events, live.TranscriptEvent{Role: live.RoleUser, Text: sc.InputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
					data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
					if err != nil || len(data) == 0 {
						continue // malformed chunk
					}
					events = append(events, live.AudioEvent{Data: data, MIMEType: p.InlineData.MIMEType})
				}
				if p.Text != "" {
					events = append(events, live.TranscriptEvent{Role: live.RoleAssistant, Text: p.Text})
				}
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, live.TranscriptEvent{Role: live.RoleAssistant, Text: sc.OutputTranscription.Text})
		}
	}
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := make([]live.ToolCall, len(msg.ToolCall.FunctionCalls))
		for i, fc := range msg.ToolCall.FunctionCalls {
			calls[i] = live.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args}
		}
		events = append(events, live.ToolCallEvent{Calls: calls})
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			events = append(events, live.InterruptedEvent{})
		}
		if sc.TurnComplete {
			events = append(events, live.TurnCompleteEvent{})
		}
	}
	return events
}

// ── channel ────────────────────────────────────────────────────────────────────

type channel struct {
	conn *websocket.Conn
	cb   live.Callbacks

	// closed is set by a local Close; ended once the receive loop exits.
	closed atomic.Bool
	ended  atomic.Bool
	opened bool // receive loop only

	mu   sync.Mutex
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (c *channel) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and dispatches them in order.
// It delivers exactly one terminal callback unless the channel was closed
// locally.
func (c *channel) receiveLoop() {
	defer c.ended.Store(true)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.ended.Store(true)
			if c.closed.Load() || c.ctx.Err() != nil {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				var ce websocket.CloseError
				errors.As(err, &ce)
				c.cb.Closed(ce.Reason)
			default:
				c.cb.Error(fmt.Errorf("gemini: read: %w", err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("gemini: skipping malformed frame", "err", err, "bytes", len(data))
			continue
		}

		if msg.Error != nil {
			c.ended.Store(true)
			if !c.closed.Load() {
				c.cb.Error(&RemoteError{Code: msg.Error.Code, Status: msg.Error.Status, Message: msg.Error.Message})
			}
			return
		}

		if msg.SetupComplete != nil && !c.opened {
			c.opened = true
			if c.closed.Load() {
				return
			}
			c.cb.Open()
		}

		for _, ev := range translate(&msg) {
			if c.closed.Load() {
				return
			}
			c.cb.Message(ev)
		}
	}
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (c *channel) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, keepaliveTimeout)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (c *channel) usable() bool {
	return !c.closed.Load() && !c.ended.Load()
}

// SendAudio delivers one 16 kHz PCM16 frame to the model.
func (c *channel) SendAudio(frame audio.AudioFrame) error {
	if !c.usable() {
		return live.ErrClosed
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{
				MIMEType: audio.InputMIMEType,
				Data:     base64.StdEncoding.EncodeToString(frame.Data),
			}},
		},
	}
	if err := c.writeJSON(msg); err != nil {
		if !c.usable() {
			return fmt.Errorf("gemini: send audio: %w", live.ErrClosed)
		}
		return fmt.Errorf("gemini: send audio: %w", err)
	}
	return nil
}

// SendToolResult answers one function call.
func (c *channel) SendToolResult(r live.ToolResult) error {
	if !c.usable() {
		return live.ErrClosed
	}
	msg := toolResponseMessage{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{{
				ID:       r.ID,
				Name:     r.Name,
				Response: map[string]any{"result": r.Output},
			}},
		},
	}
	if err := c.writeJSON(msg); err != nil {
		if !c.usable() {
			return fmt.Errorf("gemini: send tool result: %w", live.ErrClosed)
		}
		return fmt.Errorf("gemini: send tool result: %w", err)
	}
	return nil
}

// Close terminates the channel and releases all resources. Idempotent.
func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Swap(true) {
		return nil
	}

	c.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(c.done) // signals keepaliveLoop via done channel
	c.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
