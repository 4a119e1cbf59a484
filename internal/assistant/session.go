package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/tools"
	"github.com/MrWong99/voxdesk/internal/transcript"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/audio/playback"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

const (
	// DefaultQuietDelay is how long a session stays in [StatusSpeaking] after
	// the model's turn completes.
	DefaultQuietDelay = 2 * time.Second

	// DefaultOpenTimeout bounds dialing the live endpoint.
	DefaultOpenTimeout = 15 * time.Second

	// DefaultToolTimeout bounds a single tool side effect.
	DefaultToolTimeout = 10 * time.Second

	// DefaultHistoryTimeout bounds a single transcript history write.
	DefaultHistoryTimeout = 5 * time.Second
)

// ErrStopped is returned by [Session.Start] when the session was closed
// before its channel finished opening.
var ErrStopped = errors.New("assistant: session stopped")

// ContextSource builds the system context from the current back-office data.
// It is read once when a session opens.
type ContextSource interface {
	BuildContext(ctx context.Context) (string, error)
}

// ContextFunc adapts a function to [ContextSource].
type ContextFunc func(ctx context.Context) (string, error)

// BuildContext calls f.
func (f ContextFunc) BuildContext(ctx context.Context) (string, error) { return f(ctx) }

// Config holds the dependencies and settings of a session. A session copies
// its Config at creation; later changes apply to the next session only.
type Config struct {
	Transport live.Transport
	Platform  audio.Platform

	// Context, when set, is appended to Instructions at open time.
	Context ContextSource

	Tools   tools.Sink
	History transcript.HistorySink
	Status  StatusSink
	Metrics *observe.Metrics

	Model        string
	Voice        string
	Instructions string

	// FrameSize is the number of capture samples per frame.
	// Default: audio.DefaultFrameSize.
	FrameSize int

	// QuietDelay is the pause between turn completion and the return to
	// listening. Default: DefaultQuietDelay.
	QuietDelay time.Duration

	// OpenTimeout bounds Transport.Open. Default: DefaultOpenTimeout.
	OpenTimeout time.Duration

	// ToolTimeout bounds each tool side effect. Default: DefaultToolTimeout.
	ToolTimeout time.Duration

	// HistoryTimeout bounds each history write. Default: DefaultHistoryTimeout.
	HistoryTimeout time.Duration

	// AfterFunc schedules f after d and returns a function that cancels it.
	// Default: wraps time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

func (c Config) withDefaults() Config {
	if c.FrameSize <= 0 {
		c.FrameSize = audio.DefaultFrameSize
	}
	if c.QuietDelay <= 0 {
		c.QuietDelay = DefaultQuietDelay
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.HistoryTimeout <= 0 {
		c.HistoryTimeout = DefaultHistoryTimeout
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	if c.Status == nil {
		c.Status = discardStatus{}
	}
	return c
}

// Session is one voice conversation. It is started once and closed once;
// a new conversation always needs a new Session.
//
// Inbound events, device callbacks and Close are serialised internally, so
// all methods are safe for concurrent use.
type Session struct {
	id        string
	surface   string
	cfg       Config
	startedAt time.Time

	// ctx lives until cleanup and scopes device acquisition and history writes.
	ctx    context.Context
	cancel context.CancelFunc

	acc        *transcript.Accumulator
	dispatcher *tools.Dispatcher

	// opMu serialises Start, inbound callbacks, the quiet timer and cleanup.
	opMu      sync.Mutex
	started   bool
	closed    bool
	openedAt  time.Time
	output    audio.Output
	scheduler *playback.Scheduler
	capture   audio.CaptureStream
	quietStop func() bool
	quietGen  uint64

	// historyTail is closed once the most recently queued turn is written.
	historyTail chan struct{}

	// mu guards the fields read from capture and tool goroutines.
	mu      sync.Mutex
	status  Status
	channel live.Channel
	lastErr string

	bg   sync.WaitGroup
	done chan struct{}
}

// NewSession creates an idle session for surface. The session's lifetime is
// bounded by ctx.
func NewSession(ctx context.Context, surface string, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:      uuid.NewString(),
		surface: surface,
		cfg:     cfg,
		status:  StatusIdle,
		done:    make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.acc = transcript.NewAccumulator(cfg.History,
		transcript.WithSessionID(s.id),
		transcript.WithObserver(s.publishTranscript),
	)
	dopts := []tools.DispatcherOption{tools.WithTimeout(cfg.ToolTimeout)}
	if cfg.Metrics != nil {
		dopts = append(dopts, tools.WithMetrics(cfg.Metrics))
	}
	s.dispatcher = tools.NewDispatcher(cfg.Tools, dopts...)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Surface returns the UI surface that owns the session.
func (s *Session) Surface() string { return s.surface }

// StartedAt returns when Start was called, or the zero time.
func (s *Session) StartedAt() time.Time {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startedAt
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the last user-visible error, if any.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Transcript returns a copy of the live transcript buffers.
func (s *Session) Transcript() transcript.Snapshot { return s.acc.Snapshot() }

// Done is closed once cleanup has run.
func (s *Session) Done() <-chan struct{} { return s.done }

// Ended reports whether cleanup has run.
func (s *Session) Ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until in-flight tool calls, queued history writes and the
// background channel close have finished.
func (s *Session) Wait() {
	s.dispatcher.Wait()
	s.bg.Wait()
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

// Start moves the session from idle to connecting: it opens a fresh output
// context, builds the system context and opens the live channel. The
// microphone is acquired later, when the channel signals that it is open.
//
// Failures surface on the status sink, run cleanup and are returned.
func (s *Session) Start(ctx context.Context) error {
	s.opMu.Lock()
	if s.started || s.closed {
		s.opMu.Unlock()
		return ErrStopped
	}
	s.started = true
	s.startedAt = time.Now()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveSessions.Add(context.Background(), 1)
	}
	s.setStatusLocked(StatusConnecting, "")

	if s.cfg.Transport == nil || s.cfg.Platform == nil {
		err := ErrNoTransport
		if s.cfg.Platform == nil {
			err = ErrNoPlatform
		}
		s.failLocked("config", err)
		s.opMu.Unlock()
		return err
	}
	out, err := s.cfg.Platform.OpenOutput(s.ctx)
	if err != nil {
		err = fmt.Errorf("assistant: open output: %w", err)
		s.failLocked("device", err)
		s.opMu.Unlock()
		return err
	}
	s.output = out
	s.scheduler = playback.New(out, playback.WithScheduledHandler(s.onScheduled))
	s.opMu.Unlock()

	openCtx, cancel := context.WithTimeout(s.ctx, s.cfg.OpenTimeout)
	defer cancel()
	stopAfter := context.AfterFunc(ctx, cancel)
	defer stopAfter()

	lcfg := live.Config{
		Model:        s.cfg.Model,
		Voice:        s.cfg.Voice,
		Instructions: s.instructions(openCtx),
		Tools:        tools.Declarations(),
	}

	s.opMu.Lock()
	s.openedAt = time.Now()
	s.opMu.Unlock()

	ch, err := s.cfg.Transport.Open(openCtx, lcfg, live.Callbacks{
		OnOpen:    s.onOpen,
		OnMessage: s.onMessage,
		OnClose:   s.onClose,
		OnError:   s.onError,
	})

	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.closed {
		if ch != nil {
			s.closeChannelAsync(ch)
		}
		return ErrStopped
	}
	if err != nil {
		err = fmt.Errorf("assistant: open channel: %w", err)
		s.failLocked("transport", err)
		return err
	}

	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()

	slog.Info("assistant: session connecting",
		"session_id", s.id,
		"surface", s.surface,
		"model", s.cfg.Model,
	)
	return nil
}

// Close runs cleanup. It is idempotent and returns once the session is idle;
// the channel itself closes in the background (see [Session.Wait]).
func (s *Session) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.cleanupLocked("")
	return nil
}

// instructions joins the configured instructions with the back-office
// context. A failing context source is logged and skipped.
func (s *Session) instructions(ctx context.Context) string {
	base := strings.TrimSpace(s.cfg.Instructions)
	if s.cfg.Context == nil {
		return base
	}
	extra, err := s.cfg.Context.BuildContext(ctx)
	if err != nil {
		slog.Warn("assistant: build context failed, continuing without it",
			"session_id", s.id,
			"err", err,
		)
		return base
	}
	extra = strings.TrimSpace(extra)
	switch {
	case base == "":
		return extra
	case extra == "":
		return base
	default:
		return base + "\n\n" + extra
	}
}

// ── Transport callbacks ──────────────────────────────────────────────────────

// onOpen acquires the microphone and starts streaming frames.
func (s *Session) onOpen() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.closed || s.capture != nil {
		return
	}
	if s.cfg.Metrics != nil && !s.openedAt.IsZero() {
		s.cfg.Metrics.TransportOpenDuration.Record(context.Background(), time.Since(s.openedAt).Seconds())
	}

	capture, err := s.cfg.Platform.OpenCapture(s.ctx, s.cfg.FrameSize)
	if err != nil {
		s.failLocked("device", fmt.Errorf("assistant: acquire microphone: %w", err))
		return
	}
	s.capture = capture

	var encOpts []audio.EncoderOption
	if m := s.cfg.Metrics; m != nil {
		encOpts = append(encOpts,
			audio.WithSentHandler(func() { m.FramesSent.Add(context.Background(), 1) }),
			audio.WithDropHandler(func(error) { m.FramesDropped.Add(context.Background(), 1) }),
		)
	}
	enc := audio.NewFrameEncoder(s.cfg.FrameSize, s.sendFrame, encOpts...)
	capture.SetProcessor(enc.Encode)

	s.setStatusLocked(StatusListening, "")
	slog.Info("assistant: session listening", "session_id", s.id, "surface", s.surface)
}

// onMessage handles one inbound event.
func (s *Session) onMessage(ev live.Event) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.closed {
		return
	}

	switch ev := ev.(type) {
	case live.AudioEvent:
		s.cancelQuietLocked()
		if _, err := s.scheduler.Enqueue(ev.Data, ev.MIMEType); err != nil {
			slog.Debug("assistant: audio chunk skipped", "session_id", s.id, "err", err)
			return
		}
		s.speakLocked()

	case live.TranscriptEvent:
		if ev.Text == "" {
			return
		}
		switch ev.Role {
		case live.RoleUser:
			s.acc.AppendUser(ev.Text)
		case live.RoleAssistant:
			s.cancelQuietLocked()
			s.speakLocked()
			s.acc.AppendAssistant(ev.Text)
		}

	case live.ToolCallEvent:
		s.dispatcher.Dispatch(context.WithoutCancel(s.ctx), ev.Calls, s.sendToolResult)

	case live.TurnCompleteEvent:
		s.recordTurnLocked()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.TurnsCompleted.Add(context.Background(), 1)
		}
		s.armQuietLocked()

	case live.InterruptedEvent:
		s.cancelQuietLocked()
		s.scheduler.Reset()

	default:
		slog.Debug("assistant: unhandled event", "session_id", s.id, "type", fmt.Sprintf("%T", ev))
	}
}

// onClose handles a remote close: cleanup, nothing surfaced.
func (s *Session) onClose(reason string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.closed {
		return
	}
	slog.Info("assistant: channel closed by remote", "session_id", s.id, "reason", reason)
	s.cleanupLocked("")
}

// onError handles a transport failure. Benign errors end the session
// silently.
func (s *Session) onError(err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.closed {
		return
	}
	if live.IsBenign(err) {
		slog.Debug("assistant: channel ended", "session_id", s.id, "err", err)
		s.cleanupLocked("")
		return
	}
	s.failLocked("remote", fmt.Errorf("assistant: channel: %w", err))
}

// ── Sends ────────────────────────────────────────────────────────────────────

func (s *Session) currentChannel() live.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// sendFrame is the frame encoder's send function. Without a channel the frame
// is rejected and the encoder drops it.
func (s *Session) sendFrame(f audio.AudioFrame) error {
	ch := s.currentChannel()
	if ch == nil {
		return live.ErrClosed
	}
	return ch.SendAudio(f)
}

func (s *Session) sendToolResult(r live.ToolResult) error {
	ch := s.currentChannel()
	if ch == nil {
		return live.ErrClosed
	}
	return ch.SendToolResult(r)
}

// ── State ────────────────────────────────────────────────────────────────────

func (s *Session) onScheduled(time.Duration, time.Duration) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ChunksScheduled.Add(context.Background(), 1)
	}
}

// speakLocked moves listening to speaking.
func (s *Session) speakLocked() {
	if s.Status() == StatusListening {
		s.setStatusLocked(StatusSpeaking, "")
	}
}

// armQuietLocked schedules the return to listening after the quiet delay.
func (s *Session) armQuietLocked() {
	s.cancelQuietLocked()
	gen := s.quietGen
	s.quietStop = s.cfg.AfterFunc(s.cfg.QuietDelay, func() { s.onQuiet(gen) })
}

// cancelQuietLocked cancels a pending quiet timer. A timer callback that
// already started sees a stale generation and does nothing.
func (s *Session) cancelQuietLocked() {
	s.quietGen++
	if s.quietStop != nil {
		s.quietStop()
		s.quietStop = nil
	}
}

func (s *Session) onQuiet(gen uint64) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.closed || gen != s.quietGen {
		return
	}
	s.quietStop = nil
	// The turn's buffers were cleared at completion. Publish even when the
	// status is unchanged so the live transcript view clears too.
	prev := s.Status()
	s.setStatusLocked(StatusListening, "")
	if prev == StatusListening {
		s.publish(StatusListening, s.acc.Snapshot(), "")
	}
}

// recordTurnLocked finalises the current turn and queues its messages for
// the history sink. Writes run in turn order on a tracked goroutine, each
// bounded by HistoryTimeout and aborted by cleanup.
func (s *Session) recordTurnLocked() {
	msgs := s.acc.Finish()
	if len(msgs) == 0 {
		return
	}
	prev := s.historyTail
	done := make(chan struct{})
	s.historyTail = done

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.HistoryTimeout)
		defer cancel()
		s.acc.Emit(ctx, msgs)
	}()
}

// setStatusLocked records status and publishes it together with the live
// transcript. Unchanged statuses are only republished when carrying an error.
func (s *Session) setStatusLocked(status Status, errMsg string) {
	s.mu.Lock()
	prev := s.status
	s.status = status
	if errMsg != "" {
		s.lastErr = errMsg
	}
	s.mu.Unlock()

	if prev == status && errMsg == "" {
		return
	}
	if s.cfg.Metrics != nil && prev != status {
		s.cfg.Metrics.RecordStatus(context.Background(), string(status))
	}
	s.publish(status, s.acc.Snapshot(), errMsg)
}

// publishTranscript is the accumulator observer.
func (s *Session) publishTranscript(snap transcript.Snapshot) {
	s.publish(s.Status(), snap, "")
}

func (s *Session) publish(status Status, snap transcript.Snapshot, errMsg string) {
	s.cfg.Status.Publish(Update{
		Surface:    s.surface,
		SessionID:  s.id,
		Status:     status,
		Transcript: snap,
		Err:        errMsg,
		At:         time.Now(),
	})
}

// failLocked surfaces err and runs cleanup.
func (s *Session) failLocked(kind string, err error) {
	slog.Error("assistant: session failed",
		"session_id", s.id,
		"surface", s.surface,
		"kind", kind,
		"err", err,
	)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordSessionError(context.Background(), kind)
	}
	s.cleanupLocked(err.Error())
}
