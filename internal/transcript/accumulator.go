package transcript

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Option configures an [Accumulator].
type Option func(*Accumulator)

// WithObserver registers fn to receive a fresh [Snapshot] after every
// non-empty append. fn runs on the appending goroutine without any internal
// lock held.
func WithObserver(fn func(Snapshot)) Option {
	return func(a *Accumulator) { a.onChange = fn }
}

// WithSessionID stamps every emitted message with id.
func WithSessionID(id string) Option {
	return func(a *Accumulator) { a.sessionID = id }
}

// WithClock overrides the timestamp source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) { a.now = now }
}

// Accumulator merges transcript fragments into per-speaker buffers.
// All methods are safe for concurrent use.
type Accumulator struct {
	sink      HistorySink
	onChange  func(Snapshot)
	sessionID string
	now       func() time.Time

	// emitMu keeps sink emission in the same order as turn completion.
	emitMu sync.Mutex

	mu        sync.Mutex
	user      strings.Builder
	assistant strings.Builder
}

// NewAccumulator creates an Accumulator emitting finalised turns to sink.
// A nil sink discards them.
func NewAccumulator(sink HistorySink, opts ...Option) *Accumulator {
	if sink == nil {
		sink = Discard
	}
	a := &Accumulator{sink: sink, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AppendUser appends delta to the user buffer.
func (a *Accumulator) AppendUser(delta string) { a.append(&a.user, delta) }

// AppendAssistant appends delta to the assistant buffer.
func (a *Accumulator) AppendAssistant(delta string) { a.append(&a.assistant, delta) }

func (a *Accumulator) append(b *strings.Builder, delta string) {
	if delta == "" {
		return
	}
	a.mu.Lock()
	b.WriteString(delta)
	snap := a.snapshotLocked()
	a.mu.Unlock()

	if a.onChange != nil {
		a.onChange(snap)
	}
}

// Snapshot returns a copy of both buffers.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Accumulator) snapshotLocked() Snapshot {
	return Snapshot{User: a.user.String(), Assistant: a.assistant.String()}
}

// CompleteTurn finalises the current turn with [Accumulator.Finish] and
// records the result with [Accumulator.Emit]. It returns the messages that
// were emitted.
func (a *Accumulator) CompleteTurn(ctx context.Context) []Message {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	msgs := a.Finish()
	a.Emit(ctx, msgs)
	return msgs
}

// Finish captures and clears both buffers in one step, so an append racing
// with it lands entirely in either this turn or the next. It returns one
// message per non-empty side, user first, without recording them.
func (a *Accumulator) Finish() []Message {
	a.mu.Lock()
	snap := a.snapshotLocked()
	a.user.Reset()
	a.assistant.Reset()
	a.mu.Unlock()

	at := a.now()
	var msgs []Message
	if snap.User != "" {
		msgs = append(msgs, Message{SessionID: a.sessionID, Speaker: SpeakerUser, Text: snap.User, At: at})
	}
	if snap.Assistant != "" {
		msgs = append(msgs, Message{SessionID: a.sessionID, Speaker: SpeakerAssistant, Text: snap.Assistant, At: at})
	}
	return msgs
}

// Emit records msgs to the sink in order. Sink errors are logged and
// otherwise ignored.
func (a *Accumulator) Emit(ctx context.Context, msgs []Message) {
	for _, m := range msgs {
		if err := a.sink.Record(ctx, m); err != nil {
			slog.Warn("transcript: failed to record message",
				"session_id", a.sessionID,
				"speaker", m.Speaker,
				"err", err,
			)
		}
	}
}
