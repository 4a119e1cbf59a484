// Package transcript accumulates the two live transcripts of a voice session.
//
// Transcript text arrives as incremental fragments for each speaker. The
// [Accumulator] concatenates them in delivery order and, when the remote side
// signals the end of a turn, finalises both buffers as [Message] values handed
// to a [HistorySink]. Readers such as a UI never see the buffers themselves,
// only copied [Snapshot] values.
package transcript

import (
	"context"
	"errors"
	"time"
)

// Speaker identifies who produced a message.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one finalised turn of one speaker.
type Message struct {
	SessionID string
	Speaker   Speaker
	Text      string
	At        time.Time
}

// Snapshot is a copy of both live buffers.
type Snapshot struct {
	User      string
	Assistant string
}

// Empty reports whether both sides are empty.
func (s Snapshot) Empty() bool {
	return s.User == "" && s.Assistant == ""
}

// HistorySink accepts finalised messages.
//
// Implementations must be safe for concurrent use.
type HistorySink interface {
	Record(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to [HistorySink].
type SinkFunc func(ctx context.Context, msg Message) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, msg Message) error { return f(ctx, msg) }

// MultiSink records every message to all of its sinks. Errors from
// individual sinks are joined; one failing sink does not stop the others.
type MultiSink []HistorySink

// Record implements [HistorySink].
func (m MultiSink) Record(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a HistorySink that drops every message.
var Discard HistorySink = SinkFunc(func(context.Context, Message) error { return nil })
