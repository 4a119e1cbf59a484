// Package redis publishes finalised conversation messages to a Redis stream
// so other back-office services can follow assistant activity.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/voxdesk/internal/transcript"
)

var _ transcript.HistorySink = (*StreamSink)(nil)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "voxdesk:messages"

// Option configures a [StreamSink].
type Option func(*StreamSink)

// WithStream sets the stream key. Default: [DefaultStream].
func WithStream(key string) Option {
	return func(s *StreamSink) { s.stream = key }
}

// WithMaxLen caps the stream length with approximate trimming. Zero keeps
// every entry. Default: 10000.
func WithMaxLen(n int64) Option {
	return func(s *StreamSink) { s.maxLen = n }
}

// StreamSink appends each message as one XADD entry with the fields
// session_id, speaker, text and at (RFC 3339, nanosecond precision).
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamSink wraps client. The caller owns the client.
func NewStreamSink(client *redis.Client, opts ...Option) *StreamSink {
	s := &StreamSink{client: client, stream: DefaultStream, maxLen: 10000}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Record implements [transcript.HistorySink].
func (s *StreamSink) Record(ctx context.Context, msg transcript.Message) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"session_id": msg.SessionID,
			"speaker":    string(msg.Speaker),
			"text":       msg.Text,
			"at":         msg.At.UTC().Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: xadd %s: %w", s.stream, err)
	}
	return nil
}

// Ping checks connectivity. It is used as a readiness check.
func (s *StreamSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Recent reads up to count of the newest messages, oldest first.
func (s *StreamSink) Recent(ctx context.Context, count int64) ([]transcript.Message, error) {
	entries, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: xrevrange %s: %w", s.stream, err)
	}
	out := make([]transcript.Message, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		v := entries[i].Values
		m := transcript.Message{
			SessionID: str(v["session_id"]),
			Speaker:   transcript.Speaker(str(v["speaker"])),
			Text:      str(v["text"]),
		}
		if at, err := time.Parse(time.RFC3339Nano, str(v["at"])); err == nil {
			m.At = at
		}
		out = append(out, m)
	}
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
