// Package mock provides a recording [transcript.HistorySink] for tests.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/internal/transcript"
)

var _ transcript.HistorySink = (*Sink)(nil)

// Sink records every message it receives.
type Sink struct {
	mu sync.Mutex

	// Err is returned by Record when non-nil. Messages are recorded anyway.
	Err error

	// RecordCalls holds every recorded message in order.
	RecordCalls []transcript.Message
}

// Record implements [transcript.HistorySink].
func (s *Sink) Record(_ context.Context, msg transcript.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecordCalls = append(s.RecordCalls, msg)
	return s.Err
}

// Messages returns a copy of the recorded messages.
func (s *Sink) Messages() []transcript.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.RecordCalls)
}

// WaitMessages polls until at least n messages were recorded or timeout
// elapses, then returns a copy of what was recorded.
func (s *Sink) WaitMessages(n int, timeout time.Duration) []transcript.Message {
	deadline := time.Now().Add(timeout)
	for {
		msgs := s.Messages()
		if len(msgs) >= n || time.Now().After(deadline) {
			return msgs
		}
		time.Sleep(time.Millisecond)
	}
}
