// Package playback schedules decoded model audio for gapless output.
//
// A [Scheduler] keeps a single start-time cursor on the output clock. Each
// chunk starts at max(cursor, now) and pushes the cursor forward by exactly its
// duration, so chunks that arrive at irregular intervals still play back to
// back with no gap and no overlap, and never in the past.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// Chunk is one decoded buffer of mono PCM16 output audio.
type Chunk struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the chunk.
func (c Chunk) Duration() time.Duration {
	return audio.SamplesDuration(len(c.Samples), c.SampleRate)
}

// Decode turns an inbound audio payload into a [Chunk] at
// [audio.OutputSampleRate]. The source rate is read from mimeType
// ("audio/pcm;rate=N"); payloads at another rate are resampled. Decode is pure.
func Decode(payload []byte, mimeType string) (Chunk, error) {
	samples, err := audio.DecodePCM16(payload)
	if err != nil {
		return Chunk{}, fmt.Errorf("playback: decode: %w", err)
	}
	if len(samples) == 0 {
		return Chunk{}, fmt.Errorf("playback: decode: empty payload")
	}
	rate := audio.ParsePCMRate(mimeType, audio.OutputSampleRate)
	samples = audio.ResampleMono16(samples, rate, audio.OutputSampleRate)
	return Chunk{Samples: samples, SampleRate: audio.OutputSampleRate}, nil
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithScheduledHandler registers fn to observe every scheduled chunk's start
// time and duration.
func WithScheduledHandler(fn func(start, length time.Duration)) Option {
	return func(s *Scheduler) { s.onScheduled = fn }
}

// Scheduler owns the active set of voices on one [audio.Output].
// All methods are safe for concurrent use.
type Scheduler struct {
	out         audio.Output
	onScheduled func(start, length time.Duration)

	mu     sync.Mutex
	cursor time.Duration
	nextID uint64
	active map[uint64]audio.Voice
}

// New creates a Scheduler playing through out.
func New(out audio.Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		active: make(map[uint64]audio.Voice),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue decodes payload fully and then schedules it.
func (s *Scheduler) Enqueue(payload []byte, mimeType string) (time.Duration, error) {
	chunk, err := Decode(payload, mimeType)
	if err != nil {
		return 0, err
	}
	return s.Schedule(chunk)
}

// Schedule starts chunk at max(cursor, output clock) and advances the cursor
// by the chunk's duration. It returns the chosen start time. On error the
// cursor is left unchanged.
func (s *Scheduler) Schedule(chunk Chunk) (time.Duration, error) {
	if len(chunk.Samples) == 0 {
		return 0, fmt.Errorf("playback: empty chunk")
	}
	if chunk.SampleRate != audio.OutputSampleRate {
		chunk.Samples = audio.ResampleMono16(chunk.Samples, chunk.SampleRate, audio.OutputSampleRate)
		chunk.SampleRate = audio.OutputSampleRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.cursor, s.out.Now())
	id := s.nextID
	s.nextID++

	voice, err := s.out.Start(chunk.Samples, start, func() { s.release(id) })
	if err != nil {
		return 0, fmt.Errorf("playback: start chunk: %w", err)
	}
	s.active[id] = voice
	length := chunk.Duration()
	s.cursor = start + length

	if s.onScheduled != nil {
		s.onScheduled(start, length)
	}
	return start, nil
}

// release drops a naturally finished voice from the active set. Voices
// already removed by Reset are ignored.
func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// Reset stops every active voice, clears the set and rewinds the cursor to
// zero so the next chunk is seeded from the output clock again.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.active {
		v.Stop()
		delete(s.active, id)
	}
	s.cursor = 0
}

// Active returns the number of voices that have not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the next available start time.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
