// Package mixer provides a software output context for device backends.
//
// A [Timeline] holds voices positioned on a sample-accurate clock. A device
// backend pulls fixed-size blocks from it with [Timeline.Render]; every
// rendered block advances the clock by exactly its length, so the clock tracks
// what the hardware has actually been handed. Overlapping voices are summed
// with saturation.
package mixer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Output = (*Timeline)(nil)
	_ audio.Voice  = (*voice)(nil)
)

// ErrClosed is returned by Start after the timeline has been closed.
var ErrClosed = errors.New("mixer: timeline closed")

// DefaultBlockSize is 40 ms at the output rate.
const DefaultBlockSize = 960

// Timeline is an [audio.Output] rendered on demand. All exported methods are
// safe for concurrent use; ended callbacks run on the rendering goroutine
// without the timeline lock held.
type Timeline struct {
	rate int

	mu     sync.Mutex
	pos    int64 // samples rendered so far
	voices []*voice
	closed bool
}

type voice struct {
	t       *Timeline
	samples []int16
	start   int64
	ended   func()
	stopped bool
}

// NewTimeline creates an empty timeline running at rate samples per second.
func NewTimeline(rate int) *Timeline {
	if rate <= 0 {
		rate = audio.OutputSampleRate
	}
	return &Timeline{rate: rate}
}

// Now implements [audio.Output]. It reports the position of the next sample
// to be rendered.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return audio.SamplesDuration(int(t.pos), t.rate)
}

// Start implements [audio.Output]. When at is already behind the clock the
// part of samples that should have played is skipped.
func (t *Timeline) Start(samples []int16, at time.Duration, ended func()) (audio.Voice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	v := &voice{
		t:       t,
		samples: samples,
		start:   audio.DurationSamples(at, t.rate),
		ended:   ended,
	}
	t.voices = append(t.voices, v)
	return v, nil
}

// Render mixes the next len(buf) samples into buf and advances the clock.
// After Close, Render writes silence.
func (t *Timeline) Render(buf []int16) {
	clear(buf)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	from := t.pos
	to := from + int64(len(buf))
	acc := make([]int32, len(buf))

	var finished []func()
	kept := t.voices[:0]
	for _, v := range t.voices {
		end := v.start + int64(len(v.samples))
		lo := max(v.start, from)
		hi := min(end, to)
		for p := lo; p < hi; p++ {
			acc[p-from] += int32(v.samples[p-v.start])
		}
		if end <= to {
			if v.ended != nil {
				finished = append(finished, v.ended)
			}
			continue
		}
		kept = append(kept, v)
	}
	clear(t.voices[len(kept):])
	t.voices = kept
	t.pos = to
	t.mu.Unlock()

	for i, s := range acc {
		buf[i] = saturate(s)
	}
	for _, fn := range finished {
		fn()
	}
}

// Pending returns the number of voices not yet fully rendered.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Close implements [audio.Output]. It drops every pending voice without
// calling their ended callbacks. Close is idempotent.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, v := range t.voices {
		v.stopped = true
	}
	t.voices = nil
	return nil
}

// Drive renders blocks of blockSize samples until ctx is done or the
// timeline is closed. Each block is handed to write, which is expected to
// block for the block's playback time (a device write). When write is nil
// Drive paces itself with a ticker and discards the audio.
func (t *Timeline) Drive(ctx context.Context, blockSize int, write func([]int16) error) error {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	buf := make([]int16, blockSize)

	var tick <-chan time.Time
	if write == nil {
		ticker := time.NewTicker(audio.SamplesDuration(blockSize, t.rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if t.isClosed() {
			return nil
		}
		t.Render(buf)
		if write != nil {
			if err := write(buf); err != nil {
				return err
			}
		}
	}
}

func (t *Timeline) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Stop implements [audio.Voice].
func (v *voice) Stop() {
	t := v.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if v.stopped {
		return
	}
	v.stopped = true
	for i, other := range t.voices {
		if other == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			break
		}
	}
}

func saturate(s int32) int16 {
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}
