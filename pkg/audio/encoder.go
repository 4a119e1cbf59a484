package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// SendFunc delivers one encoded frame to the transport.
type SendFunc func(AudioFrame) error

// EncoderOption configures a [FrameEncoder].
type EncoderOption func(*FrameEncoder)

// WithDropHandler registers fn to be told about every frame the send path
// rejected. fn runs on the capture path and must not block.
func WithDropHandler(fn func(error)) EncoderOption {
	return func(e *FrameEncoder) { e.onDrop = fn }
}

// WithSentHandler registers fn to be called after every successful send.
func WithSentHandler(fn func()) EncoderOption {
	return func(e *FrameEncoder) { e.onSent = fn }
}

// FrameEncoder turns capture blocks into fixed-size PCM16 frames, one frame
// per block, and hands each to a [SendFunc] immediately.
//
// Encode is meant to be installed as a capture processing callback. It never
// returns an error and never panics: send failures are counted and dropped.
// Encode must not be called concurrently; capture devices deliver ticks from a
// single goroutine.
type FrameEncoder struct {
	size   int
	send   SendFunc
	onDrop func(error)
	onSent func()

	seq     uint64
	sent    atomic.Uint64
	dropped atomic.Uint64

	warnShort sync.Once
	warnLong  sync.Once
}

// NewFrameEncoder creates an encoder producing frames of size samples.
// A non-positive size selects [DefaultFrameSize].
func NewFrameEncoder(size int, send SendFunc, opts ...EncoderOption) *FrameEncoder {
	if size <= 0 {
		size = DefaultFrameSize
	}
	e := &FrameEncoder{size: size, send: send}
	for _, o := range opts {
		o(e)
	}
	return e
}

// FrameSize returns the configured samples per frame.
func (e *FrameEncoder) FrameSize() int { return e.size }

// Encode converts block into one frame and sends it. Short blocks are padded
// with silence and long blocks are truncated so every frame has exactly
// FrameSize samples.
func (e *FrameEncoder) Encode(block []float32) {
	switch {
	case len(block) < e.size:
		e.warnShort.Do(func() {
			slog.Warn("frame encoder: short capture block, padding with silence",
				"got", len(block), "frame_size", e.size)
		})
		padded := make([]float32, e.size)
		copy(padded, block)
		block = padded
	case len(block) > e.size:
		e.warnLong.Do(func() {
			slog.Warn("frame encoder: oversized capture block, truncating",
				"got", len(block), "frame_size", e.size)
		})
		block = block[:e.size]
	}

	frame := AudioFrame{
		Data:       EncodePCM16(block),
		SampleRate: InputSampleRate,
		Channels:   1,
		Seq:        e.seq,
		Timestamp:  SamplesDuration(int(e.seq)*e.size, InputSampleRate),
	}
	e.seq++

	if err := e.deliver(frame); err != nil {
		e.dropped.Add(1)
		slog.Debug("frame encoder: frame dropped", "seq", frame.Seq, "err", err)
		if e.onDrop != nil {
			e.onDrop(err)
		}
		return
	}
	e.sent.Add(1)
	if e.onSent != nil {
		e.onSent()
	}
}

// deliver calls the send function, converting a panic into an error so the
// capture goroutine keeps ticking.
func (e *FrameEncoder) deliver(frame AudioFrame) (err error) {
	if e.send == nil {
		return fmt.Errorf("audio: no send function")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audio: send panicked: %v", r)
		}
	}()
	return e.send(frame)
}

// Stats returns the number of frames sent and dropped so far.
func (e *FrameEncoder) Stats() (sent, dropped uint64) {
	return e.sent.Load(), e.dropped.Load()
}
