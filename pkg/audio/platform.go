// Package audio defines the PCM primitives and device contracts used by the
// voice assistant.
//
// The two device abstractions are:
//
//   - [CaptureStream]: an input context at [InputSampleRate] that invokes a
//     [Processor] once per fixed-size block of microphone samples.
//   - [Output]: an output context at [OutputSampleRate] with its own clock on
//     which PCM buffers can be started at precise times.
//
// A [Platform] creates a fresh pair of these for every session; contexts are
// never reused across sessions. Concrete backends live in sub-packages
// (audio/portaudio, audio/mixer) and test doubles in audio/mock.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned (wrapped) when the capture or output device
// cannot be acquired: permission denied, no hardware, or backend missing.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// Processor receives one block of float32 samples in [-1, 1] per capture tick.
// It runs on the device's real-time goroutine and must not block.
type Processor func(block []float32)

// CaptureStream is an acquired microphone with a processing callback.
type CaptureStream interface {
	// SetProcessor installs fn as the per-tick callback. Passing nil detaches
	// the callback; once SetProcessor(nil) returns no further ticks reach the
	// previous callback.
	SetProcessor(fn Processor)

	// Close stops the device, disconnects the processing graph and releases
	// the input context. Safe to call more than once.
	Close() error
}

// Voice is one buffer started on an [Output].
type Voice interface {
	// Stop silences the voice immediately. The ended callback passed to
	// [Output.Start] is not invoked for stopped voices.
	Stop()
}

// Output is an output context with a monotonic playback clock.
type Output interface {
	// Now returns the current position of the output clock.
	Now() time.Duration

	// Start schedules samples (mono PCM16 at OutputSampleRate) to begin at
	// clock position at. ended is called once when the buffer has played out.
	Start(samples []int16, at time.Duration, ended func()) (Voice, error)

	// Close releases the output context. Safe to call more than once.
	Close() error
}

// Platform opens device contexts for one session.
type Platform interface {
	// OpenCapture acquires the microphone and returns a stream delivering
	// blocks of frameSize samples at InputSampleRate.
	OpenCapture(ctx context.Context, frameSize int) (CaptureStream, error)

	// OpenOutput creates a fresh output context at OutputSampleRate.
	OpenOutput(ctx context.Context) (Output, error)
}
