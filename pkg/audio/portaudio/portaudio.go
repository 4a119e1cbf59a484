//go:build portaudio

// Package portaudio implements [audio.Platform] on the host's default
// PortAudio devices.
//
// Capture opens a fresh mono stream at [audio.InputSampleRate] per session and
// runs a blocking read loop that hands each filled block to the installed
// processor. Output opens a mono stream at [audio.OutputSampleRate] and drives
// a [mixer.Timeline] into it, so the output clock advances exactly with the
// samples written to the device.
//
// Build with -tags portaudio; the PortAudio C library must be installed.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/audio/mixer"
)

var (
	_ audio.Platform      = (*Platform)(nil)
	_ audio.CaptureStream = (*captureStream)(nil)
	_ audio.Output        = (*output)(nil)
)

// Platform is a PortAudio-backed [audio.Platform]. Create it with [New] and
// release it with [Platform.Close] once every stream is closed.
type Platform struct {
	mu     sync.Mutex
	closed bool
}

// New initialises the PortAudio library.
func New() (*Platform, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Platform{}, nil
}

// Close terminates the PortAudio library. Close is idempotent.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return portaudio.Terminate()
}

// OpenCapture implements [audio.Platform]. Any failure to open or start the
// default input device is reported as [audio.ErrDeviceUnavailable].
func (p *Platform) OpenCapture(ctx context.Context, frameSize int) (audio.CaptureStream, error) {
	if frameSize <= 0 {
		frameSize = audio.DefaultFrameSize
	}
	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(audio.InputSampleRate), frameSize, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open input stream: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: start input stream: %v", audio.ErrDeviceUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &captureStream{
		stream: stream,
		buf:    buf,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(loopCtx)
	return c, nil
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(ctx context.Context) (audio.Output, error) {
	buf := make([]int16, mixer.DefaultBlockSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(audio.OutputSampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open output stream: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: start output stream: %v", audio.ErrDeviceUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o := &output{
		Timeline: mixer.NewTimeline(audio.OutputSampleRate),
		stream:   stream,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(o.done)
		err := o.Drive(loopCtx, len(buf), func(block []int16) error {
			copy(buf, block)
			return stream.Write()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("portaudio: output loop stopped", "err", err)
		}
	}()
	return o, nil
}

// ── Capture ──────────────────────────────────────────────────────────────────

type captureStream struct {
	stream *portaudio.Stream
	buf    []float32
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	proc      audio.Processor
	closeOnce sync.Once
	closeErr  error
}

func (c *captureStream) SetProcessor(fn audio.Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proc = fn
}

func (c *captureStream) readLoop(ctx context.Context) {
	defer close(c.done)
	for ctx.Err() == nil {
		if err := c.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			slog.Debug("portaudio: capture read failed", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		c.mu.Lock()
		proc := c.proc
		c.mu.Unlock()
		if proc != nil {
			proc(c.buf)
		}
	}
}

// Close stops the device and waits for the read loop to exit.
func (c *captureStream) Close() error {
	c.closeOnce.Do(func() {
		c.SetProcessor(nil)

		c.cancel()
		c.closeErr = errors.Join(c.stream.Stop(), c.stream.Close())
		<-c.done
	})
	return c.closeErr
}

// ── Output ───────────────────────────────────────────────────────────────────

type output struct {
	*mixer.Timeline

	stream    *portaudio.Stream
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Close silences every voice, stops the drive loop and releases the device.
func (o *output) Close() error {
	o.closeOnce.Do(func() {
		_ = o.Timeline.Close()
		o.cancel()
		<-o.done
		o.closeErr = errors.Join(o.stream.Stop(), o.stream.Close())
	})
	return o.closeErr
}
