// Package null implements a device-free [audio.Platform] paced by the wall
// clock. Capture delivers silence; output renders into nothing. It lets the
// server run on hosts without sound hardware.
package null

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/audio/mixer"
)

var (
	_ audio.Platform      = (*Platform)(nil)
	_ audio.CaptureStream = (*capture)(nil)
	_ audio.Output        = (*output)(nil)
)

// Platform is a silent [audio.Platform]. The zero value is ready to use.
type Platform struct{}

// OpenCapture implements [audio.Platform]. The stream delivers one block of
// silence every frameSize samples of wall time.
func (Platform) OpenCapture(ctx context.Context, frameSize int) (audio.CaptureStream, error) {
	if frameSize <= 0 {
		frameSize = audio.DefaultFrameSize
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &capture{cancel: cancel, done: make(chan struct{})}
	go c.loop(loopCtx, frameSize)
	return c, nil
}

// OpenOutput implements [audio.Platform].
func (Platform) OpenOutput(ctx context.Context) (audio.Output, error) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o := &output{
		Timeline: mixer.NewTimeline(audio.OutputSampleRate),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(o.done)
		err := o.Drive(loopCtx, mixer.DefaultBlockSize, nil)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("null audio: output loop stopped", "err", err)
		}
	}()
	return o, nil
}

type capture struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	proc      audio.Processor
	closeOnce sync.Once
}

func (c *capture) loop(ctx context.Context, frameSize int) {
	defer close(c.done)
	tick := time.NewTicker(audio.SamplesDuration(frameSize, audio.InputSampleRate))
	defer tick.Stop()
	block := make([]float32, frameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		c.mu.Lock()
		if c.proc != nil {
			c.proc(block)
		}
		c.mu.Unlock()
	}
}

// SetProcessor implements [audio.CaptureStream]. It holds the lock the tick
// loop holds while calling the processor, so no tick reaches fn after
// SetProcessor(nil) returns.
func (c *capture) SetProcessor(fn audio.Processor) {
	c.mu.Lock()
	c.proc = fn
	c.mu.Unlock()
}

func (c *capture) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

type output struct {
	*mixer.Timeline
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (o *output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		err = o.Timeline.Close()
		o.cancel()
		<-o.done
	})
	return err
}
