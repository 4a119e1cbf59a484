// Package mock provides in-memory implementations of [audio.Platform],
// [audio.CaptureStream] and [audio.Output] for unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and ordering, and expose exported fields
// that control return values.
//
// Typical usage:
//
//	j := &mock.Journal{}
//	p := &mock.Platform{Journal: j}
//	stream, _ := p.OpenCapture(ctx, 4096)
//	stream.SetProcessor(enc.Encode)
//	p.LastCapture().Tick(samples) // drives one processing tick
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

var (
	_ audio.Platform      = (*Platform)(nil)
	_ audio.CaptureStream = (*CaptureStream)(nil)
	_ audio.Output        = (*Output)(nil)
	_ audio.Voice         = (*Voice)(nil)
)

// ─── Journal ──────────────────────────────────────────────────────────────────

// Journal is a shared, ordered log of device operations across mocks. Tests
// use it to assert teardown ordering.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry. A nil Journal ignores the call.
func (j *Journal) Add(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (j *Journal) Entries() []string {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

// Index returns the position of the first entry equal to s, or -1.
func (j *Journal) Index(s string) int {
	return slices.Index(j.Entries(), s)
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock [audio.Platform]. Every Open call creates a fresh mock
// context so that tests can check contexts are not reused across sessions.
type Platform struct {
	mu sync.Mutex

	// CaptureErr is returned by OpenCapture when non-nil.
	CaptureErr error

	// OutputErr is returned by OpenOutput when non-nil.
	OutputErr error

	// Journal, when set, is shared with every context created.
	Journal *Journal

	// OpenCaptureCalls records the frame size of every OpenCapture call.
	OpenCaptureCalls []int

	// OpenOutputCalls counts OpenOutput calls.
	OpenOutputCalls int

	captures []*CaptureStream
	outputs  []*Output
}

// OpenCapture implements [audio.Platform].
func (p *Platform) OpenCapture(_ context.Context, frameSize int) (audio.CaptureStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCaptureCalls = append(p.OpenCaptureCalls, frameSize)
	p.Journal.Add("capture.open")
	if p.CaptureErr != nil {
		return nil, p.CaptureErr
	}
	c := &CaptureStream{FrameSize: frameSize, Journal: p.Journal}
	p.captures = append(p.captures, c)
	return c, nil
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(_ context.Context) (audio.Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenOutputCalls++
	p.Journal.Add("output.open")
	if p.OutputErr != nil {
		return nil, p.OutputErr
	}
	o := &Output{Journal: p.Journal}
	p.outputs = append(p.outputs, o)
	return o, nil
}

// LastCapture returns the most recently opened capture stream, or nil.
func (p *Platform) LastCapture() *CaptureStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.captures) == 0 {
		return nil
	}
	return p.captures[len(p.captures)-1]
}

// LastOutput returns the most recently opened output context, or nil.
func (p *Platform) LastOutput() *Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.outputs) == 0 {
		return nil
	}
	return p.outputs[len(p.outputs)-1]
}

// Outputs returns every output context opened so far.
func (p *Platform) Outputs() []*Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.outputs)
}

// ─── CaptureStream ────────────────────────────────────────────────────────────

// CaptureStream is a mock [audio.CaptureStream] driven manually via Tick.
type CaptureStream struct {
	mu sync.Mutex

	// FrameSize is the size requested at open time.
	FrameSize int

	// CloseErr is returned by Close.
	CloseErr error

	// Journal receives "capture.detach", "capture.attach" and "capture.close".
	Journal *Journal

	// SetProcessorCalls records, per call, whether a non-nil processor was set.
	SetProcessorCalls []bool

	// CloseCallCount counts Close calls.
	CloseCallCount int

	proc   audio.Processor
	closed bool
}

// SetProcessor implements [audio.CaptureStream].
func (c *CaptureStream) SetProcessor(fn audio.Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetProcessorCalls = append(c.SetProcessorCalls, fn != nil)
	if fn == nil {
		c.Journal.Add("capture.detach")
	} else {
		c.Journal.Add("capture.attach")
	}
	c.proc = fn
}

// Close implements [audio.CaptureStream].
func (c *CaptureStream) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	c.Journal.Add("capture.close")
	c.closed = true
	return c.CloseErr
}

// Tick delivers block to the installed processor, as a device tick would.
// It reports whether a processor was installed and the stream still open.
func (c *CaptureStream) Tick(block []float32) bool {
	c.mu.Lock()
	proc := c.proc
	closed := c.closed
	c.mu.Unlock()
	if proc == nil || closed {
		return false
	}
	proc(block)
	return true
}

// Closed reports whether Close has been called.
func (c *CaptureStream) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Started records one [Output.Start] call.
type Started struct {
	Samples []int16
	At      time.Duration
	Stopped bool
	Ended   bool

	ended func()
}

// Output is a mock [audio.Output] with a manually driven clock.
type Output struct {
	mu sync.Mutex

	// StartErr is returned by Start when non-nil.
	StartErr error

	// Journal receives "output.close" and "voice.stop".
	Journal *Journal

	// CloseCallCount counts Close calls.
	CloseCallCount int

	now     time.Duration
	started []*Started
}

// Now implements [audio.Output].
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// SetNow moves the output clock to d.
func (o *Output) SetNow(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = d
}

// Advance moves the output clock forward by d.
func (o *Output) Advance(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += d
}

// Start implements [audio.Output].
func (o *Output) Start(samples []int16, at time.Duration, ended func()) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.StartErr != nil {
		return nil, o.StartErr
	}
	o.started = append(o.started, &Started{Samples: samples, At: at, ended: ended})
	return &Voice{out: o, idx: len(o.started) - 1}, nil
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CloseCallCount++
	o.Journal.Add("output.close")
	return nil
}

// Started returns copies of all Start calls in order.
func (o *Output) Started() []Started {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Started, len(o.started))
	for i, s := range o.started {
		out[i] = *s
	}
	return out
}

// Finish simulates natural completion of the i-th started buffer.
func (o *Output) Finish(i int) error {
	o.mu.Lock()
	if i < 0 || i >= len(o.started) {
		o.mu.Unlock()
		return fmt.Errorf("mock output: no started buffer %d", i)
	}
	s := o.started[i]
	if s.Stopped || s.Ended {
		o.mu.Unlock()
		return nil
	}
	s.Ended = true
	ended := s.ended
	o.mu.Unlock()
	if ended != nil {
		ended()
	}
	return nil
}

// Voice is the handle returned by [Output.Start].
type Voice struct {
	out *Output
	idx int
}

// Stop implements [audio.Voice].
func (v *Voice) Stop() {
	v.out.mu.Lock()
	defer v.out.mu.Unlock()
	v.out.started[v.idx].Stopped = true
	v.out.Journal.Add("voice.stop")
}
