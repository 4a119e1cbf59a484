package audio

import "time"

const (
	// InputSampleRate is the capture rate expected by the remote model endpoint.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of the model's synthesised audio.
	OutputSampleRate = 24000

	// DefaultFrameSize is the number of samples captured per processing tick.
	DefaultFrameSize = 4096

	// InputMIMEType labels outbound frames on the wire.
	InputMIMEType = "audio/pcm;rate=16000"
)

// AudioFrame is one fixed-length buffer of 16-bit signed little-endian PCM
// produced from a single capture tick. Frames are sent once and then dropped;
// nothing downstream retains them.
type AudioFrame struct {
	// Data holds the PCM16 samples, two bytes per sample.
	Data []byte

	// SampleRate in Hz. Always [InputSampleRate] for captured audio.
	SampleRate int

	// Channels is 1: the pipeline is mono end to end.
	Channels int

	// Seq is the zero-based index of this frame within its capture stream.
	Seq uint64

	// Timestamp is the stream-relative capture time of the first sample.
	Timestamp time.Duration
}

// Samples returns the number of PCM16 samples in the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return len(f.Data) / 2
	}
	return len(f.Data) / 2 / f.Channels
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SamplesDuration converts a sample count at rate into wall-clock duration.
func SamplesDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(samples) * int64(time.Second) / int64(rate))
}

// DurationSamples is the inverse of [SamplesDuration], rounding down.
func DurationSamples(d time.Duration, rate int) int64 {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int64(d) * int64(rate) / int64(time.Second)
}
