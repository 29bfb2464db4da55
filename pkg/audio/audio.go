// Package audio defines the PCM sample types, wire codec, and format helpers
// shared by every audio subsystem in Noorvoice.
//
// All audio inside the process is float32 PCM in [-1, 1]. On the wire, audio
// is base64-encoded little-endian int16 mono PCM with no framing metadata —
// the sample rate is fixed by convention per direction: capture is sent at
// [CaptureRate], synthesized speech arrives at [PlaybackRate].
package audio

import "time"

const (
	// CaptureRate is the sample rate of the microphone capture path in Hz.
	CaptureRate = 16000

	// PlaybackRate is the sample rate of the synthesized speech output path in Hz.
	PlaybackRate = 24000

	// FrameSamples is the number of samples per capture frame. At [CaptureRate]
	// one frame covers 256 ms of audio.
	FrameSamples = 4096
)

// Frame is a single chunk of PCM samples flowing through the pipeline.
// Frames are ephemeral: captured, encoded, sent, and discarded.
type Frame struct {
	// Samples holds interleaved float32 PCM in [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo output.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := len(f.Samples) / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}
