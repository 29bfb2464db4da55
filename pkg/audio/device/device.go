// Package device implements the [audio.Lines] interface on top of PortAudio.
//
// PortAudio global state is reference-counted: every [Host] created with
// [Open] holds one reference, released by [Host.Close]. Lines opened from a
// Host must be closed before the Host itself.
package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/noor-app/noorvoice/pkg/audio"
)

// Compile-time assertion that Host satisfies audio.Lines.
var _ audio.Lines = (*Host)(nil)

var (
	initMu    sync.Mutex
	initCount int
)

func acquireHost() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initCount == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("device: initialize portaudio: %w", err)
		}
	}
	initCount++
	return nil
}

func releaseHost() {
	initMu.Lock()
	defer initMu.Unlock()
	if initCount == 0 {
		return
	}
	initCount--
	if initCount == 0 {
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("device: portaudio terminate failed", "err", err)
		}
	}
}

// Host is the PortAudio-backed device layer.
type Host struct {
	closeOnce sync.Once
}

// Open initializes PortAudio (if needed) and returns a Host.
// Call [Host.Close] to release the reference.
func Open() (*Host, error) {
	if err := acquireHost(); err != nil {
		return nil, err
	}
	return &Host{}, nil
}

// Close releases the Host's PortAudio reference. Idempotent.
func (h *Host) Close() error {
	h.closeOnce.Do(releaseHost)
	return nil
}

// OutputDevices re-enumerates the available output devices.
func (h *Host) OutputDevices() ([]audio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}
	def, _ := portaudio.DefaultOutputDevice()

	var out []audio.DeviceInfo
	for i, d := range devices {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		out = append(out, audio.DeviceInfo{
			ID:      i,
			Name:    d.Name,
			Default: def != nil && d == def,
		})
	}
	return out, nil
}

// OpenOutput opens a playback line on deviceID (negative means host default)
// and starts pulling audio from render.
func (h *Host) OpenOutput(deviceID, sampleRate, channels int, render audio.RenderFunc) (audio.OutputLine, error) {
	line := &outputLine{
		sampleRate: sampleRate,
		channels:   channels,
		render:     render,
	}
	if err := line.open(deviceID); err != nil {
		return nil, err
	}
	return line, nil
}

// outputLine is a running playback stream. SetDevice swaps the underlying
// stream without interrupting the render source.
type outputLine struct {
	sampleRate int
	channels   int
	render     audio.RenderFunc

	mu     sync.Mutex
	stream *portaudio.Stream
	closed bool
}

func (l *outputLine) open(deviceID int) error {
	stream, err := openOutputStream(deviceID, l.sampleRate, l.channels, func(out []float32) {
		l.render(out)
	})
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("device: start output stream: %w", err)
	}

	l.mu.Lock()
	old := l.stream
	l.stream = stream
	l.mu.Unlock()

	if old != nil {
		_ = old.Stop()
		old.Close()
	}
	return nil
}

func openOutputStream(deviceID, sampleRate, channels int, cb func([]float32)) (*portaudio.Stream, error) {
	if deviceID < 0 {
		stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), 0, cb)
		if err != nil {
			return nil, fmt.Errorf("device: open default output: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}
	if deviceID >= len(devices) {
		return nil, fmt.Errorf("device: no output device with id %d", deviceID)
	}
	params := portaudio.HighLatencyParameters(nil, devices[deviceID])
	params.Output.Channels = channels
	params.SampleRate = float64(sampleRate)
	stream, err := portaudio.OpenStream(params, cb)
	if err != nil {
		return nil, fmt.Errorf("device: open output %q: %w", devices[deviceID].Name, err)
	}
	return stream, nil
}

// SetDevice retargets playback to the given device. Failures leave the
// previous device playing and are logged, not returned — runtime output
// switching is best-effort.
func (l *outputLine) SetDevice(id int) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}

	if err := l.open(id); err != nil {
		slog.Warn("device: output switch unavailable, keeping current device",
			"device_id", id,
			"err", err,
		)
	}
}

// Close stops playback and releases the device. Idempotent.
func (l *outputLine) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	stream := l.stream
	l.stream = nil
	l.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
		stream.Close()
	}
	return nil
}

// OpenInput opens a mono capture line delivering fixed-size frames.
func (h *Host) OpenInput(sampleRate, frameSamples int) (audio.InputLine, error) {
	line := &inputLine{
		frames:     make(chan audio.Frame, 8),
		sampleRate: sampleRate,
		pending:    make([]float32, 0, frameSamples),
		frameSize:  frameSamples,
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), 0, line.onCapture)
	if err != nil {
		return nil, fmt.Errorf("device: open input: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: start input stream: %w", err)
	}
	line.stream = stream
	return line, nil
}

type inputLine struct {
	stream     *portaudio.Stream
	frames     chan audio.Frame
	sampleRate int
	frameSize  int

	mu       sync.Mutex
	pending  []float32
	captured int64
	closed   bool
}

// onCapture runs on the audio thread: it accumulates device buffers into
// fixed-size frames and hands each full frame off without blocking. A slow
// consumer drops frames rather than stalling capture.
func (l *inputLine) onCapture(in []float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.pending = append(l.pending, in...)
	for len(l.pending) >= l.frameSize {
		samples := make([]float32, l.frameSize)
		copy(samples, l.pending)
		l.pending = l.pending[:copy(l.pending, l.pending[l.frameSize:])]

		frame := audio.Frame{
			Samples:    samples,
			SampleRate: l.sampleRate,
			Channels:   1,
			Timestamp:  time.Duration(l.captured) * time.Second / time.Duration(l.sampleRate),
		}
		l.captured += int64(l.frameSize)

		select {
		case l.frames <- frame:
		default:
			slog.Warn("device: capture consumer behind, dropping frame")
		}
	}
}

func (l *inputLine) Frames() <-chan audio.Frame { return l.frames }

// Close stops capture, releases the microphone, and closes the frame
// channel. Idempotent.
func (l *inputLine) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	_ = l.stream.Stop()
	l.stream.Close()
	close(l.frames)
	return nil
}
