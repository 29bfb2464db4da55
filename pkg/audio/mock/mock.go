// Package mock provides in-memory implementations of the [audio.Lines]
// device layer for tests. Output lines are pulled manually via
// [OutputLine.Pull]; input lines are fed via [InputLine.Push].
package mock

import (
	"fmt"
	"sync"

	"github.com/noor-app/noorvoice/pkg/audio"
)

// Compile-time assertion that Lines satisfies audio.Lines.
var _ audio.Lines = (*Lines)(nil)

// Lines is a fake device layer. The zero value is usable.
type Lines struct {
	// Devices is returned by OutputDevices. Defaults to a single default
	// device when empty.
	Devices []audio.DeviceInfo

	// FailOpenOutput makes OpenOutput return an error when set.
	FailOpenOutput bool

	// FailOpenInput makes OpenInput return an error when set.
	FailOpenInput bool

	mu      sync.Mutex
	outputs []*OutputLine
	inputs  []*InputLine
}

// OutputDevices returns the configured device list.
func (l *Lines) OutputDevices() ([]audio.DeviceInfo, error) {
	if len(l.Devices) == 0 {
		return []audio.DeviceInfo{{ID: 0, Name: "mock speaker", Default: true}}, nil
	}
	return l.Devices, nil
}

// OpenOutput records and returns a new fake output line.
func (l *Lines) OpenOutput(deviceID, sampleRate, channels int, render audio.RenderFunc) (audio.OutputLine, error) {
	if l.FailOpenOutput {
		return nil, fmt.Errorf("mock: output open refused")
	}
	out := &OutputLine{
		DeviceID:   deviceID,
		SampleRate: sampleRate,
		Channels:   channels,
		render:     render,
	}
	l.mu.Lock()
	l.outputs = append(l.outputs, out)
	l.mu.Unlock()
	return out, nil
}

// OpenInput records and returns a new fake input line.
func (l *Lines) OpenInput(sampleRate, frameSamples int) (audio.InputLine, error) {
	if l.FailOpenInput {
		return nil, fmt.Errorf("mock: input open refused")
	}
	in := &InputLine{
		SampleRate:   sampleRate,
		FrameSamples: frameSamples,
		frames:       make(chan audio.Frame, 64),
	}
	l.mu.Lock()
	l.inputs = append(l.inputs, in)
	l.mu.Unlock()
	return in, nil
}

// Outputs returns all output lines opened so far.
func (l *Lines) Outputs() []*OutputLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*OutputLine(nil), l.outputs...)
}

// Inputs returns all input lines opened so far.
func (l *Lines) Inputs() []*InputLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*InputLine(nil), l.inputs...)
}

// OutputLine is a fake playback line driven by the test via Pull.
type OutputLine struct {
	DeviceID   int
	SampleRate int
	Channels   int

	render audio.RenderFunc

	mu       sync.Mutex
	closed   bool
	switches []int
	closeCnt int
}

// Pull renders frames samples per channel through the line's RenderFunc and
// returns the interleaved block. Pulling a closed line returns silence.
func (o *OutputLine) Pull(frames int) []float32 {
	block := make([]float32, frames*o.Channels)
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if !closed {
		o.render(block)
	}
	return block
}

// SetDevice records the requested device switch.
func (o *OutputLine) SetDevice(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.switches = append(o.switches, id)
}

// Switches returns the device IDs requested via SetDevice.
func (o *OutputLine) Switches() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.switches...)
}

// Close marks the line closed. Idempotent.
func (o *OutputLine) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.closeCnt++
	return nil
}

// Closed reports whether Close has been called.
func (o *OutputLine) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// CloseCount returns how many times Close was called.
func (o *OutputLine) CloseCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closeCnt
}

// InputLine is a fake capture line fed by the test via Push.
type InputLine struct {
	SampleRate   int
	FrameSamples int

	mu     sync.Mutex
	closed bool
	frames chan audio.Frame
}

// Push delivers samples to the consumer as one frame.
func (i *InputLine) Push(samples []float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.frames <- audio.Frame{
		Samples:    samples,
		SampleRate: i.SampleRate,
		Channels:   1,
	}
}

// Frames returns the capture channel.
func (i *InputLine) Frames() <-chan audio.Frame { return i.frames }

// Close closes the capture channel. Idempotent.
func (i *InputLine) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	close(i.frames)
	return nil
}

// Closed reports whether Close has been called.
func (i *InputLine) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}
