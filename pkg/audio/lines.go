package audio

// RenderFunc fills out with the next block of interleaved float32 samples.
// It is called from the output line's render goroutine or device callback and
// must not block.
type RenderFunc func(out []float32)

// DeviceInfo describes one audio output device known to the host.
type DeviceInfo struct {
	// ID is the host-specific device index.
	ID int

	// Name is the human-readable device name.
	Name string

	// Default reports whether this is the host's default output device.
	Default bool
}

// OutputLine is an open playback route to a speaker device. The line pulls
// audio from the RenderFunc it was opened with.
//
// Implementations must be safe for concurrent use.
type OutputLine interface {
	// SetDevice retargets the line to the given output device if the host
	// supports switching. When switching is unsupported or fails, the line
	// keeps playing on the previous device; the failure is logged, never
	// returned.
	SetDevice(id int)

	// Close stops playback and releases the device. Safe to call more than
	// once; subsequent calls are no-ops and return nil.
	Close() error
}

// InputLine is an open microphone capture route. Frames arrive on the
// channel returned by Frames until the line is closed.
type InputLine interface {
	// Frames returns the channel delivering capture frames in capture order.
	// The channel is closed when the line is closed. Frames are dropped, not
	// queued unboundedly, when the consumer falls behind.
	Frames() <-chan Frame

	// Close stops capture, releases the microphone, and closes the Frames
	// channel. Safe to call more than once.
	Close() error
}

// Lines is the host audio-device layer: it opens capture and playback lines
// and enumerates output devices. The portaudio-backed implementation lives in
// the device subpackage; tests use the mock subpackage.
type Lines interface {
	// OpenOutput opens a playback line on the given device (negative id means
	// the host default) at the given format, pulling audio from render.
	OpenOutput(deviceID, sampleRate, channels int, render RenderFunc) (OutputLine, error)

	// OpenInput opens a mono capture line at the given rate, delivering
	// frames of frameSamples samples each.
	OpenInput(sampleRate, frameSamples int) (InputLine, error)

	// OutputDevices re-enumerates the available output devices. Call again
	// after a device-change event to pick up hot-plugged hardware.
	OutputDevices() ([]DeviceInfo, error)
}
