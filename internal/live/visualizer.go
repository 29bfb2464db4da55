package live

import (
	"context"
	"math"
	"math/cmplx"
	"sync"
	"time"
)

// Visualization parameters. The analysis window is 256 samples, giving 128
// frequency bins, which are block-averaged down to 16 display bands.
const (
	fftSize   = 256
	binCount  = fftSize / 2
	BandCount = 16

	// Magnitudes are mapped to a 0..255 byte scale between these dB bounds
	// before averaging, and the overall level is the average byte magnitude
	// divided by 50, clamped to 1. Speaking is level above SpeakingThreshold.
	minDecibels = -100.0
	maxDecibels = -30.0
	smoothing   = 0.8

	levelDivisor      = 50.0
	SpeakingThreshold = 0.1

	// SampleInterval approximates a display refresh cadence.
	SampleInterval = 33 * time.Millisecond
)

// VizFrame is one visualization sample: per-band magnitudes in [0,1], an
// overall level in [0,1], and whether the output is currently audible speech.
type VizFrame struct {
	Bands    [BandCount]float32 `json:"bands"`
	Level    float32            `json:"level"`
	Speaking bool               `json:"speaking"`
}

// Visualizer derives frequency-magnitude frames from the output audio graph.
// Feed is intended to be installed as the output scheduler's tap; Sample can
// then be called on any cadence to read the current spectrum.
type Visualizer struct {
	mu     sync.Mutex
	ring   [fftSize]float32
	pos    int
	smooth [binCount]float64

	window  [fftSize]float64
	twiddle []complex128
}

// NewVisualizer creates a Visualizer with an empty analysis window.
func NewVisualizer() *Visualizer {
	v := &Visualizer{}
	for i := range v.window {
		// Hann window, applied before the transform.
		v.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	v.twiddle = make([]complex128, fftSize/2)
	for i := range v.twiddle {
		angle := -2 * math.Pi * float64(i) / float64(fftSize)
		v.twiddle[i] = cmplx.Rect(1, angle)
	}
	return v
}

// Feed appends rendered output samples to the analysis ring. Multi-channel
// blocks are averaged down to mono. Matches the sched.Tap signature.
func (v *Visualizer) Feed(block []float32, channels int) {
	if channels < 1 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := 0; i+channels <= len(block); i += channels {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += block[i+c]
		}
		v.ring[v.pos] = sum / float32(channels)
		v.pos = (v.pos + 1) % fftSize
	}
}

// Sample computes the current visualization frame from the analysis ring.
func (v *Visualizer) Sample() VizFrame {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Copy the ring in time order, oldest sample first, applying the window.
	buf := make([]complex128, fftSize)
	for i := 0; i < fftSize; i++ {
		s := v.ring[(v.pos+i)%fftSize]
		buf[i] = complex(float64(s)*v.window[i], 0)
	}

	v.fft(buf)

	// Convert bin magnitudes to the byte scale used for band and level math,
	// with exponential smoothing across successive samples.
	var bytes [binCount]float64
	for i := 0; i < binCount; i++ {
		mag := cmplx.Abs(buf[i]) / float64(fftSize)
		v.smooth[i] = smoothing*v.smooth[i] + (1-smoothing)*mag

		db := minDecibels
		if v.smooth[i] > 0 {
			db = 20 * math.Log10(v.smooth[i])
		}
		scaled := (db - minDecibels) / (maxDecibels - minDecibels) * 255
		bytes[i] = math.Max(0, math.Min(255, scaled))
	}

	var frame VizFrame
	const binsPerBand = binCount / BandCount
	var total float64
	for b := 0; b < BandCount; b++ {
		var sum float64
		for i := b * binsPerBand; i < (b+1)*binsPerBand; i++ {
			sum += bytes[i]
		}
		frame.Bands[b] = float32(sum / binsPerBand / 255)
	}
	for i := 0; i < binCount; i++ {
		total += bytes[i]
	}
	level := total / binCount / levelDivisor
	if level > 1 {
		level = 1
	}
	frame.Level = float32(level)
	frame.Speaking = frame.Level > SpeakingThreshold
	return frame
}

// fft performs an in-place iterative radix-2 transform of buf.
func (v *Visualizer) fft(buf []complex128) {
	n := len(buf)

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := v.twiddle[k*step]
				even := buf[start+k]
				odd := buf[start+k+half] * w
				buf[start+k] = even + odd
				buf[start+k+half] = even - odd
			}
		}
	}
}

// Run samples on a fixed cadence until ctx is cancelled, delivering each
// frame to fn. It is the periodic task behind the on-screen animation; the
// controller starts it on entering the active state and cancels it on exit.
func (v *Visualizer) Run(ctx context.Context, interval time.Duration, fn func(VizFrame)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(v.Sample())
		}
	}
}
