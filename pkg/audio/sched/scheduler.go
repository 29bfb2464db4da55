// Package sched implements the gapless output scheduler for synthesized
// speech chunks.
//
// The scheduler is pull-driven: the output line's render callback asks for
// interleaved float32 blocks via [Scheduler.Render], and the scheduler fills
// them from the chunks placed on its timeline. The clock is the number of
// frames rendered so far — not wall time — which makes scheduling
// deterministic under test and immune to render jitter.
//
// Placement follows a monotonic cursor: every chunk starts at
// max(cursor, clockNow) and advances the cursor by its own length. Chunks
// arriving while earlier ones still play are queued back-to-back with no gap
// and no overlap; chunks arriving after the timeline has drained start
// immediately. There is no guard against a runaway producer scheduling far
// into the future — chunks are small and sessions are short.
//
// All exported methods are safe for concurrent use.
package sched

import (
	"sync"
	"time"

	"github.com/noor-app/noorvoice/pkg/audio"
)

// Tap receives every rendered block before it reaches the output device.
// block is interleaved float32 PCM; it must not be retained after the call
// returns. Used by the visualization analyzer.
type Tap func(block []float32, channels int)

// source is one scheduled chunk on the timeline.
type source struct {
	samples []float32 // interleaved
	start   int64     // frame position on the clock at which playback begins
	frames  int64
}

// Scheduler places decoded speech chunks on a sample-accurate timeline and
// renders them back-to-back.
type Scheduler struct {
	sampleRate int
	channels   int

	mu       sync.Mutex
	clock    int64 // frames rendered since start/reset
	cursor   int64 // frame position at which the next chunk begins
	sources  []*source
	tap      Tap
	onActive func(int)
}

// New creates a Scheduler rendering at the given sample rate and channel
// count. For the live session output this is [audio.PlaybackRate] stereo.
func New(sampleRate, channels int) *Scheduler {
	return &Scheduler{
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// SetTap registers fn to observe every rendered block. Passing nil clears
// the tap.
func (s *Scheduler) SetTap(fn Tap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tap = fn
}

// SetOnActiveChange registers fn to be notified with the new source count
// whenever sources are scheduled, drain, or are stopped. Passing nil clears
// the hook. fn runs outside the scheduler lock.
func (s *Scheduler) SetOnActiveChange(fn func(active int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onActive = fn
}

// ScheduleChunk decodes a wire payload and places it on the timeline at
// max(cursor, clockNow). It returns the chunk's start position relative to
// the clock origin. A malformed payload returns a *[audio.DecodeError] and
// schedules nothing.
func (s *Scheduler) ScheduleChunk(payload string) (time.Duration, error) {
	samples, err := audio.Decode(payload, s.channels)
	if err != nil {
		return 0, err
	}
	return s.schedule(samples), nil
}

// ScheduleSamples places already-decoded interleaved samples on the timeline.
// Used by producers that decode once up front (one-shot speech playback).
func (s *Scheduler) ScheduleSamples(samples []float32) time.Duration {
	return s.schedule(samples)
}

func (s *Scheduler) schedule(samples []float32) time.Duration {
	frames := int64(len(samples) / s.channels)

	s.mu.Lock()
	start := s.cursor
	if s.clock > start {
		start = s.clock
	}
	s.sources = append(s.sources, &source{
		samples: samples,
		start:   start,
		frames:  frames,
	})
	s.cursor = start + frames
	notify, active := s.onActive, len(s.sources)
	s.mu.Unlock()

	if notify != nil {
		notify(active)
	}
	return s.framesToDuration(start)
}

// Render fills out with the next block of interleaved samples and advances
// the clock. It is called by the output line's render callback. Finished
// sources are removed as their last frame is consumed.
func (s *Scheduler) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}
	blockFrames := int64(len(out) / s.channels)

	s.mu.Lock()
	blockStart := s.clock
	before := len(s.sources)

	kept := s.sources[:0]
	for _, src := range s.sources {
		srcEnd := src.start + src.frames
		// Overlap of [blockStart, blockStart+blockFrames) with [src.start, srcEnd).
		from := max64(blockStart, src.start)
		to := min64(blockStart+blockFrames, srcEnd)
		for f := from; f < to; f++ {
			srcOff := (f - src.start) * int64(s.channels)
			outOff := (f - blockStart) * int64(s.channels)
			for c := int64(0); c < int64(s.channels); c++ {
				out[outOff+c] += src.samples[srcOff+c]
			}
		}
		if srcEnd > blockStart+blockFrames {
			kept = append(kept, src)
		}
	}
	s.sources = kept
	s.clock += blockFrames
	tap := s.tap
	var notify func(int)
	if len(kept) != before {
		notify = s.onActive
	}
	active := len(kept)
	s.mu.Unlock()

	if notify != nil {
		notify(active)
	}
	if tap != nil {
		tap(out, s.channels)
	}
}

// StopAll forcibly drops every scheduled source and resets the cursor and
// clock to zero. Safe to call multiple times and on an already-stopped
// scheduler.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	dropped := len(s.sources) > 0
	s.sources = nil
	s.cursor = 0
	s.clock = 0
	notify := s.onActive
	s.mu.Unlock()

	if dropped && notify != nil {
		notify(0)
	}
}

// Active returns the number of scheduled-but-not-finished sources.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Cursor returns the timeline position at which the next chunk would begin.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesToDuration(s.cursor)
}

// Now returns the clock position (total rendered audio) since start/reset.
func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesToDuration(s.clock)
}

func (s *Scheduler) framesToDuration(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(s.sampleRate)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
