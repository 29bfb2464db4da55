package player

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/youpy/go-wav"

	"github.com/noor-app/noorvoice/pkg/audio"
	"github.com/noor-app/noorvoice/pkg/audio/claim"
)

// GlobalPlayer is the persistent background media player: it plays complete
// WAV tracks (stories, recitations, ambient sound) through the playback
// device, one track at a time. Like every other producer it yields to the
// single-flight claim, so starting a live session or a message player
// silences it.
type GlobalPlayer struct {
	lines audio.Lines
	claim *claim.Coordinator
	log   *slog.Logger

	ownerID string

	mu      sync.Mutex
	out     audio.OutputLine
	samples []float32
	track   string
	pos     int
	playing bool
	closed  bool
}

// NewGlobalPlayer creates an idle player. No audio device is held until the
// first track starts.
func NewGlobalPlayer(lines audio.Lines, coord *claim.Coordinator, logger *slog.Logger) *GlobalPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &GlobalPlayer{
		lines:   lines,
		claim:   coord,
		log:     logger.With("component", "global-player"),
		ownerID: claim.NewOwnerID("global-player"),
	}
	coord.Register(p.ownerID, p.Stop)
	return p
}

// PlayWAV decodes a RIFF/WAV stream, resamples it to the playback rate, and
// starts it from the beginning, replacing whatever was playing.
func (p *GlobalPlayer) PlayWAV(track string, r io.Reader) error {
	samples, err := decodeWAV(r)
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}

	p.claim.Acquire(p.ownerID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("player: closed")
	}
	if p.out == nil {
		out, err := p.lines.OpenOutput(-1, audio.PlaybackRate, 1, p.render)
		if err != nil {
			return fmt.Errorf("player: open output: %w", err)
		}
		p.out = out
	}
	p.samples = samples
	p.track = track
	p.pos = 0
	p.playing = true
	p.log.Info("track started", "track", track)
	return nil
}

// decodeWAV reads a complete WAV stream into mono float32 samples at the
// playback rate. Multi-channel tracks are averaged down to mono.
func decodeWAV(r io.Reader) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read wav stream: %w", err)
	}
	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if format.NumChannels == 0 {
		return nil, fmt.Errorf("wav header reports zero channels")
	}

	var samples []float32
	for {
		chunk, err := reader.ReadSamples(2048)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wav samples: %w", err)
		}
		for _, s := range chunk {
			var sum float64
			for ch := uint(0); ch < uint(format.NumChannels); ch++ {
				sum += reader.FloatValue(s, ch)
			}
			samples = append(samples, float32(sum/float64(format.NumChannels)))
		}
	}

	if int(format.SampleRate) != audio.PlaybackRate {
		samples = audio.Resample(samples, int(format.SampleRate), audio.PlaybackRate)
	}
	return samples, nil
}

// Stop halts playback and forgets the position. Also invoked by the claim
// coordinator when another producer starts. Idempotent.
func (p *GlobalPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.playing = false
	p.pos = 0
	p.log.Info("track stopped", "track", p.track)
}

// NowPlaying returns the current track name, or false when idle.
func (p *GlobalPlayer) NowPlaying() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return "", false
	}
	return p.track, true
}

func (p *GlobalPlayer) render(out []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range out {
		if !p.playing || p.pos >= len(p.samples) {
			out[i] = 0
			continue
		}
		out[i] = p.samples[p.pos]
		p.pos++
	}
	if p.playing && p.pos >= len(p.samples) {
		p.playing = false
		p.pos = 0
		p.claim.Release(p.ownerID)
		p.log.Info("track finished", "track", p.track)
	}
}

// Close stops playback and releases the output line. Idempotent.
func (p *GlobalPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	out := p.out
	p.out = nil
	p.mu.Unlock()

	if out != nil {
		if err := out.Close(); err != nil {
			p.log.Warn("closing output line", "error", err)
		}
	}
	p.claim.Unregister(p.ownerID)
	return nil
}
