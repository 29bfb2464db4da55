// Package player implements the non-live playback paths: per-message inline
// players, the global media player, and one-shot synthesized speech. All of
// them render through the shared device layer and participate in the
// single-flight audio claim.
package player

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/noor-app/noorvoice/pkg/audio"
	"github.com/noor-app/noorvoice/pkg/audio/claim"
)

// playbackRates is the cycling rate control: 1x, 1.5x, 2x, back to 1x.
var playbackRates = []float64{1, 1.5, 2}

// MessagePlayer plays one complete audio clip attached to a chat message.
// The payload is decoded exactly once at construction; every Play renders
// from the retained buffer, so replays and seeks never touch the codec
// again.
type MessagePlayer struct {
	lines audio.Lines
	claim *claim.Coordinator
	log   *slog.Logger

	ownerID string
	samples []float32

	mu      sync.Mutex
	out     audio.OutputLine
	pos     float64
	rateIdx int
	playing bool
	closed  bool
}

// NewMessagePlayer decodes payload (base64 24 kHz mono PCM) and prepares a
// player for it. The returned player holds no audio device until first Play.
func NewMessagePlayer(payload string, lines audio.Lines, coord *claim.Coordinator, logger *slog.Logger) (*MessagePlayer, error) {
	samples, err := audio.Decode(payload, 1)
	if err != nil {
		return nil, fmt.Errorf("player: decode message audio: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &MessagePlayer{
		lines:   lines,
		claim:   coord,
		log:     logger.With("component", "message-player"),
		ownerID: claim.NewOwnerID("message-player"),
		samples: samples,
	}
	coord.Register(p.ownerID, p.Pause)
	return p, nil
}

// Play starts or resumes playback from the current position, silencing every
// other audio producer first. Playing an already-playing player is a no-op.
func (p *MessagePlayer) Play() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("player: closed")
	}
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

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
	if p.pos >= float64(len(p.samples)) {
		p.pos = 0
	}
	p.playing = true
	return nil
}

// Pause stops rendering without losing the position. Also invoked by the
// claim coordinator when another producer starts.
func (p *MessagePlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// Playing reports whether the player is currently audible.
func (p *MessagePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SeekFraction moves the position to fraction of the clip duration, clamped
// to [0,1]. Seeking works both while playing and while paused.
func (p *MessagePlayer) SeekFraction(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	p.mu.Lock()
	p.pos = fraction * float64(len(p.samples))
	p.mu.Unlock()
}

// CycleRate advances to the next playback rate and returns it.
func (p *MessagePlayer) CycleRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateIdx = (p.rateIdx + 1) % len(playbackRates)
	return playbackRates[p.rateIdx]
}

// Rate returns the current playback rate.
func (p *MessagePlayer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return playbackRates[p.rateIdx]
}

// Position returns the current playback position.
func (p *MessagePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.pos / audio.PlaybackRate * float64(time.Second))
}

// Duration returns the clip length.
func (p *MessagePlayer) Duration() time.Duration {
	return time.Duration(float64(len(p.samples)) / audio.PlaybackRate * float64(time.Second))
}

// render fills out from the retained buffer, stepping by the playback rate
// with linear interpolation between samples. When the clip ends, playback
// stops and the position rewinds so the next Play starts from the top.
func (p *MessagePlayer) render(out []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := playbackRates[p.rateIdx]
	n := float64(len(p.samples))
	for i := range out {
		if !p.playing || p.pos >= n {
			out[i] = 0
			continue
		}
		idx := int(p.pos)
		s := p.samples[idx]
		if frac := float32(p.pos - float64(idx)); idx+1 < len(p.samples) && frac > 0 {
			s = s*(1-frac) + p.samples[idx+1]*frac
		}
		out[i] = s
		p.pos += step
	}
	if p.playing && p.pos >= n {
		p.playing = false
		p.pos = 0
		p.claim.Release(p.ownerID)
	}
}

// Close stops playback and releases the output line. Idempotent.
func (p *MessagePlayer) Close() error {
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
