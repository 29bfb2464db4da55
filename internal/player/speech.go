package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/noor-app/noorvoice/internal/observe"
	"github.com/noor-app/noorvoice/pkg/audio"
	"github.com/noor-app/noorvoice/pkg/audio/claim"
	"github.com/noor-app/noorvoice/pkg/provider/tts"
)

// SpeechPlayer reads a chat message aloud: it synthesizes the text through a
// TTS provider (normally wrapped in a resilience fallback) and plays the
// resulting clip. One utterance at a time; a new Speak replaces the current
// one.
type SpeechPlayer struct {
	tts     tts.Provider
	lines   audio.Lines
	claim   *claim.Coordinator
	metrics *observe.Metrics
	log     *slog.Logger

	ownerID string

	mu      sync.Mutex
	out     audio.OutputLine
	samples []float32
	pos     int
	playing bool
	closed  bool
}

// NewSpeechPlayer creates an idle speech player backed by provider.
func NewSpeechPlayer(provider tts.Provider, lines audio.Lines, coord *claim.Coordinator, metrics *observe.Metrics, logger *slog.Logger) *SpeechPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	p := &SpeechPlayer{
		tts:     provider,
		lines:   lines,
		claim:   coord,
		metrics: metrics,
		log:     logger.With("component", "speech-player"),
		ownerID: claim.NewOwnerID("speech-player"),
	}
	coord.Register(p.ownerID, p.Stop)
	return p
}

// Speak synthesizes text with the given voice and plays it from the start,
// replacing any utterance still in progress. Blocks until synthesis
// completes; playback then proceeds asynchronously on the output line.
func (p *SpeechPlayer) Speak(ctx context.Context, text string, voice tts.VoiceProfile) error {
	start := time.Now()
	payload, err := p.tts.Synthesize(ctx, text, voice)
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, voice.Provider, "tts")
		return fmt.Errorf("player: synthesize: %w", err)
	}

	samples, err := audio.Decode(payload, 1)
	if err != nil {
		return fmt.Errorf("player: decode synthesized audio: %w", err)
	}

	p.claim.Acquire(p.ownerID)
	p.metrics.RecordClaimHandoff(ctx, "speech-player")

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
	p.pos = 0
	p.playing = true
	return nil
}

// Stop halts the current utterance. Also invoked by the claim coordinator
// when another producer starts. Idempotent.
func (p *SpeechPlayer) Stop() {
	p.mu.Lock()
	p.playing = false
	p.pos = 0
	p.mu.Unlock()
}

// Playing reports whether an utterance is currently audible.
func (p *SpeechPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *SpeechPlayer) render(out []float32) {
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
	}
}

// Close stops playback and releases the output line. Idempotent.
func (p *SpeechPlayer) Close() error {
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
