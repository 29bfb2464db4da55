package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/noor-app/noorvoice/pkg/provider/tts"
)

// ErrAllBackendsFailed is returned by [TTSFallback.Synthesize] when every
// chained backend failed or sits behind an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all synthesis backends failed")

// TTSFallback implements [tts.Provider] over a chain of backends, each behind
// its own [Breaker]. Synthesis tries the chain in order and skips backends
// whose breaker is open, so one flaky backend never blocks speech playback.
type TTSFallback struct {
	backends []synthBackend
	opts     []BreakerOption
	log      *slog.Logger
}

type synthBackend struct {
	name     string
	provider tts.Provider
	breaker  *Breaker
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a chain with primary as the preferred backend. opts
// configure the breaker guarding every backend in the chain.
func NewTTSFallback(name string, primary tts.Provider, opts ...BreakerOption) *TTSFallback {
	f := &TTSFallback{opts: opts, log: slog.Default()}
	f.AddFallback(name, primary)
	return f
}

// AddFallback appends a backend to the end of the chain.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.backends = append(f.backends, synthBackend{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(name, f.opts...),
	})
}

// Synthesize runs text through the first healthy backend in the chain.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (string, error) {
	var lastErr error
	for i := range f.backends {
		be := &f.backends[i]
		var payload string
		err := be.breaker.Call(func() error {
			var serr error
			payload, serr = be.provider.Synthesize(ctx, text, voice)
			return serr
		})
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			f.log.Debug("skipping synthesis backend, breaker open", "backend", be.name)
		} else {
			f.log.Warn("synthesis backend failed, trying next", "backend", be.name, "error", err)
		}
	}
	return "", fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// Voices advertises the primary backend's voice set. Fallbacks may differ,
// but guides are configured against the primary.
func (f *TTSFallback) Voices() []tts.VoiceProfile {
	return f.backends[0].provider.Voices()
}
