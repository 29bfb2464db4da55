// Package tts defines the Provider interface for one-shot speech synthesis.
//
// A TTS provider turns a complete text into a complete synthesized utterance
// in a single request — this is the "listen to this message" path, unrelated
// to the live session. The result is a wire-format audio payload: base64
// little-endian int16 mono PCM at [audio.PlaybackRate].
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile describes one synthesized voice offered by a provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "Fenrir").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which backend this voice belongs to.
	Provider string
}

// Provider is the abstraction over any one-shot TTS backend.
type Provider interface {
	// Synthesize turns text into a complete utterance spoken by voice and
	// returns the base64-encoded 24 kHz mono PCM payload. Empty text returns
	// an empty payload without calling the backend.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (string, error)

	// Voices returns the voice profiles available from this provider. The
	// list is assumed constant for the lifetime of the Provider instance.
	Voices() []VoiceProfile
}
