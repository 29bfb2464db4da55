// Package live defines the Provider interface for real-time bidirectional
// speech sessions.
//
// A live provider wraps a voice AI service that accepts streamed microphone
// audio and returns synthesized speech incrementally over one stateful,
// long-lived connection. The central abstraction is SessionHandle: a
// multiplexed handle carrying outbound capture payloads and inbound audio
// chunks plus transcript fragments.
//
// Wire format on both directions is base64 little-endian int16 mono PCM;
// capture is sent at [audio.CaptureRate], synthesized speech arrives at
// [audio.PlaybackRate]. There is no framing metadata and no sequence
// numbering — chunk order is whatever the transport delivers.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"

	"github.com/noor-app/noorvoice/pkg/provider/tts"
)

// SessionConfig is the configuration for a new live session.
type SessionConfig struct {
	// Instructions is the system-level prompt defining the guide persona's
	// personality and behavioural constraints.
	Instructions string

	// Voice selects the synthesized voice for the session.
	Voice tts.VoiceProfile

	// Transcription requests that the provider emit text fragments of the
	// model's spoken output on the Transcripts channel.
	Transcription bool
}

// SessionHandle represents an open live session.
//
// The session is the hot path of the voice pipeline — every method must
// return quickly. Inbound audio is channel-based so the receive loop never
// blocks the caller. Callers must call Close when the session is no longer
// needed; Close is idempotent.
type SessionHandle interface {
	// SendAudio delivers one encoded capture payload (base64 16 kHz mono
	// PCM) to the provider. Returns an error if the session is closed or the
	// transport cannot accept the payload.
	SendAudio(payload string) error

	// Audio returns the channel emitting synthesized speech payloads
	// (base64 24 kHz mono PCM) in arrival order. The channel is closed when
	// the session ends; check [SessionHandle.Err] afterwards to distinguish
	// a clean close from a transport failure. Consumers must drain promptly.
	Audio() <-chan string

	// Transcripts returns the channel emitting text fragments of the
	// model's spoken output. Closed together with Audio. Empty when
	// [SessionConfig.Transcription] was false.
	Transcripts() <-chan string

	// Err returns the error that ended the session prematurely, or nil
	// after a clean close.
	Err() error

	// Close terminates the session and closes both channels. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live speech backend.
type Provider interface {
	// Connect establishes a new session and completes the remote handshake.
	// The returned handle is ready to accept audio. Cancelling ctx aborts an
	// in-flight handshake. The caller owns the handle and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Voices lists the voice profiles this provider can synthesize.
	Voices() []tts.VoiceProfile
}
