// Package types defines the message payload kinds exchanged between the
// daemon and its clients.
//
// Payload is a closed tagged union: every payload has exactly one Kind, and
// consumers dispatch on it exhaustively instead of sniffing MIME prefixes.
package types

import "fmt"

// Kind discriminates the payload variants.
type Kind string

const (
	KindText           Kind = "text"
	KindImage          Kind = "image"
	KindVideo          Kind = "video"
	KindStreamedSpeech Kind = "streamed_speech"
	KindLegacyAudio    Kind = "legacy_audio"
)

// Payload is one message payload. Exactly one of the variant fields is set,
// indicated by Kind.
type Payload struct {
	Kind Kind `json:"kind" yaml:"kind"`

	Text           *TextPayload           `json:"text,omitempty" yaml:"text,omitempty"`
	Image          *ImagePayload          `json:"image,omitempty" yaml:"image,omitempty"`
	Video          *VideoPayload          `json:"video,omitempty" yaml:"video,omitempty"`
	StreamedSpeech *StreamedSpeechPayload `json:"streamedSpeech,omitempty" yaml:"streamedSpeech,omitempty"`
	LegacyAudio    *LegacyAudioPayload    `json:"legacyAudio,omitempty" yaml:"legacyAudio,omitempty"`
}

// TextPayload is plain text content.
type TextPayload struct {
	Content string `json:"content" yaml:"content"`
}

// ImagePayload is an inline image with its MIME type.
type ImagePayload struct {
	Data string `json:"data" yaml:"data"` // base64-encoded
	MIME string `json:"mime" yaml:"mime"`
}

// VideoPayload is an inline video with its MIME type.
type VideoPayload struct {
	Data string `json:"data" yaml:"data"` // base64-encoded
	MIME string `json:"mime" yaml:"mime"`
}

// StreamedSpeechPayload is speech synthesized during a live session,
// accumulated chunk by chunk.
type StreamedSpeechPayload struct {
	Encoding string `json:"encoding" yaml:"encoding"` // e.g. "audio/pcm;rate=24000"
	Data     string `json:"data" yaml:"data"`         // base64-encoded PCM
}

// LegacyAudioPayload is a complete pre-recorded audio clip.
type LegacyAudioPayload struct {
	Data string `json:"data" yaml:"data"` // base64-encoded PCM
	MIME string `json:"mime" yaml:"mime"`
}

// NewText wraps text content as a Payload.
func NewText(content string) Payload {
	return Payload{Kind: KindText, Text: &TextPayload{Content: content}}
}

// NewStreamedSpeech wraps a live-session speech chunk as a Payload.
func NewStreamedSpeech(encoding, data string) Payload {
	return Payload{Kind: KindStreamedSpeech, StreamedSpeech: &StreamedSpeechPayload{Encoding: encoding, Data: data}}
}

// NewLegacyAudio wraps a complete audio clip as a Payload.
func NewLegacyAudio(mime, data string) Payload {
	return Payload{Kind: KindLegacyAudio, LegacyAudio: &LegacyAudioPayload{Data: data, MIME: mime}}
}

// Validate checks that Kind is known and that exactly the matching variant
// field is populated.
func (p Payload) Validate() error {
	var set int
	if p.Text != nil {
		set++
	}
	if p.Image != nil {
		set++
	}
	if p.Video != nil {
		set++
	}
	if p.StreamedSpeech != nil {
		set++
	}
	if p.LegacyAudio != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("types: payload must have exactly one variant, has %d", set)
	}

	switch p.Kind {
	case KindText:
		if p.Text == nil {
			return fmt.Errorf("types: kind %q without text variant", p.Kind)
		}
	case KindImage:
		if p.Image == nil {
			return fmt.Errorf("types: kind %q without image variant", p.Kind)
		}
	case KindVideo:
		if p.Video == nil {
			return fmt.Errorf("types: kind %q without video variant", p.Kind)
		}
	case KindStreamedSpeech:
		if p.StreamedSpeech == nil {
			return fmt.Errorf("types: kind %q without streamedSpeech variant", p.Kind)
		}
	case KindLegacyAudio:
		if p.LegacyAudio == nil {
			return fmt.Errorf("types: kind %q without legacyAudio variant", p.Kind)
		}
	default:
		return fmt.Errorf("types: unknown payload kind %q", p.Kind)
	}
	return nil
}

// Visitor handles each payload variant. Used for exhaustive dispatch: adding
// a new Kind forces every Visitor implementation to grow a method.
type Visitor interface {
	VisitText(TextPayload) error
	VisitImage(ImagePayload) error
	VisitVideo(VideoPayload) error
	VisitStreamedSpeech(StreamedSpeechPayload) error
	VisitLegacyAudio(LegacyAudioPayload) error
}

// Accept validates p and dispatches it to the matching Visitor method.
func (p Payload) Accept(v Visitor) error {
	if err := p.Validate(); err != nil {
		return err
	}
	switch p.Kind {
	case KindText:
		return v.VisitText(*p.Text)
	case KindImage:
		return v.VisitImage(*p.Image)
	case KindVideo:
		return v.VisitVideo(*p.Video)
	case KindStreamedSpeech:
		return v.VisitStreamedSpeech(*p.StreamedSpeech)
	case KindLegacyAudio:
		return v.VisitLegacyAudio(*p.LegacyAudio)
	}
	return fmt.Errorf("types: unknown payload kind %q", p.Kind)
}
