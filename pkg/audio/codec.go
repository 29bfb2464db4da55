package audio

import (
	"encoding/base64"
	"fmt"
)

// DecodeError reports a malformed inbound audio payload. A failed decode
// must never be played; callers drop the offending chunk and continue.
type DecodeError struct {
	// Reason is a short description of what was malformed.
	Reason string

	// Err is the underlying error, if any (e.g. a base64 corruption error).
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("audio: decode: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// Encode converts float32 samples in [-1, 1] to the wire format: each sample
// is scaled by 32768, clamped to the int16 range, packed little-endian, and
// the whole buffer is base64-encoded. Deterministic and lossy (quantization
// only).
func Encode(samples []float32) string {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		raw[i*2] = byte(v)
		raw[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// Decode converts a base64 wire payload back into float32 samples. The
// payload is always mono on the wire; when channels is 2 the single channel
// is duplicated into an interleaved L+R pair per frame. This duplication is a
// workaround for playback devices that route mono badly, not a content
// transform.
//
// Malformed base64 and odd-length byte buffers return a *[DecodeError].
func Decode(payload string, channels int) ([]float32, error) {
	if channels != 1 && channels != 2 {
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported channel count %d", channels)}
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Reason: "malformed base64", Err: err}
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte count %d for int16 PCM", len(raw))}
	}

	frames := len(raw) / 2
	out := make([]float32, frames*channels)
	for i := range frames {
		s := float32(int16(raw[i*2])|int16(raw[i*2+1])<<8) / 32768.0
		if channels == 2 {
			out[i*2] = s
			out[i*2+1] = s
		} else {
			out[i] = s
		}
	}
	return out, nil
}
