package audio_test

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"

	"github.com/noor-app/noorvoice/pkg/audio"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// Quantization to int16 and back must stay within 1/32768 per sample.
	in := []float32{0, 0.5, -0.5, 0.25, -1, 1, 0.0001, -0.9999}
	payload := audio.Encode(in)

	out, err := audio.Decode(payload, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		diff := math.Abs(float64(out[i]) - float64(in[i]))
		if diff > 1.0/32768 {
			t.Errorf("sample %d: got %g, want %g (diff %g exceeds 1/32768)", i, out[i], in[i], diff)
		}
	}
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	payload := audio.Encode([]float32{2.0, -2.0})
	out, err := audio.Decode(payload, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out[0] < 0.99 || out[0] > 1.0 {
		t.Errorf("positive overflow: got %g, want ~1.0", out[0])
	}
	if out[1] > -0.99 || out[1] < -1.0 {
		t.Errorf("negative overflow: got %g, want ~-1.0", out[1])
	}
}

func TestDecodeStereoDuplicatesMono(t *testing.T) {
	payload := audio.Encode([]float32{0.5, -0.25})
	out, err := audio.Decode(payload, 2)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("length mismatch: got %d, want 4", len(out))
	}
	if out[0] != out[1] || out[2] != out[3] {
		t.Errorf("channels differ: %v", out)
	}
}

func TestDecodeMalformedBase64(t *testing.T) {
	_, err := audio.Decode("not!!valid!!base64", 1)
	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DecodeError", err)
	}
}

func TestDecodeOddByteCount(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	_, err := audio.Decode(payload, 1)
	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DecodeError", err)
	}
}

func TestDecodeBadChannelCount(t *testing.T) {
	_, err := audio.Decode(audio.Encode([]float32{0}), 3)
	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DecodeError", err)
	}
}

func TestMonoToStereo(t *testing.T) {
	got := audio.MonoToStereo([]float32{0.1, 0.2, 0.3})
	want := []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %g, want %g", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	got := audio.StereoToMono([]float32{0.2, 0.4, -0.2, -0.4})
	if len(got) != 2 {
		t.Fatalf("length mismatch: got %d, want 2", len(got))
	}
	if math.Abs(float64(got[0]-0.3)) > 1e-6 || math.Abs(float64(got[1]+0.3)) > 1e-6 {
		t.Errorf("got %v, want [0.3 -0.3]", got)
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name     string
		inLen    int
		src, dst int
		wantLen  int
	}{
		{"same rate", 100, 24000, 24000, 100},
		{"downsample 2:1", 100, 48000, 24000, 50},
		{"upsample 2:3", 100, 16000, 24000, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]float32, tt.inLen)
			for i := range in {
				in[i] = float32(math.Sin(float64(i) / 10))
			}
			out := audio.Resample(in, tt.src, tt.dst)
			if len(out) != tt.wantLen {
				t.Fatalf("length: got %d, want %d", len(out), tt.wantLen)
			}
		})
	}
}

func TestFrameDuration(t *testing.T) {
	f := audio.Frame{Samples: make([]float32, audio.FrameSamples), SampleRate: audio.CaptureRate, Channels: 1}
	if got, want := f.Duration().Milliseconds(), int64(256); got != want {
		t.Errorf("Duration: got %dms, want %dms", got, want)
	}
}
