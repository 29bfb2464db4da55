package player_test

import (
	"context"
	"errors"
	"math"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/noor-app/noorvoice/internal/observe"
	"github.com/noor-app/noorvoice/internal/player"
	"github.com/noor-app/noorvoice/pkg/audio"
	"github.com/noor-app/noorvoice/pkg/audio/claim"
	audiomock "github.com/noor-app/noorvoice/pkg/audio/mock"
	"github.com/noor-app/noorvoice/pkg/provider/tts"
	ttsmock "github.com/noor-app/noorvoice/pkg/provider/tts/mock"
)

func newSpeechPlayer(t *testing.T, provider tts.Provider) (*player.SpeechPlayer, *audiomock.Lines, *claim.Coordinator) {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	lines := &audiomock.Lines{}
	coord := claim.NewCoordinator()
	p := player.NewSpeechPlayer(provider, lines, coord, metrics, nil)
	t.Cleanup(func() { p.Close() })
	return p, lines, coord
}

func TestSpeakPlaysSynthesizedAudio(t *testing.T) {
	samples := make([]float32, 300)
	for i := range samples {
		samples[i] = 0.2
	}
	provider := ttsmock.New(audio.Encode(samples))
	p, lines, _ := newSpeechPlayer(t, provider)

	voice := tts.VoiceProfile{ID: "Kore", Provider: "gemini"}
	if err := p.Speak(context.Background(), "hello there", voice); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if !p.Playing() {
		t.Fatal("not playing after Speak")
	}

	reqs := provider.Requests()
	if len(reqs) != 1 || reqs[0].Text != "hello there" || reqs[0].Voice.ID != "Kore" {
		t.Errorf("requests = %+v", reqs)
	}

	block := lines.Outputs()[0].Pull(100)
	for i, s := range block {
		if math.Abs(float64(s)-0.2) > 1.0/32768 {
			t.Fatalf("sample %d = %v, want ~0.2", i, s)
		}
	}

	// The utterance ends on its own.
	lines.Outputs()[0].Pull(300)
	if p.Playing() {
		t.Error("still playing after the utterance ended")
	}
}

func TestSpeakSynthesisFailure(t *testing.T) {
	provider := ttsmock.New("")
	provider.Err = errors.New("quota exceeded")
	p, lines, _ := newSpeechPlayer(t, provider)

	err := p.Speak(context.Background(), "hello", tts.VoiceProfile{Provider: "gemini"})
	if err == nil {
		t.Fatal("expected error")
	}
	if p.Playing() {
		t.Error("playing despite synthesis failure")
	}
	if got := len(lines.Outputs()); got != 0 {
		t.Errorf("outputs = %d, want 0 when synthesis fails", got)
	}
}

func TestSpeakRejectsUndecodablePayload(t *testing.T) {
	provider := ttsmock.New("!!! not audio !!!")
	p, _, _ := newSpeechPlayer(t, provider)

	if err := p.Speak(context.Background(), "hello", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSpeakReplacesCurrentUtterance(t *testing.T) {
	samples := make([]float32, 24000)
	provider := ttsmock.New(audio.Encode(samples))
	p, lines, _ := newSpeechPlayer(t, provider)

	if err := p.Speak(context.Background(), "first", tts.VoiceProfile{}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if err := p.Speak(context.Background(), "second", tts.VoiceProfile{}); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if got := len(provider.Requests()); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	// Only one output line is held across utterances.
	if got := len(lines.Outputs()); got != 1 {
		t.Errorf("outputs = %d, want 1", got)
	}
}

func TestSpeechYieldsToOtherProducers(t *testing.T) {
	provider := ttsmock.New(audio.Encode(make([]float32, 24000)))
	p, _, coord := newSpeechPlayer(t, provider)

	if err := p.Speak(context.Background(), "long story", tts.VoiceProfile{}); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	coord.Register("live-session", func() {})
	coord.Acquire("live-session")

	if p.Playing() {
		t.Error("speech still playing after another producer acquired the claim")
	}
}
