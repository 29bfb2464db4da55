package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/noor-app/noorvoice/pkg/provider/tts"
	ttsmock "github.com/noor-app/noorvoice/pkg/provider/tts/mock"
)

var testVoice = tts.VoiceProfile{ID: "Fenrir", Name: "Fenrir", Provider: "gemini"}

func TestTTSFallbackPrimarySuccess(t *testing.T) {
	primary := ttsmock.New("primary-payload")
	backup := ttsmock.New("backup-payload")

	chain := NewTTSFallback("gemini", primary)
	chain.AddFallback("backup", backup)

	got, err := chain.Synthesize(context.Background(), "hello", testVoice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != "primary-payload" {
		t.Errorf("payload = %q, want primary's", got)
	}
	if n := len(backup.Requests()); n != 0 {
		t.Errorf("backup requests = %d, want 0", n)
	}
}

func TestTTSFallbackFailsOver(t *testing.T) {
	primary := ttsmock.New("")
	primary.Err = errors.New("quota exceeded")
	backup := ttsmock.New("backup-payload")

	chain := NewTTSFallback("gemini", primary)
	chain.AddFallback("backup", backup)

	got, err := chain.Synthesize(context.Background(), "hello", testVoice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != "backup-payload" {
		t.Errorf("payload = %q, want backup's", got)
	}
}

func TestTTSFallbackAllBackendsFail(t *testing.T) {
	primary := ttsmock.New("")
	primary.Err = errors.New("timeout")
	backup := ttsmock.New("")
	backup.Err = errors.New("unauthorized")

	chain := NewTTSFallback("gemini", primary)
	chain.AddFallback("backup", backup)

	_, err := chain.Synthesize(context.Background(), "hello", testVoice)
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Errorf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestTTSFallbackSkipsTrippedPrimary(t *testing.T) {
	primary := ttsmock.New("")
	primary.Err = errors.New("backend down")
	backup := ttsmock.New("backup-payload")

	chain := NewTTSFallback("gemini", primary, WithFailureThreshold(1))
	chain.AddFallback("backup", backup)

	// First call trips the primary's breaker and lands on the backup.
	if _, err := chain.Synthesize(context.Background(), "first", testVoice); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	before := len(primary.Requests())

	got, err := chain.Synthesize(context.Background(), "second", testVoice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != "backup-payload" {
		t.Errorf("payload = %q, want backup's", got)
	}
	if after := len(primary.Requests()); after != before {
		t.Errorf("primary requests grew from %d to %d while its breaker was open", before, after)
	}
}

func TestTTSFallbackVoicesComeFromPrimary(t *testing.T) {
	primary := ttsmock.New("payload")
	chain := NewTTSFallback("gemini", primary)
	chain.AddFallback("backup", ttsmock.New("other"))

	voices := chain.Voices()
	if len(voices) != 1 || voices[0].ID != "mock-voice" {
		t.Errorf("Voices() = %v, want the primary's single mock voice", voices)
	}
}
