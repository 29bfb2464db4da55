// Package mock provides a scripted tts.Provider fake for tests.
package mock

import (
	"context"
	"sync"

	"github.com/noor-app/noorvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider is a tts.Provider fake. Payload is returned from every Synthesize
// call unless Err is set, and requests are recorded for inspection.
type Provider struct {
	Payload string
	Err     error

	mu       sync.Mutex
	requests []Request
}

// Request records one Synthesize call.
type Request struct {
	Text  string
	Voice tts.VoiceProfile
}

// New creates a mock that returns payload from Synthesize.
func New(payload string) *Provider {
	return &Provider{Payload: payload}
}

func (p *Provider) Synthesize(_ context.Context, text string, voice tts.VoiceProfile) (string, error) {
	if text == "" {
		return "", nil
	}
	p.mu.Lock()
	p.requests = append(p.requests, Request{Text: text, Voice: voice})
	p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	return p.Payload, nil
}

func (p *Provider) Voices() []tts.VoiceProfile {
	return []tts.VoiceProfile{{ID: "mock-voice", Name: "Mock Voice", Provider: "mock"}}
}

// Requests returns every recorded Synthesize call.
func (p *Provider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}
