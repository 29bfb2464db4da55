// Package mock provides scripted fakes for the live provider interfaces,
// used by session controller tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/noor-app/noorvoice/pkg/provider/live"
	"github.com/noor-app/noorvoice/pkg/provider/tts"
)

var _ live.Provider = (*Provider)(nil)
var _ live.SessionHandle = (*Session)(nil)

// Provider is a live.Provider fake. If ConnectErr is set, Connect fails with
// it; otherwise Connect returns a fresh Session and records the config.
type Provider struct {
	ConnectErr error

	// ConnectHold, when non-nil, makes Connect block until the channel is
	// closed or the context is cancelled. Simulates a stalled handshake.
	ConnectHold chan struct{}

	mu       sync.Mutex
	sessions []*Session
	configs  []live.SessionConfig
}

// NewProvider creates an empty mock provider.
func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.ConnectHold != nil {
		select {
		case <-p.ConnectHold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	sess := NewSession()
	p.mu.Lock()
	p.sessions = append(p.sessions, sess)
	p.configs = append(p.configs, cfg)
	p.mu.Unlock()
	return sess, nil
}

func (p *Provider) Voices() []tts.VoiceProfile {
	return []tts.VoiceProfile{{ID: "mock-voice", Name: "Mock Voice", Provider: "mock"}}
}

// Sessions returns every session Connect has handed out.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Configs returns the session configs passed to Connect, in order.
func (p *Provider) Configs() []live.SessionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]live.SessionConfig(nil), p.configs...)
}

// Session is a scripted live.SessionHandle. Tests drive it with EmitAudio,
// EmitTranscript, and Fail, and inspect what the client sent via Sent.
type Session struct {
	audioCh     chan string
	transcripts chan string

	mu     sync.Mutex
	sent   []string
	errVal error
	closed bool
}

// NewSession creates a session with buffered emit channels.
func NewSession() *Session {
	return &Session{
		audioCh:     make(chan string, 64),
		transcripts: make(chan string, 64),
	}
}

// EmitAudio delivers a synthesized-speech payload to the client.
func (s *Session) EmitAudio(payload string) {
	s.audioCh <- payload
}

// EmitTranscript delivers a transcript fragment to the client.
func (s *Session) EmitTranscript(text string) {
	s.transcripts <- text
}

// Fail records err and closes the session channels, simulating a transport
// failure mid-session.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.errVal == nil {
		s.errVal = err
	}
	closed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !closed {
		close(s.audioCh)
		close(s.transcripts)
	}
}

func (s *Session) SendAudio(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	s.sent = append(s.sent, payload)
	return nil
}

func (s *Session) Audio() <-chan string { return s.audioCh }

func (s *Session) Transcripts() <-chan string { return s.transcripts }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.audioCh)
	close(s.transcripts)
	return nil
}

// Sent returns every payload the client pushed via SendAudio.
func (s *Session) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// Closed reports whether Close or Fail has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
