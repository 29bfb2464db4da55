// Package gemini implements the tts.Provider interface using Google's Gemini
// generateContent REST endpoint with audio response modality. Synthesis is
// one-shot: a text prompt goes in, a single base64 PCM payload comes back.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/noor-app/noorvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel   = "gemini-2.5-flash-preview-tts"
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	requestTimeout = 30 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model used for synthesis.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider synthesizes speech via the Gemini REST API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// New creates a Gemini TTS provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Voices lists the prebuilt voices available for one-shot synthesis.
func (p *Provider) Voices() []tts.VoiceProfile {
	return []tts.VoiceProfile{
		{ID: "Aoede", Name: "Aoede", Provider: "gemini"},
		{ID: "Charon", Name: "Charon", Provider: "gemini"},
		{ID: "Kore", Name: "Kore", Provider: "gemini"},
		{ID: "Puck", Name: "Puck", Provider: "gemini"},
		{ID: "Zephyr", Name: "Zephyr", Provider: "gemini"},
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize turns text into speech and returns the base64 PCM payload
// (24 kHz mono) from the model's response.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (string, error) {
	if text == "" {
		return "", nil
	}
	voiceName := voice.ID
	if voiceName == "" {
		voiceName = "Aoede"
	}

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: text}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voiceName},
				},
			},
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: synthesize: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("gemini: synthesize: %s (code %d)", parsed.Error.Message, parsed.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: synthesize: unexpected status %d", resp.StatusCode)
	}

	for _, cand := range parsed.Candidates {
		for _, pt := range cand.Content.Parts {
			if pt.InlineData != nil && pt.InlineData.Data != "" {
				return pt.InlineData.Data, nil
			}
		}
	}
	return "", fmt.Errorf("gemini: synthesize: response contained no audio")
}
