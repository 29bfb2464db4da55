// Package config provides the configuration schema, loader, and provider
// registry for the Noorvoice daemon.
package config

// LogLevel controls log verbosity for the Noorvoice daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Noorvoice.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Guides    []GuideConfig   `yaml:"guides"`
	Audio     AudioConfig     `yaml:"audio"`
	Emotion   EmotionConfig   `yaml:"emotion"`
}

// ServerConfig holds network and logging settings for the control API.
type ServerConfig struct {
	// ListenAddr is the TCP address the control API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// remote surface. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	// Live is the bidirectional streaming session provider.
	Live ProviderEntry `yaml:"live"`

	// TTS is the one-shot speech synthesis provider.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini-live").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// GuideConfig describes one conversational guide persona a child can talk to.
type GuideConfig struct {
	// ID is the stable identifier used by API clients to select this guide.
	ID string `yaml:"id"`

	// Name is the guide's display name (e.g., "Limanour").
	Name string `yaml:"name"`

	// Voice configures the synthesized voice for this guide.
	Voice VoiceConfig `yaml:"voice"`

	// Languages lists the language codes the guide speaks (e.g., "ar", "en").
	Languages []string `yaml:"languages"`

	// Instructions is the free-text persona description sent with the live
	// session setup.
	Instructions string `yaml:"instructions"`

	// Transcription enables transcript fragments for this guide's sessions.
	// Transcripts drive the on-screen emotion, so this is normally on.
	Transcription bool `yaml:"transcription"`
}

// VoiceConfig specifies the synthesized voice for a guide.
type VoiceConfig struct {
	// Provider is the voice provider name (e.g., "gemini").
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier (e.g., "Aoede").
	VoiceID string `yaml:"voice_id"`
}

// AudioConfig selects the capture and playback devices.
type AudioConfig struct {
	// InputDevice is the capture device index, or -1 for the platform default.
	InputDevice int `yaml:"input_device"`

	// OutputDevice is the playback device index, or -1 for the platform default.
	OutputDevice int `yaml:"output_device"`
}

// EmotionConfig tunes the transcript-driven emotion display.
type EmotionConfig struct {
	// DecaySeconds is how long a non-neutral emotion persists after the last
	// transcript fragment before returning to neutral. 0 means the default
	// of 4 seconds.
	DecaySeconds float64 `yaml:"decay_seconds"`
}

// Guide returns the guide with the given ID, or false when unknown.
func (c *Config) Guide(id string) (*GuideConfig, bool) {
	for i := range c.Guides {
		if c.Guides[i].ID == id {
			return &c.Guides[i], true
		}
	}
	return nil, false
}
