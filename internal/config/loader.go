package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live": {"gemini-live"},
	"tts":  {"gemini"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.Live.Name == "" && len(cfg.Guides) > 0 {
		slog.Warn("no live provider configured; guides will not be able to hold conversations")
	}

	// Emotion
	if cfg.Emotion.DecaySeconds < 0 {
		errs = append(errs, fmt.Errorf("emotion.decay_seconds %.2f must not be negative", cfg.Emotion.DecaySeconds))
	}

	// Audio device indices: -1 selects the platform default.
	if cfg.Audio.InputDevice < -1 {
		errs = append(errs, fmt.Errorf("audio.input_device %d is invalid; use -1 for the default device", cfg.Audio.InputDevice))
	}
	if cfg.Audio.OutputDevice < -1 {
		errs = append(errs, fmt.Errorf("audio.output_device %d is invalid; use -1 for the default device", cfg.Audio.OutputDevice))
	}

	// Guide duplicate ID detection.
	guideIDsSeen := make(map[string]int, len(cfg.Guides))

	for i, guide := range cfg.Guides {
		prefix := fmt.Sprintf("guides[%d]", i)
		if guide.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := guideIDsSeen[guide.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of guides[%d]", prefix, guide.ID, prev))
			}
			guideIDsSeen[guide.ID] = i
		}
		if guide.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if guide.Instructions == "" {
			errs = append(errs, fmt.Errorf("%s.instructions is required", prefix))
		}

		// Voice provider ↔ configured providers cross-validation.
		if guide.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && guide.Voice.Provider != cfg.Providers.TTS.Name {
			slog.Warn("guide voice provider does not match configured TTS provider",
				"guide", guide.ID,
				"voice_provider", guide.Voice.Provider,
				"tts_provider", cfg.Providers.TTS.Name,
			)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
