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

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":    {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "mock"},
	"speech": {"deepgram", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, expands environment
// references in credential fields, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv resolves ${VAR} references in the fields that usually carry
// secrets, so keys never need to live in the file itself.
func expandEnv(cfg *Config) {
	cfg.Providers.LLM.APIKey = os.ExpandEnv(cfg.Providers.LLM.APIKey)
	cfg.Providers.Speech.APIKey = os.ExpandEnv(cfg.Providers.Speech.APIKey)
	for i := range cfg.Providers.Fallbacks {
		cfg.Providers.Fallbacks[i].APIKey = os.ExpandEnv(cfg.Providers.Fallbacks[i].APIKey)
	}
	cfg.Archive.PostgresDSN = os.ExpandEnv(cfg.Archive.PostgresDSN)
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}

	if cfg.Assistant.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_tokens %d must not be negative", cfg.Assistant.MaxTokens))
	}
	if cfg.Assistant.Temperature < 0 || cfg.Assistant.Temperature > 2 {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0, 2]", cfg.Assistant.Temperature))
	}
	if cfg.Assistant.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_limit %d must not be negative", cfg.Assistant.HistoryLimit))
	}

	if cfg.Speech.FinalizeGraceMS < 0 {
		errs = append(errs, fmt.Errorf("speech.finalize_grace_ms %d must not be negative", cfg.Speech.FinalizeGraceMS))
	}
	if cfg.Speech.ErrorCooldownMS < 0 {
		errs = append(errs, fmt.Errorf("speech.error_cooldown_ms %d must not be negative", cfg.Speech.ErrorCooldownMS))
	}

	if cfg.Features.Voice && cfg.Providers.Speech.Name == "" {
		errs = append(errs, errors.New("features.voice is enabled but providers.speech is not configured"))
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
