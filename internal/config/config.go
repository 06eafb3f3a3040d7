// Package config provides the configuration schema, loader, settings store,
// and provider registry for the NeuralOS assistant.
package config

// LogLevel controls log verbosity.
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

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Assistant AssistantConfig `yaml:"assistant"`
	Speech    SpeechConfig    `yaml:"speech"`
	Features  FeaturesConfig  `yaml:"features"`
	Archive   ArchiveConfig   `yaml:"archive"`

	// Vocabulary lists domain terms the transcript corrector snaps
	// misrecognized words to.
	Vocabulary []string `yaml:"vocabulary"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus scrape endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ProvidersConfig declares which provider implementation serves each concern.
// Each entry selects a named factory registered in the [Registry].
type ProvidersConfig struct {
	// LLM is the primary completion backend.
	LLM ProviderEntry `yaml:"llm"`

	// Fallbacks are tried in order when the primary fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Speech is the speech-recognition backend.
	Speech ProviderEntry `yaml:"speech"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. ${VAR} references are
	// expanded from the environment at load time.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig tunes the conversation engine.
type AssistantConfig struct {
	// MaxTokens caps response length. 0 uses the provider default.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature. 0 uses the provider default.
	Temperature float64 `yaml:"temperature"`

	// HistoryLimit bounds the rolling context window in messages. Default: 10.
	HistoryLimit int `yaml:"history_limit"`

	// Persona replaces the built-in system personality block when non-empty.
	Persona string `yaml:"persona"`
}

// SpeechConfig tunes voice capture.
type SpeechConfig struct {
	// Locale is the recognition language tag (e.g., "en-US").
	Locale string `yaml:"locale"`

	// FinalizeGraceMS bounds the wait for a final result after stopping
	// capture before the last partial transcript is promoted. Default: 1200.
	FinalizeGraceMS int `yaml:"finalize_grace_ms"`

	// ErrorCooldownMS is how long a capture error stays on screen before the
	// session auto-recovers to idle. Default: 2000.
	ErrorCooldownMS int `yaml:"error_cooldown_ms"`
}

// FeaturesConfig gates optional capabilities.
type FeaturesConfig struct {
	// Voice enables the speech capture pipeline.
	Voice bool `yaml:"voice"`

	// Notifications enables the schedule_notification command.
	Notifications bool `yaml:"notifications"`

	// OpenURL enables the open_url command.
	OpenURL bool `yaml:"open_url"`

	// Email enables the send_email command.
	Email bool `yaml:"email"`

	// PhoneCall enables the phone_call command.
	PhoneCall bool `yaml:"phone_call"`
}

// ArchiveConfig configures turn persistence.
type ArchiveConfig struct {
	// PostgresDSN is the connection string for the turn archive. Empty keeps
	// turns in memory only. ${VAR} references are expanded at load time.
	PostgresDSN string `yaml:"postgres_dsn"`
}
