package config

import (
	"testing"
	"time"
)

func TestSettings_Defaults(t *testing.T) {
	s := NewSettings(&Config{})
	r := s.Current()

	if r.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", r.Model, DefaultModel)
	}
	if r.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", r.MaxTokens, DefaultMaxTokens)
	}
	if r.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", r.Temperature, DefaultTemperature)
	}
	if r.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("HistoryLimit = %d, want %d", r.HistoryLimit, DefaultHistoryLimit)
	}
	if r.Locale != DefaultLocale {
		t.Errorf("Locale = %q, want %q", r.Locale, DefaultLocale)
	}
	if r.FinalizeGrace != DefaultFinalizeGrace {
		t.Errorf("FinalizeGrace = %v, want %v", r.FinalizeGrace, DefaultFinalizeGrace)
	}
	if r.ErrorCooldown != DefaultErrorCooldown {
		t.Errorf("ErrorCooldown = %v, want %v", r.ErrorCooldown, DefaultErrorCooldown)
	}
}

func TestSettings_Replace(t *testing.T) {
	s := NewSettings(&Config{})

	cfg := &Config{}
	cfg.Providers.LLM.Model = "gpt-4o"
	cfg.Assistant.MaxTokens = 2048
	cfg.Assistant.Persona = "terse"
	cfg.Speech.Locale = "de-DE"
	cfg.Speech.FinalizeGraceMS = 500
	s.Replace(cfg)

	r := s.Current()
	if r.Model != "gpt-4o" || r.MaxTokens != 2048 || r.Persona != "terse" {
		t.Errorf("Resolved = %+v", r)
	}
	if r.Locale != "de-DE" {
		t.Errorf("Locale = %q", r.Locale)
	}
	if r.FinalizeGrace != 500*time.Millisecond {
		t.Errorf("FinalizeGrace = %v", r.FinalizeGrace)
	}
	// Unset fields still resolve to defaults after a replace.
	if r.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want default", r.Temperature)
	}
}
