package config

import (
	"sync"
	"time"
)

// Runtime defaults applied when the file leaves a field unset.
const (
	DefaultModel         = "gpt-4o-mini"
	DefaultMaxTokens     = 1024
	DefaultTemperature   = 0.7
	DefaultHistoryLimit  = 10
	DefaultLocale        = "en-US"
	DefaultFinalizeGrace = 1200 * time.Millisecond
	DefaultErrorCooldown = 2 * time.Second
)

// Settings is the resolved runtime view of a [Config]: every field has a
// usable value. Safe for concurrent reads; Replace swaps the whole snapshot
// atomically on config reload.
type Settings struct {
	mu  sync.RWMutex
	cur Resolved
}

// Resolved holds the defaulted values.
type Resolved struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	HistoryLimit  int
	Persona       string
	Locale        string
	FinalizeGrace time.Duration
	ErrorCooldown time.Duration
}

// NewSettings resolves cfg into a Settings store.
func NewSettings(cfg *Config) *Settings {
	s := &Settings{}
	s.Replace(cfg)
	return s
}

// Replace swaps in the values from cfg, applying defaults.
func (s *Settings) Replace(cfg *Config) {
	r := Resolved{
		Model:         cfg.Providers.LLM.Model,
		MaxTokens:     cfg.Assistant.MaxTokens,
		Temperature:   cfg.Assistant.Temperature,
		HistoryLimit:  cfg.Assistant.HistoryLimit,
		Persona:       cfg.Assistant.Persona,
		Locale:        cfg.Speech.Locale,
		FinalizeGrace: time.Duration(cfg.Speech.FinalizeGraceMS) * time.Millisecond,
		ErrorCooldown: time.Duration(cfg.Speech.ErrorCooldownMS) * time.Millisecond,
	}
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	if r.HistoryLimit == 0 {
		r.HistoryLimit = DefaultHistoryLimit
	}
	if r.Locale == "" {
		r.Locale = DefaultLocale
	}
	if r.FinalizeGrace == 0 {
		r.FinalizeGrace = DefaultFinalizeGrace
	}
	if r.ErrorCooldown == 0 {
		r.ErrorCooldown = DefaultErrorCooldown
	}

	s.mu.Lock()
	s.cur = r
	s.mu.Unlock()
}

// Current returns the active snapshot.
func (s *Settings) Current() Resolved {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}
