package main

import (
	"context"
	"errors"
	"testing"

	"github.com/neuralos/neuralos/internal/config"
	"github.com/neuralos/neuralos/pkg/provider/llm"
)

// Every provider name the loader accepts must resolve to a registered
// factory, or a config that passes validation would still fail at startup.
func TestRegisterBuiltinProviders_CoversValidNames(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for _, name := range config.ValidProviderNames["llm"] {
		entry := config.ProviderEntry{
			Name: name, APIKey: "key", Model: "model", BaseURL: "http://localhost:1",
		}
		if _, err := reg.CreateLLM(entry); errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("llm provider %q accepted by the loader but never registered", name)
		}
	}
	for _, name := range config.ValidProviderNames["speech"] {
		entry := config.ProviderEntry{Name: name, APIKey: "key"}
		if _, err := reg.CreateSpeech(entry); errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("speech provider %q accepted by the loader but never registered", name)
		}
	}
}

func TestRegisterBuiltinProviders_MockServesCompletions(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp == nil || resp.Content == "" {
		t.Error("mock provider returned an empty completion")
	}
}
