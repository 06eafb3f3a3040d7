package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/neuralos/neuralos/pkg/provider/llm"
	"github.com/neuralos/neuralos/pkg/speech"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	llm    map[string]func(ProviderEntry) (llm.Provider, error)
	speech map[string]func(ProviderEntry) (speech.Platform, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:    make(map[string]func(ProviderEntry) (llm.Provider, error)),
		speech: make(map[string]func(ProviderEntry) (speech.Platform, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSpeech registers a speech platform factory under name.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (speech.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if none exists.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSpeech instantiates a speech platform using the factory registered
// under entry.Name.
func (r *Registry) CreateSpeech(entry ProviderEntry) (speech.Platform, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
