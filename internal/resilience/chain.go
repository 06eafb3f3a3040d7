package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neuralos/neuralos/internal/completion"
	"github.com/neuralos/neuralos/pkg/provider/llm"
)

// ErrChainExhausted is returned when every backend in a [Chain] failed or had
// an open breaker.
var ErrChainExhausted = errors.New("resilience: all backends failed")

// chainEntry pairs a backend with its dedicated breaker.
type chainEntry struct {
	name     string
	provider llm.Provider
	breaker  *Breaker
}

// Chain is an [llm.Provider] that routes each request to the first healthy
// backend in registration order. Backends whose breaker is open are skipped;
// a failed call moves on to the next backend unless the failure would fail
// everywhere (bad request) or the caller gave up (cancellation).
//
// Only the initial connection of a stream participates in failover. Once a
// chunk channel is handed out, mid-stream failures belong to the caller's
// retry policy.
type Chain struct {
	entries []chainEntry
	breaker BreakerConfig
}

var _ llm.Provider = (*Chain)(nil)

// NewChain creates a Chain with primary as the preferred backend. The breaker
// config is cloned per backend.
func NewChain(primaryName string, primary llm.Provider, breaker BreakerConfig) *Chain {
	c := &Chain{breaker: breaker}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback backend. Call order is try order. Not safe to call
// concurrently with requests; wire the chain fully at startup.
func (c *Chain) Add(name string, provider llm.Provider) {
	cfg := c.breaker
	cfg.Name = name
	c.entries = append(c.entries, chainEntry{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(cfg),
	})
}

// Complete tries each healthy backend in order.
func (c *Chain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := c.execute(ctx, func(p llm.Provider) error {
		var innerErr error
		resp, innerErr = p.Complete(ctx, req)
		return innerErr
	})
	return resp, err
}

// StreamCompletion opens a stream on the first healthy backend.
func (c *Chain) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	var ch <-chan llm.Chunk
	err := c.execute(ctx, func(p llm.Provider) error {
		var innerErr error
		ch, innerErr = p.StreamCompletion(ctx, req)
		return innerErr
	})
	return ch, err
}

// Capabilities reports the primary's capabilities. Static metadata does not
// fail over.
func (c *Chain) Capabilities() llm.ModelCapabilities {
	if len(c.entries) == 0 {
		return llm.ModelCapabilities{}
	}
	return c.entries[0].provider.Capabilities()
}

// execute walks the chain until a backend succeeds.
func (c *Chain) execute(ctx context.Context, fn func(llm.Provider) error) error {
	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !entry.breaker.Allow() {
			slog.Debug("skipping backend, breaker open", "backend", entry.name)
			if lastErr == nil {
				lastErr = ErrBreakerOpen
			}
			continue
		}

		err := fn(entry.provider)
		entry.breaker.Report(err)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldFailOver(err) {
			return err
		}
		slog.Warn("backend failed, trying next",
			"backend", entry.name,
			"err", err,
		)
	}
	return fmt.Errorf("%w: %v", ErrChainExhausted, lastErr)
}

// shouldFailOver reports whether another backend could plausibly serve the
// request. Cancellations, auth failures, and malformed requests fail the same
// way everywhere the caller configured credentials correctly, except that a
// rejected credential on one backend says nothing about the next, so auth
// does fail over.
func shouldFailOver(err error) bool {
	switch completion.Classify(err).Class {
	case completion.ClassCancelled, completion.ClassBadRequest:
		return false
	}
	return true
}
