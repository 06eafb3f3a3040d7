// Package resilience keeps the assistant responsive when an LLM backend
// degrades: per-backend circuit breakers stop hammering a failing endpoint,
// and a failover chain routes each request to the first healthy backend.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned without calling the backend while a breaker is
// open.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the open window elapses.
	BreakerOpen

	// BreakerProbing allows one probe call after the open window; its outcome
	// decides whether the breaker closes or re-opens.
	BreakerProbing
)

// String implements fmt.Stringer.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields get defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// FailureLimit is the consecutive failure count that trips the breaker.
	// Default: 5.
	FailureLimit int

	// OpenFor is how long the breaker rejects calls before probing.
	// Default: 30s.
	OpenFor time.Duration
}

// Breaker is a three-state circuit breaker with a single-probe recovery:
// after the open window one call is let through, and its result alone decides
// the next state. Safe for concurrent use.
type Breaker struct {
	name         string
	failureLimit int
	openFor      time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	return &Breaker{
		name:         cfg.Name,
		failureLimit: cfg.FailureLimit,
		openFor:      cfg.OpenFor,
	}
}

// Allow reports whether a call may proceed. Every Allow that returns true
// must be matched by a Report.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) < b.openFor {
			return false
		}
		b.state = BreakerProbing
		b.probing = true
		slog.Info("breaker probing", "name", b.name)
		return true
	case BreakerProbing:
		// One probe at a time.
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerProbing {
		b.probing = false
		if err != nil {
			b.state = BreakerOpen
			b.openedAt = time.Now()
			slog.Warn("breaker re-opened after failed probe", "name", b.name)
			return
		}
		b.state = BreakerClosed
		b.failures = 0
		slog.Info("breaker closed after probe", "name", b.name)
		return
	}

	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.failureLimit {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures,
		)
	}
}

// Do runs fn under the breaker.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrBreakerOpen
	}
	err := fn()
	b.Report(err)
	return err
}

// State returns the current state, reflecting an elapsed open window as
// probing.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.openFor {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}
