// Package archive persists completed conversation turns. The archive is
// write-mostly: the controller records each finished exchange, and recent
// turns can be listed for review tooling.
package archive

import (
	"context"
	"time"
)

// Turn is one archived exchange.
type Turn struct {
	// ID is assigned by the store on save.
	ID int64

	// UserText is the utterance that started the turn.
	UserText string

	// AssistantText is the raw response, directive lines included.
	AssistantText string

	// InputMethod records whether the turn came in by voice or text.
	InputMethod string

	// Elapsed is the turn duration including retries.
	Elapsed time.Duration

	// CreatedAt is when the turn completed.
	CreatedAt time.Time
}

// Store persists turns. Implementations must be safe for concurrent use.
type Store interface {
	// Save records one turn, filling in its ID.
	Save(ctx context.Context, turn *Turn) error

	// Recent returns up to limit turns, newest first.
	Recent(ctx context.Context, limit int) ([]Turn, error)
}
