package archive

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory [Store] for tests and database-less deployments.
type MemStore struct {
	mu     sync.Mutex
	turns  []Turn
	nextID int64
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

// Save records one turn, filling in its ID.
func (s *MemStore) Save(_ context.Context, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn.ID = s.nextID
	s.nextID++
	s.turns = append(s.turns, *turn)
	return nil
}

// Recent returns up to limit turns, newest first.
func (s *MemStore) Recent(_ context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.turns)
	if limit > n {
		limit = n
	}
	out := make([]Turn, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.turns[i])
	}
	return out, nil
}

// Len returns the number of stored turns.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
