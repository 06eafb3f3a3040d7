package completion

import (
	"sync/atomic"

	"github.com/neuralos/neuralos/pkg/provider/llm"
)

// Stats accumulates token and request counts for the lifetime of a [Client].
// Counters are mutated only on the success path of a request and reset only
// on an explicit [Stats.Reset]. Safe for concurrent use.
type Stats struct {
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	requests     atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	InputTokens  int64
	OutputTokens int64
	RequestCount int64
}

// record accumulates one successful request's usage.
func (s *Stats) record(u llm.Usage) {
	s.inputTokens.Add(int64(u.PromptTokens))
	s.outputTokens.Add(int64(u.CompletionTokens))
	s.requests.Add(1)
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		InputTokens:  s.inputTokens.Load(),
		OutputTokens: s.outputTokens.Load(),
		RequestCount: s.requests.Load(),
	}
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.inputTokens.Store(0)
	s.outputTokens.Store(0)
	s.requests.Store(0)
}
