package session

import "github.com/neuralos/neuralos/pkg/provider/llm"

// defaultHistoryLimit bounds the rolling context window sent with each
// request.
const defaultHistoryLimit = 10

// history is the rolling conversation context. Not safe for concurrent use;
// the controller serializes access.
type history struct {
	limit int
	msgs  []llm.Message
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &history{limit: limit}
}

// append records one turn, evicting the oldest when the window is full.
func (h *history) append(role, content string) {
	h.msgs = append(h.msgs, llm.Message{Role: role, Content: content})
	if len(h.msgs) > h.limit {
		h.msgs = h.msgs[len(h.msgs)-h.limit:]
	}
}

// setLimit resizes the window, evicting the oldest entries when it shrank.
func (h *history) setLimit(limit int) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	h.limit = limit
	if len(h.msgs) > h.limit {
		h.msgs = h.msgs[len(h.msgs)-h.limit:]
	}
}

// messages returns a copy of the window, oldest first.
func (h *history) messages() []llm.Message {
	out := make([]llm.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *history) clear() {
	h.msgs = nil
}

func (h *history) len() int {
	return len(h.msgs)
}
