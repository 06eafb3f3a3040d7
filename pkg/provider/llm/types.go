package llm

import (
	"fmt"
	"time"
)

// Conversation roles used in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// APIError is a transport-level failure normalised across provider SDKs.
// Providers wrap their SDK's error type into an APIError so that callers can
// classify failures (auth, rate limit, server) without importing the SDK.
type APIError struct {
	// StatusCode is the HTTP status returned by the backend, or 0 when the
	// failure happened below HTTP (DNS, TCP, TLS).
	StatusCode int

	// RetryAfter is the server-recommended wait before the next attempt
	// (typically from a Retry-After header on a 429). Zero when the server
	// gave no hint.
	RetryAfter time.Duration

	// Err is the underlying SDK or transport error.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm: api error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: api error: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *APIError) Unwrap() error { return e.Err }
