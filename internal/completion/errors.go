package completion

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/neuralos/neuralos/pkg/provider/llm"
)

// Class identifies the failure category of an LLM request.
type Class string

const (
	// ClassNetwork covers DNS, TCP, TLS, and connectivity failures. Retryable.
	ClassNetwork Class = "network"

	// ClassAuth covers missing or rejected credentials. Never retried; the
	// user must fix the credential.
	ClassAuth Class = "auth"

	// ClassRateLimit covers throttling responses. Retryable, honouring the
	// server's recommended wait when one is given.
	ClassRateLimit Class = "rate_limit"

	// ClassBadRequest covers client-side request errors. Never retried.
	ClassBadRequest Class = "bad_request"

	// ClassServer covers backend-side failures (5xx, overloaded). Retryable.
	ClassServer Class = "server"

	// ClassCancelled covers context cancellation and deadline expiry. Fatal
	// to the current attempt, never retried.
	ClassCancelled Class = "cancelled"

	// ClassUnknown is the conservative fallback. Retryable.
	ClassUnknown Class = "unknown"
)

// userMessages maps each class to its pre-approved user-facing string. Raw
// transport error text is never shown to the end user, only logged.
var userMessages = map[Class]string{
	ClassNetwork:    "I can't reach the network right now. Check your connection and try again.",
	ClassAuth:       "Your API credential was rejected. Update it in settings.",
	ClassRateLimit:  "I'm being rate limited. Give me a moment and try again.",
	ClassBadRequest: "That request couldn't be processed.",
	ClassServer:     "The assistant service is having trouble. Trying shortly usually helps.",
	ClassCancelled:  "Request cancelled.",
	ClassUnknown:    "Something went wrong. Please try again.",
}

// ClassifiedError is a transport failure mapped into the request taxonomy.
// It wraps the raw cause for logging while exposing only the pre-approved
// Message to user-facing surfaces.
type ClassifiedError struct {
	// Class is the failure category.
	Class Class

	// Message is the user-facing description for this class.
	Message string

	// RetryAfter is the server-recommended wait before retrying. When
	// non-zero it overrides the computed exponential backoff.
	RetryAfter time.Duration

	cause error
}

// Error implements the error interface with the diagnostic (non-user) detail.
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return "completion: " + string(e.Class) + ": " + e.cause.Error()
	}
	return "completion: " + string(e.Class)
}

// Unwrap returns the raw cause for errors.Is/As chains.
func (e *ClassifiedError) Unwrap() error { return e.cause }

// Retryable reports whether the client may retry this failure internally.
func (e *ClassifiedError) Retryable() bool {
	switch e.Class {
	case ClassNetwork, ClassRateLimit, ClassServer, ClassUnknown:
		return true
	}
	return false
}

// newClassified builds a ClassifiedError with the canonical user message.
func newClassified(class Class, cause error) *ClassifiedError {
	return &ClassifiedError{
		Class:   class,
		Message: userMessages[class],
		cause:   cause,
	}
}

// Classify maps a raw provider error into the taxonomy. The matching order is
// fixed: cancellation, network, auth, rate limit, bad request, server, then
// the unknown fallback.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var already *ClassifiedError
	if errors.As(err, &already) {
		return already
	}

	// Cancellation.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newClassified(ClassCancelled, err)
	}

	var apiErr *llm.APIError
	hasAPI := errors.As(err, &apiErr)

	// Network.
	var netErr net.Error
	if errors.As(err, &netErr) || (hasAPI && apiErr.StatusCode == 0 && looksLikeNetwork(err)) || looksLikeNetwork(err) {
		return newClassified(ClassNetwork, err)
	}

	if hasAPI && apiErr.StatusCode > 0 {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return newClassified(ClassAuth, err)
		case apiErr.StatusCode == 429:
			ce := newClassified(ClassRateLimit, err)
			ce.RetryAfter = apiErr.RetryAfter
			return ce
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return newClassified(ClassBadRequest, err)
		case apiErr.StatusCode >= 500:
			return newClassified(ClassServer, err)
		}
	}

	// String heuristics for SDKs that surface failures as opaque errors.
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "api key", "unauthorized", "authentication", "invalid_api_key"):
		return newClassified(ClassAuth, err)
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "429"):
		return newClassified(ClassRateLimit, err)
	case containsAny(msg, "bad request", "invalid request", "400"):
		return newClassified(ClassBadRequest, err)
	case containsAny(msg, "internal server", "overloaded", "bad gateway", "unavailable", "500", "502", "503", "529"):
		return newClassified(ClassServer, err)
	}

	return newClassified(ClassUnknown, err)
}

// looksLikeNetwork reports whether an error message names a connectivity
// failure that the typed checks above missed.
func looksLikeNetwork(err error) bool {
	msg := strings.ToLower(err.Error())
	return containsAny(msg,
		"connection refused", "connection reset", "no such host",
		"network is unreachable", "broken pipe", "i/o timeout", "eof",
		"dial tcp", "tls handshake",
	)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
