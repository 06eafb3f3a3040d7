package completion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neuralos/neuralos/pkg/provider/llm"
)

func TestClassify_Cancellation(t *testing.T) {
	for _, err := range []error{context.Canceled, context.DeadlineExceeded} {
		ce := Classify(fmt.Errorf("wrapped: %w", err))
		if ce.Class != ClassCancelled {
			t.Errorf("Classify(%v).Class = %q, want cancelled", err, ce.Class)
		}
		if ce.Retryable() {
			t.Errorf("cancelled must not be retryable")
		}
	}
}

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   Class
	}{
		{401, ClassAuth},
		{403, ClassAuth},
		{429, ClassRateLimit},
		{400, ClassBadRequest},
		{404, ClassBadRequest},
		{500, ClassServer},
		{503, ClassServer},
	}
	for _, tt := range tests {
		err := &llm.APIError{StatusCode: tt.status, Err: errors.New("x")}
		if got := Classify(err).Class; got != tt.want {
			t.Errorf("status %d: class = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestClassify_RateLimitCarriesRetryAfter(t *testing.T) {
	err := &llm.APIError{StatusCode: 429, RetryAfter: 15 * time.Second, Err: errors.New("throttled")}
	ce := Classify(err)
	if ce.Class != ClassRateLimit {
		t.Fatalf("class = %q, want rate_limit", ce.Class)
	}
	if ce.RetryAfter != 15*time.Second {
		t.Errorf("RetryAfter = %v, want 15s", ce.RetryAfter)
	}
	if !ce.Retryable() {
		t.Error("rate_limit must be retryable")
	}
}

func TestClassify_NetworkStrings(t *testing.T) {
	for _, msg := range []string{
		"dial tcp 1.2.3.4:443: connection refused",
		"read: connection reset by peer",
		"lookup api.example.com: no such host",
	} {
		ce := Classify(errors.New(msg))
		if ce.Class != ClassNetwork {
			t.Errorf("Classify(%q).Class = %q, want network", msg, ce.Class)
		}
	}
}

func TestClassify_StringHeuristics(t *testing.T) {
	tests := []struct {
		msg  string
		want Class
	}{
		{"invalid_api_key: check your credentials", ClassAuth},
		{"rate limit exceeded, try later", ClassRateLimit},
		{"invalid request: missing field", ClassBadRequest},
		{"upstream overloaded", ClassServer},
		{"something inexplicable", ClassUnknown},
	}
	for _, tt := range tests {
		if got := Classify(errors.New(tt.msg)).Class; got != tt.want {
			t.Errorf("Classify(%q).Class = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	orig := newClassified(ClassAuth, errors.New("nope"))
	if got := Classify(fmt.Errorf("outer: %w", orig)); got != orig {
		t.Errorf("Classify did not pass through an already classified error")
	}
}

func TestClassifiedError_MessageNeverLeaksCause(t *testing.T) {
	ce := Classify(&llm.APIError{StatusCode: 500, Err: errors.New("secret internal detail")})
	if ce.Message == "" {
		t.Fatal("Message is empty")
	}
	if ce.Message == ce.Error() {
		t.Error("user message equals diagnostic text")
	}
	for class, msg := range userMessages {
		if msg == "" {
			t.Errorf("class %q has no user message", class)
		}
	}
}

func TestRetryable(t *testing.T) {
	retryable := map[Class]bool{
		ClassNetwork:    true,
		ClassRateLimit:  true,
		ClassServer:     true,
		ClassUnknown:    true,
		ClassAuth:       false,
		ClassBadRequest: false,
		ClassCancelled:  false,
	}
	for class, want := range retryable {
		ce := newClassified(class, errors.New("x"))
		if got := ce.Retryable(); got != want {
			t.Errorf("%q.Retryable() = %v, want %v", class, got, want)
		}
	}
}
