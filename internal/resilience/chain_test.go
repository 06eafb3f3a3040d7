package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neuralos/neuralos/pkg/provider/llm"
	"github.com/neuralos/neuralos/pkg/provider/llm/mock"
)

func TestChain_PrimaryServes(t *testing.T) {
	primary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary"}}
	fallback := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "fallback"}}
	c := NewChain("primary", primary, BreakerConfig{})
	c.Add("fallback", fallback)

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("Content = %q, want primary", resp.Content)
	}
	if fallback.CompleteCallCount() != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.CompleteCallCount())
	}
}

func TestChain_FailsOverOnServerError(t *testing.T) {
	primary := &mock.Provider{CompleteErr: &llm.APIError{StatusCode: 503, Err: errors.New("down")}}
	fallback := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "fallback"}}
	c := NewChain("primary", primary, BreakerConfig{})
	c.Add("fallback", fallback)

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "fallback" {
		t.Errorf("Content = %q, want fallback", resp.Content)
	}
}

func TestChain_NoFailOverOnBadRequest(t *testing.T) {
	primary := &mock.Provider{CompleteErr: &llm.APIError{StatusCode: 400, Err: errors.New("malformed")}}
	fallback := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "fallback"}}
	c := NewChain("primary", primary, BreakerConfig{})
	c.Add("fallback", fallback)

	_, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err == nil {
		t.Fatal("Complete succeeded, want bad request error")
	}
	if fallback.CompleteCallCount() != 0 {
		t.Errorf("fallback called on a bad request")
	}
}

func TestChain_AuthFailureDoesFailOver(t *testing.T) {
	// Each backend has its own credentials; a rejected key on one says nothing
	// about the next.
	primary := &mock.Provider{CompleteErr: &llm.APIError{StatusCode: 401, Err: errors.New("bad key")}}
	fallback := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "fallback"}}
	c := NewChain("primary", primary, BreakerConfig{})
	c.Add("fallback", fallback)

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "fallback" {
		t.Errorf("Content = %q, want fallback", resp.Content)
	}
}

func TestChain_CancellationStopsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "x"}}
	fallback := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "y"}}
	c := NewChain("primary", primary, BreakerConfig{})
	c.Add("fallback", fallback)

	_, err := c.Complete(ctx, llm.CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Complete = %v, want context.Canceled", err)
	}
	if primary.CompleteCallCount() != 0 || fallback.CompleteCallCount() != 0 {
		t.Error("backends were called after cancellation")
	}
}

func TestChain_Exhausted(t *testing.T) {
	primary := &mock.Provider{CompleteErr: &llm.APIError{StatusCode: 500, Err: errors.New("a")}}
	fallback := &mock.Provider{CompleteErr: &llm.APIError{StatusCode: 502, Err: errors.New("b")}}
	c := NewChain("primary", primary, BreakerConfig{})
	c.Add("fallback", fallback)

	_, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrChainExhausted) {
		t.Errorf("Complete = %v, want ErrChainExhausted", err)
	}
}

func TestChain_OpenBreakerSkipsBackend(t *testing.T) {
	primary := &mock.Provider{CompleteErr: &llm.APIError{StatusCode: 500, Err: errors.New("down")}}
	fallback := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "fallback"}}
	c := NewChain("primary", primary, BreakerConfig{FailureLimit: 2, OpenFor: time.Hour})
	c.Add("fallback", fallback)

	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}
	// Primary's breaker is now open; it must not see further traffic.
	before := primary.CompleteCallCount()
	if _, err := c.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if primary.CompleteCallCount() != before {
		t.Errorf("open backend still receiving calls")
	}
}

func TestChain_StreamFailsOver(t *testing.T) {
	primary := &mock.Provider{StreamErr: &llm.APIError{StatusCode: 503, Err: errors.New("down")}}
	fallback := &mock.Provider{
		StreamChunks: []llm.Chunk{{Text: "hi"}, {FinishReason: "stop"}},
	}
	c := NewChain("primary", primary, BreakerConfig{})
	c.Add("fallback", fallback)

	ch, err := c.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	first := <-ch
	if first.Text != "hi" {
		t.Errorf("first chunk = %+v", first)
	}
}

func TestChain_CapabilitiesFromPrimary(t *testing.T) {
	primary := &mock.Provider{Caps: llm.ModelCapabilities{SupportsStreaming: true}}
	fallback := &mock.Provider{}
	c := NewChain("primary", primary, BreakerConfig{})
	c.Add("fallback", fallback)

	if !c.Capabilities().SupportsStreaming {
		t.Error("Capabilities not taken from primary")
	}
}
