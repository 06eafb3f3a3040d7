package completion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neuralos/neuralos/pkg/provider/llm"
	"github.com/neuralos/neuralos/pkg/provider/llm/mock"
)

// newTestClient wires a client whose sleeps complete instantly while
// recording the requested waits.
func newTestClient(p llm.Provider, opts ...Option) (*Client, *[]time.Duration) {
	c := New(p, opts...)
	waits := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
	return c, waits
}

func collect(ch <-chan StreamChunk) []StreamChunk {
	var out []StreamChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestStream_ChunkContract(t *testing.T) {
	p := &mock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "Hel"},
			{Text: "lo."},
			{FinishReason: "stop", Usage: &llm.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}},
		},
		Caps: llm.ModelCapabilities{SupportsStreaming: true},
	}
	c, _ := newTestClient(p)

	chunks := collect(c.Stream(context.Background(), "hi", Options{}))
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if chunks[0].Delta != "Hel" || chunks[0].Accumulated != "Hel" {
		t.Errorf("chunk 0 = %+v", chunks[0])
	}
	if chunks[1].Delta != "lo." || chunks[1].Accumulated != "Hello." {
		t.Errorf("chunk 1 = %+v", chunks[1])
	}
	final := chunks[2]
	if !final.Final || final.Err != nil || final.Accumulated != "Hello." {
		t.Errorf("final chunk = %+v", final)
	}

	// Accumulated length strictly increases until the final chunk.
	for i := 1; i < len(chunks)-1; i++ {
		if len(chunks[i].Accumulated) <= len(chunks[i-1].Accumulated) {
			t.Errorf("accumulated length not increasing at chunk %d", i)
		}
	}

	snap := c.Stats().Snapshot()
	if snap.RequestCount != 1 || snap.InputTokens != 10 || snap.OutputTokens != 2 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestStream_AtomicProviderSimulatesStream(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Full answer."},
		Caps:             llm.ModelCapabilities{SupportsStreaming: false},
	}
	c, _ := newTestClient(p)

	chunks := collect(c.Stream(context.Background(), "hi", Options{}))
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2 (text + final)", len(chunks))
	}
	if chunks[0].Delta != "Full answer." {
		t.Errorf("chunk 0 = %+v", chunks[0])
	}
	if !chunks[1].Final || chunks[1].Accumulated != "Full answer." {
		t.Errorf("final = %+v", chunks[1])
	}

	// No usage from the provider: the client estimates instead of reporting
	// zero.
	snap := c.Stats().Snapshot()
	if snap.OutputTokens == 0 {
		t.Error("OutputTokens = 0, want an estimate")
	}
}

func TestStream_RetryExhaustionSurfacesOneError(t *testing.T) {
	serverErr := &llm.APIError{StatusCode: 500, Err: errors.New("boom")}
	p := &mock.Provider{
		CompleteErr: serverErr,
		Caps:        llm.ModelCapabilities{SupportsStreaming: false},
	}
	c, waits := newTestClient(p)

	chunks := collect(c.Stream(context.Background(), "hi", Options{}))

	// 1 initial attempt + 3 retries.
	if got := p.CompleteCallCount(); got != 4 {
		t.Fatalf("attempts = %d, want 4", got)
	}
	// Exactly one terminal error chunk, nothing else.
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].Err == nil || chunks[0].Final {
		t.Fatalf("terminal chunk = %+v, want error", chunks[0])
	}
	if chunks[0].Err.Class != ClassServer {
		t.Errorf("class = %q, want server", chunks[0].Err.Class)
	}
	// Exponential backoff: 1s, 2s, 4s.
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
	for i, w := range want {
		if (*waits)[i] != w {
			t.Errorf("wait %d = %v, want %v", i, (*waits)[i], w)
		}
	}
	// Failed requests never touch the counters.
	if snap := c.Stats().Snapshot(); snap.RequestCount != 0 {
		t.Errorf("RequestCount = %d, want 0", snap.RequestCount)
	}
}

func TestStream_NonRetryableFailsImmediately(t *testing.T) {
	p := &mock.Provider{
		CompleteErr: &llm.APIError{StatusCode: 401, Err: errors.New("bad key")},
		Caps:        llm.ModelCapabilities{SupportsStreaming: false},
	}
	c, waits := newTestClient(p)

	chunks := collect(c.Stream(context.Background(), "hi", Options{}))
	if got := p.CompleteCallCount(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
	if len(*waits) != 0 {
		t.Errorf("waits = %v, want none", *waits)
	}
	if len(chunks) != 1 || chunks[0].Err == nil || chunks[0].Err.Class != ClassAuth {
		t.Errorf("chunks = %+v, want single auth error", chunks)
	}
}

func TestStream_RateLimitHintOverridesBackoff(t *testing.T) {
	hint := 15 * time.Second
	calls := 0
	p := &mock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls++
			if calls == 1 {
				return nil, &llm.APIError{StatusCode: 429, RetryAfter: hint, Err: errors.New("slow down")}
			}
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
		Caps: llm.ModelCapabilities{SupportsStreaming: false},
	}
	c, waits := newTestClient(p)

	chunks := collect(c.Stream(context.Background(), "hi", Options{}))
	if len(*waits) != 1 || (*waits)[0] < hint {
		t.Fatalf("waits = %v, want one wait >= %v", *waits, hint)
	}
	last := chunks[len(chunks)-1]
	if !last.Final {
		t.Errorf("last chunk = %+v, want final", last)
	}
}

// gatedStream emits one chunk and then holds the stream open until the request
// context is cancelled, so cancellation tests are not racing stream completion.
type gatedStream struct{}

func (gatedStream) StreamCompletion(ctx context.Context, _ llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		select {
		case ch <- llm.Chunk{Text: "first"}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return ch, nil
}

func (gatedStream) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("gated stream provider streams only")
}

func (gatedStream) Capabilities() llm.ModelCapabilities {
	return llm.ModelCapabilities{SupportsStreaming: true}
}

func TestStream_CancelSuppressesAllFurtherChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, _ := newTestClient(gatedStream{})

	ch := c.Stream(ctx, "hi", Options{})
	first := <-ch
	if first.Delta != "first" {
		t.Fatalf("first chunk = %+v", first)
	}
	cancel()

	// After cancellation the channel must close without a terminal chunk.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			if chunk.Final || chunk.Err != nil {
				t.Fatalf("terminal chunk after cancel: %+v", chunk)
			}
		case <-deadline:
			t.Fatal("stream did not close after cancel")
		}
	}
}

func TestStream_CancelDuringBackoffAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &mock.Provider{
		CompleteErr: &llm.APIError{StatusCode: 503, Err: errors.New("unavailable")},
		Caps:        llm.ModelCapabilities{SupportsStreaming: false},
	}
	c := New(p)
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	chunks := collect(c.Stream(ctx, "hi", Options{}))
	if len(chunks) != 0 {
		t.Errorf("chunks = %+v, want none after cancel during backoff", chunks)
	}
	if got := p.CompleteCallCount(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestStream_MidStreamErrorNotRetried(t *testing.T) {
	p := &mock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "partial"},
			{FinishReason: "error", Err: &llm.APIError{StatusCode: 502, Err: errors.New("gateway")}},
		},
		Caps: llm.ModelCapabilities{SupportsStreaming: true},
	}
	c, waits := newTestClient(p)

	chunks := collect(c.Stream(context.Background(), "hi", Options{}))
	if len(*waits) != 0 {
		t.Errorf("waits = %v, want none (no rewind after emitted text)", *waits)
	}
	last := chunks[len(chunks)-1]
	if last.Err == nil || last.Err.Class != ClassServer {
		t.Errorf("last chunk = %+v, want server error", last)
	}
}

func TestSend_ReturnsFullText(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "Answer.",
			Usage:   llm.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
		},
	}
	c, _ := newTestClient(p)

	res, err := c.Send(context.Background(), "question", Options{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Text != "Answer." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Usage.TotalTokens != 8 {
		t.Errorf("Usage = %+v", res.Usage)
	}
}

func TestBuildRequest_AppendsUserMessage(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "ok"},
	}
	c, _ := newTestClient(p)

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "earlier"},
		{Role: llm.RoleAssistant, Content: "reply"},
	}
	if _, err := c.Send(context.Background(), "now", Options{History: history, Method: InputVoice}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	req := p.CompleteCalls[0].Req
	if len(req.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(req.Messages))
	}
	lastMsg := req.Messages[2]
	if lastMsg.Role != llm.RoleUser || lastMsg.Content != "now" {
		t.Errorf("last message = %+v", lastMsg)
	}
	if !strings.Contains(req.SystemPrompt, "speaking, not typing") {
		t.Error("voice addendum missing from system prompt")
	}
}
