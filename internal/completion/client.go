// Package completion implements the conversational exchange with an LLM
// backend: one cancellable, retryable, incrementally-observable request at a
// time.
//
// The client exposes the same chunk contract whether the underlying provider
// streams natively or completes atomically — atomic responses are re-emitted
// as a single text chunk followed by a final chunk, so callers never need to
// know which delivery mode is in effect.
package completion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/neuralos/neuralos/internal/observe"
	"github.com/neuralos/neuralos/pkg/provider/llm"
)

// Default retry and backoff parameters.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// StreamChunk is one increment of a streamed response.
//
// Exactly one terminal chunk ends every stream: either Final is true (success,
// possibly with an empty Delta) or Err is non-nil (failure after retries are
// exhausted). When the caller's context is cancelled the channel closes with
// no terminal chunk at all — cancellation suppresses further delivery.
type StreamChunk struct {
	// Delta is the new text carried by this chunk. May be empty on the final
	// chunk.
	Delta string

	// Accumulated is the full response text so far. Monotonically growing
	// across the chunks of one request.
	Accumulated string

	// Final marks the successful end of the stream.
	Final bool

	// Err is set instead of Final when the request failed.
	Err *ClassifiedError
}

// Options carries the per-request parameters of one exchange.
type Options struct {
	// History is the prior conversation, oldest first. The client does not
	// bound it; the session controller trims before calling.
	History []llm.Message

	// MaxTokens and Temperature override the provider defaults when non-zero.
	MaxTokens   int
	Temperature float64

	// Persona overrides the default system personality block when non-empty.
	Persona string

	// Context is optional situational context embedded in the system prompt.
	Context string

	// Method selects the input-specific prompt addendum.
	Method InputMethod
}

// Result is the outcome of a non-streaming Send.
type Result struct {
	// Text is the complete response.
	Text string

	// Usage is the token accounting for the exchange.
	Usage llm.Usage

	// Elapsed is the wall-clock duration including internal retries.
	Elapsed time.Duration
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithMaxRetries sets the retry ceiling after the first attempt. Default: 3.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithInitialBackoff sets the first retry delay. Doubles each attempt up to
// the maximum. Default: 1s.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initialBackoff = d
		}
	}
}

// WithMaxBackoff caps the computed backoff. Default: 30s.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithMetrics attaches observability instruments. A nil metrics value (the
// default) records nothing.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client performs conversational exchanges against one llm.Provider.
//
// Client is safe for concurrent use, but the session controller guarantees at
// most one in-flight request per conversation; Stats accounting relies on
// that discipline only for turn ordering, not for memory safety.
type Client struct {
	provider llm.Provider
	metrics  *observe.Metrics
	stats    Stats

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// sleep is replaceable in tests so backoff schedules can be observed
	// without real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client over the given provider.
func New(provider llm.Provider, opts ...Option) *Client {
	c := &Client{
		provider:       provider,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		sleep:          sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stats returns the client's cumulative counters.
func (c *Client) Stats() *Stats { return &c.stats }

// Stream performs one exchange and delivers the response incrementally.
//
// The returned channel always closes; see [StreamChunk] for the terminal
// contract. Cancellation of ctx stops delivery immediately: no further chunks
// and no error chunk are sent, even if a transport failure raced the cancel.
func (c *Client) Stream(ctx context.Context, userMessage string, opts Options) <-chan StreamChunk {
	out := make(chan StreamChunk, 16)
	go c.run(ctx, userMessage, opts, out)
	return out
}

// Send performs one exchange and waits for the complete response. Same retry
// and classification semantics as Stream.
func (c *Client) Send(ctx context.Context, userMessage string, opts Options) (*Result, error) {
	req := c.buildRequest(userMessage, opts)
	start := time.Now()

	resp, cerr := c.completeWithRetry(ctx, req)
	if cerr != nil {
		c.metrics.RecordCompletion(ctx, time.Since(start).Seconds(), false)
		return nil, cerr
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage = estimateUsage(req, resp.Content)
	}
	c.finishSuccess(ctx, start, usage)

	return &Result{
		Text:    resp.Content,
		Usage:   usage,
		Elapsed: time.Since(start),
	}, nil
}

// run drives the attempt/retry loop for one streamed exchange.
func (c *Client) run(ctx context.Context, userMessage string, opts Options, out chan<- StreamChunk) {
	defer close(out)

	req := c.buildRequest(userMessage, opts)
	start := time.Now()
	backoff := c.initialBackoff

	var lastErr *ClassifiedError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			wait := backoff
			if lastErr.RetryAfter > 0 {
				// A server hint (e.g. a rate-limit Retry-After) overrides the
				// computed schedule.
				wait = lastErr.RetryAfter
			}
			slog.Info("retrying completion",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"class", lastErr.Class,
				"wait", wait,
			)
			if c.metrics != nil && c.metrics.CompletionRetries != nil {
				c.metrics.CompletionRetries.Add(ctx, 1, observe.Class(string(lastErr.Class)))
			}
			if err := c.sleep(ctx, wait); err != nil {
				return
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		usage, cerr, emitted := c.attempt(ctx, req, out)
		if cerr == nil {
			c.finishSuccess(ctx, start, usage)
			return
		}
		if ctx.Err() != nil {
			// Cancellation raced the failure; suppress the error report.
			return
		}
		lastErr = cerr
		if !cerr.Retryable() || emitted {
			// Once text has been delivered the accumulated value cannot be
			// rewound, so a mid-stream failure is surfaced rather than retried.
			break
		}
	}

	c.metrics.RecordCompletion(ctx, time.Since(start).Seconds(), false)
	slog.Warn("completion failed",
		"class", lastErr.Class,
		"err", lastErr,
	)
	select {
	case out <- StreamChunk{Err: lastErr}:
	case <-ctx.Done():
	}
}

// attempt performs a single exchange, emitting text chunks to out. It reports
// the usage on success, the classified error on failure, and whether any text
// chunk was delivered before the failure.
func (c *Client) attempt(ctx context.Context, req llm.CompletionRequest, out chan<- StreamChunk) (llm.Usage, *ClassifiedError, bool) {
	if !c.provider.Capabilities().SupportsStreaming {
		return c.attemptAtomic(ctx, req, out)
	}

	ch, err := c.provider.StreamCompletion(ctx, req)
	if err != nil {
		return llm.Usage{}, Classify(err), false
	}

	var acc strings.Builder
	emitted := false
	for chunk := range ch {
		if ctx.Err() != nil {
			return llm.Usage{}, newClassified(ClassCancelled, ctx.Err()), emitted
		}

		if chunk.FinishReason == "error" {
			cause := chunk.Err
			if cause == nil {
				cause = errors.New("stream failed")
			}
			return llm.Usage{}, Classify(cause), emitted
		}

		if chunk.Text != "" {
			acc.WriteString(chunk.Text)
			if !c.emit(ctx, out, StreamChunk{Delta: chunk.Text, Accumulated: acc.String()}) {
				return llm.Usage{}, newClassified(ClassCancelled, ctx.Err()), emitted
			}
			emitted = true
		}

		if chunk.FinishReason != "" {
			usage := llm.Usage{}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			} else {
				usage = estimateUsage(req, acc.String())
			}
			if !c.emit(ctx, out, StreamChunk{Accumulated: acc.String(), Final: true}) {
				return llm.Usage{}, newClassified(ClassCancelled, ctx.Err()), emitted
			}
			return usage, nil, emitted
		}
	}

	// The provider closed the channel without a terminal chunk.
	if ctx.Err() != nil {
		return llm.Usage{}, newClassified(ClassCancelled, ctx.Err()), emitted
	}
	return llm.Usage{}, newClassified(ClassUnknown, errors.New("stream ended without a final chunk")), emitted
}

// attemptAtomic satisfies the chunk contract over a provider that only
// completes atomically: the full text as one chunk, then the final chunk.
func (c *Client) attemptAtomic(ctx context.Context, req llm.CompletionRequest, out chan<- StreamChunk) (llm.Usage, *ClassifiedError, bool) {
	resp, err := c.provider.Complete(ctx, req)
	if err != nil {
		return llm.Usage{}, Classify(err), false
	}

	if !c.emit(ctx, out, StreamChunk{Delta: resp.Content, Accumulated: resp.Content}) {
		return llm.Usage{}, newClassified(ClassCancelled, ctx.Err()), false
	}
	if !c.emit(ctx, out, StreamChunk{Accumulated: resp.Content, Final: true}) {
		return llm.Usage{}, newClassified(ClassCancelled, ctx.Err()), true
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage = estimateUsage(req, resp.Content)
	}
	return usage, nil, true
}

// completeWithRetry is the atomic retry loop shared by Send.
func (c *Client) completeWithRetry(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, *ClassifiedError) {
	backoff := c.initialBackoff

	var lastErr *ClassifiedError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, newClassified(ClassCancelled, err)
		}
		if attempt > 0 {
			wait := backoff
			if lastErr.RetryAfter > 0 {
				wait = lastErr.RetryAfter
			}
			slog.Info("retrying completion",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"class", lastErr.Class,
				"wait", wait,
			)
			if c.metrics != nil && c.metrics.CompletionRetries != nil {
				c.metrics.CompletionRetries.Add(ctx, 1, observe.Class(string(lastErr.Class)))
			}
			if err := c.sleep(ctx, wait); err != nil {
				return nil, newClassified(ClassCancelled, err)
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		resp, err := c.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, newClassified(ClassCancelled, ctx.Err())
		}
		lastErr = Classify(err)
		if !lastErr.Retryable() {
			break
		}
	}
	return nil, lastErr
}

// emit sends a chunk unless the context was cancelled. Reports delivery.
func (c *Client) emit(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// finishSuccess records stats and metrics for a completed exchange.
func (c *Client) finishSuccess(ctx context.Context, start time.Time, usage llm.Usage) {
	c.stats.record(usage)
	c.metrics.RecordCompletion(ctx, time.Since(start).Seconds(), true)
	c.metrics.RecordTokens(ctx, usage.PromptTokens, usage.CompletionTokens)
}

// buildRequest assembles the message list and a freshly composed system
// prompt. The prompt embeds the current timestamp and is therefore never
// cached across requests.
func (c *Client) buildRequest(userMessage string, opts Options) llm.CompletionRequest {
	messages := make([]llm.Message, 0, len(opts.History)+1)
	messages = append(messages, opts.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})

	return llm.CompletionRequest{
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		SystemPrompt: BuildSystemPrompt(PromptSpec{
			Persona: opts.Persona,
			Method:  opts.Method,
			Context: opts.Context,
		}),
	}
}

// estimateUsage approximates token counts for providers that do not report
// usage. ~4 chars per token is a rough approximation for most models.
func estimateUsage(req llm.CompletionRequest, output string) llm.Usage {
	input := (len(req.SystemPrompt) + 3) / 4
	for _, m := range req.Messages {
		input += (len(m.Content)+3)/4 + 4
	}
	out := (len(output) + 3) / 4
	return llm.Usage{
		PromptTokens:     input,
		CompletionTokens: out,
		TotalTokens:      input + out,
	}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
