// Package session orchestrates conversation turns: it owns the rolling
// history, guarantees a single in-flight completion per conversation, drives
// the directive parser over the growing response, and fans turn progress out
// to subscribers.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neuralos/neuralos/internal/archive"
	"github.com/neuralos/neuralos/internal/completion"
	"github.com/neuralos/neuralos/internal/config"
	"github.com/neuralos/neuralos/internal/directive"
	"github.com/neuralos/neuralos/internal/observe"
	"github.com/neuralos/neuralos/pkg/provider/llm"
)

// TurnState is the per-turn state driving the UI surface.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnSending
	TurnStreaming
	TurnComplete
	TurnError
)

// String implements fmt.Stringer.
func (t TurnState) String() string {
	switch t {
	case TurnIdle:
		return "idle"
	case TurnSending:
		return "sending"
	case TurnStreaming:
		return "streaming"
	case TurnComplete:
		return "complete"
	case TurnError:
		return "error"
	}
	return "unknown"
}

// EventKind discriminates controller events.
type EventKind int

const (
	// EventTurnState reports a state transition; State is set.
	EventTurnState EventKind = iota

	// EventChunk reports response progress; Response and Parsed reflect the
	// text so far. Parsed directives are provisional until EventComplete.
	EventChunk

	// EventComplete reports the finished turn with finalized directives.
	EventComplete

	// EventTurnError reports a failed turn; Err is set.
	EventTurnError
)

// Event is one turn notification.
type Event struct {
	Kind     EventKind
	State    TurnState
	Response string
	Parsed   directive.Parsed
	Err      *completion.ClassifiedError
}

// Config tunes a Controller.
type Config struct {
	// HistoryLimit bounds the rolling context window in messages. Default: 10.
	HistoryLimit int

	// MaxTokens and Temperature are passed through to every request.
	MaxTokens   int
	Temperature float64

	// Persona overrides the default system personality block when non-empty.
	Persona string
}

// ControllerOption is a functional option for configuring a Controller.
type ControllerOption func(*Controller)

// WithArchive persists completed turns to the given store. Writes are
// asynchronous and best-effort; a failed write never affects the turn.
func WithArchive(store archive.Store) ControllerOption {
	return func(c *Controller) { c.archive = store }
}

// WithMetrics attaches observability instruments.
func WithMetrics(m *observe.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithSettings sources turn tuning from the live settings store instead of
// the static Config. Each turn reads one snapshot when it starts, so a config
// reload takes effect on the next turn and never mid-stream.
func WithSettings(s *config.Settings) ControllerOption {
	return func(c *Controller) { c.settings = s }
}

// Controller is the per-conversation turn orchestrator. At most one
// completion is in flight at any time; starting a new turn implicitly cancels
// the previous one.
type Controller struct {
	client   *completion.Client
	cfg      Config
	archive  archive.Store
	metrics  *observe.Metrics
	settings *config.Settings

	mu       sync.Mutex
	state    TurnState
	hist     *history
	seq      int
	cancel   context.CancelFunc
	turnDone chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewController creates a Controller over the given completion client.
func NewController(client *completion.Client, cfg Config, opts ...ControllerOption) *Controller {
	c := &Controller{
		client: client,
		cfg:    cfg,
		hist:   newHistory(cfg.HistoryLimit),
		subs:   make(map[int]chan Event),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current turn state.
func (c *Controller) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of the rolling context window.
func (c *Controller) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hist.messages()
}

// Subscribe registers a turn event listener. The returned function removes it
// and closes the channel. Slow listeners lose events rather than stalling the
// turn.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if s, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(s)
		}
	}
}

// SendMessage starts a new turn. Blank input is a no-op and reports false.
// Any prior in-flight turn is cancelled first; the new turn does not issue
// its request until the previous one has fully wound down.
func (c *Controller) SendMessage(ctx context.Context, text string, method completion.InputMethod) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	c.mu.Lock()
	if c.settings != nil {
		r := c.settings.Current()
		c.cfg.MaxTokens = r.MaxTokens
		c.cfg.Temperature = r.Temperature
		c.cfg.Persona = r.Persona
		c.cfg.HistoryLimit = r.HistoryLimit
		c.hist.setLimit(r.HistoryLimit)
	}
	c.cancelTurnLocked()
	prevDone := c.turnDone

	tctx, cancel := context.WithCancel(ctx)
	c.seq++
	seq := c.seq
	c.cancel = cancel
	done := make(chan struct{})
	c.turnDone = done

	prior := c.hist.messages()
	c.hist.append(llm.RoleUser, trimmed)
	c.setStateLocked(TurnSending)

	opts := completion.Options{
		History:     prior,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Persona:     c.cfg.Persona,
		Method:      method,
	}
	c.mu.Unlock()

	go c.runTurn(tctx, cancel, prevDone, done, seq, trimmed, opts, method)
	return true
}

// CancelStream cancels the in-flight turn. The turn settles at idle with no
// assistant entry added to history. Idempotent.
func (c *Controller) CancelStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != TurnSending && c.state != TurnStreaming {
		return
	}
	c.cancelTurnLocked()
	c.setStateLocked(TurnIdle)
}

// ClearTurn resets a finished (complete or error) turn back to idle.
func (c *Controller) ClearTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == TurnComplete || c.state == TurnError {
		c.setStateLocked(TurnIdle)
	}
}

// ClearHistory starts a new conversation: cancels any in-flight turn and
// empties the rolling history.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTurnLocked()
	c.hist.clear()
	c.setStateLocked(TurnIdle)
}

// runTurn drives one completion from request to terminal state.
func (c *Controller) runTurn(ctx context.Context, cancel context.CancelFunc, prevDone, done chan struct{}, seq int, text string, opts completion.Options, method completion.InputMethod) {
	defer close(done)
	defer cancel()

	// Never run two requests concurrently: wait for the cancelled
	// predecessor to wind down before issuing ours.
	if prevDone != nil {
		<-prevDone
	}
	if ctx.Err() != nil {
		return
	}

	tctx, span := observe.StartTurn(ctx, string(method))
	defer span.End()
	start := time.Now()

	streaming := false
	for chunk := range c.client.Stream(tctx, text, opts) {
		if chunk.Err != nil {
			c.failTurn(seq, chunk.Err)
			return
		}

		parsed := directive.Parse(chunk.Accumulated)

		if chunk.Final {
			c.completeTurn(seq, text, chunk.Accumulated, parsed, method, time.Since(start))
			return
		}

		if !streaming {
			streaming = true
			c.setState(seq, TurnStreaming)
		}
		c.publishIfCurrent(seq, Event{
			Kind:     EventChunk,
			Response: chunk.Accumulated,
			Parsed:   parsed,
		})
	}
	// Channel closed with no terminal chunk: the turn was cancelled. State
	// was already settled by the canceller.
}

// completeTurn finalizes a successful turn: records the assistant entry,
// publishes the finalized directives, and archives the exchange.
func (c *Controller) completeTurn(seq int, userText, responseText string, parsed directive.Parsed, method completion.InputMethod, elapsed time.Duration) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.hist.append(llm.RoleAssistant, responseText)
	c.setStateLocked(TurnComplete)
	c.publish(Event{
		Kind:     EventComplete,
		State:    TurnComplete,
		Response: responseText,
		Parsed:   parsed,
	})
	c.mu.Unlock()

	if c.metrics != nil && c.metrics.TurnDuration != nil {
		c.metrics.TurnDuration.Record(context.Background(), elapsed.Seconds(),
			observe.Status(true))
	}
	c.archiveTurn(userText, responseText, method, elapsed)
}

// failTurn settles the turn in the error state. The user entry stays in
// history so a retry can reference it.
func (c *Controller) failTurn(seq int, cerr *completion.ClassifiedError) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(TurnError)
	c.publish(Event{Kind: EventTurnError, State: TurnError, Err: cerr})
	c.mu.Unlock()

	if c.metrics != nil && c.metrics.TurnDuration != nil {
		c.metrics.TurnDuration.Record(context.Background(), 0, observe.Status(false))
	}
}

// archiveTurn persists the exchange asynchronously.
func (c *Controller) archiveTurn(userText, responseText string, method completion.InputMethod, elapsed time.Duration) {
	if c.archive == nil {
		return
	}
	turn := archive.Turn{
		UserText:      userText,
		AssistantText: responseText,
		InputMethod:   string(method),
		Elapsed:       elapsed,
		CreatedAt:     time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.archive.Save(ctx, &turn); err != nil {
			slog.Warn("turn archive write failed", "err", err)
		}
	}()
}

func (c *Controller) cancelTurnLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) setState(seq int, st TurnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		return
	}
	c.setStateLocked(st)
}

func (c *Controller) setStateLocked(st TurnState) {
	if c.state == st {
		return
	}
	c.state = st
	c.publish(Event{Kind: EventTurnState, State: st})
}

func (c *Controller) publishIfCurrent(seq int, ev Event) {
	c.mu.Lock()
	current := seq == c.seq
	c.mu.Unlock()
	if current {
		c.publish(ev)
	}
}

// publish fans an event out to subscribers without blocking.
func (c *Controller) publish(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
