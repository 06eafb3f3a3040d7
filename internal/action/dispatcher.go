// Package action executes the directives a response carries. Commands are
// registered by name; the dispatcher validates and routes an activated
// directive to its handler.
package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/neuralos/neuralos/internal/directive"
	"github.com/neuralos/neuralos/internal/observe"
)

// Result is the outcome of one dispatched action.
type Result struct {
	// Success reports whether the action took effect.
	Success bool

	// Message is a short user-facing confirmation or failure description.
	Message string
}

// Handler executes one command. Params arrive verbatim from the directive.
type Handler func(ctx context.Context, params map[string]string) (Result, error)

// ErrUnknownCommand wraps the command name of an unregistered dispatch.
type ErrUnknownCommand struct {
	Command string
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("action: unknown command %q", e.Command)
}

// DispatcherOption is a functional option for configuring a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics attaches observability instruments.
func WithMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher routes action directives to registered handlers. Safe for
// concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	metrics  *observe.Metrics
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler)}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Register binds a command name to a handler. Re-registering a name is an
// error; commands are wired once at startup.
func (d *Dispatcher) Register(command string, h Handler) error {
	if command == "" {
		return fmt.Errorf("action: empty command name")
	}
	if h == nil {
		return fmt.Errorf("action: nil handler for %q", command)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[command]; exists {
		return fmt.Errorf("action: command %q already registered", command)
	}
	d.handlers[command] = h
	return nil
}

// Commands returns the registered command names, for diagnostics.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	return out
}

// Dispatch executes one activated directive. An unknown command returns
// *ErrUnknownCommand without side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, act directive.Action) (Result, error) {
	d.mu.RLock()
	h, ok := d.handlers[act.Command]
	d.mu.RUnlock()
	if !ok {
		d.record(ctx, act.Command, false)
		return Result{}, &ErrUnknownCommand{Command: act.Command}
	}

	res, err := h(ctx, act.Params)
	d.record(ctx, act.Command, err == nil && res.Success)
	if err != nil {
		return Result{}, fmt.Errorf("action: %s: %w", act.Command, err)
	}
	return res, nil
}

func (d *Dispatcher) record(ctx context.Context, command string, ok bool) {
	if d.metrics == nil || d.metrics.ActionDispatches == nil {
		return
	}
	d.metrics.ActionDispatches.Add(ctx, 1, observe.Command(command, ok))
}
