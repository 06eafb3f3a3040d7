// Package observe provides application-wide observability primitives for
// NeuralOS: OpenTelemetry metrics, tracing, and the Prometheus exporter
// bridge that ties them to a /metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([Default]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all NeuralOS metrics.
const meterName = "github.com/neuralos/neuralos"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// CompletionDuration tracks end-to-end LLM request latency, including
	// internal retries.
	CompletionDuration metric.Float64Histogram

	// TurnDuration tracks full conversation turn latency (send → complete).
	TurnDuration metric.Float64Histogram

	// CompletionRequests counts LLM requests. Use with attributes:
	//   attribute.String("status", "ok"|"error")
	CompletionRequests metric.Int64Counter

	// CompletionRetries counts internal retry attempts. Use with attribute:
	//   attribute.String("class", ...)
	CompletionRetries metric.Int64Counter

	// InputTokens and OutputTokens count tokens consumed and generated.
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// SpeechErrors counts classified speech capture errors. Use with attribute:
	//   attribute.String("class", ...)
	SpeechErrors metric.Int64Counter

	// ActionDispatches counts dispatched response actions. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	ActionDispatches metric.Int64Counter

	// ActiveCaptures tracks the number of live voice captures (0 or 1 per
	// session, summed across sessions).
	ActiveCaptures metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversational latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CompletionDuration, err = m.Float64Histogram("neuralos.completion.duration",
		metric.WithDescription("Latency of LLM completion requests including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("neuralos.turn.duration",
		metric.WithDescription("Latency of full conversation turns."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompletionRequests, err = m.Int64Counter("neuralos.completion.requests",
		metric.WithDescription("Number of LLM completion requests."),
	); err != nil {
		return nil, err
	}
	if met.CompletionRetries, err = m.Int64Counter("neuralos.completion.retries",
		metric.WithDescription("Number of internal completion retry attempts."),
	); err != nil {
		return nil, err
	}
	if met.InputTokens, err = m.Int64Counter("neuralos.tokens.input",
		metric.WithDescription("Prompt tokens consumed."),
	); err != nil {
		return nil, err
	}
	if met.OutputTokens, err = m.Int64Counter("neuralos.tokens.output",
		metric.WithDescription("Completion tokens generated."),
	); err != nil {
		return nil, err
	}
	if met.SpeechErrors, err = m.Int64Counter("neuralos.speech.errors",
		metric.WithDescription("Classified speech capture errors."),
	); err != nil {
		return nil, err
	}
	if met.ActionDispatches, err = m.Int64Counter("neuralos.actions.dispatched",
		metric.WithDescription("Response actions routed to the dispatcher."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("neuralos.speech.active_captures",
		metric.WithDescription("Number of live voice captures."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the process-wide [Metrics] instance, creating it on first
// use from the global OTel meter provider. Instrument creation errors fall
// back to a no-op meter, so Default never returns nil.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Extremely unlikely; record nothing rather than crash.
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Status returns a metric attribute option for a request outcome.
func Status(ok bool) metric.MeasurementOption {
	s := "ok"
	if !ok {
		s = "error"
	}
	return metric.WithAttributes(attribute.String("status", s))
}

// Class returns a metric attribute option for an error classification.
func Class(class string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("class", class))
}

// Command returns metric attribute options for an action dispatch outcome.
func Command(command string, ok bool) metric.MeasurementOption {
	s := "ok"
	if !ok {
		s = "error"
	}
	return metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", s),
	)
}

// RecordCompletion is a convenience for the completion client's success path.
func (m *Metrics) RecordCompletion(ctx context.Context, seconds float64, ok bool) {
	if m == nil || m.CompletionDuration == nil {
		return
	}
	m.CompletionDuration.Record(ctx, seconds)
	m.CompletionRequests.Add(ctx, 1, Status(ok))
}

// RecordTokens accumulates token usage counters.
func (m *Metrics) RecordTokens(ctx context.Context, input, output int) {
	if m == nil || m.InputTokens == nil {
		return
	}
	m.InputTokens.Add(ctx, int64(input))
	m.OutputTokens.Add(ctx, int64(output))
}
