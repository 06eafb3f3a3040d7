package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the application tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(meterName)
}

// StartTurn opens a span covering one conversation turn. The returned span
// must be ended by the caller.
func StartTurn(ctx context.Context, inputMethod string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "conversation.turn",
		trace.WithAttributes(attribute.String("input_method", inputMethod)),
	)
}

// StartCapture opens a span covering one voice capture attempt.
func StartCapture(ctx context.Context, locale string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "speech.capture",
		trace.WithAttributes(attribute.String("locale", locale)),
	)
}
