package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	keyTraceparent = "traceparent"
	keyTracestate  = "tracestate"
)

// TraceContextStrings serializes the span in ctx so it can be stored in a row
// (the outbox) and restored by a later process.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c.Get(keyTraceparent), c.Get(keyTracestate)
}

// ContextWithTraceContext is the inverse of TraceContextStrings. Without a
// traceparent ctx is returned unchanged.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	c := propagation.MapCarrier{keyTraceparent: traceparent}
	if tracestate != "" {
		c.Set(keyTracestate, tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}
