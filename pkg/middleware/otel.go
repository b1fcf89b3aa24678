package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "scenesync"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "scenesync").
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider from otel.GetTracerProvider.
	TracerProvider trace.TracerProvider

	// Filter determines which events to trace.
	// If nil, all events are traced.
	Filter func(ev Event) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(ev Event) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithEventFilter sets a filter function for events.
func WithEventFilter(filter func(ev Event) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ev Event) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry creates middleware that wraps every event in a span
// named "scenesync.<label>", where the label is the message type for
// envelopes and the event name otherwise. The span context is passed
// to the next handler.
func OpenTelemetry(opts ...OTelOption) Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	config.tracer = config.TracerProvider.Tracer(config.TracerName)

	return func(next Handler) Handler {
		return func(ctx context.Context, ev Event) error {
			if config.Filter != nil && !config.Filter(ev) {
				return next(ctx, ev)
			}

			attrs := []attribute.KeyValue{
				attribute.String("scenesync.event", ev.Name),
				attribute.Int64("scenesync.peer_id", int64(ev.Peer)),
			}
			if ev.Name == EventEnvelope {
				attrs = append(attrs, attribute.String("scenesync.message_type", ev.Type.String()))
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(ev)...)
			}

			spanCtx, span := config.tracer.Start(ctx, "scenesync."+ev.Label(),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			err := next(spanCtx, ev)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}

// SpanFromContext returns the span of the event being handled, or nil
// when ctx carries no recording or sampled span.
func SpanFromContext(ctx context.Context) trace.Span {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() && !span.IsRecording() {
		return nil
	}
	return span
}
