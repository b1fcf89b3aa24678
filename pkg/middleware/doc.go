// Package middleware provides observability middleware for the server's
// event loop.
//
// Every session transition the server performs (a peer connecting, an
// envelope arriving, a peer going away) is described by an Event and
// run through a chain of Middleware before reaching the session. This
// package includes:
//   - OpenTelemetry tracing: one span per event
//   - Prometheus metrics: event counts, durations and error reasons
//   - Recover: turns handler panics into errors
//
// # OpenTelemetry Middleware
//
// Spans are named after the event ("scenesync.envelope") and carry the
// peer id and, for envelopes, the message type:
//
//	h := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.OpenTelemetry(middleware.WithTracerName("scenesync")),
//	    middleware.Prometheus(middleware.WithRegistry(reg)),
//	)(handle)
//
// The tracer comes from the global OpenTelemetry tracer provider.
// Configure it before starting the server with otel.SetTracerProvider.
//
// # Prometheus Metrics
//
// The Prometheus middleware collects:
//   - scenesync_events_total: events processed by name and status
//   - scenesync_event_duration_seconds: processing duration histogram
//   - scenesync_event_errors_total: failed events by reason
//
// Reasons come from an ErrorClassifier so that error messages never
// become label values.
package middleware
