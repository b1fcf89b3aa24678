// Package server hosts one collaborative session and the peer
// connections attached to it.
//
// Peers reach the server over raw TCP (Serve, ListenAndServe) or over a
// WebSocket carrying the same envelope stream in binary messages
// (Handler, mounted at /ws). Any other io.ReadWriteCloser can be
// attached with ServeConn.
//
// # Event loop
//
// Every session mutation runs on a single goroutine. Connection reader
// goroutines post events (connected, envelope received, closed) to a
// buffered channel and the loop applies them in arrival order, so the
// session itself needs no locking. Outgoing envelopes are queued on the
// target connection without blocking; a peer whose send queue overflows
// is disconnected.
//
// Each event runs through a middleware chain that recovers panics,
// opens an OpenTelemetry span and records Prometheus metrics.
//
// # HTTP endpoints
//
//	GET /ws       WebSocket transport
//	GET /healthz  liveness and instance id
//	GET /peers    connected peers
//	GET /metrics  Prometheus metrics
//
// # Shutdown
//
// Shutdown stops the listeners, asks every connection to flush what is
// queued and close, and waits up to ShutdownTimeout for them to go away
// before aborting the rest.
package server
