// Package conn runs one peer connection: a byte stream carrying
// scenesync envelopes.
//
// Each Conn has a reader goroutine that feeds a protocol.Parser and a
// writer goroutine that drains a bounded send queue. Send never blocks:
// when the queue is full the peer is too slow to keep up and the
// connection is shut down with ErrSendQueueFull rather than stalling the
// caller.
//
//	c := conn.New(stream, remoteAddr, handler, conn.DefaultConfig())
//	c.Start()
//	...
//	c.Send(env)
//	c.Close() // flush what is queued, then close
//
// The Handler sees every validated envelope in arrival order and then
// exactly one OnClosed call. A nil error in OnClosed means the peer hung
// up cleanly or the connection was closed locally.
//
// Streams can be anything that reads and writes bytes. TCP connections
// are used directly; WebSocket connections are adapted with
// NewWebSocketStream, which carries the envelope stream in binary
// messages.
package conn
