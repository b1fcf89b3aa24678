package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/vango-dev/scenesync/pkg/protocol"
)

// Event names used by the server.
const (
	EventConnect    = "connect"
	EventEnvelope   = "envelope"
	EventDisconnect = "disconnect"
)

// Event describes one session transition.
type Event struct {
	// Name is one of the Event* constants.
	Name string

	// Peer is the peer the event concerns.
	Peer protocol.PeerID

	// Type is the message type of an envelope event. Only meaningful
	// when Name is EventEnvelope.
	Type protocol.MessageType
}

// Label returns the event's metric and span label: the message type for
// envelopes, the event name otherwise.
func (e Event) Label() string {
	if e.Name == EventEnvelope {
		return e.Type.String()
	}
	return e.Name
}

// Handler processes one event.
type Handler func(ctx context.Context, ev Event) error

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Chain composes middleware so that the first one listed runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				next = mws[i](next)
			}
		}
		return next
	}
}

// PanicError is returned by Recover when the wrapped handler panics.
type PanicError struct {
	Event Event
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("middleware: panic handling %s from peer %d: %v", e.Event.Label(), e.Event.Peer, e.Value)
}

// Recover converts a panic in the wrapped handler into a *PanicError
// and logs it with the stack trace.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, ev Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := debug.Stack()
					logger.Error("event handler panic",
						"event", ev.Label(),
						"peer_id", ev.Peer,
						"panic", r,
						"stack", string(stack))
					err = &PanicError{Event: ev, Value: r, Stack: stack}
				}
			}()
			return next(ctx, ev)
		}
	}
}
