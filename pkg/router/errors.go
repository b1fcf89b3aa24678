package router

import (
	"errors"
	"fmt"

	"github.com/vango-dev/scenesync/pkg/protocol"
)

// Sentinel errors returned (wrapped) by Dispatch.
var (
	// ErrNoHandler is returned when no handler is registered for a type.
	ErrNoHandler = errors.New("router: no handler registered")

	// ErrDecode is returned when a payload cannot be decoded.
	ErrDecode = errors.New("router: payload decode failed")

	// ErrHandlerPanic is returned when a handler panicked.
	ErrHandlerPanic = errors.New("router: handler panic")
)

// DispatchError describes a message that was dropped.
type DispatchError struct {
	Type  protocol.MessageType
	Peer  protocol.PeerID
	Err   error
	Stack []byte // set for handler panics
}

// Error returns the error message with message and peer context.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("router: %s from peer %d: %v", e.Type, e.Peer, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DispatchError) Unwrap() error {
	return e.Err
}
