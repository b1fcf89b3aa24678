package server

import (
	"errors"
	"fmt"

	"github.com/vango-dev/scenesync/pkg/middleware"
	"github.com/vango-dev/scenesync/pkg/protocol"
	"github.com/vango-dev/scenesync/pkg/router"
	"github.com/vango-dev/scenesync/pkg/session"
)

// Sentinel errors for server conditions.
var (
	// ErrServerClosed is returned by Serve, ServeConn and the query
	// methods once Shutdown has been called.
	ErrServerClosed = errors.New("server: closed")

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("server: invalid config")
)

// PeerError wraps an error with the peer and operation it concerns.
type PeerError struct {
	Peer protocol.PeerID
	Op   string // operation that failed
	Err  error  // underlying error
}

// Error returns the error message with peer context.
func (e *PeerError) Error() string {
	if e.Peer == protocol.NoPeer {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: peer %d: %s: %v", e.Peer, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PeerError) Unwrap() error {
	return e.Err
}

// ErrorReason maps an event error to the reason label used in metrics.
func ErrorReason(err error) string {
	var panicErr *middleware.PanicError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrOwnershipConflict):
		return "ownership_conflict"
	case errors.Is(err, session.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, session.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, session.ErrNotValidated):
		return "not_validated"
	case errors.Is(err, session.ErrAlreadyValidated):
		return "already_validated"
	case errors.Is(err, session.ErrUnknownPeer):
		return "unknown_peer"
	case errors.Is(err, session.ErrUnknownWidget):
		return "unknown_widget"
	case errors.Is(err, session.ErrUnsupportedUpdate):
		return "unsupported_update"
	case errors.Is(err, router.ErrDecode):
		return "decode"
	case errors.Is(err, router.ErrNoHandler):
		return "no_handler"
	case errors.Is(err, router.ErrHandlerPanic), errors.As(err, &panicErr):
		return "panic"
	default:
		return "internal"
	}
}

// expectedDrop reports whether err is a normal consequence of peer
// behavior rather than a server fault.
func expectedDrop(err error) bool {
	switch ErrorReason(err) {
	case "ownership_conflict", "not_owner", "invalid_credentials", "not_validated",
		"already_validated", "unknown_peer", "unknown_widget":
		return true
	}
	return false
}
