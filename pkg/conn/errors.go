package conn

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned by Send after the connection was closed.
	ErrClosed = errors.New("conn: connection closed")

	// ErrSendQueueFull is reported when the peer falls behind and its send
	// queue overflows. The connection is closed.
	ErrSendQueueFull = errors.New("conn: send queue full")
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, a closed connection or pipe, a reset or broken pipe,
// or a WebSocket normal-closure or going-away close frame.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
