package conn

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// closeGracePeriod bounds how long Close waits to send the close frame.
const closeGracePeriod = time.Second

// WebSocketStream carries the envelope byte stream over a WebSocket.
// Outgoing writes become binary messages; incoming binary messages are
// concatenated into one stream, so envelopes may span messages. Text
// messages are ignored.
type WebSocketStream struct {
	ws *websocket.Conn
	r  io.Reader // current message
}

// NewWebSocketStream adapts ws.
func NewWebSocketStream(ws *websocket.Conn) *WebSocketStream {
	return &WebSocketStream{ws: ws}
}

// Read reads from the current binary message, advancing to the next one
// when it is exhausted.
func (s *WebSocketStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			typ, r, err := s.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			s.r = r
		}

		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one binary message.
func (s *WebSocketStream) Write(p []byte) (int, error) {
	if err := s.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetWriteDeadline sets the deadline for the next Write.
func (s *WebSocketStream) SetWriteDeadline(t time.Time) error {
	return s.ws.SetWriteDeadline(t)
}

// Close sends a normal-closure close frame and closes the connection.
func (s *WebSocketStream) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return s.ws.Close()
}

// RemoteAddr returns the peer address of the underlying connection.
func (s *WebSocketStream) RemoteAddr() string {
	return s.ws.RemoteAddr().String()
}
