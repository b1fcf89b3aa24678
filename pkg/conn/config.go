package conn

import (
	"log/slog"
	"time"

	"github.com/vango-dev/scenesync/pkg/protocol"
)

// Config configures a Conn.
type Config struct {
	// MaxMessageSize is the largest payload length a peer may declare.
	// A larger declaration closes the connection. Zero disables the check.
	// Default: protocol.DefaultMaxMessageSize (500 MiB).
	MaxMessageSize uint32

	// ReadBufferSize is the size of each read from the stream.
	// Default: 4096.
	ReadBufferSize int

	// SendQueueSize is the number of envelopes that may wait for the
	// writer. A full queue closes the connection.
	// Default: 256.
	SendQueueSize int

	// WriteTimeout bounds each write when the stream supports deadlines.
	// Zero disables it.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// Logger receives connection events.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: protocol.DefaultMaxMessageSize,
		ReadBufferSize: 4096,
		SendQueueSize:  256,
		WriteTimeout:   10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
