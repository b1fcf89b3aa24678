package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/scenesync/pkg/protocol"
	"github.com/vango-dev/scenesync/pkg/session"
	"github.com/vango-dev/scenesync/pkg/store"
	"go.opentelemetry.io/otel/trace"
)

// ServerConfig holds the server configuration.
type ServerConfig struct {
	// Address is the TCP address peers connect to.
	// Default: ":3760".
	Address string

	// HTTPAddress is the address of the HTTP listener serving /ws,
	// /metrics, /healthz and /peers. Empty disables it.
	// Default: "".
	HTTPAddress string

	// Session

	// SessionCode is the code peers must present. Empty generates a
	// random one at startup.
	// Default: "".
	SessionCode string

	// SessionCodeLength is the length of a generated session code.
	// Default: 6.
	SessionCodeLength int

	// Factory creates scene objects.
	// Default: objects that merge incoming properties by name.
	Factory store.Factory

	// Limits

	// MaxMessageSize is the largest payload length a peer may declare.
	// Default: 524288000 (500 MiB).
	MaxMessageSize uint32

	// ReadBufferSize is the size of each read from a peer connection.
	// Default: 4096.
	ReadBufferSize int

	// SendQueueSize is the number of envelopes that may be queued for
	// one peer. A peer whose queue overflows is disconnected.
	// Default: 256.
	SendQueueSize int

	// WriteTimeout bounds each write to a peer.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// EventQueueSize is the buffer of the event loop channel.
	// Default: 1024.
	EventQueueSize int

	// ShutdownTimeout is how long Shutdown waits for peers to drain.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// CheckOrigin validates the Origin header of WebSocket upgrades.
	// Default: accepts every origin.
	CheckOrigin func(r *http.Request) bool

	// Observability

	// Logger is the base logger.
	// Default: slog.Default().
	Logger *slog.Logger

	// Registerer receives the server's Prometheus collectors. When it
	// is also a prometheus.Gatherer, /metrics serves from it.
	// Default: a new private registry.
	Registerer prometheus.Registerer

	// TracerProvider supplies the event loop tracer.
	// Default: the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":3760",
		SessionCodeLength: session.DefaultCodeLength,
		MaxMessageSize:    protocol.DefaultMaxMessageSize,
		ReadBufferSize:    4096,
		SendQueueSize:     256,
		WriteTimeout:      10 * time.Second,
		EventQueueSize:    1024,
		ShutdownTimeout:   10 * time.Second,
		CheckOrigin:       func(*http.Request) bool { return true },
	}
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *ServerConfig) withDefaults() *ServerConfig {
	if c == nil {
		return DefaultServerConfig()
	}
	config := c.Clone()
	defaults := DefaultServerConfig()
	if config.Address == "" {
		config.Address = defaults.Address
	}
	if config.SessionCodeLength == 0 {
		config.SessionCodeLength = defaults.SessionCodeLength
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = defaults.ReadBufferSize
	}
	if config.SendQueueSize == 0 {
		config.SendQueueSize = defaults.SendQueueSize
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.EventQueueSize == 0 {
		config.EventQueueSize = defaults.EventQueueSize
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.CheckOrigin == nil {
		config.CheckOrigin = defaults.CheckOrigin
	}
	return config
}

// Validate checks the configuration for values New cannot work with.
func (c *ServerConfig) Validate() error {
	if c.SessionCode != "" && !session.ValidCode(c.SessionCode) {
		return fmt.Errorf("%w: session code %q must match [0-9A-Za-z]+", ErrInvalidConfig, c.SessionCode)
	}
	if c.SessionCodeLength < 0 {
		return fmt.Errorf("%w: session code length %d is negative", ErrInvalidConfig, c.SessionCodeLength)
	}
	if c.ReadBufferSize < 0 || c.SendQueueSize < 0 || c.EventQueueSize < 0 {
		return fmt.Errorf("%w: buffer and queue sizes must not be negative", ErrInvalidConfig)
	}
	if c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	return nil
}
