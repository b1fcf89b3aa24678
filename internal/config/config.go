package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vango-dev/scenesync/pkg/server"
	"github.com/vango-dev/scenesync/pkg/session"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "SCENESYNC_CONFIG"

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalid is returned (wrapped) for a configuration that fails
// validation.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete configuration file.
type Config struct {
	// Server configures the session host.
	Server ServerConfig `yaml:"server"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// path is where the config was loaded from; empty for defaults.
	path string
}

// ServerConfig mirrors the file-configurable part of server.ServerConfig.
type ServerConfig struct {
	// Address is the TCP listen address for peers.
	Address string `yaml:"address"`

	// HTTPAddress is the listen address of the HTTP endpoints. Empty
	// disables them.
	HTTPAddress string `yaml:"http_address"`

	// SessionCode is the fixed session code. Empty generates one.
	SessionCode string `yaml:"session_code"`

	// SessionCodeLength is the length of a generated code.
	SessionCodeLength int `yaml:"session_code_length"`

	// MaxMessageSize bounds the payload length a peer may declare.
	MaxMessageSize uint32 `yaml:"max_message_size"`

	// ReadBufferSize is the per-read buffer size.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// SendQueueSize is the per-peer outgoing queue length.
	SendQueueSize int `yaml:"send_queue_size"`

	// WriteTimeout bounds each write to a peer.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// EventQueueSize is the event loop buffer.
	EventQueueSize int `yaml:"event_queue_size"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	d := server.DefaultServerConfig()
	return &Config{
		Server: ServerConfig{
			Address:           d.Address,
			HTTPAddress:       d.HTTPAddress,
			SessionCodeLength: d.SessionCodeLength,
			MaxMessageSize:    d.MaxMessageSize,
			ReadBufferSize:    d.ReadBufferSize,
			SendQueueSize:     d.SendQueueSize,
			WriteTimeout:      d.WriteTimeout,
			EventQueueSize:    d.EventQueueSize,
			ShutdownTimeout:   d.ShutdownTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// Load reads the configuration from path. An empty path falls back to
// $SCENESYNC_CONFIG, and an empty variable to Default. Fields missing
// from the file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the configuration was loaded from, or "" for
// defaults.
func (c *Config) Path() string {
	return c.path
}

// Validate checks every field.
func (c *Config) Validate() error {
	var errs []error

	s := c.Server
	if s.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if s.SessionCode != "" && !session.ValidCode(s.SessionCode) {
		errs = append(errs, fmt.Errorf("server.session_code %q must match [0-9A-Za-z]+", s.SessionCode))
	}
	if s.SessionCodeLength < 0 {
		errs = append(errs, errors.New("server.session_code_length must not be negative"))
	}
	if s.ReadBufferSize < 0 || s.SendQueueSize < 0 || s.EventQueueSize < 0 {
		errs = append(errs, errors.New("server buffer and queue sizes must not be negative"))
	}
	if s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ServerConfig converts the server section for server.New.
func (c *Config) ServerConfig() *server.ServerConfig {
	cfg := server.DefaultServerConfig()
	cfg.Address = c.Server.Address
	cfg.HTTPAddress = c.Server.HTTPAddress
	cfg.SessionCode = c.Server.SessionCode
	cfg.SessionCodeLength = c.Server.SessionCodeLength
	cfg.MaxMessageSize = c.Server.MaxMessageSize
	cfg.ReadBufferSize = c.Server.ReadBufferSize
	cfg.SendQueueSize = c.Server.SendQueueSize
	cfg.WriteTimeout = c.Server.WriteTimeout
	cfg.EventQueueSize = c.Server.EventQueueSize
	cfg.ShutdownTimeout = c.Server.ShutdownTimeout
	return cfg
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q must be debug, info, warn or error", name)
	}
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch l.Format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case FormatText, "":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("log.format %q must be text or json", l.Format)
	}
	return slog.New(h), nil
}
