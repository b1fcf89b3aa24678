package conn

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/scenesync/pkg/protocol"
)

// Handler receives the events of a connection. Both methods are called
// from the connection's reader goroutine and must not block for long.
type Handler interface {
	// OnEnvelope is called for every envelope whose checksum validates.
	OnEnvelope(c *Conn, env protocol.Envelope)

	// OnClosed is called exactly once, after the last OnEnvelope. err is
	// nil for a clean disconnect or a local Close.
	OnClosed(c *Conn, err error)
}

// DropHandler is implemented by handlers that want to count frames
// discarded for a checksum mismatch.
type DropHandler interface {
	OnDropped(c *Conn, frames uint64)
}

// deadliner is implemented by streams that support write deadlines.
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Stats holds connection counters.
type Stats struct {
	BytesIn      uint64
	BytesOut     uint64
	EnvelopesIn  uint64
	EnvelopesOut uint64
	Dropped      uint64
}

// Conn is one peer connection.
type Conn struct {
	stream  io.ReadWriteCloser
	remote  string
	handler Handler
	config  Config
	logger  *slog.Logger
	parser  *protocol.Parser

	send    chan protocol.Envelope
	closing chan struct{} // closed by Close to request a flush
	done    chan struct{} // closed when the connection shuts down

	closeOnce sync.Once
	stopOnce  sync.Once
	closed    atomic.Bool
	err       error // first shutdown cause; written once under stopOnce

	bytesIn      atomic.Uint64
	bytesOut     atomic.Uint64
	envelopesIn  atomic.Uint64
	envelopesOut atomic.Uint64
	dropped      atomic.Uint64
}

// New wraps stream. Nothing is read or written until Start is called.
func New(stream io.ReadWriteCloser, remote string, h Handler, cfg Config) *Conn {
	cfg = cfg.withDefaults()
	c := &Conn{
		stream:  stream,
		remote:  remote,
		handler: h,
		config:  cfg,
		logger:  cfg.Logger.With("component", "conn", "remote", remote),
		send:    make(chan protocol.Envelope, cfg.SendQueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.parser = protocol.NewParser(c.deliver)
	c.parser.SetLimit(cfg.MaxMessageSize)
	return c
}

// Start launches the reader and writer goroutines.
func (c *Conn) Start() {
	go c.readLoop()
	go c.writeLoop()
}

// Remote returns the remote address given to New.
func (c *Conn) Remote() string {
	return c.remote
}

// Done returns a channel that is closed once the connection shuts down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() Stats {
	return Stats{
		BytesIn:      c.bytesIn.Load(),
		BytesOut:     c.bytesOut.Load(),
		EnvelopesIn:  c.envelopesIn.Load(),
		EnvelopesOut: c.envelopesOut.Load(),
		Dropped:      c.dropped.Load(),
	}
}

// Send queues env for writing. It never blocks. When the queue is full
// the connection is shut down and ErrSendQueueFull is returned.
func (c *Conn) Send(env protocol.Envelope) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- env:
		return nil
	default:
		c.logger.Warn("send queue full, closing connection", "queue_size", cap(c.send))
		c.shutdown(ErrSendQueueFull)
		return ErrSendQueueFull
	}
}

// Close stops accepting sends, writes everything already queued and then
// closes the stream. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closing)
	})
}

// Abort closes the stream immediately, discarding queued envelopes.
func (c *Conn) Abort() {
	c.closed.Store(true)
	c.shutdown(nil)
}

// shutdown records the cause, then closes the stream, which unblocks the
// reader. The first call wins.
func (c *Conn) shutdown(cause error) {
	c.stopOnce.Do(func() {
		c.err = cause
		close(c.done)
		if err := c.stream.Close(); err != nil && !IsExpectedCloseError(err) {
			c.logger.Debug("stream close error", "error", err)
		}
	})
}

// deliver is the parser callback.
func (c *Conn) deliver(env protocol.Envelope) {
	select {
	case <-c.done:
		return
	default:
	}
	c.envelopesIn.Add(1)
	c.handler.OnEnvelope(c, env)
}

func (c *Conn) readLoop() {
	defer func() {
		// stopOnce has run by now, so c.err is stable.
		c.handler.OnClosed(c, c.err)
	}()

	buf := make([]byte, c.config.ReadBufferSize)
	for {
		n, err := c.stream.Read(buf)
		if n > 0 {
			c.bytesIn.Add(uint64(n))
			perr := c.parser.Parse(buf[:n])
			if d := c.parser.Dropped(); d > c.dropped.Load() {
				delta := d - c.dropped.Swap(d)
				if dh, ok := c.handler.(DropHandler); ok {
					dh.OnDropped(c, delta)
				}
			}
			if perr != nil {
				c.logger.Warn("closing connection",
					"error", perr,
					"declared_size", c.parser.CurrentMessageSize(),
					"limit", c.config.MaxMessageSize)
				c.shutdown(fmt.Errorf("conn: %w", perr))
				return
			}
		}
		if err != nil {
			if IsExpectedCloseError(err) {
				c.shutdown(nil)
			} else {
				c.logger.Debug("read error", "error", err)
				c.shutdown(fmt.Errorf("conn: read: %w", err))
			}
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case env := <-c.send:
			if !c.write(env) {
				return
			}

		case <-c.closing:
			c.flush()
			c.shutdown(nil)
			return

		case <-c.done:
			return
		}
	}
}

// flush writes whatever is still queued without waiting for more.
func (c *Conn) flush() {
	for {
		select {
		case env := <-c.send:
			if !c.write(env) {
				return
			}
		default:
			return
		}
	}
}

// write writes one envelope and reports whether the connection is still
// usable.
func (c *Conn) write(env protocol.Envelope) bool {
	if d, ok := c.stream.(deadliner); ok && c.config.WriteTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	data := env.Encode()
	if _, err := c.stream.Write(data); err != nil {
		select {
		case <-c.done:
			// Already shutting down; the write failed because of it.
		default:
			if IsExpectedCloseError(err) {
				c.shutdown(nil)
			} else {
				c.logger.Debug("write error", "error", err)
				c.shutdown(fmt.Errorf("conn: write: %w", err))
			}
		}
		return false
	}
	c.bytesOut.Add(uint64(len(data)))
	c.envelopesOut.Add(1)
	return true
}
