package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/scenesync/pkg/conn"
	"github.com/vango-dev/scenesync/pkg/middleware"
	"github.com/vango-dev/scenesync/pkg/protocol"
	"github.com/vango-dev/scenesync/pkg/router"
	"github.com/vango-dev/scenesync/pkg/session"
)

// acceptBackoffMax caps the delay between retries of a failing Accept.
const acceptBackoffMax = time.Second

// Server is the session host.
type Server struct {
	config   *ServerConfig
	logger   *slog.Logger
	id       string
	session  *session.Session
	router   *router.Router
	chain    middleware.Middleware
	metrics  *metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	mux      http.Handler

	events   chan event
	quit     chan struct{}
	loopDone chan struct{}

	// Owned by the event loop.
	conns    map[protocol.PeerID]*conn.Conn
	ids      map[*conn.Conn]protocol.PeerID
	draining bool

	mu         sync.Mutex
	closed     bool
	listeners  map[net.Listener]struct{}
	httpServer *http.Server
	active     sync.WaitGroup // connections not yet removed by the loop
}

// New creates a server and starts its event loop. A nil config uses
// DefaultServerConfig; unset fields are filled with their defaults.
func New(config *ServerConfig) (*Server, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	base := config.Logger
	if base == nil {
		base = slog.Default()
	}
	id := uuid.NewString()
	logger := base.With("component", "server", "instance", id)

	reg := config.Registerer
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	} else {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:   config,
		logger:   logger,
		id:       id,
		metrics:  newMetrics(reg),
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.ReadBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		events:    make(chan event, config.EventQueueSize),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		conns:     make(map[protocol.PeerID]*conn.Conn),
		ids:       make(map[*conn.Conn]protocol.PeerID),
		listeners: make(map[net.Listener]struct{}),
	}

	sess, err := session.New(session.Config{
		Code:       config.SessionCode,
		CodeLength: config.SessionCodeLength,
		Factory:    config.Factory,
		Logger:     base.With("instance", id),
	}, outbox{s})
	if err != nil {
		return nil, fmt.Errorf("server: create session: %w", err)
	}
	s.session = sess
	s.router = s.messageRoutes()
	s.chain = middleware.Chain(
		middleware.Recover(logger),
		middleware.OpenTelemetry(
			middleware.WithTracerName("scenesync"),
			middleware.WithTracerProvider(config.TracerProvider),
		),
		middleware.Prometheus(
			middleware.WithRegistry(reg),
			middleware.WithNamespace(metricsNamespace),
			middleware.WithErrorClassifier(ErrorReason),
		),
	)
	s.mux = s.httpRoutes()

	go s.run()
	return s, nil
}

// messageRoutes wires the peer-to-server message types to the session.
func (s *Server) messageRoutes() *router.Router {
	r := router.New()

	router.Register(r, protocol.MessagePeerCredentials, protocol.DecodeCredentials,
		func(c *protocol.Credentials, from protocol.PeerID) error {
			err := s.session.Authenticate(from, c)
			if errors.Is(err, session.ErrInvalidCredentials) {
				s.metrics.authFailures.Inc()
			}
			return err
		})

	updates := map[protocol.MessageType]func(protocol.PeerID, *protocol.ObjectUpdate) error{
		protocol.MessageLaserUpdated:  s.session.UpdateLaser,
		protocol.MessageVolumeUpdated: s.session.UpdateVolume,
		protocol.MessageWidgetEvent:   s.session.UpdateWidget,
		protocol.MessagePlaneEvent:    s.session.UpdatePlane,
	}
	for t, apply := range updates {
		router.Register(r, t, protocol.DecodeObjectUpdate,
			func(u *protocol.ObjectUpdate, from protocol.PeerID) error {
				return apply(from, u)
			})
	}
	return r
}

// ID returns the instance id generated at startup.
func (s *Server) ID() string {
	return s.id
}

// SessionCode returns the code peers must present.
func (s *Server) SessionCode() string {
	return s.session.Code()
}

// Config returns the effective configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// ServeConn attaches a peer speaking the envelope protocol over stream
// and blocks until the connection is gone. Canceling ctx aborts the
// connection. stream is closed before ServeConn returns.
func (s *Server) ServeConn(ctx context.Context, stream io.ReadWriteCloser, remote string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = stream.Close()
		return ErrServerClosed
	}
	s.active.Add(1)
	s.mu.Unlock()

	c := conn.New(stream, remote, connHandler{s}, conn.Config{
		MaxMessageSize: s.config.MaxMessageSize,
		ReadBufferSize: s.config.ReadBufferSize,
		SendQueueSize:  s.config.SendQueueSize,
		WriteTimeout:   s.config.WriteTimeout,
		Logger:         s.logger,
	})

	// The connect event is queued before the reader starts so the loop
	// sees it ahead of any envelope from this connection.
	if !s.post(event{kind: eventConnect, conn: c}) {
		s.active.Done()
		_ = stream.Close()
		return ErrServerClosed
	}
	c.Start()

	select {
	case <-c.Done():
		return nil
	case <-ctx.Done():
		c.Abort()
		return ctx.Err()
	}
}

// Serve accepts TCP peers on ln until ln fails, ctx is canceled or the
// server shuts down. Accepted connections outlive ctx; they are closed
// by Shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln, true) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info("accepting peers", "address", ln.Addr().String())

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), acceptBackoffMax)
				s.logger.Warn("accept error, retrying", "error", err, "delay", backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		backoff = 0

		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		go func() {
			_ = s.ServeConn(context.Background(), nc, nc.RemoteAddr().String())
		}()
	}
}

// ListenAndServe listens on Address for TCP peers and, when HTTPAddress
// is set, serves Handler there. It blocks until ctx is canceled, then
// shuts the server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Address, err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- s.Serve(ctx, ln) }()

	if s.config.HTTPAddress != "" {
		hln, err := net.Listen("tcp", s.config.HTTPAddress)
		if err != nil {
			_ = s.Shutdown(context.WithoutCancel(ctx))
			return fmt.Errorf("server: listen %s: %w", s.config.HTTPAddress, err)
		}
		hs := &http.Server{
			Handler:           s.mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.mu.Lock()
		s.httpServer = hs
		s.mu.Unlock()

		go func() {
			s.logger.Info("serving http", "address", hln.Addr().String())
			err := hs.Serve(hln)
			if errors.Is(err, http.ErrServerClosed) {
				err = ErrServerClosed
			}
			errCh <- err
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	if errors.Is(err, ErrServerClosed) {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}

	if serr := s.Shutdown(context.WithoutCancel(ctx)); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Shutdown gracefully shuts down the server. It stops accepting peers,
// lets every connection flush its queue and close, and aborts whatever
// is still open when ShutdownTimeout or ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.loopDone
		return nil
	}
	s.closed = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	hs := s.httpServer
	s.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}

	var err error
	if hs != nil {
		if herr := hs.Shutdown(ctx); herr != nil {
			s.logger.Error("http shutdown error", "error", herr)
			err = herr
		}
	}

	_ = s.do(context.Background(), func() {
		s.draining = true
		for _, c := range s.conns {
			c.Close()
		}
	})

	drained := make(chan struct{})
	go func() {
		s.active.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out, aborting connections")
		_ = s.do(context.Background(), func() {
			for _, c := range s.conns {
				c.Abort()
			}
		})
		if err == nil {
			err = ctx.Err()
		}
	}

	close(s.quit)
	<-s.loopDone

	s.logger.Info("server shutdown complete")
	return err
}

// Peers returns the connected peers ordered by id.
func (s *Server) Peers(ctx context.Context) ([]session.Peer, error) {
	var peers []session.Peer
	err := s.do(ctx, func() {
		peers = s.session.Peers()
	})
	return peers, err
}

// Snapshot returns the state a newly authenticated peer would receive.
func (s *Server) Snapshot(ctx context.Context) (*protocol.FullState, error) {
	var fs *protocol.FullState
	err := s.do(ctx, func() {
		fs = s.session.Snapshot()
	})
	return fs, err
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		s.listeners[ln] = struct{}{}
		return true
	}
	delete(s.listeners, ln)
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
