package server

import (
	"context"
	"errors"

	"github.com/vango-dev/scenesync/pkg/conn"
	"github.com/vango-dev/scenesync/pkg/middleware"
	"github.com/vango-dev/scenesync/pkg/protocol"
	"github.com/vango-dev/scenesync/pkg/session"
	"go.opentelemetry.io/otel/attribute"
)

type eventKind uint8

const (
	eventConnect eventKind = iota
	eventEnvelope
	eventClosed
	eventDropped
	eventQuery
)

// event is one unit of work for the loop.
type event struct {
	kind    eventKind
	conn    *conn.Conn
	env     protocol.Envelope
	err     error  // eventClosed
	dropped uint64 // eventDropped
	fn      func() // eventQuery
}

// run is the event loop. It is the only goroutine that touches the
// session, conns, ids and draining.
func (s *Server) run() {
	defer close(s.loopDone)
	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		case <-s.quit:
			return
		}
	}
}

// post queues ev for the loop. It blocks while the queue is full and
// returns false once the loop has stopped.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *Server) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	ev := event{kind: eventQuery, fn: func() {
		fn()
		close(done)
	}}

	select {
	case s.events <- ev:
	case <-s.quit:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-s.loopDone:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) dispatch(ev event) {
	switch ev.kind {
	case eventConnect:
		s.metrics.connectionsTotal.Inc()
		s.metrics.connections.Inc()
		s.runEvent(middleware.Event{Name: middleware.EventConnect}, ev)
		if s.draining {
			ev.conn.Close()
		}

	case eventEnvelope:
		id, ok := s.ids[ev.conn]
		if !ok {
			return
		}
		s.metrics.envelopesIn.WithLabelValues(ev.env.Type.String()).Inc()
		s.runEvent(middleware.Event{Name: middleware.EventEnvelope, Peer: id, Type: ev.env.Type}, ev)

	case eventClosed:
		s.metrics.connections.Dec()
		s.runEvent(middleware.Event{Name: middleware.EventDisconnect, Peer: s.ids[ev.conn]}, ev)
		s.active.Done()

	case eventDropped:
		s.metrics.framesDropped.Add(float64(ev.dropped))
		return

	case eventQuery:
		ev.fn()
		return
	}

	s.metrics.peers.Set(float64(s.session.ValidatedCount()))
	s.metrics.widgets.Set(float64(s.session.Store().WidgetCount()))
}

// runEvent passes ev through the middleware chain to process and logs
// the outcome.
func (s *Server) runEvent(me middleware.Event, ev event) {
	handle := s.chain(func(ctx context.Context, _ middleware.Event) error {
		return s.process(ctx, ev)
	})

	err := handle(context.Background(), me)
	if err == nil {
		return
	}
	if errors.Is(err, session.ErrOwnershipConflict) {
		s.metrics.ownershipConflicts.Inc()
	}
	if expectedDrop(err) {
		s.logger.Debug("event dropped",
			"event", me.Label(),
			"peer_id", me.Peer,
			"reason", ErrorReason(err))
		return
	}
	s.logger.Warn("event failed",
		"event", me.Label(),
		"peer_id", me.Peer,
		"error", err)
}

func (s *Server) process(ctx context.Context, ev event) error {
	switch ev.kind {
	case eventConnect:
		c := ev.conn
		id := s.session.Connect(c.Remote(), func(id protocol.PeerID) {
			s.conns[id] = c
			s.ids[c] = id
		})
		if span := middleware.SpanFromContext(ctx); span != nil {
			span.SetAttributes(attribute.Int64("scenesync.peer_id", int64(id)))
		}
		return nil

	case eventEnvelope:
		return s.router.Dispatch(ev.env, s.ids[ev.conn])

	case eventClosed:
		id := s.ids[ev.conn]
		delete(s.ids, ev.conn)
		if s.conns[id] == ev.conn {
			delete(s.conns, id)
		}
		if ev.err != nil {
			s.logger.Warn("connection closed with error", "peer_id", id, "error", ev.err)
		}

		err := s.session.Disconnect(id)
		if errors.Is(err, session.ErrUnknownPeer) {
			// Removed earlier by a failed authentication.
			return nil
		}
		if err != nil {
			return &PeerError{Peer: id, Op: "disconnect", Err: err}
		}
		return nil
	}
	return nil
}

// outbox delivers session envelopes to peer connections. It runs on the
// event loop.
type outbox struct {
	s *Server
}

func (o outbox) Send(peer protocol.PeerID, env protocol.Envelope) {
	c, ok := o.s.conns[peer]
	if !ok {
		return
	}
	if err := c.Send(env); err != nil {
		if errors.Is(err, conn.ErrSendQueueFull) {
			o.s.metrics.sendQueueOverflows.Inc()
			o.s.logger.Warn("send queue overflow, disconnecting peer", "peer_id", peer)
		}
		return
	}
	o.s.metrics.envelopesOut.WithLabelValues(env.Type.String()).Inc()
}

func (o outbox) Close(peer protocol.PeerID) {
	if c, ok := o.s.conns[peer]; ok {
		c.Close()
	}
}

// connHandler forwards connection callbacks to the loop.
type connHandler struct {
	s *Server
}

func (h connHandler) OnEnvelope(c *conn.Conn, env protocol.Envelope) {
	h.s.post(event{kind: eventEnvelope, conn: c, env: env})
}

func (h connHandler) OnClosed(c *conn.Conn, err error) {
	h.s.post(event{kind: eventClosed, conn: c, err: err})
}

func (h connHandler) OnDropped(c *conn.Conn, frames uint64) {
	h.s.post(event{kind: eventDropped, conn: c, dropped: frames})
}
