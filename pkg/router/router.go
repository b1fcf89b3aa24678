package router

import (
	"fmt"
	"runtime/debug"

	"github.com/vango-dev/scenesync/pkg/protocol"
)

// HandlerFunc handles the raw payload of one envelope. A returned error is
// reported by Dispatch wrapped in a *DispatchError.
type HandlerFunc func(payload []byte, from protocol.PeerID) error

// Router dispatches envelopes by message type. It is not safe for
// concurrent registration; register every handler before dispatching.
type Router struct {
	handlers map[protocol.MessageType]HandlerFunc
}

// New creates an empty router.
func New() *Router {
	return &Router{
		handlers: make(map[protocol.MessageType]HandlerFunc),
	}
}

// Handle registers h for message type t, replacing any previous handler.
// A nil h removes the handler.
func (r *Router) Handle(t protocol.MessageType, h HandlerFunc) {
	if h == nil {
		delete(r.handlers, t)
		return
	}
	r.handlers[t] = h
}

// Has reports whether a handler is registered for t.
func (r *Router) Has(t protocol.MessageType) bool {
	_, ok := r.handlers[t]
	return ok
}

// Register installs a handler that decodes the payload with decode before
// calling fn. Decode failures are reported as ErrDecode; errors from fn
// are passed through.
func Register[T any](r *Router, t protocol.MessageType, decode func([]byte) (T, error), fn func(T, protocol.PeerID) error) {
	r.Handle(t, func(payload []byte, from protocol.PeerID) error {
		v, err := decode(payload)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return fn(v, from)
	})
}

// notify adapts a handler that cannot fail.
func notify[T any](fn func(T, protocol.PeerID)) func(T, protocol.PeerID) error {
	return func(v T, from protocol.PeerID) error {
		fn(v, from)
		return nil
	}
}

// notifyEmpty adapts a handler for a message without payload.
func notifyEmpty(fn func(protocol.PeerID)) func(struct{}, protocol.PeerID) error {
	return func(_ struct{}, from protocol.PeerID) error {
		fn(from)
		return nil
	}
}

// Dispatch routes env to its handler. It returns nil when the handler ran
// to completion and a *DispatchError otherwise.
func (r *Router) Dispatch(env protocol.Envelope, from protocol.PeerID) (err error) {
	h, ok := r.handlers[env.Type]
	if !ok {
		return &DispatchError{Type: env.Type, Peer: from, Err: ErrNoHandler}
	}

	defer func() {
		if p := recover(); p != nil {
			err = &DispatchError{
				Type:  env.Type,
				Peer:  from,
				Err:   fmt.Errorf("%w: %v", ErrHandlerPanic, p),
				Stack: debug.Stack(),
			}
		}
	}()

	if herr := h(env.Payload, from); herr != nil {
		return &DispatchError{Type: env.Type, Peer: from, Err: herr}
	}
	return nil
}

func decodeEmpty(payload []byte) (struct{}, error) {
	return struct{}{}, protocol.NewDecoder(payload).Finish()
}

// OnRequestCredentials registers the REQUEST_CREDENTIALS handler.
func (r *Router) OnRequestCredentials(fn func(from protocol.PeerID)) {
	Register(r, protocol.MessageRequestCredentials, decodeEmpty, notifyEmpty(fn))
}

// OnCredentials registers the PEER_CREDENTIALS handler.
func (r *Router) OnCredentials(fn func(c *protocol.Credentials, from protocol.PeerID)) {
	Register(r, protocol.MessagePeerCredentials, protocol.DecodeCredentials, notify(fn))
}

// OnFullState registers the FULL_STATE handler.
func (r *Router) OnFullState(fn func(s *protocol.FullState, from protocol.PeerID)) {
	Register(r, protocol.MessageFullState, protocol.DecodeFullState, notify(fn))
}

// OnAuthorizationSucceeded registers the AUTHORIZATION_SUCCEEDED handler.
func (r *Router) OnAuthorizationSucceeded(fn func(p *protocol.PeerInfo, from protocol.PeerID)) {
	Register(r, protocol.MessageAuthorizationSucceeded, protocol.DecodePeerInfo, notify(fn))
}

// OnAuthorizationFailed registers the AUTHORIZATION_FAILED handler.
func (r *Router) OnAuthorizationFailed(fn func(from protocol.PeerID)) {
	Register(r, protocol.MessageAuthorizationFailed, decodeEmpty, notifyEmpty(fn))
}

// OnPeerAdded registers the PEER_ADDED handler.
func (r *Router) OnPeerAdded(fn func(p *protocol.PeerInfo, from protocol.PeerID)) {
	Register(r, protocol.MessagePeerAdded, protocol.DecodePeerInfo, notify(fn))
}

// OnPeerRemoved registers the PEER_REMOVED handler.
func (r *Router) OnPeerRemoved(fn func(p *protocol.PeerInfo, from protocol.PeerID)) {
	Register(r, protocol.MessagePeerRemoved, protocol.DecodePeerInfo, notify(fn))
}

// OnLaser registers the LASER_UPDATED handler.
func (r *Router) OnLaser(fn func(u *protocol.ObjectUpdate, from protocol.PeerID)) {
	Register(r, protocol.MessageLaserUpdated, protocol.DecodeObjectUpdate, notify(fn))
}

// OnVolume registers the VOLUME_UPDATED handler.
func (r *Router) OnVolume(fn func(u *protocol.ObjectUpdate, from protocol.PeerID)) {
	Register(r, protocol.MessageVolumeUpdated, protocol.DecodeObjectUpdate, notify(fn))
}

// OnWidget registers the WIDGET_EVENT handler.
func (r *Router) OnWidget(fn func(u *protocol.ObjectUpdate, from protocol.PeerID)) {
	Register(r, protocol.MessageWidgetEvent, protocol.DecodeObjectUpdate, notify(fn))
}

// OnPlane registers the PLANE_EVENT handler.
func (r *Router) OnPlane(fn func(u *protocol.ObjectUpdate, from protocol.PeerID)) {
	Register(r, protocol.MessagePlaneEvent, protocol.DecodeObjectUpdate, notify(fn))
}
