// Package router maps protocol envelopes to typed handlers and builds the
// envelopes for every scenesync message.
//
// A Router holds at most one handler per message type. Registering a
// second handler for the same type replaces the first:
//
//	r := router.New()
//	r.OnVolume(func(u *protocol.ObjectUpdate, from protocol.PeerID) {
//	    // apply u
//	})
//	if err := r.Dispatch(env, peerID); err != nil {
//	    logger.Warn("message dropped", "error", err)
//	}
//
// Dispatch never panics. Undecodable payloads, message types without a
// handler and handler panics all come back as a *DispatchError that
// names the message type and sending peer; the caller logs it and moves
// on.
//
// The outbound side is a set of constructors, one per message type:
//
//	conn.Send(router.AuthorizationSucceeded(&info))
//	conn.Send(router.FullState(snapshot))
package router
