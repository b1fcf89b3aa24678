// Package session implements the admission and ownership rules of a
// scenesync session.
//
// A Session owns the peer table and the shared object store. It does no
// I/O of its own: every envelope it produces is handed to an Outbox,
// addressed to a single peer, and broadcasts are expanded to the
// validated peers here. The server drives a Session from one goroutine;
// a Session is not safe for concurrent use.
//
// # Admission
//
//	id := s.Connect("10.0.0.7:51234", nil)   // REQUEST_CREDENTIALS to id
//	err := s.Authenticate(id, credentials)   // AUTHORIZATION_SUCCEEDED,
//	                                         // FULL_STATE, PEER_ADDED
//
// Wrong credentials produce AUTHORIZATION_FAILED, a close request and
// ErrInvalidCredentials. The peer is forgotten.
//
// # Ownership
//
// The first peer to send a property update for an unowned volume, plane
// or widget becomes its owner. Updates from any other peer are dropped
// and reported as ErrOwnershipConflict so callers can count them; no
// message goes back to the losing peer. The owner gives the object up
// with an InteractionEnded update or by disconnecting.
package session
