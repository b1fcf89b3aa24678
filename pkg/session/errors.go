package session

import "errors"

// Errors returned by Session methods. None of them are fatal; each one
// marks a message that was dropped or a request that was refused.
var (
	// ErrUnknownPeer is returned for a peer id that is not connected.
	ErrUnknownPeer = errors.New("session: unknown peer")

	// ErrNotValidated is returned when an unauthenticated peer sends
	// anything but credentials.
	ErrNotValidated = errors.New("session: peer not validated")

	// ErrAlreadyValidated is returned when a validated peer sends
	// credentials again.
	ErrAlreadyValidated = errors.New("session: peer already validated")

	// ErrInvalidCredentials is returned when the session code is wrong.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrOwnershipConflict is returned when a peer updates an object
	// another peer owns.
	ErrOwnershipConflict = errors.New("session: object owned by another peer")

	// ErrNotOwner is returned when a peer ends an interaction on an
	// object it does not own.
	ErrNotOwner = errors.New("session: peer does not own object")

	// ErrUnknownWidget is returned for updates to a widget that does not
	// exist.
	ErrUnknownWidget = errors.New("session: unknown widget")

	// ErrUnsupportedUpdate is returned for update kinds that make no sense
	// for the target object, such as Create on the volume.
	ErrUnsupportedUpdate = errors.New("session: unsupported update kind")
)
