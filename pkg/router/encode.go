package router

import "github.com/vango-dev/scenesync/pkg/protocol"

// RequestCredentials builds the REQUEST_CREDENTIALS envelope.
func RequestCredentials() protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessageRequestCredentials, nil)
}

// PeerCredentials builds the PEER_CREDENTIALS envelope.
func PeerCredentials(c *protocol.Credentials) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessagePeerCredentials, protocol.EncodeCredentials(c))
}

// FullState builds the FULL_STATE envelope.
func FullState(s *protocol.FullState) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessageFullState, protocol.EncodeFullState(s))
}

// AuthorizationSucceeded builds the AUTHORIZATION_SUCCEEDED envelope.
func AuthorizationSucceeded(p *protocol.PeerInfo) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessageAuthorizationSucceeded, protocol.EncodePeerInfo(p))
}

// AuthorizationFailed builds the AUTHORIZATION_FAILED envelope.
func AuthorizationFailed() protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessageAuthorizationFailed, nil)
}

// PeerAdded builds the PEER_ADDED envelope.
func PeerAdded(p *protocol.PeerInfo) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessagePeerAdded, protocol.EncodePeerInfo(p))
}

// PeerRemoved builds the PEER_REMOVED envelope.
func PeerRemoved(p *protocol.PeerInfo) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessagePeerRemoved, protocol.EncodePeerInfo(p))
}

// LaserUpdated builds the LASER_UPDATED envelope.
func LaserUpdated(u *protocol.ObjectUpdate) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessageLaserUpdated, protocol.EncodeObjectUpdate(u))
}

// VolumeUpdated builds the VOLUME_UPDATED envelope.
func VolumeUpdated(u *protocol.ObjectUpdate) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessageVolumeUpdated, protocol.EncodeObjectUpdate(u))
}

// WidgetEvent builds the WIDGET_EVENT envelope.
func WidgetEvent(u *protocol.ObjectUpdate) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessageWidgetEvent, protocol.EncodeObjectUpdate(u))
}

// PlaneEvent builds the PLANE_EVENT envelope.
func PlaneEvent(u *protocol.ObjectUpdate) protocol.Envelope {
	return protocol.NewEnvelope(protocol.MessagePlaneEvent, protocol.EncodeObjectUpdate(u))
}
