package protocol

import (
	"errors"
	"io"
)

// Envelope layout constants.
const (
	// HeaderByte opens every envelope and is the parser's resync sentinel.
	HeaderByte byte = 0x00

	// PrefixSize is the size of header, type and length together.
	PrefixSize = 7

	// ChecksumSize is the size of the trailing checksum.
	ChecksumSize = 4

	// Overhead is the number of bytes an envelope adds around its payload.
	Overhead = PrefixSize + ChecksumSize

	// DefaultMaxMessageSize bounds the declared payload length accepted
	// from a peer (500 MiB).
	DefaultMaxMessageSize = 524288000
)

// MessageType identifies the payload carried by an envelope.
type MessageType uint16

// The numeric values are part of the wire contract.
const (
	MessageRequestCredentials     MessageType = 0  // Server → peer: send credentials
	MessagePeerCredentials        MessageType = 1  // Peer → server: Credentials
	MessageFullState              MessageType = 2  // Server → peer: FullState
	MessageAuthorizationSucceeded MessageType = 3  // Server → peer: PeerInfo
	MessageAuthorizationFailed    MessageType = 4  // Server → peer: empty
	MessagePeerAdded              MessageType = 5  // Server → peers: PeerInfo
	MessagePeerRemoved            MessageType = 6  // Server → peers: PeerInfo
	MessageLaserUpdated           MessageType = 7  // Both ways: ObjectUpdate
	MessageVolumeUpdated          MessageType = 8  // Both ways: ObjectUpdate
	MessageWidgetEvent            MessageType = 9  // Both ways: ObjectUpdate
	MessagePlaneEvent             MessageType = 10 // Both ways: ObjectUpdate
)

// String returns the wire name of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageRequestCredentials:
		return "REQUEST_CREDENTIALS"
	case MessagePeerCredentials:
		return "PEER_CREDENTIALS"
	case MessageFullState:
		return "FULL_STATE"
	case MessageAuthorizationSucceeded:
		return "AUTHORIZATION_SUCCEEDED"
	case MessageAuthorizationFailed:
		return "AUTHORIZATION_FAILED"
	case MessagePeerAdded:
		return "PEER_ADDED"
	case MessagePeerRemoved:
		return "PEER_REMOVED"
	case MessageLaserUpdated:
		return "LASER_UPDATED"
	case MessageVolumeUpdated:
		return "VOLUME_UPDATED"
	case MessageWidgetEvent:
		return "WIDGET_EVENT"
	case MessagePlaneEvent:
		return "PLANE_EVENT"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether t is one of the defined message types.
func (t MessageType) Valid() bool {
	return t <= MessagePlaneEvent
}

// Envelope errors.
var (
	ErrMessageTooLarge = errors.New("protocol: message exceeds size limit")
	ErrPayloadTooLarge = errors.New("protocol: payload length overflows uint32")
)

// Envelope is one framed, checksummed protocol message. The header byte,
// length and checksum are derived from Type and Payload on encode and
// verified by the Parser on decode.
type Envelope struct {
	Type    MessageType
	Payload []byte
}

// NewEnvelope creates an envelope carrying payload.
func NewEnvelope(t MessageType, payload []byte) Envelope {
	return Envelope{Type: t, Payload: payload}
}

// Len returns the encoded size of the envelope in bytes.
func (e Envelope) Len() int {
	return Overhead + len(e.Payload)
}

// Encode serializes the envelope, including its checksum.
func (e Envelope) Encode() []byte {
	enc := NewEncoderWithCap(e.Len())
	e.EncodeTo(enc)
	return enc.Bytes()
}

// EncodeTo appends the serialized envelope to enc. The checksum covers
// only the bytes of this envelope, not anything already in enc.
func (e Envelope) EncodeTo(enc *Encoder) {
	start := enc.Len()
	enc.WriteByte(HeaderByte)
	enc.WriteUint16(uint16(e.Type))
	enc.WriteUint32(uint32(len(e.Payload)))
	enc.WriteBytes(e.Payload)
	enc.WriteUint32(Checksum(enc.Bytes()[start:]))
}

// Checksum returns the checksum the envelope carries on the wire.
func (e Envelope) Checksum() uint32 {
	var prefix [PrefixSize]byte
	prefix[0] = HeaderByte
	prefix[1] = byte(e.Type >> 8)
	prefix[2] = byte(e.Type)
	n := uint32(len(e.Payload))
	prefix[3] = byte(n >> 24)
	prefix[4] = byte(n >> 16)
	prefix[5] = byte(n >> 8)
	prefix[6] = byte(n)
	return AppendChecksum(Checksum(prefix[:]), e.Payload)
}

// WriteEnvelope writes a complete envelope to w.
func WriteEnvelope(w io.Writer, e Envelope) error {
	if uint64(len(e.Payload)) > uint64(^uint32(0)) {
		return ErrPayloadTooLarge
	}
	_, err := w.Write(e.Encode())
	return err
}
