// Package protocol implements the scenesync wire protocol.
//
// Every message travels inside an Envelope: a fixed header byte, a
// message type, a payload length, the payload and a trailing CRC-32.
//
//	offset  size    field
//	0       1       header   (always 0x00)
//	1       2       type     (big-endian uint16)
//	3       4       length   (big-endian uint32, payload byte count)
//	7       length  payload
//	7+len   4       checksum (big-endian CRC-32 over bytes [0, 7+len))
//
// Message boundaries cannot be recovered from the byte stream alone, so
// inbound bytes go through a Parser. The parser is a byte-at-a-time
// state machine that emits an Envelope only when its checksum matches
// and otherwise drops the frame and scans for the next header byte.
//
// # Checksum
//
// The CRC is the MSB-first CRC-32 with polynomial 0x04C11DB7, an
// initial value of zero and no final xor:
//
//	crc = table[(crc>>24) ^ b] ^ (crc << 8)
//
// It is not the reflected IEEE CRC from hash/crc32.
//
// # Payloads
//
// Payloads are written with Encoder and read with Decoder: fixed-width
// big-endian integers, uvarint lengths and counts, and length-prefixed
// strings. Property values are carried as deterministic CBOR so the
// server can relay them without knowing their types.
//
//	update := &ObjectUpdate{
//	    Kind:       UpdateProperty,
//	    Properties: PropertyList{MustProperty("angle", 10)},
//	}
//	env := NewEnvelope(MessageVolumeUpdated, EncodeObjectUpdate(update))
//	wire := env.Encode()
//
//	p := NewParser(func(env Envelope) {
//	    u, err := DecodeObjectUpdate(env.Payload)
//	    ...
//	})
//	p.Parse(wire)
//
// # File Structure
//
//   - crc.go: checksum table and update step
//   - envelope.go: Envelope, MessageType and serialization
//   - parser.go: resynchronizing stream parser
//   - encoder.go, decoder.go: payload primitives
//   - property.go: CBOR-backed property lists
//   - messages.go: domain payloads and their codecs
package protocol
