package protocol

import "testing"

// FuzzParser tests that arbitrary input never panics the parser and that
// every emitted envelope re-encodes to a frame carrying the same checksum.
func FuzzParser(f *testing.F) {
	f.Add(NewEnvelope(MessagePeerAdded, []byte("Hello world")).Encode())
	f.Add(NewEnvelope(MessagePeerCredentials, nil).Encode())
	f.Add([]byte{0x00, 0x00, 0x08, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		p := NewParser(func(env Envelope) {
			wire := env.Encode()
			if Checksum(wire[:len(wire)-ChecksumSize]) != env.Checksum() {
				t.Fatalf("re-encoded envelope checksum mismatch")
			}
		})
		p.SetLimit(1 << 16)
		_ = p.Parse(data)
	})
}

// FuzzDecodeObjectUpdate tests that decoding arbitrary bytes doesn't panic.
func FuzzDecodeObjectUpdate(f *testing.F) {
	f.Add(EncodeObjectUpdate(&ObjectUpdate{
		Kind:       UpdateProperty,
		PeerID:     1,
		Properties: PropertyList{MustProperty("angle", 10)},
	}))
	f.Add(EncodeObjectUpdate(&ObjectUpdate{Kind: UpdateDestroy, TargetID: 4}))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeObjectUpdate(data)
	})
}

// FuzzDecodeFullState tests that decoding arbitrary bytes doesn't panic.
func FuzzDecodeFullState(f *testing.F) {
	f.Add(EncodeFullState(&FullState{
		Peers:  []PeerInfo{{ID: 1, Alias: "a"}},
		Lasers: []ObjectState{{ID: 1, HasOwner: true, Owner: 1}},
	}))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeFullState(data)
	})
}

// FuzzDecodeCredentials tests that decoding arbitrary bytes doesn't panic.
func FuzzDecodeCredentials(f *testing.F) {
	f.Add(EncodeCredentials(&Credentials{SessionCode: "abc123", Alias: "x"}))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeCredentials(data)
	})
}
