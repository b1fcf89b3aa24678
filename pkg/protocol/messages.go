package protocol

import (
	"errors"
	"fmt"
)

// PeerID identifies a connected peer. IDs are assigned in increasing
// order and never reused within a session.
type PeerID uint64

// WidgetID identifies a widget. IDs are assigned in increasing order
// and never reused within a session.
type WidgetID uint64

// NoPeer is the zero PeerID. Real peers start at 1.
const NoPeer PeerID = 0

// Color is an RGB triple with components in [0, 1].
type Color [3]float64

// ErrUnknownUpdateKind is returned when an ObjectUpdate carries a kind
// byte outside the defined range.
var ErrUnknownUpdateKind = errors.New("protocol: unknown update kind")

// UpdateKind says what an ObjectUpdate does to its target.
type UpdateKind uint8

const (
	UpdateCreate             UpdateKind = 0x00 // Widget created (widgets only)
	UpdateDestroy            UpdateKind = 0x01 // Widget destroyed (widgets only)
	UpdateProperty           UpdateKind = 0x02 // Property values changed
	UpdateInteractionStarted UpdateKind = 0x03 // PeerID took ownership
	UpdateInteractionEnded   UpdateKind = 0x04 // PeerID released ownership
)

// String returns the name of the update kind.
func (k UpdateKind) String() string {
	switch k {
	case UpdateCreate:
		return "Create"
	case UpdateDestroy:
		return "Destroy"
	case UpdateProperty:
		return "PropertyUpdate"
	case UpdateInteractionStarted:
		return "InteractionStarted"
	case UpdateInteractionEnded:
		return "InteractionEnded"
	default:
		return "Unknown"
	}
}

// Credentials is sent by a peer in answer to REQUEST_CREDENTIALS.
type Credentials struct {
	SessionCode string
	Alias       string
}

// PeerInfo describes an authenticated peer.
type PeerInfo struct {
	ID    PeerID
	Alias string
	Color Color
}

// ObjectUpdate is the payload of LASER_UPDATED, VOLUME_UPDATED,
// WIDGET_EVENT and PLANE_EVENT. TargetID is the widget id for widget
// events and the owning peer for lasers; it is zero otherwise. PeerID is
// the peer the update is attributed to. Senders may leave it zero; the
// server fills it in before relaying.
type ObjectUpdate struct {
	Kind       UpdateKind
	TargetID   uint64
	PeerID     PeerID
	Properties PropertyList
}

// ObjectState is a shared object as it appears in a FULL_STATE snapshot.
type ObjectState struct {
	ID         uint64
	Owner      PeerID
	HasOwner   bool
	Properties PropertyList
}

// FullState is the snapshot sent to a newly authenticated peer.
type FullState struct {
	Peers   []PeerInfo
	Volume  ObjectState
	Plane   ObjectState
	Widgets []ObjectState
	Lasers  []ObjectState
}

// EncodeCredentials encodes Credentials to bytes.
func EncodeCredentials(c *Credentials) []byte {
	e := NewEncoder()
	EncodeCredentialsTo(e, c)
	return e.Bytes()
}

// EncodeCredentialsTo encodes Credentials using the provided encoder.
func EncodeCredentialsTo(e *Encoder, c *Credentials) {
	e.WriteString(c.SessionCode)
	e.WriteString(c.Alias)
}

// DecodeCredentials decodes Credentials from bytes.
func DecodeCredentials(data []byte) (*Credentials, error) {
	d := NewDecoder(data)
	c, err := DecodeCredentialsFrom(d)
	if err != nil {
		return nil, err
	}
	return c, d.Finish()
}

// DecodeCredentialsFrom decodes Credentials from a decoder.
func DecodeCredentialsFrom(d *Decoder) (*Credentials, error) {
	c := &Credentials{}
	var err error

	c.SessionCode, err = d.ReadString()
	if err != nil {
		return nil, err
	}
	c.Alias, err = d.ReadString()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// EncodePeerInfo encodes a PeerInfo to bytes.
func EncodePeerInfo(p *PeerInfo) []byte {
	e := NewEncoder()
	EncodePeerInfoTo(e, p)
	return e.Bytes()
}

// EncodePeerInfoTo encodes a PeerInfo using the provided encoder.
func EncodePeerInfoTo(e *Encoder, p *PeerInfo) {
	e.WriteUint64(uint64(p.ID))
	e.WriteString(p.Alias)
	for _, c := range p.Color {
		e.WriteFloat64(c)
	}
}

// DecodePeerInfo decodes a PeerInfo from bytes.
func DecodePeerInfo(data []byte) (*PeerInfo, error) {
	d := NewDecoder(data)
	p, err := DecodePeerInfoFrom(d)
	if err != nil {
		return nil, err
	}
	return p, d.Finish()
}

// DecodePeerInfoFrom decodes a PeerInfo from a decoder.
func DecodePeerInfoFrom(d *Decoder) (*PeerInfo, error) {
	p := &PeerInfo{}

	id, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	p.ID = PeerID(id)

	p.Alias, err = d.ReadString()
	if err != nil {
		return nil, err
	}

	for i := range p.Color {
		p.Color[i], err = d.ReadFloat64()
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// EncodeObjectUpdate encodes an ObjectUpdate to bytes.
func EncodeObjectUpdate(u *ObjectUpdate) []byte {
	e := NewEncoder()
	EncodeObjectUpdateTo(e, u)
	return e.Bytes()
}

// EncodeObjectUpdateTo encodes an ObjectUpdate using the provided encoder.
func EncodeObjectUpdateTo(e *Encoder, u *ObjectUpdate) {
	e.WriteByte(byte(u.Kind))
	e.WriteUint64(u.TargetID)
	e.WriteUint64(uint64(u.PeerID))
	EncodePropertyListTo(e, u.Properties)
}

// DecodeObjectUpdate decodes an ObjectUpdate from bytes.
func DecodeObjectUpdate(data []byte) (*ObjectUpdate, error) {
	d := NewDecoder(data)
	u, err := DecodeObjectUpdateFrom(d)
	if err != nil {
		return nil, err
	}
	return u, d.Finish()
}

// DecodeObjectUpdateFrom decodes an ObjectUpdate from a decoder.
func DecodeObjectUpdateFrom(d *Decoder) (*ObjectUpdate, error) {
	u := &ObjectUpdate{}

	kind, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	u.Kind = UpdateKind(kind)
	if u.Kind > UpdateInteractionEnded {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUpdateKind, kind)
	}

	u.TargetID, err = d.ReadUint64()
	if err != nil {
		return nil, err
	}

	peer, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	u.PeerID = PeerID(peer)

	u.Properties, err = DecodePropertyListFrom(d)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// EncodeObjectStateTo encodes an ObjectState using the provided encoder.
func EncodeObjectStateTo(e *Encoder, s *ObjectState) {
	e.WriteUint64(s.ID)
	e.WriteBool(s.HasOwner)
	e.WriteUint64(uint64(s.Owner))
	EncodePropertyListTo(e, s.Properties)
}

// DecodeObjectStateFrom decodes an ObjectState from a decoder.
func DecodeObjectStateFrom(d *Decoder) (ObjectState, error) {
	var s ObjectState
	var err error

	s.ID, err = d.ReadUint64()
	if err != nil {
		return s, err
	}
	s.HasOwner, err = d.ReadBool()
	if err != nil {
		return s, err
	}
	owner, err := d.ReadUint64()
	if err != nil {
		return s, err
	}
	s.Owner = PeerID(owner)
	s.Properties, err = DecodePropertyListFrom(d)
	return s, err
}

// EncodeFullState encodes a FullState to bytes.
func EncodeFullState(s *FullState) []byte {
	e := NewEncoderWithCap(1024)
	EncodeFullStateTo(e, s)
	return e.Bytes()
}

// EncodeFullStateTo encodes a FullState using the provided encoder.
func EncodeFullStateTo(e *Encoder, s *FullState) {
	e.WriteUvarint(uint64(len(s.Peers)))
	for i := range s.Peers {
		EncodePeerInfoTo(e, &s.Peers[i])
	}
	EncodeObjectStateTo(e, &s.Volume)
	EncodeObjectStateTo(e, &s.Plane)
	e.WriteUvarint(uint64(len(s.Widgets)))
	for i := range s.Widgets {
		EncodeObjectStateTo(e, &s.Widgets[i])
	}
	e.WriteUvarint(uint64(len(s.Lasers)))
	for i := range s.Lasers {
		EncodeObjectStateTo(e, &s.Lasers[i])
	}
}

// DecodeFullState decodes a FullState from bytes.
func DecodeFullState(data []byte) (*FullState, error) {
	d := NewDecoder(data)
	s, err := DecodeFullStateFrom(d)
	if err != nil {
		return nil, err
	}
	return s, d.Finish()
}

// DecodeFullStateFrom decodes a FullState from a decoder.
func DecodeFullStateFrom(d *Decoder) (*FullState, error) {
	s := &FullState{}

	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		s.Peers = make([]PeerInfo, count)
		for i := range s.Peers {
			p, err := DecodePeerInfoFrom(d)
			if err != nil {
				return nil, err
			}
			s.Peers[i] = *p
		}
	}

	s.Volume, err = DecodeObjectStateFrom(d)
	if err != nil {
		return nil, err
	}
	s.Plane, err = DecodeObjectStateFrom(d)
	if err != nil {
		return nil, err
	}

	s.Widgets, err = decodeObjectStates(d)
	if err != nil {
		return nil, err
	}
	s.Lasers, err = decodeObjectStates(d)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func decodeObjectStates(d *Decoder) ([]ObjectState, error) {
	count, err := d.ReadCollectionCount()
	if err != nil || count == 0 {
		return nil, err
	}
	states := make([]ObjectState, count)
	for i := range states {
		states[i], err = DecodeObjectStateFrom(d)
		if err != nil {
			return nil, err
		}
	}
	return states, nil
}
