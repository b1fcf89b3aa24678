package store

import "github.com/vango-dev/scenesync/pkg/protocol"

// Kind identifies the type of a shared object.
type Kind uint8

const (
	KindVolume Kind = iota
	KindPlane
	KindWidget
	KindLaser
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindVolume:
		return "volume"
	case KindPlane:
		return "plane"
	case KindWidget:
		return "widget"
	case KindLaser:
		return "laser"
	default:
		return "unknown"
	}
}

// Object is the scene-side half of a shared object.
type Object interface {
	// ApplyProperties applies an update. Names not in update keep their
	// current values.
	ApplyProperties(update protocol.PropertyList)

	// Properties returns the current values. The caller must not modify
	// the returned list.
	Properties() protocol.PropertyList
}

// Factory creates the Object for a newly created shared object.
type Factory func(kind Kind) Object

// PropertyObject is an Object that keeps nothing but its property list.
type PropertyObject struct {
	props protocol.PropertyList
}

// NewPropertyObject creates an empty PropertyObject.
func NewPropertyObject() *PropertyObject {
	return &PropertyObject{}
}

// ApplyProperties merges update into the current values.
func (o *PropertyObject) ApplyProperties(update protocol.PropertyList) {
	o.props = o.props.Merge(update)
}

// Properties returns the current values.
func (o *PropertyObject) Properties() protocol.PropertyList {
	return o.props
}

func defaultFactory(Kind) Object {
	return NewPropertyObject()
}

// Ref names one shared object.
type Ref struct {
	Kind Kind
	ID   uint64
}

// Refs for the two singleton objects.
var (
	VolumeRef = Ref{Kind: KindVolume}
	PlaneRef  = Ref{Kind: KindPlane}
)

// WidgetRef returns the Ref of widget id.
func WidgetRef(id protocol.WidgetID) Ref {
	return Ref{Kind: KindWidget, ID: uint64(id)}
}

// LaserRef returns the Ref of the laser belonging to peer.
func LaserRef(peer protocol.PeerID) Ref {
	return Ref{Kind: KindLaser, ID: uint64(peer)}
}

// Entry is a shared object together with its ownership.
type Entry struct {
	Ref    Ref
	Owner  protocol.PeerID // protocol.NoPeer when unowned
	Object Object
}

// Owned reports whether some peer owns the entry.
func (e *Entry) Owned() bool {
	return e.Owner != protocol.NoPeer
}

// State returns the entry as it is sent in a FULL_STATE snapshot.
func (e *Entry) State() protocol.ObjectState {
	return protocol.ObjectState{
		ID:         e.Ref.ID,
		Owner:      e.Owner,
		HasOwner:   e.Owned(),
		Properties: e.Object.Properties().Clone(),
	}
}
