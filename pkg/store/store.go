package store

import (
	"errors"
	"maps"
	"slices"

	"github.com/vango-dev/scenesync/pkg/protocol"
)

// ErrNotFound is returned for operations on an object that does not exist.
var ErrNotFound = errors.New("store: object not found")

// Grant is the outcome of an Acquire call.
type Grant uint8

const (
	// Denied means another peer owns the object.
	Denied Grant = iota

	// Granted means the object was unowned and now belongs to the peer.
	Granted

	// Held means the peer already owned the object.
	Held
)

// String returns the name of the grant.
func (g Grant) String() string {
	switch g {
	case Denied:
		return "denied"
	case Granted:
		return "granted"
	case Held:
		return "held"
	default:
		return "unknown"
	}
}

// Option configures a Store.
type Option func(*Store)

// WithFactory sets the factory used to create scene objects.
// Default: every object is a *PropertyObject.
func WithFactory(f Factory) Option {
	return func(s *Store) {
		if f != nil {
			s.factory = f
		}
	}
}

// Store holds the shared objects of one session.
type Store struct {
	factory Factory

	volume  *Entry
	plane   *Entry
	widgets map[protocol.WidgetID]*Entry
	lasers  map[protocol.PeerID]*Entry

	lastWidget protocol.WidgetID
}

// New creates a store with an unowned volume and plane and no widgets or
// lasers.
func New(opts ...Option) *Store {
	s := &Store{
		factory: defaultFactory,
		widgets: make(map[protocol.WidgetID]*Entry),
		lasers:  make(map[protocol.PeerID]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.volume = &Entry{Ref: VolumeRef, Object: s.factory(KindVolume)}
	s.plane = &Entry{Ref: PlaneRef, Object: s.factory(KindPlane)}
	return s
}

// Get returns the entry for ref.
func (s *Store) Get(ref Ref) (*Entry, bool) {
	switch ref.Kind {
	case KindVolume:
		return s.volume, true
	case KindPlane:
		return s.plane, true
	case KindWidget:
		e, ok := s.widgets[protocol.WidgetID(ref.ID)]
		return e, ok
	case KindLaser:
		e, ok := s.lasers[protocol.PeerID(ref.ID)]
		return e, ok
	default:
		return nil, false
	}
}

// Owner returns the owner of ref and whether it is owned at all.
func (s *Store) Owner(ref Ref) (protocol.PeerID, bool) {
	e, ok := s.Get(ref)
	if !ok || !e.Owned() {
		return protocol.NoPeer, false
	}
	return e.Owner, true
}

// Acquire makes peer the owner of ref if nobody owns it.
func (s *Store) Acquire(ref Ref, peer protocol.PeerID) (Grant, error) {
	e, ok := s.Get(ref)
	if !ok {
		return Denied, ErrNotFound
	}
	switch e.Owner {
	case peer:
		return Held, nil
	case protocol.NoPeer:
		e.Owner = peer
		return Granted, nil
	default:
		return Denied, nil
	}
}

// Release clears the ownership of ref if peer holds it. It reports
// whether anything changed. Lasers are never released.
func (s *Store) Release(ref Ref, peer protocol.PeerID) (bool, error) {
	e, ok := s.Get(ref)
	if !ok {
		return false, ErrNotFound
	}
	if ref.Kind == KindLaser || e.Owner != peer || peer == protocol.NoPeer {
		return false, nil
	}
	e.Owner = protocol.NoPeer
	return true, nil
}

// ReleaseAll clears every ownership held by peer, except its laser, and
// returns the refs that were released.
func (s *Store) ReleaseAll(peer protocol.PeerID) []Ref {
	if peer == protocol.NoPeer {
		return nil
	}
	var released []Ref
	for _, e := range s.entries(false) {
		if e.Owner == peer {
			e.Owner = protocol.NoPeer
			released = append(released, e.Ref)
		}
	}
	return released
}

// OwnedBy returns the refs peer currently owns, lasers included.
func (s *Store) OwnedBy(peer protocol.PeerID) []Ref {
	var refs []Ref
	for _, e := range s.entries(true) {
		if e.Owner == peer && peer != protocol.NoPeer {
			refs = append(refs, e.Ref)
		}
	}
	return refs
}

// Apply forwards update to the object behind ref.
func (s *Store) Apply(ref Ref, update protocol.PropertyList) error {
	e, ok := s.Get(ref)
	if !ok {
		return ErrNotFound
	}
	e.Object.ApplyProperties(update)
	return nil
}

// Properties returns a copy of the current values of ref.
func (s *Store) Properties(ref Ref) (protocol.PropertyList, error) {
	e, ok := s.Get(ref)
	if !ok {
		return nil, ErrNotFound
	}
	return e.Object.Properties().Clone(), nil
}

// CreateWidget adds a widget owned by owner with the given initial
// properties. Widget ids start at 1 and are never reused.
func (s *Store) CreateWidget(owner protocol.PeerID, props protocol.PropertyList) *Entry {
	s.lastWidget++
	e := &Entry{
		Ref:    WidgetRef(s.lastWidget),
		Owner:  owner,
		Object: s.factory(KindWidget),
	}
	if len(props) > 0 {
		e.Object.ApplyProperties(props)
	}
	s.widgets[s.lastWidget] = e
	return e
}

// DestroyWidget removes widget id and reports whether it existed.
func (s *Store) DestroyWidget(id protocol.WidgetID) bool {
	if _, ok := s.widgets[id]; !ok {
		return false
	}
	delete(s.widgets, id)
	return true
}

// AddLaser creates the laser for peer, owned by peer. An existing laser
// is returned unchanged.
func (s *Store) AddLaser(peer protocol.PeerID) *Entry {
	if e, ok := s.lasers[peer]; ok {
		return e
	}
	e := &Entry{
		Ref:    LaserRef(peer),
		Owner:  peer,
		Object: s.factory(KindLaser),
	}
	s.lasers[peer] = e
	return e
}

// RemoveLaser removes the laser of peer and reports whether it existed.
func (s *Store) RemoveLaser(peer protocol.PeerID) bool {
	if _, ok := s.lasers[peer]; !ok {
		return false
	}
	delete(s.lasers, peer)
	return true
}

// Volume returns the volume entry.
func (s *Store) Volume() *Entry { return s.volume }

// Plane returns the cutting plane entry.
func (s *Store) Plane() *Entry { return s.plane }

// Widgets returns the widgets ordered by id.
func (s *Store) Widgets() []*Entry {
	out := make([]*Entry, 0, len(s.widgets))
	for _, id := range slices.Sorted(maps.Keys(s.widgets)) {
		out = append(out, s.widgets[id])
	}
	return out
}

// Lasers returns the lasers ordered by peer id.
func (s *Store) Lasers() []*Entry {
	out := make([]*Entry, 0, len(s.lasers))
	for _, id := range slices.Sorted(maps.Keys(s.lasers)) {
		out = append(out, s.lasers[id])
	}
	return out
}

// WidgetCount returns the number of widgets.
func (s *Store) WidgetCount() int { return len(s.widgets) }

// LaserCount returns the number of lasers.
func (s *Store) LaserCount() int { return len(s.lasers) }

// Snapshot fills the object sections of a FULL_STATE payload. Peers are
// left to the caller.
func (s *Store) Snapshot() *protocol.FullState {
	fs := &protocol.FullState{
		Volume: s.volume.State(),
		Plane:  s.plane.State(),
	}
	for _, e := range s.Widgets() {
		fs.Widgets = append(fs.Widgets, e.State())
	}
	for _, e := range s.Lasers() {
		fs.Lasers = append(fs.Lasers, e.State())
	}
	return fs
}

// entries returns every entry in a stable order.
func (s *Store) entries(withLasers bool) []*Entry {
	out := []*Entry{s.volume, s.plane}
	out = append(out, s.Widgets()...)
	if withLasers {
		out = append(out, s.Lasers()...)
	}
	return out
}
