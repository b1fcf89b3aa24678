package session

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/vango-dev/scenesync/pkg/protocol"
	"github.com/vango-dev/scenesync/pkg/router"
	"github.com/vango-dev/scenesync/pkg/store"
)

// Outbox receives the envelopes a Session produces. Implementations must
// not block and must not call back into the Session.
type Outbox interface {
	// Send queues env for peer.
	Send(peer protocol.PeerID, env protocol.Envelope)

	// Close closes the connection of peer once everything already queued
	// for it has been written.
	Close(peer protocol.PeerID)
}

// Config configures a Session.
type Config struct {
	// Code is the session code peers must present. Empty generates one.
	Code string

	// CodeLength is the length of a generated code.
	// Default: 6.
	CodeLength int

	// Factory creates scene objects for the store.
	// Default: store.PropertyObject for every object.
	Factory store.Factory

	// Color picks the color of a newly authenticated peer.
	// Default: RandomColor.
	Color func() protocol.Color

	// Logger receives session events.
	// Default: slog.Default().
	Logger *slog.Logger
}

// Peer is one connection known to the session.
type Peer struct {
	ID        protocol.PeerID
	Alias     string
	Color     protocol.Color
	Validated bool
	Remote    string
}

// Info returns the peer as it appears on the wire.
func (p *Peer) Info() protocol.PeerInfo {
	return protocol.PeerInfo{ID: p.ID, Alias: p.Alias, Color: p.Color}
}

// Session holds the peers and shared objects of one collaborative session.
type Session struct {
	code   string
	out    Outbox
	store  *store.Store
	color  func() protocol.Color
	logger *slog.Logger

	peers    map[protocol.PeerID]*Peer
	lastPeer protocol.PeerID
}

// New creates a session that delivers its envelopes to out.
func New(cfg Config, out Outbox) (*Session, error) {
	code := cfg.Code
	if code == "" {
		var err error
		code, err = GenerateCode(cfg.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("session: generate code: %w", err)
		}
	} else if !ValidCode(code) {
		return nil, fmt.Errorf("session: invalid session code %q: must match [0-9A-Za-z]+", code)
	}

	color := cfg.Color
	if color == nil {
		color = RandomColor
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		code:   code,
		out:    out,
		store:  store.New(store.WithFactory(cfg.Factory)),
		color:  color,
		logger: logger.With("component", "session"),
		peers:  make(map[protocol.PeerID]*Peer),
	}, nil
}

// Code returns the session code.
func (s *Session) Code() string {
	return s.code
}

// Store returns the shared object store.
func (s *Session) Store() *store.Store {
	return s.store
}

// Peer returns a copy of the peer with the given id.
func (s *Session) Peer(id protocol.PeerID) (Peer, bool) {
	p, ok := s.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Peers returns copies of all connected peers ordered by id.
func (s *Session) Peers() []Peer {
	out := make([]Peer, 0, len(s.peers))
	for _, id := range slices.Sorted(maps.Keys(s.peers)) {
		out = append(out, *s.peers[id])
	}
	return out
}

// ValidatedCount returns the number of authenticated peers.
func (s *Session) ValidatedCount() int {
	n := 0
	for _, p := range s.peers {
		if p.Validated {
			n++
		}
	}
	return n
}

// Snapshot returns the FULL_STATE payload for the current session.
func (s *Session) Snapshot() *protocol.FullState {
	fs := s.store.Snapshot()
	for _, p := range s.validated() {
		fs.Peers = append(fs.Peers, p.Info())
	}
	return fs
}

// Connect registers a new unauthenticated peer and asks it for
// credentials. bind, if not nil, is called with the new id before
// anything is sent, so the caller can route the id to its connection.
func (s *Session) Connect(remote string, bind func(protocol.PeerID)) protocol.PeerID {
	s.lastPeer++
	id := s.lastPeer
	s.peers[id] = &Peer{ID: id, Remote: remote}
	if bind != nil {
		bind(id)
	}

	s.logger.Debug("peer connected", "peer_id", id, "remote", remote)
	s.out.Send(id, router.RequestCredentials())
	return id
}

// Authenticate checks the credentials of an unauthenticated peer.
func (s *Session) Authenticate(id protocol.PeerID, c *protocol.Credentials) error {
	p, ok := s.peers[id]
	if !ok {
		return ErrUnknownPeer
	}
	if p.Validated {
		return ErrAlreadyValidated
	}

	if c.SessionCode != s.code {
		delete(s.peers, id)
		s.out.Send(id, router.AuthorizationFailed())
		s.out.Close(id)
		s.logger.Info("authentication failed", "peer_id", id, "remote", p.Remote, "alias", c.Alias)
		return ErrInvalidCredentials
	}

	p.Alias = c.Alias
	p.Color = s.color()
	p.Validated = true
	s.store.AddLaser(id)

	info := p.Info()
	s.out.Send(id, router.AuthorizationSucceeded(&info))
	s.out.Send(id, router.FullState(s.Snapshot()))
	s.broadcastExcept(id, router.PeerAdded(&info))

	s.logger.Info("peer authenticated", "peer_id", id, "alias", p.Alias, "remote", p.Remote)
	return nil
}

// Disconnect removes a peer and releases everything it owned. Removing a
// peer that is not connected returns ErrUnknownPeer and changes nothing.
func (s *Session) Disconnect(id protocol.PeerID) error {
	p, ok := s.peers[id]
	if !ok {
		return ErrUnknownPeer
	}
	delete(s.peers, id)

	released := s.store.ReleaseAll(id)
	s.store.RemoveLaser(id)

	if p.Validated {
		info := p.Info()
		s.broadcast(router.PeerRemoved(&info))
	}

	s.logger.Info("peer disconnected",
		"peer_id", id,
		"alias", p.Alias,
		"validated", p.Validated,
		"released", len(released))
	return nil
}

// UpdateLaser applies a laser update from its owner and relays it to all
// validated peers.
func (s *Session) UpdateLaser(id protocol.PeerID, u *protocol.ObjectUpdate) error {
	if _, err := s.validatedPeer(id); err != nil {
		return err
	}
	if u.Kind != protocol.UpdateProperty {
		return ErrUnsupportedUpdate
	}

	ref := store.LaserRef(id)
	if err := s.store.Apply(ref, u.Properties); err != nil {
		return err
	}
	s.broadcast(router.LaserUpdated(&protocol.ObjectUpdate{
		Kind:       protocol.UpdateProperty,
		TargetID:   uint64(id),
		PeerID:     id,
		Properties: s.resulting(ref, u.Properties),
	}))
	return nil
}

// UpdateVolume handles a VOLUME_UPDATED message from a peer.
func (s *Session) UpdateVolume(id protocol.PeerID, u *protocol.ObjectUpdate) error {
	return s.updateSingleton(id, u, store.VolumeRef, router.VolumeUpdated)
}

// UpdatePlane handles a PLANE_EVENT message from a peer.
func (s *Session) UpdatePlane(id protocol.PeerID, u *protocol.ObjectUpdate) error {
	return s.updateSingleton(id, u, store.PlaneRef, router.PlaneEvent)
}

func (s *Session) updateSingleton(id protocol.PeerID, u *protocol.ObjectUpdate, ref store.Ref, build func(*protocol.ObjectUpdate) protocol.Envelope) error {
	if _, err := s.validatedPeer(id); err != nil {
		return err
	}

	switch u.Kind {
	case protocol.UpdateProperty:
		grant, err := s.store.Acquire(ref, id)
		if err != nil {
			return err
		}
		switch grant {
		case store.Denied:
			return s.conflict(id, ref)
		case store.Granted:
			s.broadcastExcept(id, build(&protocol.ObjectUpdate{
				Kind:   protocol.UpdateInteractionStarted,
				PeerID: id,
			}))
		}
		return s.applyAndBroadcast(id, ref, u.Properties, build)

	case protocol.UpdateInteractionEnded:
		return s.endInteraction(id, ref, build)

	default:
		return ErrUnsupportedUpdate
	}
}

// UpdateWidget handles a WIDGET_EVENT message from a peer.
func (s *Session) UpdateWidget(id protocol.PeerID, u *protocol.ObjectUpdate) error {
	if _, err := s.validatedPeer(id); err != nil {
		return err
	}
	ref := store.WidgetRef(protocol.WidgetID(u.TargetID))

	switch u.Kind {
	case protocol.UpdateCreate:
		e := s.store.CreateWidget(id, u.Properties)
		s.logger.Debug("widget created", "peer_id", id, "widget_id", e.Ref.ID)
		s.broadcast(router.WidgetEvent(&protocol.ObjectUpdate{
			Kind:       protocol.UpdateCreate,
			TargetID:   e.Ref.ID,
			PeerID:     id,
			Properties: e.Object.Properties().Clone(),
		}))
		return nil

	case protocol.UpdateDestroy:
		if !s.store.DestroyWidget(protocol.WidgetID(u.TargetID)) {
			return nil
		}
		s.logger.Debug("widget destroyed", "peer_id", id, "widget_id", u.TargetID)
		s.broadcast(router.WidgetEvent(&protocol.ObjectUpdate{
			Kind:     protocol.UpdateDestroy,
			TargetID: u.TargetID,
			PeerID:   id,
		}))
		return nil

	case protocol.UpdateProperty:
		grant, err := s.store.Acquire(ref, id)
		if err != nil {
			return ErrUnknownWidget
		}
		if grant == store.Denied {
			return s.conflict(id, ref)
		}
		return s.applyAndBroadcast(id, ref, u.Properties, router.WidgetEvent)

	case protocol.UpdateInteractionEnded:
		if _, ok := s.store.Get(ref); !ok {
			return ErrUnknownWidget
		}
		return s.endInteraction(id, ref, router.WidgetEvent)

	default:
		return ErrUnsupportedUpdate
	}
}

func (s *Session) applyAndBroadcast(id protocol.PeerID, ref store.Ref, props protocol.PropertyList, build func(*protocol.ObjectUpdate) protocol.Envelope) error {
	if err := s.store.Apply(ref, props); err != nil {
		return err
	}
	s.broadcast(build(&protocol.ObjectUpdate{
		Kind:       protocol.UpdateProperty,
		TargetID:   ref.ID,
		PeerID:     id,
		Properties: s.resulting(ref, props),
	}))
	return nil
}

func (s *Session) endInteraction(id protocol.PeerID, ref store.Ref, build func(*protocol.ObjectUpdate) protocol.Envelope) error {
	released, err := s.store.Release(ref, id)
	if err != nil {
		return err
	}
	if !released {
		return ErrNotOwner
	}
	s.broadcast(build(&protocol.ObjectUpdate{
		Kind:     protocol.UpdateInteractionEnded,
		TargetID: ref.ID,
		PeerID:   id,
	}))
	return nil
}

// resulting returns the current values of the properties named in
// update, in update order. An Object may adjust what it is given, so
// peers receive what the object actually holds.
func (s *Session) resulting(ref store.Ref, update protocol.PropertyList) protocol.PropertyList {
	current, err := s.store.Properties(ref)
	if err != nil {
		return nil
	}
	out := make(protocol.PropertyList, 0, len(update))
	for _, p := range update {
		if cur, ok := current.Get(p.Name); ok {
			out = append(out, cur)
		}
	}
	return out
}

func (s *Session) conflict(id protocol.PeerID, ref store.Ref) error {
	owner, _ := s.store.Owner(ref)
	s.logger.Debug("update dropped",
		"peer_id", id,
		"object", ref.Kind.String(),
		"object_id", ref.ID,
		"owner", owner)
	return ErrOwnershipConflict
}

func (s *Session) validatedPeer(id protocol.PeerID) (*Peer, error) {
	p, ok := s.peers[id]
	if !ok {
		return nil, ErrUnknownPeer
	}
	if !p.Validated {
		return nil, ErrNotValidated
	}
	return p, nil
}

// validated returns the validated peers ordered by id.
func (s *Session) validated() []*Peer {
	out := make([]*Peer, 0, len(s.peers))
	for _, id := range slices.Sorted(maps.Keys(s.peers)) {
		if p := s.peers[id]; p.Validated {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) broadcast(env protocol.Envelope) {
	s.broadcastExcept(protocol.NoPeer, env)
}

func (s *Session) broadcastExcept(except protocol.PeerID, env protocol.Envelope) {
	for _, p := range s.validated() {
		if p.ID != except {
			s.out.Send(p.ID, env)
		}
	}
}
