package session

import (
	"errors"
	"testing"

	"github.com/vango-dev/scenesync/pkg/protocol"
	"github.com/vango-dev/scenesync/pkg/store"
)

type sent struct {
	to  protocol.PeerID
	env protocol.Envelope
}

// recordingOutbox captures everything a session sends.
type recordingOutbox struct {
	sent   []sent
	closed []protocol.PeerID
}

func (o *recordingOutbox) Send(peer protocol.PeerID, env protocol.Envelope) {
	o.sent = append(o.sent, sent{to: peer, env: env})
}

func (o *recordingOutbox) Close(peer protocol.PeerID) {
	o.closed = append(o.closed, peer)
}

// take returns and clears the envelopes sent so far.
func (o *recordingOutbox) take() []sent {
	out := o.sent
	o.sent = nil
	return out
}

// to returns the envelopes addressed to peer.
func to(msgs []sent, peer protocol.PeerID) []protocol.Envelope {
	var out []protocol.Envelope
	for _, m := range msgs {
		if m.to == peer {
			out = append(out, m.env)
		}
	}
	return out
}

const testCode = "abc123"

func newTestSession(t *testing.T) (*Session, *recordingOutbox) {
	t.Helper()
	out := &recordingOutbox{}
	s, err := New(Config{
		Code:  testCode,
		Color: func() protocol.Color { return protocol.Color{1, 0.5, 0} },
	}, out)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, out
}

// join connects and authenticates a peer and discards the admission
// traffic.
func join(t *testing.T, s *Session, out *recordingOutbox, alias string) protocol.PeerID {
	t.Helper()
	id := s.Connect("test", nil)
	if err := s.Authenticate(id, &protocol.Credentials{SessionCode: testCode, Alias: alias}); err != nil {
		t.Fatalf("Authenticate(%s) error = %v", alias, err)
	}
	out.take()
	return id
}

func decodeUpdate(t *testing.T, env protocol.Envelope) *protocol.ObjectUpdate {
	t.Helper()
	u, err := protocol.DecodeObjectUpdate(env.Payload)
	if err != nil {
		t.Fatalf("DecodeObjectUpdate() error = %v", err)
	}
	return u
}

func props(kv ...any) protocol.PropertyList {
	var l protocol.PropertyList
	for i := 0; i < len(kv); i += 2 {
		l = append(l, protocol.MustProperty(kv[i].(string), kv[i+1]))
	}
	return l
}

func TestNewSessionCode(t *testing.T) {
	s, err := New(Config{CodeLength: 8}, &recordingOutbox{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(s.Code()) != 8 || !ValidCode(s.Code()) {
		t.Errorf("Code() = %q, want 8 alphanumeric characters", s.Code())
	}

	if _, err := New(Config{Code: "bad code!"}, &recordingOutbox{}); err == nil {
		t.Error("New() with invalid code succeeded")
	}
}

func TestConnectRequestsCredentials(t *testing.T) {
	s, out := newTestSession(t)
	id := s.Connect("10.0.0.1:5000", nil)

	msgs := out.take()
	if len(msgs) != 1 || msgs[0].to != id || msgs[0].env.Type != protocol.MessageRequestCredentials {
		t.Fatalf("sent %+v, want one REQUEST_CREDENTIALS to %d", msgs, id)
	}
	p, ok := s.Peer(id)
	if !ok || p.Validated || p.Remote != "10.0.0.1:5000" {
		t.Errorf("Peer() = %+v, %v", p, ok)
	}

	if second := s.Connect("", nil); second != id+1 {
		t.Errorf("second peer id = %d, want %d", second, id+1)
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")

	b := s.Connect("", nil)
	out.take()
	if err := s.Authenticate(b, &protocol.Credentials{SessionCode: testCode, Alias: "bob"}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	msgs := out.take()

	toB := to(msgs, b)
	if len(toB) != 2 {
		t.Fatalf("bob received %d envelopes, want 2", len(toB))
	}
	if toB[0].Type != protocol.MessageAuthorizationSucceeded || toB[1].Type != protocol.MessageFullState {
		t.Errorf("bob received %v, %v; want AUTHORIZATION_SUCCEEDED, FULL_STATE", toB[0].Type, toB[1].Type)
	}
	info, err := protocol.DecodePeerInfo(toB[0].Payload)
	if err != nil {
		t.Fatalf("DecodePeerInfo() error = %v", err)
	}
	if info.ID != b || info.Alias != "bob" || info.Color != (protocol.Color{1, 0.5, 0}) {
		t.Errorf("PeerInfo = %+v", info)
	}

	toA := to(msgs, a)
	if len(toA) != 1 || toA[0].Type != protocol.MessagePeerAdded {
		t.Fatalf("alice received %v, want PEER_ADDED", toA)
	}
	if _, ok := s.Store().Get(store.LaserRef(b)); !ok {
		t.Error("no laser created for bob")
	}
}

func TestAuthenticateWrongCode(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")

	b := s.Connect("", nil)
	out.take()
	err := s.Authenticate(b, &protocol.Credentials{SessionCode: "nope", Alias: "mallory"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}

	msgs := out.take()
	if len(msgs) != 1 || msgs[0].to != b || msgs[0].env.Type != protocol.MessageAuthorizationFailed {
		t.Fatalf("sent %+v, want only AUTHORIZATION_FAILED to the peer", msgs)
	}
	if len(to(msgs, a)) != 0 {
		t.Error("validated peer was told about a failed login")
	}
	if len(out.closed) != 1 || out.closed[0] != b {
		t.Errorf("closed = %v, want [%d]", out.closed, b)
	}
	if _, ok := s.Peer(b); ok {
		t.Error("rejected peer still registered")
	}

	// The connection's close later reports a disconnect; it must be a no-op.
	if err := s.Disconnect(b); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Disconnect() error = %v, want ErrUnknownPeer", err)
	}
	if msgs := out.take(); len(msgs) != 0 {
		t.Errorf("disconnect of rejected peer sent %+v", msgs)
	}
}

func TestCredentialsIgnoredOnceValidated(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")

	err := s.Authenticate(a, &protocol.Credentials{SessionCode: "wrong"})
	if !errors.Is(err, ErrAlreadyValidated) {
		t.Fatalf("Authenticate() error = %v, want ErrAlreadyValidated", err)
	}
	if msgs := out.take(); len(msgs) != 0 || len(out.closed) != 0 {
		t.Errorf("repeated credentials produced traffic: %+v closed %v", msgs, out.closed)
	}
}

func TestUnvalidatedPeerIgnored(t *testing.T) {
	s, out := newTestSession(t)
	join(t, s, out, "alice")
	u := s.Connect("", nil)
	out.take()

	update := &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("angle", 1)}
	if err := s.UpdateVolume(u, update); !errors.Is(err, ErrNotValidated) {
		t.Errorf("UpdateVolume() error = %v, want ErrNotValidated", err)
	}
	if err := s.UpdateLaser(u, update); !errors.Is(err, ErrNotValidated) {
		t.Errorf("UpdateLaser() error = %v, want ErrNotValidated", err)
	}
	if _, owned := s.Store().Owner(store.VolumeRef); owned {
		t.Error("unvalidated peer acquired the volume")
	}
	if msgs := out.take(); len(msgs) != 0 {
		t.Errorf("sent %+v, want nothing", msgs)
	}
}

// Two peers contend for the volume: only the owner's updates are applied
// and relayed until it ends its interaction.
func TestVolumeTwoPeerScenario(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")
	b := join(t, s, out, "bob")

	// Alice takes the volume.
	if err := s.UpdateVolume(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("angle", 10)}); err != nil {
		t.Fatalf("UpdateVolume(a) error = %v", err)
	}
	msgs := out.take()

	toB := to(msgs, b)
	if len(toB) != 2 {
		t.Fatalf("bob received %d envelopes, want 2", len(toB))
	}
	if started := decodeUpdate(t, toB[0]); started.Kind != protocol.UpdateInteractionStarted || started.PeerID != a {
		t.Errorf("first envelope to bob = %+v, want InteractionStarted(alice)", started)
	}
	update := decodeUpdate(t, toB[1])
	if update.Kind != protocol.UpdateProperty || update.PeerID != a || !update.Properties.Equal(props("angle", 10)) {
		t.Errorf("second envelope to bob = %+v, want angle=10 from alice", update)
	}

	toA := to(msgs, a)
	if len(toA) != 1 || decodeUpdate(t, toA[0]).Kind != protocol.UpdateProperty {
		t.Errorf("alice received %v, want only the property update", toA)
	}

	// Bob is ignored while alice owns it.
	err := s.UpdateVolume(b, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("angle", 20)})
	if !errors.Is(err, ErrOwnershipConflict) {
		t.Fatalf("UpdateVolume(b) error = %v, want ErrOwnershipConflict", err)
	}
	if msgs := out.take(); len(msgs) != 0 {
		t.Fatalf("conflicting update produced %+v", msgs)
	}
	current, _ := s.Store().Properties(store.VolumeRef)
	if !current.Equal(props("angle", 10)) {
		t.Errorf("volume properties = %v, want angle=10", current.Names())
	}

	// Bob cannot end alice's interaction.
	if err := s.UpdateVolume(b, &protocol.ObjectUpdate{Kind: protocol.UpdateInteractionEnded}); !errors.Is(err, ErrNotOwner) {
		t.Errorf("UpdateVolume(b, ended) error = %v, want ErrNotOwner", err)
	}

	// Alice lets go; everyone hears about it.
	if err := s.UpdateVolume(a, &protocol.ObjectUpdate{Kind: protocol.UpdateInteractionEnded}); err != nil {
		t.Fatalf("UpdateVolume(a, ended) error = %v", err)
	}
	msgs = out.take()
	for _, peer := range []protocol.PeerID{a, b} {
		envs := to(msgs, peer)
		if len(envs) != 1 {
			t.Fatalf("peer %d received %d envelopes, want 1", peer, len(envs))
		}
		if ended := decodeUpdate(t, envs[0]); ended.Kind != protocol.UpdateInteractionEnded || ended.PeerID != a {
			t.Errorf("peer %d received %+v, want InteractionEnded(alice)", peer, ended)
		}
	}

	// Now bob's update wins.
	if err := s.UpdateVolume(b, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("angle", 20)}); err != nil {
		t.Fatalf("UpdateVolume(b) error = %v", err)
	}
	msgs = out.take()
	toA = to(msgs, a)
	if len(toA) != 2 || decodeUpdate(t, toA[0]).PeerID != b {
		t.Fatalf("alice received %v, want InteractionStarted(bob) then the update", toA)
	}
	if owner, _ := s.Store().Owner(store.VolumeRef); owner != b {
		t.Errorf("volume owner = %d, want %d", owner, b)
	}
}

func TestPlaneUsesPlaneEvents(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")

	if err := s.UpdatePlane(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("normal", []float64{0, 0, 1})}); err != nil {
		t.Fatalf("UpdatePlane() error = %v", err)
	}
	for _, m := range out.take() {
		if m.env.Type != protocol.MessagePlaneEvent {
			t.Errorf("sent %v, want PLANE_EVENT", m.env.Type)
		}
	}
	if err := s.UpdatePlane(a, &protocol.ObjectUpdate{Kind: protocol.UpdateCreate}); !errors.Is(err, ErrUnsupportedUpdate) {
		t.Errorf("UpdatePlane(create) error = %v, want ErrUnsupportedUpdate", err)
	}
}

func TestDisconnectReleasesOwnership(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")
	b := join(t, s, out, "bob")

	s.UpdateVolume(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("angle", 10)})
	s.UpdatePlane(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("offset", 1)})
	s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateCreate})
	out.take()

	if err := s.Disconnect(a); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	msgs := out.take()
	if len(msgs) != 1 || msgs[0].to != b || msgs[0].env.Type != protocol.MessagePeerRemoved {
		t.Fatalf("sent %+v, want only PEER_REMOVED to bob", msgs)
	}
	if refs := s.Store().OwnedBy(a); len(refs) != 0 {
		t.Errorf("alice still owns %v", refs)
	}
	if _, ok := s.Store().Get(store.LaserRef(a)); ok {
		t.Error("alice's laser survived disconnect")
	}

	if err := s.UpdateVolume(b, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("angle", 30)}); err != nil {
		t.Errorf("UpdateVolume(b) after release error = %v", err)
	}

	if err := s.Disconnect(a); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("second Disconnect() error = %v, want ErrUnknownPeer", err)
	}
}

func TestDisconnectUnvalidatedIsSilent(t *testing.T) {
	s, out := newTestSession(t)
	join(t, s, out, "alice")
	u := s.Connect("", nil)
	out.take()

	if err := s.Disconnect(u); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if msgs := out.take(); len(msgs) != 0 {
		t.Errorf("sent %+v, want nothing", msgs)
	}
}

// A peer joining late receives everything that happened before it.
func TestLateJoinerConvergence(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")

	s.UpdateVolume(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("angle", 10)})
	s.UpdateVolume(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("zoom", 2)})
	s.UpdatePlane(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("offset", 5)})
	s.UpdatePlane(a, &protocol.ObjectUpdate{Kind: protocol.UpdateInteractionEnded})
	s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateCreate, Properties: props("points", 3)})
	s.UpdateLaser(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("origin", []float64{1, 2, 3})})
	out.take()

	c := s.Connect("", nil)
	if err := s.Authenticate(c, &protocol.Credentials{SessionCode: testCode, Alias: "carol"}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	toC := to(out.take(), c)
	if len(toC) < 3 || toC[2].Type != protocol.MessageFullState {
		t.Fatalf("carol received %v, want REQUEST_CREDENTIALS, AUTHORIZATION_SUCCEEDED, FULL_STATE", toC)
	}

	fs, err := protocol.DecodeFullState(toC[2].Payload)
	if err != nil {
		t.Fatalf("DecodeFullState() error = %v", err)
	}
	if len(fs.Peers) != 2 || fs.Peers[0].ID != a || fs.Peers[1].ID != c {
		t.Errorf("peers = %+v, want alice and carol", fs.Peers)
	}
	if !fs.Volume.HasOwner || fs.Volume.Owner != a || !fs.Volume.Properties.Equal(props("angle", 10, "zoom", 2)) {
		t.Errorf("volume = %+v, want owned by alice with angle and zoom", fs.Volume)
	}
	if fs.Plane.HasOwner || !fs.Plane.Properties.Equal(props("offset", 5)) {
		t.Errorf("plane = %+v, want unowned with offset", fs.Plane)
	}
	if len(fs.Widgets) != 1 || fs.Widgets[0].Owner != a || !fs.Widgets[0].Properties.Equal(props("points", 3)) {
		t.Errorf("widgets = %+v", fs.Widgets)
	}
	if len(fs.Lasers) != 2 || !fs.Lasers[0].Properties.Equal(props("origin", []float64{1, 2, 3})) {
		t.Errorf("lasers = %+v", fs.Lasers)
	}
}

func TestWidgetLifecycle(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")
	b := join(t, s, out, "bob")

	if err := s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateCreate, Properties: props("kind", "curve")}); err != nil {
		t.Fatalf("UpdateWidget(create) error = %v", err)
	}
	msgs := out.take()
	if len(msgs) != 2 {
		t.Fatalf("create sent %d envelopes, want 2", len(msgs))
	}
	created := decodeUpdate(t, to(msgs, b)[0])
	if created.Kind != protocol.UpdateCreate || created.TargetID != 1 || created.PeerID != a {
		t.Errorf("create broadcast = %+v, want widget 1 owned by alice", created)
	}
	if !created.Properties.Equal(props("kind", "curve")) {
		t.Errorf("create properties = %v", created.Properties.Names())
	}

	// Creator owns it: bob is dropped, alice is relayed without an
	// InteractionStarted.
	err := s.UpdateWidget(b, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, TargetID: 1, Properties: props("x", 1)})
	if !errors.Is(err, ErrOwnershipConflict) {
		t.Errorf("UpdateWidget(b) error = %v, want ErrOwnershipConflict", err)
	}
	if err := s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, TargetID: 1, Properties: props("x", 2)}); err != nil {
		t.Fatalf("UpdateWidget(a) error = %v", err)
	}
	for _, m := range out.take() {
		if u := decodeUpdate(t, m.env); u.Kind != protocol.UpdateProperty || u.TargetID != 1 {
			t.Errorf("sent %+v, want property update for widget 1", u)
		}
	}

	// Release, then bob gains it implicitly, still without InteractionStarted.
	if err := s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateInteractionEnded, TargetID: 1}); err != nil {
		t.Fatalf("UpdateWidget(ended) error = %v", err)
	}
	out.take()
	if err := s.UpdateWidget(b, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, TargetID: 1, Properties: props("x", 3)}); err != nil {
		t.Fatalf("UpdateWidget(b) error = %v", err)
	}
	for _, m := range out.take() {
		if u := decodeUpdate(t, m.env); u.Kind == protocol.UpdateInteractionStarted {
			t.Error("widget update produced InteractionStarted")
		}
	}

	// Destroy is broadcast once; destroying again is a no-op.
	if err := s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateDestroy, TargetID: 1}); err != nil {
		t.Fatalf("UpdateWidget(destroy) error = %v", err)
	}
	if msgs := out.take(); len(msgs) != 2 {
		t.Errorf("destroy sent %d envelopes, want 2", len(msgs))
	}
	if err := s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateDestroy, TargetID: 1}); err != nil {
		t.Errorf("second destroy error = %v", err)
	}
	if msgs := out.take(); len(msgs) != 0 {
		t.Errorf("second destroy sent %+v", msgs)
	}

	err = s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, TargetID: 1})
	if !errors.Is(err, ErrUnknownWidget) {
		t.Errorf("update of destroyed widget error = %v, want ErrUnknownWidget", err)
	}

	// Ids are not reused.
	s.UpdateWidget(a, &protocol.ObjectUpdate{Kind: protocol.UpdateCreate})
	if got := decodeUpdate(t, out.take()[0].env); got.TargetID != 2 {
		t.Errorf("new widget id = %d, want 2", got.TargetID)
	}
}

func TestLaserRelay(t *testing.T) {
	s, out := newTestSession(t)
	a := join(t, s, out, "alice")
	b := join(t, s, out, "bob")

	if err := s.UpdateLaser(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("dir", []float64{0, 1, 0})}); err != nil {
		t.Fatalf("UpdateLaser() error = %v", err)
	}
	msgs := out.take()
	if len(msgs) != 2 {
		t.Fatalf("laser update sent %d envelopes, want 2", len(msgs))
	}
	u := decodeUpdate(t, to(msgs, b)[0])
	if u.PeerID != a || u.TargetID != uint64(a) {
		t.Errorf("relayed laser = %+v, want attributed to alice", u)
	}

	if err := s.UpdateLaser(a, &protocol.ObjectUpdate{Kind: protocol.UpdateCreate}); !errors.Is(err, ErrUnsupportedUpdate) {
		t.Errorf("UpdateLaser(create) error = %v, want ErrUnsupportedUpdate", err)
	}
}

// clampingObject keeps every value as the constant 0, so relayed values
// must come from the object and not from the request.
type clampingObject struct {
	store.PropertyObject
}

func (o *clampingObject) ApplyProperties(update protocol.PropertyList) {
	clamped := make(protocol.PropertyList, len(update))
	for i, p := range update {
		clamped[i] = protocol.MustProperty(p.Name, 0)
	}
	o.PropertyObject.ApplyProperties(clamped)
}

func TestBroadcastsResultingValues(t *testing.T) {
	out := &recordingOutbox{}
	s, err := New(Config{
		Code:    testCode,
		Factory: func(store.Kind) store.Object { return &clampingObject{} },
	}, out)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a := join(t, s, out, "alice")

	s.UpdateVolume(a, &protocol.ObjectUpdate{Kind: protocol.UpdateProperty, Properties: props("angle", 99)})
	msgs := out.take()
	u := decodeUpdate(t, msgs[len(msgs)-1].env)
	if !u.Properties.Equal(props("angle", 0)) {
		t.Errorf("broadcast properties = %v, want the clamped value", u.Properties)
	}
}
