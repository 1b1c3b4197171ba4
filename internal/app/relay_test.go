package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

type fakeSignalConn struct {
	frames []core.Frame
	err    error
	closed int
}

func (f *fakeSignalConn) TrySend(frame core.Frame) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSignalConn) Close() { f.closed++ }

type kickPolicy struct{}

func (kickPolicy) OnBackPressure(peer domain.UserID) BackpressureAction { return KickPeer }

func bindPeer(r *PeerRegistry, uid domain.UserID) *fakeSignalConn {
	conn := &fakeSignalConn{}
	_, cancel := context.WithCancel(context.Background())
	r.Bind(&domain.User{ID: uid, Username: string(uid)}, conn, cancel)
	return conn
}

func TestRelayRoutesToReceiver(t *testing.T) {
	relay := NewRelay(NewPeerRegistry())
	bob := bindPeer(relay.Registry, "bob")

	env := core.Envelope{Channel: "chan-1", Sender: "alice", Receiver: "bob", Type: core.MsgSDPOffer}
	require.True(t, relay.Route(env))

	require.Len(t, bob.frames, 1)
	var got core.Envelope
	require.NoError(t, json.Unmarshal(bob.frames[0], &got))
	assert.Equal(t, env.Type, got.Type)
	assert.Equal(t, env.Sender, got.Sender)
}

func TestRelayOfflineReceiver(t *testing.T) {
	relay := NewRelay(NewPeerRegistry())
	env := core.Envelope{Channel: "chan-1", Sender: "alice", Receiver: "bob", Type: core.MsgSDPOffer}
	assert.False(t, relay.Route(env))
}

func TestRelayDropsOnBackpressureByDefault(t *testing.T) {
	relay := NewRelay(NewPeerRegistry())
	bob := bindPeer(relay.Registry, "bob")
	bob.err = assert.AnError

	env := core.Envelope{Channel: "chan-1", Sender: "alice", Receiver: "bob", Type: core.MsgICECandidate}
	assert.False(t, relay.Route(env))

	// The peer stays bound; only the envelope is lost.
	_, ok := relay.Registry.Conn("bob")
	assert.True(t, ok)
	assert.Equal(t, 0, bob.closed)
}

func TestRelayKickPolicyUnbindsPeer(t *testing.T) {
	relay := NewRelay(NewPeerRegistry())
	relay.Policy = kickPolicy{}
	bob := bindPeer(relay.Registry, "bob")
	bob.err = assert.AnError

	env := core.Envelope{Channel: "chan-1", Sender: "alice", Receiver: "bob", Type: core.MsgICECandidate}
	assert.False(t, relay.Route(env))

	_, ok := relay.Registry.Conn("bob")
	assert.False(t, ok)
	assert.Equal(t, 1, bob.closed)
}

func TestRegistryRebindReplacesConnection(t *testing.T) {
	reg := NewPeerRegistry()
	old := bindPeer(reg, "bob")
	fresh := bindPeer(reg, "bob")

	assert.Equal(t, 1, old.closed)
	conn, ok := reg.Conn("bob")
	require.True(t, ok)
	assert.Same(t, fresh, conn.(*fakeSignalConn))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryUnbindIgnoresStaleConn(t *testing.T) {
	reg := NewPeerRegistry()
	old := bindPeer(reg, "bob")
	bindPeer(reg, "bob")

	// A late cleanup from the replaced connection must not evict the new one.
	reg.Unbind("bob", old)
	_, ok := reg.Conn("bob")
	assert.True(t, ok)

	conn, _ := reg.Conn("bob")
	reg.Unbind("bob", conn)
	_, ok = reg.Conn("bob")
	assert.False(t, ok)
}

func TestPendingPushStoreReplacesSameChannel(t *testing.T) {
	s := NewPendingPushStore()
	s.Store("bob", core.PushInvite{Channel: "chan-1", Caller: "alice", Offer: "v1"})
	s.Store("bob", core.PushInvite{Channel: "chan-1", Caller: "alice", Offer: "v2"})
	s.Store("bob", core.PushInvite{Channel: "chan-2", Caller: "carol", Offer: "v1"})

	got := s.TakeAll("bob")
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].Offer)
	assert.Empty(t, s.TakeAll("bob"))
}

func TestPendingPushStoreCancel(t *testing.T) {
	s := NewPendingPushStore()
	s.Store("bob", core.PushInvite{Channel: "chan-1", Caller: "alice"})
	s.Store("bob", core.PushInvite{Channel: "chan-2", Caller: "carol"})

	s.Cancel("bob", "chan-1")
	got := s.TakeAll("bob")
	require.Len(t, got, 1)
	assert.Equal(t, domain.ChannelID("chan-2"), got[0].Channel)

	// Cancelling an unknown channel is a no-op.
	s.Cancel("bob", "chan-9")
}
