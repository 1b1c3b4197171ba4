package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuocnguyenncc/mezon-sub000/internal/app"
	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

type memConn struct {
	frames []core.Frame
	closed int
}

func (m *memConn) TrySend(f core.Frame) error {
	m.frames = append(m.frames, f)
	return nil
}

func (m *memConn) Close() { m.closed++ }

func newTestController() *Controller {
	return NewController(app.NewRelay(app.NewPeerRegistry()))
}

func bind(ctl *Controller, uid domain.UserID) *memConn {
	conn := &memConn{}
	_, cancel := context.WithCancel(context.Background())
	ctl.Registry.Bind(&domain.User{ID: uid, Username: string(uid)}, conn, cancel)
	return conn
}

func frame(t *testing.T, env core.Envelope) []byte {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestHandleFrameRoutesAndStampsSender(t *testing.T) {
	ctl := newTestController()
	bob := bind(ctl, "bob")

	env := core.Envelope{Channel: "chan-1", Sender: "spoofed", Receiver: "bob", Type: core.MsgSDPAnswer}
	ctl.handleFrame("alice", frame(t, env))

	require.Len(t, bob.frames, 1)
	var got core.Envelope
	require.NoError(t, json.Unmarshal(bob.frames[0], &got))
	// The socket identity wins over whatever the payload claimed.
	assert.Equal(t, domain.UserID("alice"), got.Sender)
}

func TestHandleFrameBadJSONDropped(t *testing.T) {
	ctl := newTestController()
	bob := bind(ctl, "bob")
	ctl.handleFrame("alice", []byte("{garbage"))
	assert.Empty(t, bob.frames)
}

func TestPushInviteQueuedWhileOffline(t *testing.T) {
	ctl := newTestController()

	invite := core.PushInvite{Channel: "chan-1", CallerName: "Alice", Offer: "compressed"}
	payload, err := json.Marshal(invite)
	require.NoError(t, err)
	env := core.Envelope{Channel: "chan-1", Receiver: "bob", Type: core.MsgPushInvite, Payload: payload}
	ctl.handleFrame("alice", frame(t, env))

	pending := ctl.Relay.Pushes.TakeAll("bob")
	require.Len(t, pending, 1)
	assert.Equal(t, domain.UserID("alice"), pending[0].Caller)
	assert.Equal(t, "compressed", pending[0].Offer)
}

func TestPushInviteSkippedWhileOnline(t *testing.T) {
	ctl := newTestController()
	bind(ctl, "bob")

	invite := core.PushInvite{Channel: "chan-1", CallerName: "Alice"}
	payload, err := json.Marshal(invite)
	require.NoError(t, err)
	env := core.Envelope{Channel: "chan-1", Receiver: "bob", Type: core.MsgPushInvite, Payload: payload}
	ctl.handleFrame("alice", frame(t, env))

	assert.Empty(t, ctl.Relay.Pushes.TakeAll("bob"))
}

func TestPushCancelClearsQueueAndReachesPeer(t *testing.T) {
	ctl := newTestController()
	ctl.Relay.Pushes.Store("bob", core.PushInvite{Channel: "chan-1", Caller: "alice"})
	bob := bind(ctl, "bob")

	env := core.Envelope{Channel: "chan-1", Receiver: "bob", Type: core.MsgPushCancel}
	ctl.handleFrame("alice", frame(t, env))

	assert.Empty(t, ctl.Relay.Pushes.TakeAll("bob"))
	require.Len(t, bob.frames, 1)
	var got core.Envelope
	require.NoError(t, json.Unmarshal(bob.frames[0], &got))
	assert.Equal(t, core.MsgPushCancel, got.Type)
}

func TestOfferRateLimited(t *testing.T) {
	ctl := newTestController()
	ctl.Limiter = NewDialRateLimiter(1, time.Minute)
	bob := bind(ctl, "bob")

	env := core.Envelope{Channel: "chan-1", Receiver: "bob", Type: core.MsgSDPOffer}
	ctl.handleFrame("alice", frame(t, env))
	ctl.handleFrame("alice", frame(t, env))

	assert.Len(t, bob.frames, 1)
}

func TestDeliverPendingOnBind(t *testing.T) {
	ctl := newTestController()
	ctl.Relay.Pushes.Store("bob", core.PushInvite{Channel: "chan-1", Caller: "alice", Offer: "compressed"})

	conn := &WsSignalConn{send: make(chan core.Frame, 4)}
	ctl.deliverPending("bob", conn)

	require.Len(t, conn.send, 1)
	var got core.Envelope
	require.NoError(t, json.Unmarshal(<-conn.send, &got))
	assert.Equal(t, core.MsgPushInvite, got.Type)
	assert.Equal(t, domain.UserID("alice"), got.Sender)

	var invite core.PushInvite
	require.NoError(t, json.Unmarshal(got.Payload, &invite))
	assert.Equal(t, "compressed", invite.Offer)
}
