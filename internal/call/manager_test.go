package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

type managerFixture struct {
	sig  *fakeSignal
	push *fakePush
	conn *fakeConn
	acq  *fakeAcquirer
	logs *fakeLogs
	clk  *clock.Mock
	mgr  *Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		sig:  &fakeSignal{},
		push: &fakePush{},
		conn: &fakeConn{},
		acq:  &fakeAcquirer{},
		logs: &fakeLogs{},
		clk:  clock.NewMock(),
	}
	deps := Deps{
		Signal:   f.sig,
		Push:     f.push,
		Media:    &fakeConnector{conn: f.conn},
		Acquirer: f.acq,
		Logs:     f.logs,
		Clock:    f.clk,
	}
	f.mgr = NewManager("alice", "Alice", deps, Config{})
	return f
}

func TestManagerStartCall(t *testing.T) {
	f := newManagerFixture(t)
	sess, err := f.mgr.StartCall(context.Background(), "bob", "chan-1", false)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, domain.RoleCaller, sess.Role())
	assert.Equal(t, 1, f.mgr.ActiveCalls())

	require.Eventually(t, func() bool { return sess.State() == StateNegotiating },
		time.Second, 2*time.Millisecond)
}

func TestManagerRejectsSecondCallToSamePeer(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.mgr.StartCall(context.Background(), "bob", "chan-1", false)
	require.NoError(t, err)

	_, err = f.mgr.StartCall(context.Background(), "bob", "chan-2", false)
	assert.ErrorIs(t, err, ErrCallBusy)
	assert.Equal(t, 1, f.mgr.ActiveCalls())
}

func TestManagerIncomingOfferRings(t *testing.T) {
	f := newManagerFixture(t)

	var mu sync.Mutex
	var incoming *Session
	f.mgr.OnIncoming = func(s *Session) {
		mu.Lock()
		incoming = s
		mu.Unlock()
	}

	f.mgr.HandleEnvelope(offerEnvelope(t, true))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return incoming != nil
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	sess := incoming
	mu.Unlock()
	assert.Equal(t, domain.RoleCallee, sess.Role())
	assert.Equal(t, StateRinging, sess.State())
	assert.Equal(t, domain.UserID("bob"), sess.Peer())
	assert.Equal(t, 1, f.mgr.ActiveCalls())
}

func TestManagerOfferWhileBusyDropped(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.mgr.StartCall(context.Background(), "bob", "chan-1", false)
	require.NoError(t, err)

	// Same peer rings back on a different channel; the live session wins.
	env := offerEnvelope(t, false)
	env.Channel = "chan-2"
	f.mgr.HandleEnvelope(env)

	assert.Equal(t, 1, f.mgr.ActiveCalls())
	_, ok := f.mgr.GetByChannel("chan-2")
	assert.False(t, ok)
}

func TestManagerRoutesByChannel(t *testing.T) {
	f := newManagerFixture(t)
	sess, err := f.mgr.StartCall(context.Background(), "bob", "chan-1", false)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.State() == StateNegotiating },
		time.Second, 2*time.Millisecond)

	f.mgr.HandleEnvelope(answerEnvelope(t))
	require.Eventually(t, func() bool { return f.conn.HasRemoteDescription() },
		time.Second, 2*time.Millisecond)
}

func TestManagerUnknownChannelDropped(t *testing.T) {
	f := newManagerFixture(t)
	f.mgr.HandleEnvelope(answerEnvelope(t))
	assert.Equal(t, 0, f.mgr.ActiveCalls())
}

func TestManagerRemovesTerminalSessions(t *testing.T) {
	f := newManagerFixture(t)
	sess, err := f.mgr.StartCall(context.Background(), "bob", "chan-1", false)
	require.NoError(t, err)

	sess.Hangup()
	<-sess.Done()

	require.Eventually(t, func() bool { return f.mgr.ActiveCalls() == 0 },
		time.Second, 2*time.Millisecond)

	// The peer is free again.
	_, err = f.mgr.StartCall(context.Background(), "bob", "chan-3", false)
	assert.NoError(t, err)
}

func pushInviteEnvelope(t *testing.T) core.Envelope {
	t.Helper()
	enc, err := CompressSDP(testOfferSDP)
	require.NoError(t, err)
	payload, err := json.Marshal(core.PushInvite{Channel: "chan-1", Caller: "bob", CallerName: "Bob", Offer: enc})
	require.NoError(t, err)
	return core.Envelope{Channel: "chan-1", Sender: "bob", Receiver: "alice", Type: core.MsgPushInvite, Payload: payload}
}

func TestManagerPushInviteRingsCallee(t *testing.T) {
	f := newManagerFixture(t)

	var mu sync.Mutex
	var incoming *Session
	f.mgr.OnIncoming = func(s *Session) {
		mu.Lock()
		incoming = s
		mu.Unlock()
	}

	// An invite delivered after reconnecting carries the offer that rang
	// while this user was offline.
	f.mgr.HandleEnvelope(pushInviteEnvelope(t))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return incoming != nil
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	sess := incoming
	mu.Unlock()
	assert.Equal(t, domain.RoleCallee, sess.Role())
	assert.Equal(t, StateRinging, sess.State())
	assert.Equal(t, domain.UserID("bob"), sess.Peer())
	assert.Equal(t, 1, f.mgr.ActiveCalls())
}

func TestManagerPushInviteMalformedDropped(t *testing.T) {
	f := newManagerFixture(t)
	f.mgr.HandleEnvelope(core.Envelope{Channel: "chan-1", Sender: "bob", Receiver: "alice", Type: core.MsgPushInvite, Payload: []byte("{")})
	assert.Equal(t, 0, f.mgr.ActiveCalls())
}

func TestManagerPushCancelEndsRingingSession(t *testing.T) {
	f := newManagerFixture(t)
	f.mgr.HandleEnvelope(pushInviteEnvelope(t))

	var sess *Session
	require.Eventually(t, func() bool {
		s, ok := f.mgr.GetByChannel("chan-1")
		if !ok {
			return false
		}
		sess = s
		return s.State() == StateRinging
	}, time.Second, 2*time.Millisecond)

	f.mgr.HandleEnvelope(core.Envelope{Channel: "chan-1", Sender: "bob", Receiver: "alice", Type: core.MsgPushCancel})
	<-sess.Done()
	assert.Equal(t, domain.CauseRemoteQuit, sess.Cause())
	// The caller gave up; nothing is echoed back.
	assert.Equal(t, 0, f.sig.count(core.MsgSDPQuit))
	require.Eventually(t, func() bool { return f.mgr.ActiveCalls() == 0 },
		time.Second, 2*time.Millisecond)
}

func TestManagerPushCancelStaleAfterAnswer(t *testing.T) {
	f := newManagerFixture(t)
	f.mgr.HandleEnvelope(offerEnvelope(t, false))

	var sess *Session
	require.Eventually(t, func() bool {
		s, ok := f.mgr.GetByChannel("chan-1")
		if !ok {
			return false
		}
		sess = s
		return s.State() == StateRinging
	}, time.Second, 2*time.Millisecond)
	require.NoError(t, sess.Accept(context.Background(), false))
	require.Eventually(t, func() bool { return sess.State() == StateNegotiating },
		time.Second, 2*time.Millisecond)

	f.mgr.HandleEnvelope(core.Envelope{Channel: "chan-1", Sender: "bob", Receiver: "alice", Type: core.MsgPushCancel})
	assert.Equal(t, StateNegotiating, sess.State())
	assert.Equal(t, 1, f.mgr.ActiveCalls())
}

func TestManagerHangupByPeer(t *testing.T) {
	f := newManagerFixture(t)
	sess, err := f.mgr.StartCall(context.Background(), "bob", "chan-1", false)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Hangup("bob"))
	<-sess.Done()
	assert.Equal(t, domain.CauseHangup, sess.Cause())

	assert.ErrorIs(t, f.mgr.Hangup("carol"), ErrNoSession)
}

func TestManagerClose(t *testing.T) {
	f := newManagerFixture(t)
	sess, err := f.mgr.StartCall(context.Background(), "bob", "chan-1", false)
	require.NoError(t, err)

	f.mgr.Close()
	assert.True(t, sess.State().Terminal())
	assert.Equal(t, 0, f.mgr.ActiveCalls())

	_, err = f.mgr.StartCall(context.Background(), "carol", "chan-2", false)
	assert.ErrorIs(t, err, ErrSessionTerminal)

	f.mgr.HandleEnvelope(offerEnvelope(t, false))
	assert.Equal(t, 0, f.mgr.ActiveCalls())
}
