package call

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

// Manager owns call sessions for one local user and routes inbound signaling
// to them. It enforces the one-active-session-per-peer invariant; there are
// no ambient globals tracking "is there an active call".
type Manager struct {
	self     domain.UserID
	selfName string
	deps     Deps
	cfg      Config

	mu        sync.RWMutex
	byPeer    map[domain.UserID]*Session
	byChannel map[domain.ChannelID]*Session
	closed    bool

	// OnIncoming fires when a remote offer creates a ringing session.
	OnIncoming func(*Session)
}

// NewManager wires a manager for the local user. Missing optional deps get
// defaults: a real clock and the zerolog call-log sink.
func NewManager(self domain.UserID, selfName string, deps Deps, cfg Config) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logs == nil {
		deps.Logs = LoggerSink{Logger: log.With().Logger()}
	}
	return &Manager{
		self:      self,
		selfName:  selfName,
		deps:      deps,
		cfg:       cfg.withDefaults(),
		byPeer:    make(map[domain.UserID]*Session),
		byChannel: make(map[domain.ChannelID]*Session),
	}
}

// StartCall begins an outbound call to peer over channel. Rejected with
// ErrCallBusy while a session for that peer is still live.
func (m *Manager) StartCall(ctx context.Context, peer domain.UserID, channel domain.ChannelID, video bool) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionTerminal
	}
	if _, busy := m.byPeer[peer]; busy {
		m.mu.Unlock()
		return nil, ErrCallBusy
	}
	sess := newSession(channel, m.self, m.selfName, peer, domain.RoleCaller, m.deps, m.cfg)
	sess.onTerminal = m.remove
	m.byPeer[peer] = sess
	m.byChannel[channel] = sess
	m.mu.Unlock()

	go sess.run()
	sess.post(evDial{ctx: ctx, video: video})
	log.Info().Str("module", "call.manager").Str("peer", string(peer)).Str("channel", string(channel)).Msg("outbound call started")
	return sess, nil
}

// HandleEnvelope routes one inbound signaling message. An offer with no
// matching session creates a ringing callee session; a delivered push invite
// is unwrapped into the offer it carries; anything else for an unknown
// channel is dropped.
func (m *Manager) HandleEnvelope(env core.Envelope) {
	switch env.Type {
	case core.MsgPushInvite:
		m.handlePushInvite(env)
		return
	case core.MsgPushCancel:
		m.handlePushCancel(env)
		return
	}

	m.mu.RLock()
	sess, ok := m.byChannel[env.Channel]
	closed := m.closed
	m.mu.RUnlock()
	if ok {
		sess.HandleEnvelope(env)
		return
	}
	if closed || env.Type != core.MsgSDPOffer {
		log.Debug().Str("module", "call.manager").Str("channel", string(env.Channel)).Str("type", string(env.Type)).Msg("signal for unknown channel dropped")
		return
	}

	m.mu.Lock()
	if _, busy := m.byPeer[env.Sender]; busy {
		m.mu.Unlock()
		log.Warn().Str("module", "call.manager").Str("peer", string(env.Sender)).Msg("offer while busy, dropped")
		return
	}
	sess = newSession(env.Channel, m.self, m.selfName, env.Sender, domain.RoleCallee, m.deps, m.cfg)
	sess.onTerminal = m.remove
	if m.OnIncoming != nil {
		incoming := m.OnIncoming
		sess.OnStateChange = func(st State) {
			if st == StateRinging {
				incoming(sess)
			}
		}
	}
	m.byPeer[env.Sender] = sess
	m.byChannel[env.Channel] = sess
	m.mu.Unlock()

	go sess.run()
	sess.HandleEnvelope(env)
}

// handlePushInvite turns a stored wake-up back into the offer it carries so
// a receiver that was offline when the call rang still gets a ringing
// session.
func (m *Manager) handlePushInvite(env core.Envelope) {
	var invite core.PushInvite
	if err := json.Unmarshal(env.Payload, &invite); err != nil {
		log.Warn().Str("module", "call.manager").Err(err).Msg("dropping malformed push invite")
		return
	}
	payload, err := json.Marshal(OfferPayload{SDP: invite.Offer, CallerName: invite.CallerName})
	if err != nil {
		log.Warn().Str("module", "call.manager").Err(err).Msg("push invite re-encode failed")
		return
	}
	m.HandleEnvelope(core.Envelope{
		Channel:  invite.Channel,
		Sender:   invite.Caller,
		Receiver: m.self,
		Type:     core.MsgSDPOffer,
		Payload:  payload,
	})
}

// handlePushCancel ends a session the caller gave up on before the callee
// answered. A cancel arriving after the local answer is stale and ignored.
func (m *Manager) handlePushCancel(env core.Envelope) {
	m.mu.RLock()
	sess, ok := m.byChannel[env.Channel]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if st := sess.State(); st != StateIdle && st != StateRinging {
		return
	}
	sess.HandleEnvelope(core.Envelope{
		Channel:  env.Channel,
		Sender:   env.Sender,
		Receiver: m.self,
		Type:     core.MsgSDPQuit,
	})
}

// Hangup tears down the live session for a peer.
func (m *Manager) Hangup(peer domain.UserID) error {
	m.mu.RLock()
	sess, ok := m.byPeer[peer]
	m.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	sess.Hangup()
	return nil
}

// Get returns the live session for a peer, if any.
func (m *Manager) Get(peer domain.UserID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byPeer[peer]
	return s, ok
}

// GetByChannel returns the live session on a channel, if any.
func (m *Manager) GetByChannel(channel domain.ChannelID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byChannel[channel]
	return s, ok
}

// ActiveCalls returns the number of live sessions.
func (m *Manager) ActiveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPeer)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if m.byPeer[s.Peer()] == s {
		delete(m.byPeer, s.Peer())
	}
	if m.byChannel[s.Channel()] == s {
		delete(m.byChannel, s.Channel())
	}
	m.mu.Unlock()
}

// Close hangs up every live session. Further StartCall attempts are rejected.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.byPeer))
	for _, s := range m.byPeer {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Hangup()
		<-s.Done()
	}
}
