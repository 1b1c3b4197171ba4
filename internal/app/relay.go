package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

// Relay forwards signaling envelopes between connected peers. It never
// inspects payloads; addressing is the Receiver field alone.
type Relay struct {
	Registry *PeerRegistry
	Policy   Policy
	Pushes   *PendingPushStore
}

func NewRelay(reg *PeerRegistry) *Relay {
	return &Relay{
		Registry: reg,
		Policy:   SimplePolicy{},
		Pushes:   NewPendingPushStore(),
	}
}

// Route delivers one envelope to its receiver. Returns false when the
// receiver has no live connection.
func (r *Relay) Route(env core.Envelope) bool {
	conn, ok := r.Registry.Conn(env.Receiver)
	if !ok {
		log.Debug().Str("module", "app.relay").
			Str("receiver", string(env.Receiver)).
			Str("type", string(env.Type)).
			Msg("receiver offline")
		return false
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Str("module", "app.relay").Err(err).Msg("marshal envelope")
		return false
	}

	if err := conn.TrySend(core.Frame(data)); err != nil {
		switch r.Policy.OnBackPressure(env.Receiver) {
		case KickPeer:
			log.Warn().Str("module", "app.relay").
				Str("receiver", string(env.Receiver)).
				Msg("kicking slow peer")
			conn.Close()
			r.Registry.Unbind(env.Receiver, conn)
		default:
			log.Warn().Str("module", "app.relay").
				Str("receiver", string(env.Receiver)).
				Str("type", string(env.Type)).
				Msg("dropping envelope on backpressure")
		}
		return false
	}
	return true
}

// PendingPushStore holds invites for receivers that were offline when the
// call rang. Invites are handed over once on the next bind.
type PendingPushStore struct {
	mu      sync.Mutex
	pending map[domain.UserID][]core.PushInvite
}

func NewPendingPushStore() *PendingPushStore {
	return &PendingPushStore{pending: make(map[domain.UserID][]core.PushInvite)}
}

// Store queues an invite, replacing an earlier one for the same channel.
func (s *PendingPushStore) Store(target domain.UserID, invite core.PushInvite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.pending[target]
	for i, p := range list {
		if p.Channel == invite.Channel {
			list[i] = invite
			return
		}
	}
	s.pending[target] = append(list, invite)
}

// Cancel removes the invite for a channel, if still pending.
func (s *PendingPushStore) Cancel(target domain.UserID, channel domain.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.pending[target]
	for i, p := range list {
		if p.Channel == channel {
			s.pending[target] = append(list[:i], list[i+1:]...)
			if len(s.pending[target]) == 0 {
				delete(s.pending, target)
			}
			return
		}
	}
}

// TakeAll removes and returns every pending invite for a target.
func (s *PendingPushStore) TakeAll(target domain.UserID) []core.PushInvite {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.pending[target]
	delete(s.pending, target)
	return list
}
