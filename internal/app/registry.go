package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

type peerEntry struct {
	User   *domain.User
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// PeerRegistry tracks which users currently hold a live signaling connection.
// The relay consults it to route envelopes; everything else reaches it
// through explicit lookups, never ambient globals.
type PeerRegistry struct {
	mu    sync.RWMutex
	peers map[domain.UserID]*peerEntry
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[domain.UserID]*peerEntry)}
}

// Bind attaches a signaling connection to a user, replacing any previous one.
// The replaced connection is cancelled and closed.
func (r *PeerRegistry) Bind(user *domain.User, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	old := r.peers[user.ID]
	r.peers[user.ID] = &peerEntry{User: user, Conn: conn, Cancel: cancel}
	r.mu.Unlock()

	if old != nil {
		if old.Cancel != nil {
			old.Cancel()
		}
		old.Conn.Close()
	}
	log.Info().Str("module", "app.registry").Str("user", string(user.ID)).Msg("peer bound")
}

// Conn returns the live connection for a user, if any.
func (r *PeerRegistry) Conn(uid domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[uid]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// User returns the registered user metadata, if any.
func (r *PeerRegistry) User(uid domain.UserID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[uid]
	if !ok {
		return nil, false
	}
	return e.User, true
}

// Unbind removes a user's connection, but only if it still is the given one;
// a reconnect that already replaced it stays untouched.
func (r *PeerRegistry) Unbind(uid domain.UserID, conn core.SignalConnection) {
	r.mu.Lock()
	e, ok := r.peers[uid]
	if ok && (conn == nil || e.Conn == conn) {
		delete(r.peers, uid)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if ok {
		if e.Cancel != nil {
			e.Cancel()
		}
		log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("peer unbound")
	}
}

// Count returns the number of connected peers.
func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
