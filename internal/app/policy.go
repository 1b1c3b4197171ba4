package app

import "github.com/phuocnguyenncc/mezon-sub000/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropEnvelope
	KickPeer
)

// Policy decides what the relay does when a peer's send queue is full.
type Policy interface {
	OnBackPressure(peer domain.UserID) BackpressureAction
}

// SimplePolicy drops the envelope. Signaling is best-effort and a slow
// consumer usually recovers; kicking would abort its active call.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(peer domain.UserID) BackpressureAction {
	return DropEnvelope
}
