package call

import "errors"

// Sentinel errors for call session operations, classified with errors.Is.

var (
	// ErrCallBusy indicates a call is already active for this peer.
	ErrCallBusy = errors.New("call already active for this peer")

	// ErrNotRinging indicates Accept was invoked on a session that has no
	// buffered remote offer.
	ErrNotRinging = errors.New("no incoming offer to accept")

	// ErrSessionTerminal indicates the session already reached a terminal
	// state and rejects further commands.
	ErrSessionTerminal = errors.New("call session already ended")

	// ErrNoSession indicates no live session exists for the peer.
	ErrNoSession = errors.New("no call session for peer")
)
