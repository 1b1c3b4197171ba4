// Package call implements the peer-to-peer call session core: the state
// machine, candidate buffering, connect timeout and remote track
// reconciliation. Transport, capture and the peer connection itself are
// collaborators reached through the interfaces in internal/core.
package call

// State is the call session lifecycle state. All transitions happen inside
// the session's event loop, which is the single arbitration point for races
// between local commands, remote signaling and peer connection callbacks.
type State int

const (
	StateIdle State = iota
	StateDialing
	StateRinging
	StateNegotiating
	StateConnecting
	StateConnected
	StateEnding
	StateEnded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateDialing:     "dialing",
	StateRinging:     "ringing",
	StateNegotiating: "negotiating",
	StateConnecting:  "connecting",
	StateConnected:   "connected",
	StateEnding:      "ending",
	StateEnded:       "ended",
	StateFailed:      "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}
