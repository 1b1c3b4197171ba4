package domain

import "time"

type (
	// ChannelID identifies the signaling channel a call runs over.
	ChannelID string
	// CallID is unique per call attempt, derived from the peer/channel pair.
	CallID string
)

// CallRole says which side of the call this session is.
type CallRole int

const (
	RoleCaller CallRole = iota
	RoleCallee
)

func (r CallRole) String() string {
	if r == RoleCallee {
		return "callee"
	}
	return "caller"
}

// CallCause classifies why a session ended. Causes with identical cleanup
// paths are still kept distinct for logging.
type CallCause string

const (
	CauseHangup       CallCause = "hangup"
	CauseRemoteQuit   CallCause = "remote_quit"
	CauseTimeout      CallCause = "timeout"
	CauseConnectivity CallCause = "connectivity"
	CausePermission   CallCause = "permission"
	CauseError        CallCause = "error"
	CauseRejected     CallCause = "rejected"
)

// MediaControl is the local toggle intent, independent of hardware truth.
type MediaControl struct {
	MicEnabled     bool `json:"micEnabled"`
	CameraEnabled  bool `json:"cameraEnabled"`
	SpeakerEnabled bool `json:"speakerEnabled"`
}

// CallLog is the record emitted once per call attempt on its terminal
// transition. Duration is zero for calls that never connected.
type CallLog struct {
	Call      CallID        `json:"call_id"`
	Channel   ChannelID     `json:"channel_id"`
	Peer      UserID        `json:"peer_id"`
	Role      CallRole      `json:"role"`
	Cause     CallCause     `json:"cause"`
	Connected bool          `json:"connected"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
}
