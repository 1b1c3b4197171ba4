package core

import (
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is the read side of a track delivered by the peer.
// *webrtc.TrackRemote satisfies it; tests substitute fakes.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// MediaSender is the sender handle of an outgoing track.
// *webrtc.RTPSender satisfies it.
type MediaSender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// MediaConnection abstracts one peer connection. It is exclusively owned by a
// call session and closed exactly once during teardown.
type MediaConnection interface {
	// CreateOffer creates an offer and installs it as the local description.
	// Candidates trickle via OnICECandidate afterwards.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer to the current remote description and
	// installs it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	HasRemoteDescription() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddTrack attaches a local track and returns its sender for later
	// ReplaceTrack calls (camera switch without renegotiation).
	AddTrack(track webrtc.TrackLocal) (MediaSender, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	// OnConnectionStateChange sets a callback for connection state transitions.
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// MediaConnector builds MediaConnections; sessions own what it returns.
type MediaConnector interface {
	NewConnection() (MediaConnection, error)
}
