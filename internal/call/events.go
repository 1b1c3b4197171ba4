package call

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

// Every external input (local commands, inbound signaling, peer connection
// callbacks, timer expiry) is posted as an event and handled by the session
// loop, so races are resolved in one place instead of scattered conditionals.
type event interface{ isEvent() }

type evDial struct {
	ctx   context.Context
	video bool
}

type evAccept struct {
	ctx   context.Context
	video bool
}

type evReject struct{}

type evHangup struct {
	cause domain.CallCause
}

type evEnvelope struct {
	env core.Envelope
}

type evLocalCandidate struct {
	ci webrtc.ICECandidateInit
}

type evConnState struct {
	state webrtc.PeerConnectionState
}

type evRemoteTrack struct {
	track core.RemoteTrack
}

type evDebounce struct{}

type evTimeout struct{}

type evSetMic struct {
	enabled bool
}

type evSetSpeaker struct {
	enabled bool
}

type evSetCamera struct {
	ctx     context.Context
	enabled bool
}

type evSwitchCamera struct {
	ctx context.Context
}

func (evDial) isEvent()           {}
func (evAccept) isEvent()         {}
func (evReject) isEvent()         {}
func (evHangup) isEvent()         {}
func (evEnvelope) isEvent()       {}
func (evLocalCandidate) isEvent() {}
func (evConnState) isEvent()      {}
func (evRemoteTrack) isEvent()    {}
func (evDebounce) isEvent()       {}
func (evTimeout) isEvent()        {}
func (evSetMic) isEvent()         {}
func (evSetSpeaker) isEvent()     {}
func (evSetCamera) isEvent()      {}
func (evSwitchCamera) isEvent()   {}
