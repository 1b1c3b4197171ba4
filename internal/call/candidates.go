package call

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// CandidateBuffer holds locally gathered ICE candidates until the remote side
// is able to consume them. Candidates keep arrival order and are sent at most
// once; draining an empty buffer is a no-op.
//
// The buffer is owned by one session and only touched from its event loop, so
// it needs no locking.
type CandidateBuffer struct {
	pending []webrtc.ICECandidateInit
}

func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{}
}

// Offer appends a candidate to the pending queue. Never drops.
func (b *CandidateBuffer) Offer(ci webrtc.ICECandidateInit) {
	b.pending = append(b.pending, ci)
}

// Len returns the number of buffered candidates.
func (b *CandidateBuffer) Len() int {
	return len(b.pending)
}

// DrainIfReady sends every buffered candidate in arrival order when ready is
// true, then empties the queue. Sending is best-effort per candidate: one
// failed send must not abort the rest, to preserve as much connectivity
// information as possible.
func (b *CandidateBuffer) DrainIfReady(ready bool, send func(webrtc.ICECandidateInit) error) {
	if !ready || len(b.pending) == 0 {
		return
	}
	for _, ci := range b.pending {
		if err := send(ci); err != nil {
			log.Warn().Err(err).Str("module", "call.candidates").Msg("candidate send failed")
		}
	}
	b.pending = nil
}
