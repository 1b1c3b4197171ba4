package call

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
)

// trackCollector coalesces remote track arrivals: tracks belonging to the
// same negotiation round (audio and video firing as separate events) land in
// one rebuilt stream instead of two partial ones. A single pending timer per
// reconciliation cycle closes the window.
type trackCollector struct {
	clk    clock.Clock
	window time.Duration
	fire   func()

	pending []core.RemoteTrack
	timer   *clock.Timer
}

func newTrackCollector(clk clock.Clock, window time.Duration, fire func()) *trackCollector {
	return &trackCollector{clk: clk, window: window, fire: fire}
}

// add buffers a track and opens the debounce window if none is pending.
func (tc *trackCollector) add(t core.RemoteTrack) {
	tc.pending = append(tc.pending, t)
	if tc.timer == nil {
		tc.timer = tc.clk.AfterFunc(tc.window, tc.fire)
	}
}

// take returns the collected tracks and resets the cycle.
func (tc *trackCollector) take() []core.RemoteTrack {
	out := tc.pending
	tc.pending = nil
	tc.timer = nil
	return out
}

func (tc *trackCollector) stop() {
	if tc.timer != nil {
		tc.timer.Stop()
		tc.timer = nil
	}
	tc.pending = nil
}

// mergeRemote rebuilds the combined remote stream from the previous stream
// plus newly collected tracks, replacing same-ID tracks rather than
// duplicating them. The previous value is never mutated.
func mergeRemote(prev *core.RemoteMedia, fresh []core.RemoteTrack) *core.RemoteMedia {
	next := &core.RemoteMedia{}
	seen := make(map[string]bool, len(fresh))
	for _, t := range fresh {
		seen[t.ID()] = true
	}
	if prev != nil {
		for _, t := range prev.Tracks {
			if !seen[t.ID()] {
				next.Tracks = append(next.Tracks, t)
			}
		}
	}
	next.Tracks = append(next.Tracks, fresh...)
	return next
}
