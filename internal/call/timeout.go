package call

import (
	"time"

	"github.com/benbjohnson/clock"
)

// connectTimer bounds the wait for connection establishment. It is armed once
// by the initiating side when negotiation begins and must be cancelled, not
// merely ignored, as soon as a connectivity-check or connected signal
// arrives, so a late expiry cannot race an already-active call.
type connectTimer struct {
	clk   clock.Clock
	timer *clock.Timer
}

func newConnectTimer(clk clock.Clock) *connectTimer {
	return &connectTimer{clk: clk}
}

// arm starts the timer. Re-arming replaces the previous timer.
func (t *connectTimer) arm(d time.Duration, expire func()) {
	t.cancel()
	t.timer = t.clk.AfterFunc(d, expire)
}

// cancel stops a pending timer. No-op when nothing is armed.
func (t *connectTimer) cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *connectTimer) armed() bool {
	return t.timer != nil
}
