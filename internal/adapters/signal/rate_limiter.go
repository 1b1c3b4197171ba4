package signal

import (
	"sync"
	"time"

	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

const dialRateWindow = 10 * time.Second

// DialRateLimiter caps how many offers a single user may relay per window.
// A misbehaving client otherwise rings the whole contact list.
type DialRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
}

func NewDialRateLimiter(limit int, interval time.Duration) *DialRateLimiter {
	return &DialRateLimiter{
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *DialRateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[uid]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		return false
	}

	fresh = append(fresh, now)
	rl.history[uid] = fresh

	return true
}
