package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDialRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewDialRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("alice"))
	}
	assert.False(t, rl.Allow("alice"))
}

func TestDialRateLimiterPerUser(t *testing.T) {
	rl := NewDialRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"))
}

func TestDialRateLimiterWindowExpiry(t *testing.T) {
	rl := NewDialRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("alice"))
}
