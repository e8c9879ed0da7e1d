package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendLimiterAllowBlockAllow(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewSendLimiter(10 * time.Second)

	assert.True(t, l.TrySend(base), "首次发送应被允许")
	assert.False(t, l.TrySend(base.Add(3*time.Second)), "冷却期内应被拒绝")
	assert.False(t, l.TrySend(base.Add(9*time.Second)))
	assert.True(t, l.TrySend(base.Add(10*time.Second)), "冷却结束后应被允许")
}

func TestSendLimiterRemaining(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewSendLimiter(10 * time.Second)

	assert.Equal(t, time.Duration(0), l.Remaining(base))

	l.TrySend(base)
	assert.Equal(t, 7*time.Second, l.Remaining(base.Add(3*time.Second)))
	assert.Equal(t, time.Duration(0), l.Remaining(base.Add(10*time.Second)))
}

func TestSendLimiterRejectedAttemptKeepsBlockWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewSendLimiter(10 * time.Second)

	l.TrySend(base)
	// 被拒绝的尝试不应延长冷却
	l.TrySend(base.Add(5 * time.Second))
	assert.True(t, l.TrySend(base.Add(10*time.Second)))
}

func TestSendLimiterDefaultCooldown(t *testing.T) {
	l := NewSendLimiter(0)
	base := time.Now()

	l.TrySend(base)
	assert.Equal(t, DefaultSendCooldown, l.Remaining(base))
}
