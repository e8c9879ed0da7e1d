package chatclient

import (
	"sync"
	"time"
)

// DefaultSendCooldown 两次发送之间的最小间隔
const DefaultSendCooldown = 10 * time.Second

// SendLimiter 客户端发送冷却限制
// 不依赖定时器，每次尝试时用当前时间与blockedUntil比较
type SendLimiter struct {
	mu           sync.Mutex
	cooldown     time.Duration
	blockedUntil time.Time
}

// NewSendLimiter 创建发送限制器，cooldown<=0时使用默认冷却
func NewSendLimiter(cooldown time.Duration) *SendLimiter {
	if cooldown <= 0 {
		cooldown = DefaultSendCooldown
	}
	return &SendLimiter{cooldown: cooldown}
}

// TrySend 尝试获取一次发送许可
// 许可在发送动作之前占用：即使后续发送失败，冷却也已生效
func (l *SendLimiter) TrySend(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Before(l.blockedUntil) {
		return false
	}
	l.blockedUntil = now.Add(l.cooldown)
	return true
}

// Remaining 返回距离下次允许发送的剩余时长，可直接驱动倒计时展示
func (l *SendLimiter) Remaining(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Before(l.blockedUntil) {
		return l.blockedUntil.Sub(now)
	}
	return 0
}
