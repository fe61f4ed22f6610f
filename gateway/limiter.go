package gateway

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 控制出站批次速率，避免触发交易所限流。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 是一个简单的令牌桶实现。
type TokenBucketLimiter struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	mu     sync.Mutex
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Wait 取一个令牌；令牌不足时等待补充或 ctx 结束。
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.tokens = min(float64(l.burst), l.tokens+now.Sub(l.last).Seconds()*l.rate)
		l.last = now
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		sleep := time.Duration((1-l.tokens)/l.rate*float64(time.Second)) + time.Millisecond
		l.mu.Unlock()

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
