// Package ratelimit implements the gateway-wide token bucket.
//
// The bucket has no background refill goroutine: every acquisition first
// computes how many tokens accrued since the last refill timestamp and tops
// the bucket up, so the whole state is two numbers protected by one mutex.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket admits requests while tokens are available and silently
// rejects the rest; the caller decides the user-visible error.
type TokenBucket struct {
	mu sync.Mutex

	capacity        float64
	refillPerMilli  float64
	availableTokens float64
	lastRefill      time.Time

	now func() time.Time
}

// NewTokenBucket builds a bucket holding at most capacity tokens, refilled
// at refillPerSecond. The bucket starts full.
func NewTokenBucket(capacity int64, refillPerSecond float64) *TokenBucket {
	return newTokenBucket(capacity, refillPerSecond, time.Now)
}

func newTokenBucket(capacity int64, refillPerSecond float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:        float64(capacity),
		refillPerMilli:  refillPerSecond / 1000.0,
		availableTokens: float64(capacity),
		lastRefill:      now(),
		now:             now,
	}
}

// TryAcquire reports whether n tokens were available and, if so, deducts
// them. Refill and deduction form a single critical section.
func (b *TokenBucket) TryAcquire(n int64) bool {
	if n <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.availableTokens >= float64(n) {
		b.availableTokens -= float64(n)
		return true
	}
	return false
}

// Available returns the token count after a refill pass. Diagnostic only.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.availableTokens
}

// refill credits tokens for the elapsed wall-clock time. Time only moves
// forward: a clock reading at or before lastRefill credits nothing.
func (b *TokenBucket) refill() {
	cur := b.now()
	if !cur.After(b.lastRefill) {
		return
	}
	elapsed := float64(cur.Sub(b.lastRefill).Milliseconds())
	b.availableTokens = min(b.availableTokens+elapsed*b.refillPerMilli, b.capacity)
	b.lastRefill = cur
}
