// bucket.go: Token bucket algorithm implementation
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a thread-safe, in-memory token bucket. Tokens accumulate at
// a fixed per-second rate up to capacity; each admitted unit of work consumes
// its cost. All interval math uses time.Time values from the bucket's clock,
// which carry Go's monotonic reading.
type TokenBucket struct {
	capacity     int
	tokens       float64 // float so partial refills are not lost
	refillPerSec float64
	lastRefill   time.Time

	now func() time.Time
	mu  sync.Mutex // protects state
}

// NewTokenBucket creates a bucket seeded at full capacity with the given
// refill rate in tokens per second.
func NewTokenBucket(capacity int, refillPerSec float64) *TokenBucket {
	return newTokenBucketAt(capacity, refillPerSec, time.Now)
}

func newTokenBucketAt(capacity int, refillPerSec float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       float64(capacity),
		refillPerSec: refillPerSec,
		lastRefill:   now(),
		now:          now,
	}
}

// TryConsume attempts to consume cost tokens. The refill since lastRefill is
// recomputed first, inside the same critical section, so the balance can
// neither exceed capacity nor be double-spent by concurrent callers. When the
// bucket is exhausted it reports how long the caller must wait before cost
// tokens will be available.
func (tb *TokenBucket) TryConsume(cost int) (allowed bool, remaining float64, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	need := float64(cost)
	if tb.tokens >= need {
		tb.tokens -= need
		return true, tb.tokens, 0
	}

	wait := time.Duration((need - tb.tokens) / tb.refillPerSec * float64(time.Second))
	return false, tb.tokens, wait
}

// refillLocked refills tokens based on elapsed time. Caller must hold tb.mu.
func (tb *TokenBucket) refillLocked() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.refillPerSec
		if tb.tokens > float64(tb.capacity) {
			tb.tokens = float64(tb.capacity)
		}
		tb.lastRefill = now
	}
}

// Remaining returns the current token balance after refill.
func (tb *TokenBucket) Remaining() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	return tb.tokens
}

// Capacity returns the burst ceiling.
func (tb *TokenBucket) Capacity() int {
	return tb.capacity
}
