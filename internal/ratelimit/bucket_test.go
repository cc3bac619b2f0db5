package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic interval math.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenBucketBurstAdmission(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucketAt(5, 1.0, clock.Now)

	for i := 0; i < 5; i++ {
		allowed, _, _ := tb.TryConsume(1)
		require.True(t, allowed, "call %d should be admitted", i+1)
	}

	allowed, remaining, retryAfter := tb.TryConsume(1)
	assert.False(t, allowed)
	assert.Less(t, remaining, 1.0)
	assert.InDelta(t, time.Second.Seconds(), retryAfter.Seconds(), 0.01)
}

func TestTokenBucketRefillRestoresCapacity(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucketAt(10, 2.0, clock.Now)

	for i := 0; i < 10; i++ {
		allowed, _, _ := tb.TryConsume(1)
		require.True(t, allowed)
	}
	allowed, _, _ := tb.TryConsume(1)
	require.False(t, allowed)

	// capacity / refillPerSec restores the full bucket.
	clock.Advance(5 * time.Second)
	assert.InDelta(t, 10.0, tb.Remaining(), 0.001)
}

func TestTokenBucketNeverExceedsCapacity(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucketAt(3, 100.0, clock.Now)

	clock.Advance(time.Hour)
	remaining := tb.Remaining()
	assert.LessOrEqual(t, remaining, 3.0)
	assert.GreaterOrEqual(t, remaining, 0.0)

	for i := 0; i < 10; i++ {
		tb.TryConsume(1)
		clock.Advance(time.Millisecond)
		remaining = tb.Remaining()
		assert.LessOrEqual(t, remaining, 3.0)
		assert.GreaterOrEqual(t, remaining, 0.0)
	}
}

func TestTokenBucketRetryAfterScenario(t *testing.T) {
	// capacity=5, refill=1/s: five rapid calls admitted, sixth rejected with
	// retryAfter ~ 1s, five more admitted after advancing 5s.
	clock := newFakeClock()
	tb := newTokenBucketAt(5, 1.0, clock.Now)

	for i := 0; i < 5; i++ {
		allowed, _, _ := tb.TryConsume(1)
		require.True(t, allowed)
	}

	allowed, _, retryAfter := tb.TryConsume(1)
	require.False(t, allowed)
	assert.InDelta(t, 1.0, retryAfter.Seconds(), 0.01)

	clock.Advance(5 * time.Second)
	for i := 0; i < 5; i++ {
		allowed, _, _ := tb.TryConsume(1)
		require.True(t, allowed, "call %d after refill should be admitted", i+1)
	}
}

func TestTokenBucketCostAboveOne(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucketAt(10, 1.0, clock.Now)

	allowed, remaining, _ := tb.TryConsume(4)
	require.True(t, allowed)
	assert.InDelta(t, 6.0, remaining, 0.001)

	allowed, _, retryAfter := tb.TryConsume(8)
	require.False(t, allowed)
	// 2 tokens short at 1 token/s.
	assert.InDelta(t, 2.0, retryAfter.Seconds(), 0.01)
}

func TestTokenBucketConcurrentNoDoubleSpend(t *testing.T) {
	const workers = 16
	const callsEach = 50
	const capacity = 100

	clock := newFakeClock()
	// Zero refill so the sequential admit count is exactly the capacity.
	tb := newTokenBucketAt(capacity, 0.0, clock.Now)

	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := 0
			for j := 0; j < callsEach; j++ {
				if ok, _, _ := tb.TryConsume(1); ok {
					local++
				}
			}
			mu.Lock()
			admitted += int64(local)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(capacity), admitted)
	assert.GreaterOrEqual(t, tb.Remaining(), 0.0)
}
