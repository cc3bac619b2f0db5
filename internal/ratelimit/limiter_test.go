package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPolicy() *KeyPolicy {
	return NewKeyPolicy([]CategoryRule{
		{Name: "ai", Patterns: []string{"/api/v1/generate"}, RatePerMinute: 60, Burst: 2},
	}, CategoryRule{Name: "default", RatePerMinute: 120, Burst: 5})
}

func TestLimiterPerCategoryBuckets(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStoreAt(time.Minute, clock.Now)
	l := NewLimiter(store, testPolicy(), zap.NewNop())

	ctx := context.Background()

	// Exhaust the ai category for one client.
	for i := 0; i < 2; i++ {
		dec := l.Check(ctx, "1.2.3.4", "/api/v1/generate")
		require.True(t, dec.Allowed)
		assert.Equal(t, "ai", dec.Category)
	}
	dec := l.Check(ctx, "1.2.3.4", "/api/v1/generate")
	assert.False(t, dec.Allowed)
	assert.Positive(t, dec.RetryAfter)

	// Same client, default category still admits.
	dec = l.Check(ctx, "1.2.3.4", "/health-other")
	assert.True(t, dec.Allowed)
	assert.Equal(t, "default", dec.Category)

	// Different client, ai category unaffected.
	dec = l.Check(ctx, "5.6.7.8", "/api/v1/generate")
	assert.True(t, dec.Allowed)
}

type erroringStore struct{}

func (erroringStore) TryConsume(string, int, float64, int) (ConsumeResult, error) {
	return ConsumeResult{}, errors.New("store corrupted")
}

func (erroringStore) Len() int { return 0 }

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	l := NewLimiter(erroringStore{}, testPolicy(), zap.NewNop())

	dec := l.Check(context.Background(), "1.2.3.4", "/api/v1/generate")
	assert.True(t, dec.Allowed, "infrastructure failure must admit the request")
	assert.True(t, dec.FailedOpen)
	assert.Zero(t, dec.RetryAfter)
}

func TestLimiterDecisionCarriesLimits(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStoreAt(time.Minute, clock.Now)
	l := NewLimiter(store, testPolicy(), zap.NewNop())

	dec := l.Check(context.Background(), "9.9.9.9", "/api/v1/generate")
	assert.Equal(t, 60, dec.Limit)
	assert.Equal(t, 2, dec.Burst)
	assert.Equal(t, 1, dec.Remaining)
}
