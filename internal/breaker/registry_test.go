package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryGetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry(Config{}, nil, zap.NewNop())

	a := r.GetOrCreate("payments")
	b := r.GetOrCreate("payments")
	assert.Same(t, a, b)

	c := r.GetOrCreate("catalog")
	assert.NotSame(t, a, c)
	assert.Equal(t, []string{"catalog", "payments"}, r.Names())
}

func TestRegistryAppliesPerDependencyOverrides(t *testing.T) {
	overrides := map[string]Config{
		"flaky": {FailureThreshold: 1, RecoveryTimeout: time.Second},
	}
	r := NewRegistry(Config{FailureThreshold: 10}, overrides, zap.NewNop())
	ctx := context.Background()

	flaky := r.GetOrCreate("flaky")
	require.Error(t, flaky.Execute(ctx, func(context.Context) error { return errors.New("x") }))
	assert.Equal(t, StateOpen, flaky.State(), "override threshold of 1 applies")

	solid := r.GetOrCreate("solid")
	require.Error(t, solid.Execute(ctx, func(context.Context) error { return errors.New("x") }))
	assert.Equal(t, StateClosed, solid.State(), "default threshold of 10 applies")
}

func TestRegistryOverrideKeepsDefaultClassifier(t *testing.T) {
	ignoreAll := func(error) Outcome { return OutcomeIgnore }
	r := NewRegistry(Config{Classify: ignoreAll}, map[string]Config{
		"quiet": {FailureThreshold: 1},
	}, zap.NewNop())

	quiet := r.GetOrCreate("quiet")
	for i := 0; i < 5; i++ {
		require.Error(t, quiet.Execute(context.Background(), func(context.Context) error {
			return errors.New("x")
		}))
	}
	assert.Equal(t, StateClosed, quiet.State(), "inherited classifier ignores everything")
}

func TestRegistryExecuteConvenience(t *testing.T) {
	r := NewRegistry(Config{}, nil, zap.NewNop())

	err := r.Execute(context.Background(), "search", func(context.Context) error { return nil })
	require.NoError(t, err)

	_, ok := r.Get("search")
	assert.True(t, ok)
	_, ok = r.Get("never-used")
	assert.False(t, ok)
}

func TestRegistrySnapshotsAndResetAll(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1}, nil, zap.NewNop())
	ctx := context.Background()

	require.Error(t, r.Execute(ctx, "a", func(context.Context) error { return errors.New("x") }))
	require.NoError(t, r.Execute(ctx, "b", func(context.Context) error { return nil }))

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "open", snaps["a"].State)
	assert.Equal(t, "closed", snaps["b"].State)

	r.ResetAll()
	snaps = r.Snapshots()
	assert.Equal(t, "closed", snaps["a"].State)
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry(Config{}, nil, zap.NewNop())

	const workers = 32
	results := make([]*Breaker, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}
