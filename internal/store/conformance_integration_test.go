//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/serroba/ipguard/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoresConformance exercises a durable ratelimit.Stores implementation.
// key must be unique to the test run so shared backends can be reused.
func runStoresConformance(t *testing.T, stores ratelimit.Stores, key ratelimit.ClientKey) {
	t.Helper()

	ctx := context.Background()
	base := time.Unix(1_700_000_000, 123)

	t.Run("window round-trips without reordering", func(t *testing.T) {
		w := ratelimit.Window{base, base.Add(time.Second), base.Add(time.Second), base.Add(59 * time.Second)}

		require.NoError(t, stores.Windows.Save(ctx, key, ratelimit.ClassStandard, w))

		got, err := stores.Windows.Load(ctx, key, ratelimit.ClassStandard)
		require.NoError(t, err)
		require.Len(t, got, len(w))

		for i := range w {
			assert.True(t, w[i].Equal(got[i]), "timestamp %d changed", i)
		}

		sizes, err := stores.Windows.Sizes(ctx, ratelimit.ClassStandard)
		require.NoError(t, err)
		assert.Equal(t, len(w), sizes[key])

		keys, err := stores.Windows.Keys(ctx, ratelimit.ClassStandard)
		require.NoError(t, err)
		assert.Contains(t, keys, key)

		require.NoError(t, stores.Windows.Delete(ctx, key, ratelimit.ClassStandard))

		got, err = stores.Windows.Load(ctx, key, ratelimit.ClassStandard)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("violations increment and reset", func(t *testing.T) {
		t.Cleanup(func() { _ = stores.Violations.Reset(ctx, key) })

		first, err := stores.Violations.Increment(ctx, key)
		require.NoError(t, err)

		second, err := stores.Violations.Increment(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, first+1, second)

		require.NoError(t, stores.Violations.Reset(ctx, key))

		count, err := stores.Violations.Get(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("block entries keep their timestamp", func(t *testing.T) {
		t.Cleanup(func() { _ = stores.Blocks.Unblock(ctx, key) })

		require.NoError(t, stores.Blocks.Block(ctx, key, base))

		at, blocked, err := stores.Blocks.IsBlocked(ctx, key)
		require.NoError(t, err)
		assert.True(t, blocked)
		assert.True(t, base.Equal(at))

		list, err := stores.Blocks.ListBlocked(ctx)
		require.NoError(t, err)
		assert.Contains(t, list, key)

		require.NoError(t, stores.Blocks.Unblock(ctx, key))

		_, blocked, err = stores.Blocks.IsBlocked(ctx, key)
		require.NoError(t, err)
		assert.False(t, blocked)
	})

	t.Run("limiter state survives a restart", func(t *testing.T) {
		t.Cleanup(func() {
			_ = stores.Windows.Delete(ctx, key, ratelimit.ClassScheduled)
			_ = stores.Violations.Reset(ctx, key)
			_ = stores.Blocks.Unblock(ctx, key)
		})

		cfg := ratelimit.DefaultConfig()
		cfg.ScheduledMaxRequests = 2

		first, err := ratelimit.New(stores, cfg)
		require.NoError(t, err)

		for range 3 {
			_, err := first.Admit(ctx, key, ratelimit.ClassScheduled)
			require.NoError(t, err)
		}

		restarted, err := ratelimit.New(stores, cfg)
		require.NoError(t, err)

		result, err := restarted.Admit(ctx, key, ratelimit.ClassScheduled)
		require.NoError(t, err)
		assert.Equal(t, ratelimit.ReasonBlocked, result.Reason)
	})
}
