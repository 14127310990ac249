package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/serroba/ipguard/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPruner struct {
	mu    sync.Mutex
	calls map[ratelimit.Class]int
	err   error
}

func newMockPruner() *mockPruner {
	return &mockPruner{calls: make(map[ratelimit.Class]int)}
}

func (m *mockPruner) PruneAll(_ context.Context, class ratelimit.Class) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[class]++

	return 1, m.err
}

func (m *mockPruner) Calls(class ratelimit.Class) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[class]
}

func TestSweeper_Sweep(t *testing.T) {
	t.Run("prunes every class", func(t *testing.T) {
		pruner := newMockPruner()
		sweeper := ratelimit.NewSweeper(pruner, time.Minute, zap.NewNop())

		sweeper.Sweep(context.Background())

		assert.Equal(t, 1, pruner.Calls(ratelimit.ClassStandard))
		assert.Equal(t, 1, pruner.Calls(ratelimit.ClassScheduled))
	})

	t.Run("continues after a failing class", func(t *testing.T) {
		pruner := newMockPruner()
		pruner.err = errors.New("prune failed")
		sweeper := ratelimit.NewSweeper(pruner, time.Minute, zap.NewNop())

		sweeper.Sweep(context.Background())

		assert.Equal(t, 1, pruner.Calls(ratelimit.ClassScheduled))
	})
}

func TestSweeper_Lifecycle(t *testing.T) {
	t.Run("runs on the interval until shutdown", func(t *testing.T) {
		pruner := newMockPruner()
		sweeper := ratelimit.NewSweeper(pruner, 5*time.Millisecond, zap.NewNop())

		require.NoError(t, sweeper.Start(context.Background()))

		assert.Eventually(t, func() bool {
			return pruner.Calls(ratelimit.ClassStandard) >= 2
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, sweeper.Shutdown())

		calls := pruner.Calls(ratelimit.ClassStandard)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, calls, pruner.Calls(ratelimit.ClassStandard), "no sweeps after shutdown")
	})

	t.Run("rejects a non-positive interval", func(t *testing.T) {
		sweeper := ratelimit.NewSweeper(newMockPruner(), 0, zap.NewNop())

		assert.Error(t, sweeper.Start(context.Background()))
		assert.NoError(t, sweeper.Shutdown())
	})

	t.Run("sweeps a real limiter", func(t *testing.T) {
		limiter, stores, clock := newTestLimiter(t, testConfig())
		ctx := context.Background()

		_, _ = limiter.Admit(ctx, testClient, ratelimit.ClassStandard)
		clock.Advance(2 * time.Minute)

		ratelimit.NewSweeper(limiter, time.Minute, zap.NewNop()).Sweep(ctx)

		keys, err := stores.Windows.Keys(ctx, ratelimit.ClassStandard)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}
