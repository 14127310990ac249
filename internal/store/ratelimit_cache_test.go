package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/ipguard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCachedBlockList_CacheFailures(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	// A closed client fails every command without needing a server.
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	require.NoError(t, client.Close())

	t.Run("block reports a cache it could not update", func(t *testing.T) {
		backing := store.NewBlockMemoryStore()
		cached := store.NewRedisCachedBlockList(backing, client, time.Minute)

		err := cached.Block(ctx, "key1", at)

		require.Error(t, err)
		assert.ErrorIs(t, err, redis.ErrClosed)

		_, blocked, _ := backing.IsBlocked(ctx, "key1")
		assert.True(t, blocked, "the backing store is still written")
	})

	t.Run("unblock reports a cache it could not invalidate", func(t *testing.T) {
		backing := store.NewBlockMemoryStore()
		require.NoError(t, backing.Block(ctx, "key1", at))

		cached := store.NewRedisCachedBlockList(backing, client, time.Minute)

		err := cached.Unblock(ctx, "key1")

		require.Error(t, err)
		assert.ErrorIs(t, err, redis.ErrClosed)

		_, blocked, _ := backing.IsBlocked(ctx, "key1")
		assert.False(t, blocked)
	})

	t.Run("block checks fall back to the store", func(t *testing.T) {
		backing := store.NewBlockMemoryStore()
		require.NoError(t, backing.Block(ctx, "key1", at))

		cached := store.NewRedisCachedBlockList(backing, client, time.Minute)

		got, blocked, err := cached.IsBlocked(ctx, "key1")

		require.NoError(t, err)
		assert.True(t, blocked)
		assert.True(t, at.Equal(got))
	})
}
