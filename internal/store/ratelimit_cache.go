package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/ipguard/internal/ratelimit"
)

const notBlocked = "0"

// RedisCachedBlockList wraps a BlockList with Redis caching for block checks.
// Every Admit checks the block list, so the durable store is only consulted
// on a cache miss. Both blocked and not-blocked answers are cached.
//
// Answers read from the store are only cached when no entry exists, so a
// stale not-blocked read can never replace an entry written by Block.
type RedisCachedBlockList struct {
	store  ratelimit.BlockList
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCachedBlockList creates a Redis-cached block list decorator.
func NewRedisCachedBlockList(
	store ratelimit.BlockList, client redis.UniversalClient, ttl time.Duration,
) *RedisCachedBlockList {
	return &RedisCachedBlockList{
		store:  store,
		client: client,
		prefix: redisKeyPrefix + "blockcache:",
		ttl:    ttl,
	}
}

// IsBlocked checks the cache first and falls back to the store.
func (r *RedisCachedBlockList) IsBlocked(ctx context.Context, key ratelimit.ClientKey) (time.Time, bool, error) {
	if at, blocked, ok := r.getFromCache(ctx, key); ok {
		return at, blocked, nil
	}

	at, blocked, err := r.store.IsBlocked(ctx, key)
	if err != nil {
		return time.Time{}, false, err
	}

	r.fill(ctx, key, at, blocked)

	return at, blocked, nil
}

// Block writes through to the store, then overwrites the cached answer.
// When the cache cannot be updated the entry is dropped so the next check
// reads the store; the error is returned if that fails too.
func (r *RedisCachedBlockList) Block(ctx context.Context, key ratelimit.ClientKey, at time.Time) error {
	if err := r.store.Block(ctx, key, at); err != nil {
		return err
	}

	cacheKey := r.prefix + string(key)

	err := r.client.Set(ctx, cacheKey, strconv.FormatInt(at.UnixNano(), 10), r.ttl).Err()
	if err == nil {
		return nil
	}

	if delErr := r.client.Del(ctx, cacheKey).Err(); delErr != nil {
		return fmt.Errorf("cache block for %s: %w", key, errors.Join(err, delErr))
	}

	return nil
}

// Unblock removes the entry from the store and drops the cached answer.
func (r *RedisCachedBlockList) Unblock(ctx context.Context, key ratelimit.ClientKey) error {
	if err := r.store.Unblock(ctx, key); err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.prefix+string(key)).Err(); err != nil {
		return fmt.Errorf("invalidate cached block for %s: %w", key, err)
	}

	return nil
}

// ListBlocked always reads the store.
func (r *RedisCachedBlockList) ListBlocked(ctx context.Context) (map[ratelimit.ClientKey]time.Time, error) {
	return r.store.ListBlocked(ctx)
}

func (r *RedisCachedBlockList) getFromCache(ctx context.Context, key ratelimit.ClientKey) (time.Time, bool, bool) {
	val, err := r.client.Get(ctx, r.prefix+string(key)).Result()
	if err != nil {
		return time.Time{}, false, false
	}

	if val == notBlocked {
		return time.Time{}, false, true
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, false
	}

	return time.Unix(0, nanos), true, true
}

// fill caches a store answer unless Block or another fill got there first.
// It is best effort; a failed write leaves the next check to the store.
func (r *RedisCachedBlockList) fill(ctx context.Context, key ratelimit.ClientKey, at time.Time, blocked bool) {
	val := notBlocked
	if blocked {
		val = strconv.FormatInt(at.UnixNano(), 10)
	}

	_ = r.client.SetNX(ctx, r.prefix+string(key), val, r.ttl).Err()
}

// Compile-time check.
var _ ratelimit.BlockList = (*RedisCachedBlockList)(nil)
