package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/ipguard/internal/ratelimit"
)

const redisKeyPrefix = "ratelimit:"

// RedisWindowStore is a Redis implementation of ratelimit.WindowStore.
// Each class is a hash of client key -> encoded window, so a save is a
// single HSET and readers never observe a partial window.
type RedisWindowStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisWindowStore creates a new Redis-backed window store.
func NewRedisWindowStore(client redis.UniversalClient) *RedisWindowStore {
	return &RedisWindowStore{
		client: client,
		prefix: redisKeyPrefix + "windows:",
	}
}

func (r *RedisWindowStore) hashKey(class ratelimit.Class) string {
	return r.prefix + string(class)
}

func (r *RedisWindowStore) Load(ctx context.Context, key ratelimit.ClientKey, class ratelimit.Class) (ratelimit.Window, error) {
	data, err := r.client.HGet(ctx, r.hashKey(class), string(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, err
	}

	return ratelimit.DecodeWindow(data)
}

func (r *RedisWindowStore) Save(ctx context.Context, key ratelimit.ClientKey, class ratelimit.Class, w ratelimit.Window) error {
	if len(w) == 0 {
		return r.Delete(ctx, key, class)
	}

	data, err := ratelimit.EncodeWindow(w)
	if err != nil {
		return err
	}

	return r.client.HSet(ctx, r.hashKey(class), string(key), data).Err()
}

func (r *RedisWindowStore) Delete(ctx context.Context, key ratelimit.ClientKey, class ratelimit.Class) error {
	return r.client.HDel(ctx, r.hashKey(class), string(key)).Err()
}

func (r *RedisWindowStore) Keys(ctx context.Context, class ratelimit.Class) ([]ratelimit.ClientKey, error) {
	fields, err := r.client.HKeys(ctx, r.hashKey(class)).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]ratelimit.ClientKey, len(fields))
	for i, f := range fields {
		keys[i] = ratelimit.ClientKey(f)
	}

	return keys, nil
}

func (r *RedisWindowStore) Sizes(ctx context.Context, class ratelimit.Class) (map[ratelimit.ClientKey]int, error) {
	all, err := r.client.HGetAll(ctx, r.hashKey(class)).Result()
	if err != nil {
		return nil, err
	}

	sizes := make(map[ratelimit.ClientKey]int, len(all))

	for field, data := range all {
		w, err := ratelimit.DecodeWindow([]byte(data))
		if err != nil {
			return nil, err
		}

		sizes[ratelimit.ClientKey(field)] = len(w)
	}

	return sizes, nil
}

// RedisViolationStore is a Redis implementation of ratelimit.ViolationTracker.
type RedisViolationStore struct {
	client  redis.UniversalClient
	hashKey string
}

// NewRedisViolationStore creates a new Redis-backed violation tracker.
func NewRedisViolationStore(client redis.UniversalClient) *RedisViolationStore {
	return &RedisViolationStore{
		client:  client,
		hashKey: redisKeyPrefix + "violations",
	}
}

func (r *RedisViolationStore) Increment(ctx context.Context, key ratelimit.ClientKey) (int64, error) {
	return r.client.HIncrBy(ctx, r.hashKey, string(key), 1).Result()
}

func (r *RedisViolationStore) Get(ctx context.Context, key ratelimit.ClientKey) (int64, error) {
	n, err := r.client.HGet(ctx, r.hashKey, string(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}

		return 0, err
	}

	return n, nil
}

func (r *RedisViolationStore) Reset(ctx context.Context, key ratelimit.ClientKey) error {
	return r.client.HDel(ctx, r.hashKey, string(key)).Err()
}

// RedisBlockStore is a Redis implementation of ratelimit.BlockList.
// Block times are stored as Unix nanoseconds.
type RedisBlockStore struct {
	client  redis.UniversalClient
	hashKey string
}

// NewRedisBlockStore creates a new Redis-backed block list.
func NewRedisBlockStore(client redis.UniversalClient) *RedisBlockStore {
	return &RedisBlockStore{
		client:  client,
		hashKey: redisKeyPrefix + "blocked",
	}
}

func (r *RedisBlockStore) IsBlocked(ctx context.Context, key ratelimit.ClientKey) (time.Time, bool, error) {
	nanos, err := r.client.HGet(ctx, r.hashKey, string(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}

		return time.Time{}, false, err
	}

	return time.Unix(0, nanos), true, nil
}

func (r *RedisBlockStore) Block(ctx context.Context, key ratelimit.ClientKey, at time.Time) error {
	return r.client.HSet(ctx, r.hashKey, string(key), at.UnixNano()).Err()
}

func (r *RedisBlockStore) Unblock(ctx context.Context, key ratelimit.ClientKey) error {
	return r.client.HDel(ctx, r.hashKey, string(key)).Err()
}

func (r *RedisBlockStore) ListBlocked(ctx context.Context) (map[ratelimit.ClientKey]time.Time, error) {
	all, err := r.client.HGetAll(ctx, r.hashKey).Result()
	if err != nil {
		return nil, err
	}

	blocked := make(map[ratelimit.ClientKey]time.Time, len(all))

	for field, value := range all {
		nanos, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, err
		}

		blocked[ratelimit.ClientKey(field)] = time.Unix(0, nanos)
	}

	return blocked, nil
}

// NewRedisStores returns a ratelimit.Stores backed by Redis.
func NewRedisStores(client redis.UniversalClient) ratelimit.Stores {
	return ratelimit.Stores{
		Windows:    NewRedisWindowStore(client),
		Violations: NewRedisViolationStore(client),
		Blocks:     NewRedisBlockStore(client),
	}
}

// Compile-time checks.
var (
	_ ratelimit.WindowStore      = (*RedisWindowStore)(nil)
	_ ratelimit.ViolationTracker = (*RedisViolationStore)(nil)
	_ ratelimit.BlockList        = (*RedisBlockStore)(nil)
)
