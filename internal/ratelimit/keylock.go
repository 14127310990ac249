package ratelimit

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockShards = 256

// keyLocks serializes work per client key using a fixed set of mutex shards.
type keyLocks struct {
	shards [lockShards]sync.Mutex
}

func (l *keyLocks) lock(key ClientKey) func() {
	m := &l.shards[xxhash.Sum64String(string(key))%lockShards]
	m.Lock()

	return m.Unlock
}
