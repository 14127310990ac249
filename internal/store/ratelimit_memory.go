package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/serroba/ipguard/internal/ratelimit"
)

// WindowMemoryStore is an in-memory implementation of ratelimit.WindowStore.
type WindowMemoryStore struct {
	mu      sync.RWMutex
	windows map[ratelimit.Class]map[ratelimit.ClientKey]ratelimit.Window
}

// NewWindowMemoryStore creates a new in-memory window store.
func NewWindowMemoryStore() *WindowMemoryStore {
	return &WindowMemoryStore{
		windows: make(map[ratelimit.Class]map[ratelimit.ClientKey]ratelimit.Window),
	}
}

func (s *WindowMemoryStore) Load(_ context.Context, key ratelimit.ClientKey, class ratelimit.Class) (ratelimit.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.windows[class][key].Clone(), nil
}

func (s *WindowMemoryStore) Save(_ context.Context, key ratelimit.ClientKey, class ratelimit.Class, w ratelimit.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(w) == 0 {
		delete(s.windows[class], key)

		return nil
	}

	byKey, ok := s.windows[class]
	if !ok {
		byKey = make(map[ratelimit.ClientKey]ratelimit.Window)
		s.windows[class] = byKey
	}

	byKey[key] = w.Clone()

	return nil
}

func (s *WindowMemoryStore) Delete(_ context.Context, key ratelimit.ClientKey, class ratelimit.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows[class], key)

	return nil
}

func (s *WindowMemoryStore) Keys(_ context.Context, class ratelimit.Class) ([]ratelimit.ClientKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]ratelimit.ClientKey, 0, len(s.windows[class]))
	for key := range s.windows[class] {
		keys = append(keys, key)
	}

	return keys, nil
}

func (s *WindowMemoryStore) Sizes(_ context.Context, class ratelimit.Class) (map[ratelimit.ClientKey]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sizes := make(map[ratelimit.ClientKey]int, len(s.windows[class]))
	for key, w := range s.windows[class] {
		sizes[key] = len(w)
	}

	return sizes, nil
}

// ViolationMemoryStore is an in-memory implementation of ratelimit.ViolationTracker.
type ViolationMemoryStore struct {
	mu     sync.Mutex
	counts map[ratelimit.ClientKey]int64
}

// NewViolationMemoryStore creates a new in-memory violation tracker.
func NewViolationMemoryStore() *ViolationMemoryStore {
	return &ViolationMemoryStore{
		counts: make(map[ratelimit.ClientKey]int64),
	}
}

func (s *ViolationMemoryStore) Increment(_ context.Context, key ratelimit.ClientKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[key]++

	return s.counts[key], nil
}

func (s *ViolationMemoryStore) Get(_ context.Context, key ratelimit.ClientKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[key], nil
}

func (s *ViolationMemoryStore) Reset(_ context.Context, key ratelimit.ClientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counts, key)

	return nil
}

// BlockMemoryStore is an in-memory implementation of ratelimit.BlockList.
type BlockMemoryStore struct {
	mu      sync.RWMutex
	blocked map[ratelimit.ClientKey]time.Time
}

// NewBlockMemoryStore creates a new in-memory block list.
func NewBlockMemoryStore() *BlockMemoryStore {
	return &BlockMemoryStore{
		blocked: make(map[ratelimit.ClientKey]time.Time),
	}
}

func (s *BlockMemoryStore) IsBlocked(_ context.Context, key ratelimit.ClientKey) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.blocked[key]

	return at, ok, nil
}

func (s *BlockMemoryStore) Block(_ context.Context, key ratelimit.ClientKey, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocked[key] = at

	return nil
}

func (s *BlockMemoryStore) Unblock(_ context.Context, key ratelimit.ClientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocked, key)

	return nil
}

func (s *BlockMemoryStore) ListBlocked(_ context.Context) (map[ratelimit.ClientKey]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.blocked), nil
}

// NewMemoryStores returns a ratelimit.Stores backed entirely by memory.
func NewMemoryStores() ratelimit.Stores {
	return ratelimit.Stores{
		Windows:    NewWindowMemoryStore(),
		Violations: NewViolationMemoryStore(),
		Blocks:     NewBlockMemoryStore(),
	}
}

// Compile-time checks.
var (
	_ ratelimit.WindowStore      = (*WindowMemoryStore)(nil)
	_ ratelimit.ViolationTracker = (*ViolationMemoryStore)(nil)
	_ ratelimit.BlockList        = (*BlockMemoryStore)(nil)
)
