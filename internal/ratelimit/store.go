package ratelimit

import (
	"context"
	"time"
)

// WindowStore persists request windows per client and class.
// Save must replace the stored window atomically: a concurrent Load never
// observes a partially written sequence.
type WindowStore interface {
	// Load returns the stored window, or an empty window if none exists.
	Load(ctx context.Context, key ClientKey, class Class) (Window, error)

	// Save replaces the stored window. Saving an empty window removes the record.
	Save(ctx context.Context, key ClientKey, class Class, w Window) error

	// Delete removes the stored window.
	Delete(ctx context.Context, key ClientKey, class Class) error

	// Keys lists every client with a stored window for the class.
	Keys(ctx context.Context, class Class) ([]ClientKey, error)

	// Sizes returns the stored window length per client without modifying anything.
	Sizes(ctx context.Context, class Class) (map[ClientKey]int, error)
}

// ViolationTracker persists per-client violation counts.
type ViolationTracker interface {
	// Increment adds one violation and returns the new count.
	Increment(ctx context.Context, key ClientKey) (int64, error)

	// Get returns the current count, zero if none was recorded.
	Get(ctx context.Context, key ClientKey) (int64, error)

	// Reset clears the count.
	Reset(ctx context.Context, key ClientKey) error
}

// BlockList persists blocked clients with the time they were blocked.
type BlockList interface {
	// IsBlocked reports whether key is blocked and since when.
	IsBlocked(ctx context.Context, key ClientKey) (at time.Time, blocked bool, err error)

	// Block records key as blocked at the given time.
	Block(ctx context.Context, key ClientKey, at time.Time) error

	// Unblock removes key from the block list.
	Unblock(ctx context.Context, key ClientKey) error

	// ListBlocked returns every blocked key with its block time.
	ListBlocked(ctx context.Context) (map[ClientKey]time.Time, error)
}

// Stores groups the three durable stores the limiter owns.
type Stores struct {
	Windows    WindowStore
	Violations ViolationTracker
	Blocks     BlockList
}

func (s Stores) validate() error {
	if s.Windows == nil || s.Violations == nil || s.Blocks == nil {
		return ErrMissingStore
	}

	return nil
}
