package audit

import (
	"context"

	"github.com/serroba/ipguard/internal/messaging"
)

// NewHandler returns a consumer handler that records events in store.
func NewHandler(store Store) messaging.Handler[BlockedEvent] {
	return func(ctx context.Context, event *BlockedEvent) error {
		return store.SaveBlocked(ctx, event)
	}
}
