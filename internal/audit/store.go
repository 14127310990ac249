package audit

import "context"

// Store persists audit events.
type Store interface {
	SaveBlocked(ctx context.Context, event *BlockedEvent) error
}
