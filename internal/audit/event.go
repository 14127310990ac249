package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/serroba/ipguard/internal/ratelimit"
)

// TopicIPBlocked carries client block notifications.
const TopicIPBlocked = "ratelimit.ip_blocked"

// BlockedEvent is published when the limiter blocks a client.
type BlockedEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ClientKey  string    `json:"clientKey"`
	Class      string    `json:"class"`
	Reason     string    `json:"reason"`
	Violations int64     `json:"violations"`
	BlockedAt  time.Time `json:"blockedAt"`
}

// NewBlockedEvent converts a limiter notification into a publishable event.
func NewBlockedEvent(event ratelimit.Event) *BlockedEvent {
	return &BlockedEvent{
		ID:         uuid.NewString(),
		Type:       event.Type,
		ClientKey:  string(event.Key),
		Class:      string(event.Class),
		Reason:     event.Reason,
		Violations: event.Violations,
		BlockedAt:  event.At,
	}
}
