package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/serroba/ipguard/internal/messaging"
	"github.com/serroba/ipguard/internal/ratelimit"
	"golang.org/x/time/rate"
)

// ErrDropped is returned when a notification exceeds the publish budget.
var ErrDropped = errors.New("audit: notification dropped")

// Notifier publishes limiter block notifications as BlockedEvents.
// Publishing is bounded so a flood of blocks cannot saturate the broker.
type Notifier struct {
	publish messaging.Publish[BlockedEvent]
	budget  *rate.Limiter
}

// NewNotifier creates a notifier allowing perSecond publishes with the given burst.
// A non-positive perSecond disables the budget.
func NewNotifier(publish messaging.Publish[BlockedEvent], perSecond float64, burst int) *Notifier {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	return &Notifier{
		publish: publish,
		budget:  rate.NewLimiter(limit, burst),
	}
}

// Notify implements ratelimit.EventSink.
func (n *Notifier) Notify(ctx context.Context, event ratelimit.Event) error {
	if event.Type != ratelimit.EventIPBlocked {
		return nil
	}

	if !n.budget.Allow() {
		return fmt.Errorf("%w: %s", ErrDropped, event.Key)
	}

	if err := n.publish(ctx, NewBlockedEvent(event)); err != nil {
		return fmt.Errorf("publish blocked event: %w", err)
	}

	return nil
}

var _ ratelimit.EventSink = (*Notifier)(nil)
