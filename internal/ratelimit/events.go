package ratelimit

import (
	"context"
	"errors"
	"time"
)

// EventIPBlocked is emitted when a client is escalated to the block list.
const EventIPBlocked = "ip_blocked"

// Event is a notification sent to an EventSink.
type Event struct {
	Type       string
	Key        ClientKey
	Class      Class
	Reason     string
	Violations int64
	At         time.Time
}

// EventSink receives limiter notifications. Delivery is best effort: a
// failing sink never changes an admission decision.
type EventSink interface {
	Notify(ctx context.Context, event Event) error
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Notify(ctx context.Context, event Event) error {
	var errs []error

	for _, sink := range m {
		if err := sink.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Observer receives decision and failure signals, typically for metrics.
type Observer interface {
	ObserveDecision(result Result)
	ObserveStorageError(store, op string)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Notify(context.Context, Event) error { return nil }

// NopObserver discards observations.
type NopObserver struct{}

func (NopObserver) ObserveDecision(Result)            {}
func (NopObserver) ObserveStorageError(string, string) {}
