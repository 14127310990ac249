package ratelimit

import "time"

// Outcome is the admission decision for a request.
type Outcome string

const (
	Admitted Outcome = "admitted"
	Rejected Outcome = "rejected"
)

// Reason explains a rejection.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonRateLimited Reason = "rate_limited"
	ReasonBlocked     Reason = "blocked"
)

// Result is the outcome of a single Admit call.
type Result struct {
	Outcome Outcome
	Reason  Reason
	Class   Class

	// Count is the number of requests in the window after the decision.
	Count int
	// Limit is the configured threshold for the class.
	Limit int
	// Violations is the client's violation count after a rejection.
	Violations int64
	// RetryAfter estimates when the oldest window entry expires. Zero when unknown.
	RetryAfter time.Duration
}

// Admitted reports whether the request may proceed.
func (r Result) Admitted() bool {
	return r.Outcome == Admitted
}

// Stats is a read-only snapshot of window sizes per class and client.
type Stats struct {
	Windows map[Class]map[ClientKey]int
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
