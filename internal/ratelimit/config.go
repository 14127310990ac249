package ratelimit

import (
	"fmt"
	"slices"
	"time"
)

// Default limits applied when no configuration is supplied.
const (
	DefaultStandardWindow        = time.Minute
	DefaultStandardMaxRequests   = 10
	DefaultScheduledWindow       = time.Hour
	DefaultScheduledMaxRequests  = 60
	DefaultEscalationStrikeLimit = 5
)

// MaxDuration bounds every configured window and TTL.
const MaxDuration = 365 * 24 * time.Hour

// MaxSeconds is MaxDuration in whole seconds.
const MaxSeconds = int64(MaxDuration / time.Second)

// Config holds the limiter thresholds and policies.
type Config struct {
	StandardWindow       time.Duration
	StandardMaxRequests  int
	ScheduledWindow      time.Duration
	ScheduledMaxRequests int

	// EscalationStrikeLimit is the number of standard-class violations after
	// which a client is blocked.
	EscalationStrikeLimit int64

	// AllowList keys are never blocked and bypass scheduled-class limiting.
	AllowList []ClientKey

	// AllowListExemptStandard extends the allow-list bypass to the standard class.
	AllowListExemptStandard bool

	// BlockTTL lifts a block once it is older than the TTL. Zero keeps blocks
	// until an operator removes them.
	BlockTTL time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StandardWindow:        DefaultStandardWindow,
		StandardMaxRequests:   DefaultStandardMaxRequests,
		ScheduledWindow:       DefaultScheduledWindow,
		ScheduledMaxRequests:  DefaultScheduledMaxRequests,
		EscalationStrikeLimit: DefaultEscalationStrikeLimit,
		AllowList:             []ClientKey{"127.0.0.1", "::1"},
	}
}

// Validate checks that every limit is usable.
func (c Config) Validate() error {
	switch {
	case c.StandardWindow <= 0:
		return fmt.Errorf("%w: standard window must be positive", ErrInvalidConfig)
	case c.StandardMaxRequests <= 0:
		return fmt.Errorf("%w: standard max requests must be positive", ErrInvalidConfig)
	case c.ScheduledWindow <= 0:
		return fmt.Errorf("%w: scheduled window must be positive", ErrInvalidConfig)
	case c.ScheduledMaxRequests <= 0:
		return fmt.Errorf("%w: scheduled max requests must be positive", ErrInvalidConfig)
	case c.EscalationStrikeLimit <= 0:
		return fmt.Errorf("%w: escalation strike limit must be positive", ErrInvalidConfig)
	case c.BlockTTL < 0:
		return fmt.Errorf("%w: block ttl must not be negative", ErrInvalidConfig)
	case c.StandardWindow > MaxDuration, c.ScheduledWindow > MaxDuration, c.BlockTTL > MaxDuration:
		return fmt.Errorf("%w: windows and block ttl must not exceed %s", ErrInvalidConfig, MaxDuration)
	}

	return nil
}

// Seconds converts a count of whole seconds into a duration, rejecting
// values outside [0, MaxSeconds] before they can overflow.
func Seconds(n int64) (time.Duration, error) {
	if n < 0 || n > MaxSeconds {
		return 0, fmt.Errorf("%w: %d seconds is outside [0, %d]", ErrInvalidConfig, n, MaxSeconds)
	}

	return time.Duration(n) * time.Second, nil
}

// Limit returns the window duration and threshold for a class.
func (c Config) Limit(class Class) (time.Duration, int) {
	if class == ClassScheduled {
		return c.ScheduledWindow, c.ScheduledMaxRequests
	}

	return c.StandardWindow, c.StandardMaxRequests
}

// Allowed reports whether key is on the allow-list.
func (c Config) Allowed(key ClientKey) bool {
	return slices.Contains(c.AllowList, key)
}

// bypasses reports whether an allow-listed key skips limiting for the class.
func (c Config) bypasses(class Class) bool {
	return class == ClassScheduled || c.AllowListExemptStandard
}

func (c Config) clone() Config {
	c.AllowList = slices.Clone(c.AllowList)

	return c
}
