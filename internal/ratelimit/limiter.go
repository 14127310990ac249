package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Limiter defines the admission interface used by request handlers.
type Limiter interface {
	// Admit decides whether a request from key in the given class may proceed.
	Admit(ctx context.Context, key ClientKey, class Class) (Result, error)
}

// RateLimiter implements sliding-window rate limiting with escalating blocks.
//
// Every read-prune-compare-append-save sequence, and every violation
// increment with its conditional block, runs under a per-key lock so
// concurrent requests from one client cannot lose updates.
type RateLimiter struct {
	stores   Stores
	config   atomic.Pointer[Config]
	clock    Clock
	sink     EventSink
	observer Observer
	logger   *zap.Logger
	locks    keyLocks
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(l *RateLimiter) { l.clock = clock }
}

// WithEventSink sets the sink notified when clients are blocked.
func WithEventSink(sink EventSink) Option {
	return func(l *RateLimiter) { l.sink = sink }
}

// WithObserver sets the decision observer.
func WithObserver(observer Observer) Option {
	return func(l *RateLimiter) { l.observer = observer }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *RateLimiter) { l.logger = logger }
}

// New creates a rate limiter over the given stores.
func New(stores Stores, cfg Config, opts ...Option) (*RateLimiter, error) {
	if err := stores.validate(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &RateLimiter{
		stores:   stores,
		clock:    SystemClock{},
		sink:     NopSink{},
		observer: NopObserver{},
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	c := cfg.clone()
	l.config.Store(&c)

	return l, nil
}

// Admit decides whether a request may proceed.
//
// Rate-limit and block rejections are reported in the Result. A non-nil
// error wrapping ErrInvalidInput means the call itself was wrong and the
// Result is empty. Any other error is a StorageError: the Result is still
// the decision to apply.
func (l *RateLimiter) Admit(ctx context.Context, key ClientKey, class Class) (Result, error) {
	if key == "" {
		return Result{}, fmt.Errorf("%w: empty client key", ErrInvalidInput)
	}

	if !class.Valid() {
		return Result{}, fmt.Errorf("%w: unknown class %q", ErrInvalidInput, class)
	}

	cfg := l.config.Load()
	_, limit := cfg.Limit(class)
	allowListed := cfg.Allowed(key)

	if allowListed && cfg.bypasses(class) {
		return l.finish(Result{Outcome: Admitted, Class: class, Limit: limit}, nil)
	}

	unlock := l.locks.lock(key)
	result, event, errs := l.admitLocked(ctx, key, class, cfg, allowListed)
	unlock()

	if event != nil {
		l.notify(ctx, *event)
	}

	return l.finish(result, errs)
}

// admitLocked runs the window and escalation logic with the key's lock held.
// A non-nil Event is returned when the client was blocked; it is delivered
// after the lock is released.
func (l *RateLimiter) admitLocked(
	ctx context.Context, key ClientKey, class Class, cfg *Config, allowListed bool,
) (Result, *Event, []error) {
	window, limit := cfg.Limit(class)
	now := l.clock.Now()

	var errs []error

	if !allowListed {
		blocked, err := l.checkBlocked(ctx, key, cfg, now)
		if err != nil {
			errs = append(errs, err)
		}

		if blocked {
			return Result{Outcome: Rejected, Reason: ReasonBlocked, Class: class, Limit: limit}, nil, errs
		}
	}

	w, err := l.stores.Windows.Load(ctx, key, class)
	if err != nil {
		errs = append(errs, l.storageErr(StoreWindows, "load", err))
		w = nil
	}

	loaded := len(w)
	w = w.Prune(now, window)

	if len(w) < limit {
		w = append(w.Clone(), now)
		if err := l.stores.Windows.Save(ctx, key, class, w); err != nil {
			errs = append(errs, l.storageErr(StoreWindows, "save", err))
		}

		return Result{Outcome: Admitted, Class: class, Count: len(w), Limit: limit}, nil, errs
	}

	if len(w) != loaded {
		if err := l.stores.Windows.Save(ctx, key, class, w); err != nil {
			errs = append(errs, l.storageErr(StoreWindows, "save", err))
		}
	}

	result := Result{
		Outcome:    Rejected,
		Reason:     ReasonRateLimited,
		Class:      class,
		Count:      len(w),
		Limit:      limit,
		RetryAfter: max(w[0].Add(window).Sub(now), 0),
	}

	violations, err := l.stores.Violations.Increment(ctx, key)
	if err != nil {
		errs = append(errs, l.storageErr(StoreViolations, "increment", err))
	}

	result.Violations = violations

	if allowListed || !l.escalates(cfg, class, violations, err == nil) {
		return result, nil, errs
	}

	result.Reason = ReasonBlocked
	result.RetryAfter = 0

	event, err := l.block(ctx, key, class, violations, now)
	if err != nil {
		errs = append(errs, err)
	}

	return result, event, errs
}

// escalates reports whether a rejection moves the client to the block list.
// Scheduled traffic is blocked on its first violation; standard traffic
// after the strike limit is reached.
func (l *RateLimiter) escalates(cfg *Config, class Class, violations int64, counted bool) bool {
	if class == ClassScheduled {
		return true
	}

	return counted && violations >= cfg.EscalationStrikeLimit
}

func (l *RateLimiter) checkBlocked(ctx context.Context, key ClientKey, cfg *Config, now time.Time) (bool, error) {
	at, blocked, err := l.stores.Blocks.IsBlocked(ctx, key)
	if err != nil {
		return false, l.storageErr(StoreBlocks, "check", err)
	}

	if !blocked {
		return false, nil
	}

	if cfg.BlockTTL > 0 && now.Sub(at) >= cfg.BlockTTL {
		l.logger.Info("client block expired",
			zap.String("client", string(key)),
			zap.Time("blocked_at", at),
		)

		if err := l.stores.Blocks.Unblock(ctx, key); err != nil {
			return false, l.storageErr(StoreBlocks, "unblock", err)
		}

		return false, nil
	}

	return true, nil
}

func (l *RateLimiter) block(
	ctx context.Context, key ClientKey, class Class, violations int64, now time.Time,
) (*Event, error) {
	if err := l.stores.Blocks.Block(ctx, key, now); err != nil {
		return nil, l.storageErr(StoreBlocks, "block", err)
	}

	reason := "scheduled limit exceeded"
	if class == ClassStandard {
		reason = fmt.Sprintf("%d rate limit violations", violations)
	}

	l.logger.Warn("client blocked",
		zap.String("client", string(key)),
		zap.String("class", string(class)),
		zap.Int64("violations", violations),
		zap.String("reason", reason),
	)

	return &Event{
		Type:       EventIPBlocked,
		Key:        key,
		Class:      class,
		Reason:     reason,
		Violations: violations,
		At:         now,
	}, nil
}

// notify delivers a block event. Failures are logged only.
func (l *RateLimiter) notify(ctx context.Context, event Event) {
	if err := l.sink.Notify(ctx, event); err != nil {
		l.logger.Error("failed to notify block",
			zap.String("client", string(event.Key)),
			zap.Error(err),
		)
	}
}

func (l *RateLimiter) finish(result Result, errs []error) (Result, error) {
	l.observer.ObserveDecision(result)

	return result, errors.Join(errs...)
}

func (l *RateLimiter) storageErr(store, op string, err error) *StorageError {
	l.observer.ObserveStorageError(store, op)

	return &StorageError{Store: store, Op: op, Err: err}
}

// IsBlocked reports whether key is on the block list.
func (l *RateLimiter) IsBlocked(ctx context.Context, key ClientKey) (bool, error) {
	_, blocked, err := l.stores.Blocks.IsBlocked(ctx, key)
	if err != nil {
		return false, l.storageErr(StoreBlocks, "check", err)
	}

	return blocked, nil
}

// ListBlocked returns every blocked key with its block time.
func (l *RateLimiter) ListBlocked(ctx context.Context) (map[ClientKey]time.Time, error) {
	blocked, err := l.stores.Blocks.ListBlocked(ctx)
	if err != nil {
		return nil, l.storageErr(StoreBlocks, "list", err)
	}

	return blocked, nil
}

// Unblock removes key from the block list. Violation counts are kept.
func (l *RateLimiter) Unblock(ctx context.Context, key ClientKey) error {
	if key == "" {
		return fmt.Errorf("%w: empty client key", ErrInvalidInput)
	}

	unlock := l.locks.lock(key)
	defer unlock()

	if err := l.stores.Blocks.Unblock(ctx, key); err != nil {
		return l.storageErr(StoreBlocks, "unblock", err)
	}

	l.logger.Info("client unblocked", zap.String("client", string(key)))

	return nil
}

// Violations returns the violation count for key.
func (l *RateLimiter) Violations(ctx context.Context, key ClientKey) (int64, error) {
	n, err := l.stores.Violations.Get(ctx, key)
	if err != nil {
		return 0, l.storageErr(StoreViolations, "get", err)
	}

	return n, nil
}

// ResetClient clears the windows of both classes, the violation count and
// the block entry for key. Every store is attempted; failures are reported
// together in a ResetError.
func (l *RateLimiter) ResetClient(ctx context.Context, key ClientKey) error {
	if key == "" {
		return fmt.Errorf("%w: empty client key", ErrInvalidInput)
	}

	unlock := l.locks.lock(key)
	defer unlock()

	var failed []*StorageError

	for _, class := range Classes() {
		if err := l.stores.Windows.Delete(ctx, key, class); err != nil {
			failed = append(failed, l.storageErr(StoreWindows, "delete "+string(class), err))
		}
	}

	if err := l.stores.Violations.Reset(ctx, key); err != nil {
		failed = append(failed, l.storageErr(StoreViolations, "reset", err))
	}

	if err := l.stores.Blocks.Unblock(ctx, key); err != nil {
		failed = append(failed, l.storageErr(StoreBlocks, "unblock", err))
	}

	if len(failed) > 0 {
		return &ResetError{Key: key, Failed: failed}
	}

	l.logger.Info("client reset", zap.String("client", string(key)))

	return nil
}

// GetStats returns the window size of every tracked client per class.
// It never prunes, so repeated calls without admissions return equal stats.
func (l *RateLimiter) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{Windows: make(map[Class]map[ClientKey]int, len(Classes()))}

	for _, class := range Classes() {
		sizes, err := l.stores.Windows.Sizes(ctx, class)
		if err != nil {
			return stats, l.storageErr(StoreWindows, "sizes", err)
		}

		stats.Windows[class] = sizes
	}

	return stats, nil
}

// PruneAll removes expired entries from every stored window of the class and
// returns the number of windows changed.
func (l *RateLimiter) PruneAll(ctx context.Context, class Class) (int, error) {
	if !class.Valid() {
		return 0, fmt.Errorf("%w: unknown class %q", ErrInvalidInput, class)
	}

	keys, err := l.stores.Windows.Keys(ctx, class)
	if err != nil {
		return 0, l.storageErr(StoreWindows, "keys", err)
	}

	window, _ := l.config.Load().Limit(class)
	changed := 0

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return changed, err
		}

		ok, err := l.pruneKey(ctx, key, class, window)
		if err != nil {
			return changed, err
		}

		if ok {
			changed++
		}
	}

	return changed, nil
}

func (l *RateLimiter) pruneKey(ctx context.Context, key ClientKey, class Class, window time.Duration) (bool, error) {
	unlock := l.locks.lock(key)
	defer unlock()

	w, err := l.stores.Windows.Load(ctx, key, class)
	if err != nil {
		return false, l.storageErr(StoreWindows, "load", err)
	}

	pruned := w.Prune(l.clock.Now(), window)
	if len(pruned) == len(w) {
		return false, nil
	}

	if err := l.stores.Windows.Save(ctx, key, class, pruned); err != nil {
		return false, l.storageErr(StoreWindows, "save", err)
	}

	return true, nil
}

// Reconfigure atomically replaces the limiter configuration.
func (l *RateLimiter) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c := cfg.clone()
	l.config.Store(&c)

	l.logger.Info("rate limiter reconfigured",
		zap.Duration("standard_window", c.StandardWindow),
		zap.Int("standard_max", c.StandardMaxRequests),
		zap.Duration("scheduled_window", c.ScheduledWindow),
		zap.Int("scheduled_max", c.ScheduledMaxRequests),
		zap.Int64("strike_limit", c.EscalationStrikeLimit),
	)

	return nil
}

// Config returns a copy of the active configuration.
func (l *RateLimiter) Config() Config {
	return l.config.Load().clone()
}

var _ Limiter = (*RateLimiter)(nil)
