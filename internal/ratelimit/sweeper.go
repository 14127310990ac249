package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Pruner removes expired window entries for a class.
type Pruner interface {
	PruneAll(ctx context.Context, class Class) (int, error)
}

// Sweeper periodically prunes the windows of every class to bound storage
// growth. Request handling never depends on it.
type Sweeper struct {
	pruner   Pruner
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(pruner Pruner, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		pruner:   pruner,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("sweep interval must be positive")
	}

	ctx, s.cancel = context.WithCancel(ctx)

	go s.loop(ctx)

	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep prunes every class once.
func (s *Sweeper) Sweep(ctx context.Context) {
	for _, class := range Classes() {
		changed, err := s.pruner.PruneAll(ctx, class)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("window sweep failed",
					zap.String("class", string(class)),
					zap.Error(err),
				)
			}

			continue
		}

		if changed > 0 {
			s.logger.Debug("window sweep pruned",
				zap.String("class", string(class)),
				zap.Int("changed", changed),
			)
		}
	}
}

// Shutdown stops the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Shutdown() error {
	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done

	return nil
}
