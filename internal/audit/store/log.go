package store

import (
	"context"

	"github.com/serroba/ipguard/internal/audit"
	"go.uber.org/zap"
)

// Log is an audit.Store that writes events to the logger.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging audit store.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) SaveBlocked(_ context.Context, event *audit.BlockedEvent) error {
	l.logger.Info("client blocked event received",
		zap.String("id", event.ID),
		zap.String("clientKey", event.ClientKey),
		zap.String("class", event.Class),
		zap.String("reason", event.Reason),
		zap.Int64("violations", event.Violations),
		zap.Time("blockedAt", event.BlockedAt),
	)

	return nil
}

var _ audit.Store = (*Log)(nil)
