package messaging_test

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/serroba/ipguard/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := messaging.NewZapLogger(zap.New(core)).With(watermill.LogFields{"topic": "test.topic"})

	logger.Info("subscribed", watermill.LogFields{"consumer_group": "audit"})
	logger.Trace("polling", nil)
	logger.Error("read failed", errors.New("boom"), nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "test.topic", entries[0].ContextMap()["topic"])
	assert.Equal(t, "audit", entries[0].ContextMap()["consumer_group"])

	assert.Equal(t, zapcore.DebugLevel, entries[1].Level, "trace maps to debug")

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}
