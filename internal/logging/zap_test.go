package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core))
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	all := logs.All()
	require.Len(t, all, 4)

	assert.Equal(t, zapcore.DebugLevel, all[0].Level)
	assert.Equal(t, "inf", all[1].Message)
	assert.Equal(t, zapcore.WarnLevel, all[2].Level)
	assert.Equal(t, int64(4), all[3].ContextMap()["d"])
}

func TestZapLogger_WithAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core)).With("module", "ingest")

	log.Info(context.Background(), "hello", "k", "v")

	entries := logs.FilterMessage("hello").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ingest", fields["module"])
	assert.Equal(t, "v", fields["k"])
}

func TestNewZap_Environments(t *testing.T) {
	prod, err := NewZap("production")
	require.NoError(t, err)
	assert.False(t, prod.s.Desugar().Core().Enabled(zapcore.DebugLevel))

	dev, err := NewZap("development")
	require.NoError(t, err)
	assert.True(t, dev.s.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestNop_DoesNotPanic(t *testing.T) {
	l := Nop().With("a", 1)
	l.Info(context.Background(), "x")
	l.Error(context.TODO(), "y", "k", "v")
}
