package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestLoggerEmitsFields(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)

	log.Info("batch accepted",
		String("batch_id", "b-1"),
		Int("rows", 42),
		Bool("existing", false),
		Duration("elapsed", 3*time.Second),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "batch accepted", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "b-1", fields["batch_id"])
	assert.Equal(t, int64(42), fields["rows"])
	assert.Equal(t, false, fields["existing"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	log, logs := observed(zapcore.WarnLevel)

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept")

	assert.Equal(t, 2, logs.Len())
}

func TestWithPropagatesFields(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	child := log.With(String("component", "batcher"))
	child.Info("cycle start")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "batcher", logs.All()[0].ContextMap()["component"])
}

func TestErrField(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	log.Error("call failed", Err(errors.New("engine unreachable")))
	log.Error("no cause", Err(nil))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "engine unreachable", logs.All()[0].ContextMap()["error"])
	assert.Equal(t, "<nil>", logs.All()[1].ContextMap()["error"])
}

func TestNamed(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	log.Named("ingestion").Info("ready")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ingestion", logs.All()[0].LoggerName)
}

func TestNopLoggerIsSilentAndChainable(t *testing.T) {
	log := NewNopLogger()
	assert.NotPanics(t, func() {
		log.With(String("k", "v")).Named("x").Info("ignored")
	})
}

func TestDefaultLogger(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	log, logs := observed(zapcore.InfoLevel)
	SetDefault(log)
	Default().Info("via default")

	assert.Equal(t, 1, logs.Len())

	// nil is ignored rather than clearing the default.
	SetDefault(nil)
	assert.NotNil(t, Default())
}

func TestNewLoggerDefaults(t *testing.T) {
	log, err := NewLogger(Config{})
	require.NoError(t, err)
	assert.NotNil(t, log)
}
