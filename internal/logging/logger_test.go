package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := New("prod", "warn")
	require.NoError(t, err)
	assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(zap.InfoLevel))
	assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zap.WarnLevel))

	_, err = New("dev", "chatty")
	assert.Error(t, err)
}

func TestRedaction(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("calling provider", "api_key", "sk-123", "model", "m1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "m1", fields["model"])
}

func TestWithKeepsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("run_id", "r1")
	l.Warn("stage failed", "stage", "embed")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "r1", fields["run_id"])
	assert.Equal(t, "embed", fields["stage"])
}
