package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"killrelay/pkg/logging"
)

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))
	l.SetServiceName("routing-service")

	ctx := logging.WithKillID(logging.WithTraceID(context.Background(), "abc"), 42)
	l.InfowCtx(ctx, "Routed killmail", "decisions", 2)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "abc", fields["trace_id"])
	assert.Equal(t, uint64(42), fields["kill_id"])
	assert.Equal(t, "routing-service", fields["service_name"])
	assert.Equal(t, int64(2), fields["decisions"])
}

func TestContextServiceNameWins(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))
	l.SetServiceName("fallback")

	l.WarnwCtx(logging.WithServiceName(context.Background(), "ingest-service"), "Feed poll failed")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ingest-service", logs.All()[0].ContextMap()["service_name"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestNewWithFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := NewWithFormat("info", format)
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
}
