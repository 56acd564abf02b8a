package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := New(Production, "debug")
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = New(Development, "loud")
	assert.Error(t, err)
}

func TestLog_PrefersContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{l: zap.New(core)}

	ctx := NewContext(context.Background(), l)
	ctx = WithRequestID(ctx, "req-1")

	Log(ctx).Info(ctx, "hello", zap.String("k", "v"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, "req-1", entry.ContextMap()[requestIDField])
	assert.Equal(t, "v", entry.ContextMap()["k"])
}

func TestLog_FallsBackToGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetGlobal(&Logger{l: zap.New(core)})
	t.Cleanup(func() { SetGlobal(nil) })

	Log(context.Background()).Warn(context.Background(), "global")
	assert.Equal(t, 1, logs.Len())
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	id := NewRequestID()
	assert.Len(t, id, 36)
	assert.Equal(t, id, RequestID(WithRequestID(context.Background(), id)))
}
