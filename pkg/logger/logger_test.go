package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLoggerWithOutput(LogWarn, &buf)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	assert.Equal(t, "[WARN] warn 3\n[ERROR] error 4\n", buf.String())

	buf.Reset()
	l.SetLevel(LogDebug)
	assert.Equal(t, LogDebug, l.GetLevel())
	l.Debug("now visible")
	assert.Equal(t, "[DEBUG] now visible\n", buf.String())
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NewNoOpLogger()
	l.Error("nothing")
	l.SetLevel(LogDebug)
	assert.Equal(t, LogInfo, l.GetLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogDebug},
		{"INFO", LogInfo},
		{"", LogInfo},
		{"warning", LogWarn},
		{"Error", LogError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestZapLogger_Observer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLoggerWithCore(core, LogInfo)

	l.Debug("hidden")
	l.Info("factory %s created", "f1")
	l.Warn("careful")
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "factory f1 created", logs.All()[0].Message)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)

	l.SetLevel(LogDebug)
	assert.Equal(t, LogDebug, l.GetLevel())
	l.Named("session").Debug("visible")
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, "session", logs.All()[2].LoggerName)
}

func TestNew(t *testing.T) {
	l, err := New("debug", "")
	require.NoError(t, err)
	assert.IsType(t, &DefaultLogger{}, l)
	assert.Equal(t, LogDebug, l.GetLevel())

	l, err = New("info", "none")
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, l)

	l, err = New("warn", "json")
	require.NoError(t, err)
	assert.IsType(t, &ZapLogger{}, l)
	assert.Equal(t, LogWarn, l.GetLevel())

	_, err = New("info", "xml")
	assert.Error(t, err)
	_, err = New("loud", "json")
	assert.Error(t, err)
}
