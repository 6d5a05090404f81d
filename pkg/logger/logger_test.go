package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewDefaults(t *testing.T) {
	log := New(Config{})
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewProduction(t *testing.T) {
	log := New(Config{
		Environment: "production",
		LogLevel:    "warn",
		ServiceName: "empire-monitor",
	})
	require.NotNil(t, log)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{name: "debug", level: "debug", want: zapcore.DebugLevel},
		{name: "info", level: "info", want: zapcore.InfoLevel},
		{name: "warn", level: "warn", want: zapcore.WarnLevel},
		{name: "error", level: "error", want: zapcore.ErrorLevel},
		{name: "unknown falls back to info", level: "verbose", want: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getLogLevel(tt.level).Level())
		})
	}
}

func TestComponent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Component(zap.New(core), "dispatcher")

	log.Info("packet routed")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "dispatcher", entries[0].ContextMap()["component"])
}

func TestComponentEmptyName(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Component(zap.New(core), "")

	log.Info("bare")

	entries := logs.All()
	require.Len(t, entries, 1)
	_, tagged := entries[0].ContextMap()["component"]
	assert.False(t, tagged)
}
