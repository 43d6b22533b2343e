package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestHelpersWithoutInit(t *testing.T) {
	prev := Log
	Log = nil
	t.Cleanup(func() { Log = prev })

	assert.NotPanics(t, func() {
		Info("hello")
		Debug("hello")
		Warn("hello")
		Error("hello")
		_ = With()
	})
	assert.NotNil(t, L())
}

func TestInitLogger(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	t.Setenv("LOG_LEVEL", "warn")
	InitLogger("prod")
	if assert.NotNil(t, Log) {
		assert.False(t, Log.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, Log.Core().Enabled(zapcore.WarnLevel))
	}

	InitLoggerWithOptions(Options{Level: "debug", Stage: "local", Color: true})
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
}
