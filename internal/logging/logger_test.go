package logging

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
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseLevel(tc.in), tc.in)
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	l := New(Config{Env: "prod", Level: "warn", ServiceName: "gateway"})
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	dev := New(Config{Env: "dev", Level: "debug"})
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "****", Redact("abc"))
	assert.Equal(t, "****wxyz", Redact("secret-token-wxyz"))
}
