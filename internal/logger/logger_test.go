package logger

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	tests := []struct {
		name     string
		verbose  bool
		expected log.Level
	}{
		{"quiet by default", false, log.WarnLevel},
		{"verbose shows debug", true, log.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(&bytes.Buffer{}, tt.verbose)
			assert.Equal(t, tt.expected, l.GetLevel())
		})
	}
}

func TestLogLevelEnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "ERROR")
	l := New(&bytes.Buffer{}, true)
	assert.Equal(t, log.ErrorLevel, l.GetLevel())

	t.Setenv("LOG_LEVEL", "bogus")
	l = New(&bytes.Buffer{}, true)
	assert.Equal(t, log.DebugLevel, l.GetLevel())
}

func TestQuietModeDropsDebug(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	var buf bytes.Buffer
	l := New(&buf, false)
	l.Debug("grab attempt")
	assert.Empty(t, buf.String())

	l.Error("grab rejected", "reason", "not viewable")
	assert.Contains(t, buf.String(), "grab rejected")
	assert.Contains(t, buf.String(), "hhpc")
}
