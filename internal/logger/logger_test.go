package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"trace", LevelDebug},
		{"info", LevelInfo},
		{" INFO ", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"off", LevelNone},
		{"invalid", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "NONE", LevelNone.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestNewLoggerWritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "wsserial.log")

	l, err := New(LevelInfo, logPath, "test")
	require.NoError(t, err)

	l.Info("opened %s", "/dev/ttyUSB0")
	l.Debug("should not appear")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "[INFO] [test] opened /dev/ttyUSB0")
	assert.NotContains(t, text, "should not appear")
}

func TestWithPrefixSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(LevelInfo, &buf, "wsserial")
	child := parent.WithPrefix("arbiter")

	child.Debug("hidden")
	parent.SetLevel(LevelDebug)
	child.Debug("visible")

	text := buf.String()
	assert.NotContains(t, text, "hidden")
	assert.Contains(t, text, "[wsserial:arbiter] visible")
}

func TestLevelNoneDiscards(t *testing.T) {
	l, err := New(LevelNone, "", "test")
	require.NoError(t, err)
	defer l.Close()

	l.Error("nothing")
	assert.Equal(t, LevelNone, l.GetLevel())
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelInfo, &buf, "http")

	sl := slog.New(NewSlogHandler(l)).WithGroup("conn").With("remote", "127.0.0.1")
	sl.Debug("dropped")
	sl.Warn("handshake failed", "status", 400)

	text := buf.String()
	assert.NotContains(t, text, "dropped")
	assert.Contains(t, text, "[WARN] [http] handshake failed conn.remote=127.0.0.1 conn.status=400")
}

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelDebug, &buf, "")

	StdLogger(l, slog.LevelError).Print("http: TLS handshake error")
	assert.True(t, strings.Contains(buf.String(), "[ERROR] http: TLS handshake error"), buf.String())
}

func TestGlobalLogger(t *testing.T) {
	require.NotNil(t, Global())

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
}
