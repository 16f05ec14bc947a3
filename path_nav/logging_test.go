package path_nav

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(LoggerConfig{Level: "info", Format: "json", ServiceName: "pathnav"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("navigation started", zap.Int("waypoints", 3))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"logger":"pathnav"`)
	assert.Contains(t, out, `"msg":"navigation started"`)
	assert.Contains(t, out, `"waypoints":3`)
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(LoggerConfig{Level: "debug", Format: "console"}, zapcore.AddSync(&buf))
	require.NoError(t, err)
	logger.Debug("cycle", zap.Float64("distance", 1.5))
	require.NoError(t, logger.Sync())
	assert.Contains(t, buf.String(), "cycle")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
}

func TestNewLogger_TeesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "pathnav.log")
	var buf bytes.Buffer
	logger, err := newLogger(LoggerConfig{Level: "info", Format: "console", LogFile: file, MaxSize: 1}, zapcore.AddSync(&buf))
	require.NoError(t, err)
	logger.Warn("stall detected")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"stall detected"`)
	assert.Contains(t, buf.String(), "stall detected")
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "loud"})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "logger.level", cerr.Field)
}
