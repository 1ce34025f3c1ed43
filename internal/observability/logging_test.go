package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/config"
)

func TestLoggerConfigDefaults(t *testing.T) {
	cfg := loggerConfig(config.LoggerConfig{Level: "bogus"}, config.AppConfig{Name: "change-service", Version: "1.4.0", Env: "staging"})
	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, zap.InfoLevel, cfg.Level.Level())
	assert.True(t, cfg.DisableStacktrace)
	assert.Equal(t, map[string]interface{}{
		"service": "change-service",
		"version": "1.4.0",
		"env":     "staging",
	}, cfg.InitialFields)
}

func TestLoggerConfigConsoleDebug(t *testing.T) {
	cfg := loggerConfig(config.LoggerConfig{Level: " DEBUG ", Format: "Console", Development: true}, config.AppConfig{})
	assert.Equal(t, "console", cfg.Encoding)
	assert.Equal(t, zap.DebugLevel, cfg.Level.Level())
	assert.False(t, cfg.DisableStacktrace)
	assert.Empty(t, cfg.InitialFields)
}

func TestNewLoggerBuilds(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "warn"}, config.AppConfig{Name: "change-service"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}
