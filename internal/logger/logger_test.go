package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Close()
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "paws.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		logger.Info().Str("tool", "list_pets").Msg("Tool registered")
		logger.Close()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Tool registered")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "chatty"})
		require.NoError(t, err)
		defer logger.Close()

		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
	})
}

func TestRedactionEndToEnd(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "paws.log")

	logger, err := New(Config{Level: "info", File: logFile, Redaction: true})
	require.NoError(t, err)
	require.NotNil(t, logger.redactor)

	logger.Info().
		Str("identity", "+5491122334455").
		Str("token", "EAAGm0PX4ZCpsBO7abcDEFGHijkLMnopQR").
		Msg("Sending reply")
	logger.Close()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "+54...455")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "+5491122334455")
	assert.NotContains(t, out, "EAAGm0PX4ZCps")
}

func TestLoggerMethods(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "paws.log")

	logger, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)
	defer logger.Close()

	for name, event := range map[string]*zerolog.Event{
		"debug": logger.Debug(),
		"info":  logger.Info(),
		"warn":  logger.Warn(),
		"error": logger.Error(),
	} {
		assert.NotNil(t, event, name)
		event.Msg(name + " message")
	}
}

func TestLoggerWith(t *testing.T) {
	logger, err := New(Config{Level: "info"})
	require.NoError(t, err)
	defer logger.Close()

	child := logger.With().Str("component", "webhook").Logger()
	child.Info().Msg("child logger works")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}
