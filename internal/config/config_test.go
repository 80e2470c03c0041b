package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Model.APIKey = "sk-test"
	cfg.WhatsApp.VerifyToken = "verify"
	cfg.WhatsApp.PhoneNumberID = "12345"
	cfg.WhatsApp.AccessToken = "token"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, 3, cfg.Model.MaxRounds)
	assert.Equal(t, 6, cfg.Session.TTLHours)
	assert.Equal(t, 12, cfg.Session.MaxTurns)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
}

func TestValidate(t *testing.T) {
	t.Run("accepts a complete config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("requires a model api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Model.APIKey = ""
		assert.ErrorContains(t, cfg.Validate(), "api_key")
	})

	t.Run("rejects an unknown provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Model.Provider = "gemini"
		assert.ErrorContains(t, cfg.Validate(), "provider")
	})

	t.Run("requires whatsapp credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.WhatsApp.VerifyToken = ""
		assert.ErrorContains(t, cfg.Validate(), "verify_token")

		cfg = validConfig()
		cfg.WhatsApp.AccessToken = ""
		assert.ErrorContains(t, cfg.Validate(), "access_token")
	})

	t.Run("rejects an invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = -1
		assert.ErrorContains(t, cfg.Validate(), "port")
	})

	t.Run("requires a records token with a records url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Records.BaseURL = "https://records.example.com"
		assert.ErrorContains(t, cfg.Validate(), "records token")

		cfg.Records.Token = "secret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("requires a clinics key with a clinics url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Clinics.BaseURL = "https://clinics.example.com"
		assert.ErrorContains(t, cfg.Validate(), "clinics api_key")
	})
}

func TestConfigString(t *testing.T) {
	cfg := validConfig()
	out := cfg.String()

	require.NotEmpty(t, out)
	assert.Contains(t, out, `"provider": "anthropic"`)
}
