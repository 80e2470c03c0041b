package config

import (
	"encoding/json"
	"fmt"
)

// Config is the main Paws configuration.
type Config struct {
	// WhatsApp Cloud API credentials
	WhatsApp WhatsAppConfig `json:"whatsapp" mapstructure:"whatsapp"`

	// Model provider settings
	Model ModelConfig `json:"model" mapstructure:"model"`

	// Session store settings
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Webhook server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Records API collaborator
	Records RecordsConfig `json:"records" mapstructure:"records"`

	// Clinic search collaborator
	Clinics ClinicsConfig `json:"clinics" mapstructure:"clinics"`

	// System prompt settings
	Prompt PromptConfig `json:"prompt" mapstructure:"prompt"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// WhatsAppConfig holds Cloud API credentials.
type WhatsAppConfig struct {
	VerifyToken   string `json:"verify_token" mapstructure:"verify_token"`
	AppSecret     string `json:"app_secret" mapstructure:"app_secret"`
	PhoneNumberID string `json:"phone_number_id" mapstructure:"phone_number_id"`
	AccessToken   string `json:"access_token" mapstructure:"access_token"`
	GraphBaseURL  string `json:"graph_base_url" mapstructure:"graph_base_url"`
}

// ModelConfig holds model provider settings.
type ModelConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" mapstructure:"model"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxRounds   int     `json:"max_rounds" mapstructure:"max_rounds"`
	MaxRetries  int     `json:"max_retries" mapstructure:"max_retries"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	Path             string `json:"path" mapstructure:"path"`
	TTLHours         int    `json:"ttl_hours" mapstructure:"ttl_hours"`
	MarkerTTLMinutes int    `json:"marker_ttl_minutes" mapstructure:"marker_ttl_minutes"`
	MaxTurns         int    `json:"max_turns" mapstructure:"max_turns"`
	SweepSchedule    string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// ServerConfig holds webhook server settings.
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	HandlerTimeoutSecs int    `json:"handler_timeout_seconds" mapstructure:"handler_timeout_seconds"`
}

// RecordsConfig holds the records API collaborator settings. An empty
// base URL disables the pet, consultation, and vaccine tools.
type RecordsConfig struct {
	BaseURL     string `json:"base_url" mapstructure:"base_url"`
	Token       string `json:"token" mapstructure:"token"`
	TimeoutSecs int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ClinicsConfig holds the clinic search collaborator settings. An empty
// base URL disables the find_clinics tool.
type ClinicsConfig struct {
	BaseURL     string `json:"base_url" mapstructure:"base_url"`
	APIKey      string `json:"api_key" mapstructure:"api_key"`
	TimeoutSecs int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// PromptConfig holds system prompt settings.
type PromptConfig struct {
	Path  string `json:"path" mapstructure:"path"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   1024,
			Temperature: 0.7,
			MaxRounds:   3,
			MaxRetries:  3,
		},
		Session: SessionConfig{
			TTLHours:         6,
			MarkerTTLMinutes: 60,
			MaxTurns:         12,
			SweepSchedule:    "@every 1m",
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               3001,
			RateLimitPerMinute: 60,
			HandlerTimeoutSecs: 120,
		},
		Prompt: PromptConfig{
			Watch: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Model.APIKey == "" {
		return fmt.Errorf("model api_key is required")
	}
	if c.Model.Provider != "anthropic" && c.Model.Provider != "openai" {
		return fmt.Errorf("invalid model provider %s (must be: anthropic, openai)", c.Model.Provider)
	}
	if c.Model.Model == "" {
		return fmt.Errorf("model name is required")
	}

	if c.WhatsApp.VerifyToken == "" {
		return fmt.Errorf("whatsapp verify_token is required")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp phone_number_id is required")
	}
	if c.WhatsApp.AccessToken == "" {
		return fmt.Errorf("whatsapp access_token is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Records.BaseURL != "" && c.Records.Token == "" {
		return fmt.Errorf("records token is required when records base_url is set")
	}
	if c.Clinics.BaseURL != "" && c.Clinics.APIKey == "" {
		return fmt.Errorf("clinics api_key is required when clinics base_url is set")
	}

	return nil
}
