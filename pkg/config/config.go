// Package config loads PostPilot configuration from a JSON file with
// environment-variable fallbacks for provider credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the PostPilot configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	AI       AIConfig       `json:"ai"`
	Tasks    TasksConfig    `json:"tasks"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// AIConfig contains provider selection and per-provider settings
type AIConfig struct {
	DefaultProvider string                    `json:"default_provider"`
	Providers       map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig contains one provider's credentials and model override.
// A missing API key is not a configuration error: it only surfaces when the
// provider makes its first network call.
type ProviderConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// TasksConfig contains background task execution settings
type TasksConfig struct {
	Workers          int `json:"workers"`
	MaxRetries       int `json:"max_retries"`
	RetryBackoffSecs int `json:"retry_backoff_seconds"`
	StaleAfterMins   int `json:"stale_after_minutes"`
}

// RetryBackoff returns the base backoff between task retries.
func (t TasksConfig) RetryBackoff() time.Duration {
	return time.Duration(t.RetryBackoffSecs) * time.Second
}

// StaleAfter returns the processing-staleness window used by the reaper.
func (t TasksConfig) StaleAfter() time.Duration {
	return time.Duration(t.StaleAfterMins) * time.Minute
}

// envAPIKeys maps provider keys to their conventional environment variables.
var envAPIKeys = map[string][]string{
	"openai": {"OPENAI_API_KEY"},
	"grok":   {"GROK_API_KEY", "XAI_API_KEY"},
	"gemini": {"GEMINI_API_KEY", "GOOGLE_AI_API_KEY"},
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadDefault attempts to load .postpilot.json from current directory or
// home, falling back to a default config built purely from the environment.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(".postpilot.json"); err == nil {
		return Load(".postpilot.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homePath := filepath.Join(home, ".postpilot.json")
		if _, err := os.Stat(homePath); err == nil {
			return Load(homePath)
		}
	}

	config := &Config{}
	config.setDefaults()
	return config, nil
}

// Provider returns the settings for the given provider key, pulling the API
// key from the environment when the config file leaves it blank.
func (c *Config) Provider(key string) ProviderConfig {
	pc := c.AI.Providers[key]
	if pc.APIKey == "" {
		for _, env := range envAPIKeys[key] {
			if v := os.Getenv(env); v != "" {
				pc.APIKey = v
				break
			}
		}
	}
	return pc
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.AI.DefaultProvider == "" {
		c.AI.DefaultProvider = "openai"
	}
	if c.AI.Providers == nil {
		c.AI.Providers = make(map[string]ProviderConfig)
	}

	if c.Tasks.Workers == 0 {
		c.Tasks.Workers = 4
	}
	if c.Tasks.MaxRetries == 0 {
		c.Tasks.MaxRetries = 3
	}
	if c.Tasks.RetryBackoffSecs == 0 {
		c.Tasks.RetryBackoffSecs = 60
	}
	if c.Tasks.StaleAfterMins == 0 {
		c.Tasks.StaleAfterMins = 5
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Tasks.Workers < 1 {
		return fmt.Errorf("invalid worker count: %d (minimum 1)", c.Tasks.Workers)
	}
	if c.Tasks.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d", c.Tasks.MaxRetries)
	}
	return nil
}
