// Package config manages application configuration from a YAML file,
// BOT_* environment variables, and default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the bot.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot transport settings.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

// DatabaseConfig holds the SQLite database settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RateLimitConfig controls the per-user cooldown gate.
type RateLimitConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown" validate:"required,min=1s"`
}

// EndpointConfig describes one OpenAI-compatible answer endpoint.
type EndpointConfig struct {
	Name           string        `mapstructure:"name"            validate:"required"`
	BaseURL        string        `mapstructure:"base_url"        validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"           validate:"required"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"required,min=100ms"`
	TotalTimeout   time.Duration `mapstructure:"total_timeout"   validate:"required,min=1s"`
	MaxRetries     int           `mapstructure:"max_retries"     validate:"min=0,max=10"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"    validate:"required,min=100ms"`
}

// GeminiConfig describes the optional Gemini answer backend. The provider is
// only constructed when an API key is set.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// ProvidersConfig groups all answer backends and the shared system prompt.
type ProvidersConfig struct {
	SystemPrompt string           `mapstructure:"system_prompt" validate:"required"`
	Endpoints    []EndpointConfig `mapstructure:"endpoints"     validate:"required,min=1,dive"`
	Gemini       GeminiConfig     `mapstructure:"gemini"`
}

// DeliveryConfig controls how oversized replies are split and paced.
type DeliveryConfig struct {
	MaxChunkSize int           `mapstructure:"max_chunk_size" validate:"required,min=1"`
	PaceInterval time.Duration `mapstructure:"pace_interval"  validate:"required,min=100ms"`
}

// TaskConfig describes one scheduled task entry.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig holds the scheduled task table, keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// MessagesConfig holds the user-facing reply templates.
type MessagesConfig struct {
	Welcome      string `mapstructure:"welcome"       validate:"required"`
	Processing   string `mapstructure:"processing"    validate:"required"`
	EmptyMessage string `mapstructure:"empty_message" validate:"required"`
	Cooldown     string `mapstructure:"cooldown"      validate:"required"`
	AllFailed    string `mapstructure:"all_failed"    validate:"required"`
	GeneralError string `mapstructure:"general_error" validate:"required"`
}

// LoadConfig reads configuration from the given YAML file path, applies
// defaults and BOT_* environment overrides, and validates the result.
// A missing config file is not an error; defaults and env vars still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Viper defaults do not reach into slice elements, so endpoint
	// timeouts and retry settings are filled in here before validation.
	// Zero durations are invalid and always mean unset; max_retries: 0 is a
	// legal setting (no retries), so only a truly absent key gets the default.
	for i := range cfg.Providers.Endpoints {
		ep := &cfg.Providers.Endpoints[i]
		if ep.ConnectTimeout == 0 {
			ep.ConnectTimeout = DefaultConnectTimeout
		}
		if ep.TotalTimeout == 0 {
			ep.TotalTimeout = DefaultTotalTimeout
		}
		if ep.MaxRetries == 0 && !v.IsSet(fmt.Sprintf("providers.endpoints.%d.max_retries", i)) {
			ep.MaxRetries = DefaultMaxRetries
		}
		if ep.BackoffBase == 0 {
			ep.BackoffBase = DefaultBackoffBase
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}
