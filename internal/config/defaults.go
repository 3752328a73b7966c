package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for optional configuration parameters.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultDBPath = "bot_data.db"

	DefaultCooldown = 10 * time.Second

	DefaultConnectTimeout = 5 * time.Second
	DefaultTotalTimeout   = 15 * time.Second
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = time.Second

	DefaultGeminiModel      = "gemini-2.0-flash"
	DefaultGeminiRetries    = 2
	DefaultGeminiRetryDelay = 2 * time.Second

	DefaultMaxChunkSize = 4000
	DefaultPaceInterval = 500 * time.Millisecond

	DefaultSystemPrompt = "You are a question answering bot. Answer clearly and concisely."
)

// Default user-facing messages. Welcome is a format string: %s takes the
// user's first name, %d the cooldown window in seconds.
var DefaultMessages = MessagesConfig{
	Welcome:      "👋 Hi %s, welcome! Send me any question and I'll fetch an answer for you. You can send one message every %d seconds. Use /stats to see your usage.",
	Processing:   "⏳ Processing... please wait",
	EmptyMessage: "⚠️ Please send a valid message.",
	Cooldown:     "⏳ Please wait a moment before sending another message.",
	AllFailed:    "❌ Failed to get a response from the answer servers.",
	GeneralError: "❌ Something went wrong. Please try again later.",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("rate_limit.cooldown", DefaultCooldown)

	v.SetDefault("providers.system_prompt", DefaultSystemPrompt)
	v.SetDefault("providers.gemini.model", DefaultGeminiModel)
	v.SetDefault("providers.gemini.max_retries", DefaultGeminiRetries)
	v.SetDefault("providers.gemini.retry_delay", DefaultGeminiRetryDelay)

	v.SetDefault("delivery.max_chunk_size", DefaultMaxChunkSize)
	v.SetDefault("delivery.pace_interval", DefaultPaceInterval)

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.processing", DefaultMessages.Processing)
	v.SetDefault("messages.empty_message", DefaultMessages.EmptyMessage)
	v.SetDefault("messages.cooldown", DefaultMessages.Cooldown)
	v.SetDefault("messages.all_failed", DefaultMessages.AllFailed)
	v.SetDefault("messages.general_error", DefaultMessages.GeneralError)
}
