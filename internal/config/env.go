package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvOverrides carries the values that are allowed to come from the
// environment. Secrets stay out of Settings.ini this way; a .env file in
// the working directory is honored when present.
type EnvOverrides struct {
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID" default:""`
	LogLevel         string `envconfig:"LOG_LEVEL" default:""`
	MacroConfigPath  string `envconfig:"MACRO_CONFIG" default:""`
	DebugMatching    bool   `envconfig:"DEBUG_MATCHING" default:"false"`
}

// LoadEnvOverrides reads KTX_-prefixed environment variables, loading a
// .env file first when one exists
func LoadEnvOverrides() (*EnvOverrides, error) {
	_ = godotenv.Load()

	var overrides EnvOverrides
	if err := envconfig.Process("KTX", &overrides); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}
	return &overrides, nil
}

// Apply lays the environment overrides over file-based settings. Empty
// values leave the file's setting in place.
func (o *EnvOverrides) Apply(settings *Settings) {
	if o.TelegramBotToken != "" {
		settings.TelegramBotToken = o.TelegramBotToken
	}
	if o.TelegramChatID != "" {
		settings.TelegramChatID = o.TelegramChatID
	}
	if o.LogLevel != "" {
		settings.LogLevel = o.LogLevel
	}
	if o.MacroConfigPath != "" {
		settings.MacroConfigPath = o.MacroConfigPath
	}
	if o.DebugMatching {
		settings.DebugMatching = true
	}
}
