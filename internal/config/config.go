package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hray3182/fakturavakt/internal/logger"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	DatabaseURI      string        `env:"DATABASE_URI"`
	TelegramToken    string        `env:"TELEGRAM_TOKEN"`
	TelegramChatID   int64         `env:"TELEGRAM_CHAT_ID" env-default:"0"`
	AIAPIKey         string        `env:"AI_API_KEY"`
	AIBaseURL        string        `env:"AI_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	AIModel          string        `env:"AI_MODEL" env-default:"openai/gpt-4o-mini"`
	EncryptionKey    string        `env:"STORE_ENCRYPTION_KEY"`
	KeyFile          string        `env:"STORE_KEY_FILE" env-default:"./data/store.key"`
	Timezone         string        `env:"TIMEZONE" env-default:"Europe/Stockholm"`
	ReminderHour     int           `env:"REMINDER_HOUR" env-default:"9"`
	DispatchInterval time.Duration `env:"DISPATCH_INTERVAL" env-default:"1m"`
	AttachmentDir    string        `env:"ATTACHMENT_DIR" env-default:"./data/attachments"`
	DefaultCurrency  string        `env:"DEFAULT_CURRENCY" env-default:"SEK"`
	Log              LogConfig
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" env-default:"info"`
	Format     string `env:"LOG_FORMAT" env-default:"console"`
	Output     string `env:"LOG_OUTPUT" env-default:"stdout"`
	TimeFormat string `env:"LOG_TIME_FORMAT" env-default:"2006-01-02T15:04:05Z07:00"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ReminderHour < 0 || c.ReminderHour > 23 {
		return fmt.Errorf("REMINDER_HOUR must be between 0 and 23 (got %d)", c.ReminderHour)
	}
	if c.DispatchInterval <= 0 {
		return fmt.Errorf("DISPATCH_INTERVAL must be positive (got %s)", c.DispatchInterval)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	if len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code (got %q)", c.DefaultCurrency)
	}
	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if c.EncryptionKey != "" {
		if _, err := c.Key(); err != nil {
			return err
		}
	}
	return nil
}

// RequireDatabase reports a missing DATABASE_URI. Only commands that touch
// storage call it, so `parse` works without a database.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURI == "" {
		return errors.New("DATABASE_URI is required")
	}
	return nil
}

func (c *Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Location returns the configured time zone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Key decodes STORE_ENCRYPTION_KEY. A nil key means none was configured.
func (c *Config) Key() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("STORE_ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("STORE_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (c *Config) AIEnabled() bool {
	return c.AIAPIKey != ""
}

func (l LogConfig) Logger() logger.LogConfig {
	return logger.LogConfig{
		Level:      l.Level,
		Format:     l.Format,
		TimeFormat: l.TimeFormat,
		Output:     l.Output,
	}
}

// LogConfig writes the effective configuration without secrets.
func (c *Config) LogConfig(log zerolog.Logger) {
	log.Info().
		Bool("database", c.DatabaseURI != "").
		Bool("telegram", c.TelegramToken != "").
		Int64("chat_id", c.TelegramChatID).
		Bool("ai", c.AIEnabled()).
		Str("ai_model", c.AIModel).
		Bool("encryption_key", c.EncryptionKey != "").
		Str("timezone", c.Timezone).
		Int("reminder_hour", c.ReminderHour).
		Dur("dispatch_interval", c.DispatchInterval).
		Str("attachment_dir", c.AttachmentDir).
		Str("key_file", c.KeyFile).
		Str("currency", c.DefaultCurrency).
		Msg("Configuration loaded")
}
