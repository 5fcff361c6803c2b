package config

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test in an empty directory so no stray .env is read.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATABASE_URI", "postgres://u:p@localhost:5432/fakturavakt")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost:5432/fakturavakt", cfg.DatabaseURI)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.AIBaseURL)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.AIModel)
	assert.Equal(t, "Europe/Stockholm", cfg.Timezone)
	assert.Equal(t, 9, cfg.ReminderHour)
	assert.Equal(t, time.Minute, cfg.DispatchInterval)
	assert.Equal(t, "SEK", cfg.DefaultCurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.AIEnabled())
	assert.Equal(t, "Europe/Stockholm", cfg.Location().String())
}

func TestLoad_Overrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TELEGRAM_CHAT_ID", "12345")
	t.Setenv("REMINDER_HOUR", "7")
	t.Setenv("DISPATCH_INTERVAL", "30s")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(12345), cfg.TelegramChatID)
	assert.Equal(t, 7, cfg.ReminderHour)
	assert.Equal(t, 30*time.Second, cfg.DispatchInterval)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.True(t, cfg.AIEnabled())
	assert.Equal(t, "json", cfg.Log.Logger().Format)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile(".env", []byte("AI_MODEL=local/llama\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("AI_MODEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "local/llama", cfg.AIModel)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Timezone:         "UTC",
			ReminderHour:     9,
			DispatchInterval: time.Minute,
			DefaultCurrency:  "SEK",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"hour too large", func(c *Config) { c.ReminderHour = 24 }, "REMINDER_HOUR"},
		{"zero interval", func(c *Config) { c.DispatchInterval = 0 }, "DISPATCH_INTERVAL"},
		{"unknown zone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "TIMEZONE"},
		{"bad currency", func(c *Config) { c.DefaultCurrency = "KRONOR" }, "DEFAULT_CURRENCY"},
		{"key not base64", func(c *Config) { c.EncryptionKey = "!!!" }, "base64"},
		{"short key", func(c *Config) { c.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short")) }, "32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())
}

func TestKey(t *testing.T) {
	cfg := Config{}
	key, err := cfg.Key()
	require.NoError(t, err)
	assert.Nil(t, key)

	raw := []byte(strings.Repeat("k", 32))
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString(raw)
	key, err = cfg.Key()
	require.NoError(t, err)
	assert.Equal(t, raw, key)
}

func TestRequire(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.RequireDatabase())
	assert.Error(t, cfg.RequireTelegram())

	cfg.DatabaseURI = "postgres://localhost"
	cfg.TelegramToken = "123:abc"
	assert.NoError(t, cfg.RequireDatabase())
	assert.NoError(t, cfg.RequireTelegram())
}
