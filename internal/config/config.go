package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ServerConfig controls the web server.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	Templates string `toml:"templates"`
}

// StorageConfig points at the persistent files.
type StorageConfig struct {
	HistoryFile string `toml:"history_file"`
	MetricsDB   string `toml:"metrics_db"`
}

// SessionConfig controls session cookies.
type SessionConfig struct {
	Secret   string `toml:"secret"`
	TTLHours int    `toml:"ttl_hours"`
}

// TelegramConfig controls the optional Telegram bot surface.
type TelegramConfig struct {
	ListenAddr     string  `toml:"listen_addr"`
	WebhookURL     string  `toml:"webhook_url"`
	AllowedUserIDs []int64 `toml:"allowed_user_ids"`
}

// Config holds the configuration for the application. The credential table is
// injected here rather than compiled in, so tests can substitute fixtures.
type Config struct {
	Server   ServerConfig      `toml:"server"`
	Storage  StorageConfig     `toml:"storage"`
	Session  SessionConfig     `toml:"session"`
	Users    map[string]string `toml:"users"`
	Telegram TelegramConfig    `toml:"telegram"`

	// Secrets come from the environment only, never from the config file.
	GeminiAPIKey     string `toml:"-"`
	TelegramBotToken string `toml:"-"`
}

// Load reads the TOML config file at path and overlays the environment
// secrets. An empty path skips the file and keeps the defaults. A missing
// GEMINI_API_KEY is not an error here: the completion client degrades to a
// disabled stand-in instead.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			Templates: "./templates",
		},
		Storage: StorageConfig{
			HistoryFile: "meal_plan_history.json",
			MetricsDB:   "data/metrics.db",
		},
		Session: SessionConfig{
			TTLHours: 24,
		},
		Telegram: TelegramConfig{
			ListenAddr: ":8081",
		},
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.Session.Secret == "" {
		cfg.Session.Secret = os.Getenv("SESSION_SECRET")
	}

	return cfg, nil
}

// ValidateWeb checks the settings the web server cannot run without.
func (c *Config) ValidateWeb() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("session secret not set (config [session] secret or SESSION_SECRET environment variable)")
	}
	if len(c.Users) == 0 {
		return fmt.Errorf("no users configured (config [users] table)")
	}
	return nil
}

// ValidateBot checks the settings the Telegram bot cannot run without.
func (c *Config) ValidateBot() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.Telegram.WebhookURL == "" {
		return fmt.Errorf("telegram webhook URL not set (config [telegram] webhook_url)")
	}
	return nil
}
