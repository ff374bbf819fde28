package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "todo.toml"
	DefaultDatabaseURL    = "todo.db"
)

// Config keeps runtime settings for the app.
type Config struct {
	DatabaseURL    string   `toml:"database_url"`
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID int64    `toml:"telegram_chat_id"`
	PollInterval   Duration `toml:"poll_interval"`
	DigestAt       string   `toml:"digest_at"`
	MaxAttempts    int      `toml:"max_attempts"`
	Workers        int      `toml:"workers"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`
}

// Duration is a time.Duration that reads "30s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DatabaseURL:  DefaultDatabaseURL,
		PollInterval: Duration{time.Second},
		MaxAttempts:  3,
		Workers:      2,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads defaults, then the optional TOML file at path, then environment
// variables, and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = DefaultDatabaseURL
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.DigestAt != "" {
		if _, _, err := ParseClock(c.DigestAt); err != nil {
			return err
		}
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}

func applyEnv(cfg *Config) error {
	if v := env("TODO_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := env("TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := env("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}
	if v := env("TODO_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TODO_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = Duration{d}
	}
	if v, ok := os.LookupEnv("TODO_DIGEST_AT"); ok {
		cfg.DigestAt = strings.TrimSpace(v)
	}
	if v := env("TODO_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TODO_MAX_ATTEMPTS: %w", err)
		}
		cfg.MaxAttempts = n
	}
	if v := env("TODO_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TODO_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := env("TODO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := env("TODO_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
