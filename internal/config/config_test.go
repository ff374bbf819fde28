package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TODO_DATABASE_URL", "TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "TODO_POLL_INTERVAL",
		"TODO_DIGEST_AT", "TODO_MAX_ATTEMPTS", "TODO_WORKERS", "TODO_LOG_LEVEL", "TODO_LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DatabaseURL != DefaultDatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, DefaultDatabaseURL)
	}
	if cfg.PollInterval.Duration != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval.Duration)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.DigestAt != "" {
		t.Errorf("DigestAt = %q, want empty", cfg.DigestAt)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), DefaultConfigFileName)
	content := `
database_url = "data/tasks.db"
poll_interval = "250ms"
digest_at = "08:30"
workers = 4
log_format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TODO_WORKERS", "6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "data/tasks.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.PollInterval.Duration != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval.Duration)
	}
	if cfg.DigestAt != "08:30" {
		t.Errorf("DigestAt = %q", cfg.DigestAt)
	}
	if cfg.Workers != 6 {
		t.Errorf("Workers = %d, env should win over file", cfg.Workers)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"token without chat", map[string]string{"TELEGRAM_TOKEN": "abc"}, "TELEGRAM_CHAT_ID"},
		{"bad chat id", map[string]string{"TELEGRAM_CHAT_ID": "me"}, "TELEGRAM_CHAT_ID"},
		{"bad digest", map[string]string{"TODO_DIGEST_AT": "25:00"}, "invalid hour"},
		{"zero attempts", map[string]string{"TODO_MAX_ATTEMPTS": "0"}, "max attempts"},
		{"bad poll", map[string]string{"TODO_POLL_INTERVAL": "soon"}, "TODO_POLL_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("07:05")
	if err != nil || h != 7 || m != 5 {
		t.Fatalf("ParseClock = %d, %d, %v", h, m, err)
	}
	if _, _, err := ParseClock("7"); err == nil {
		t.Fatal("expected error for missing minutes")
	}
	if _, _, err := ParseClock("07:60"); err == nil {
		t.Fatal("expected error for minute overflow")
	}
}
