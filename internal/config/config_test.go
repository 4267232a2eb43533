package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FRONTEND_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxLives != 5 {
		t.Errorf("MaxLives = %d, want 5", cfg.MaxLives)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
	if cfg.Pacing.TypingBase != 500*time.Millisecond {
		t.Errorf("TypingBase = %v, want 500ms", cfg.Pacing.TypingBase)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode without FRONTEND_URL")
	}
	if len(cfg.AllowedOrigins) == 0 {
		t.Error("expected localhost origins in development")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAX_LIVES", "3")
	t.Setenv("RANDOM_SEED", "42")
	t.Setenv("FEEDBACK_DELAY", "0s")
	t.Setenv("FRONTEND_URL", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxLives != 3 || cfg.RandomSeed != 42 || cfg.Pacing.FeedbackDelay != 0 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.IsDevelopment() {
		t.Error("expected production mode for remote frontend")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:         "8080",
			DBDriver:     "sqlite",
			DBPath:       "x.db",
			MaxLives:     5,
			SessionTTL:   time.Minute,
			HistoryLimit: 10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"postgres without dsn", func(c *Config) { c.DBDriver = "postgres" }, "DB_DSN"},
		{"postgres with dsn", func(c *Config) { c.DBDriver = "postgres"; c.DBDSN = "postgres://x" }, ""},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"zero lives", func(c *Config) { c.MaxLives = 0 }, "MAX_LIVES"},
		{"negative gap", func(c *Config) { c.Pacing.MessageGap = -time.Second }, "MESSAGE_GAP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
