// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBDriver    string
	DBPath      string
	DBDSN       string // Postgres connection URL, used when DBDriver is postgres
	CatalogPath string // empty = keep stored catalog, seeding the embedded default when empty

	MaxLives       int
	SessionTTL     time.Duration
	TurnRetention  time.Duration
	RandomSeed     int64 // 0 = seed from crypto/rand
	HistoryLimit   int
	Pacing         PacingConfig
	AllowedOrigins []string
}

// PacingConfig controls how chat messages are revealed to a live client.
type PacingConfig struct {
	TypingBase    time.Duration
	TypingPerChar time.Duration
	TypingMax     time.Duration
	MessageGap    time.Duration
	RestartPause  time.Duration
	FeedbackDelay time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		DBPath:        getEnv("DB_PATH", "./data/dispatch.db"),
		DBDSN:         getEnv("DB_DSN", ""),
		CatalogPath:   getEnv("CATALOG_PATH", ""),
		MaxLives:      getEnvInt("MAX_LIVES", 5),
		SessionTTL:    getEnvDuration("SESSION_TTL", 60*time.Minute),
		TurnRetention: getEnvDuration("TURN_RETENTION", 7*24*time.Hour),
		RandomSeed:    getEnvInt64("RANDOM_SEED", 0),
		HistoryLimit:  getEnvInt("HISTORY_LIMIT", 50),
		Pacing: PacingConfig{
			TypingBase:    getEnvDuration("TYPING_BASE", 500*time.Millisecond),
			TypingPerChar: getEnvDuration("TYPING_PER_CHAR", 25*time.Millisecond),
			TypingMax:     getEnvDuration("TYPING_MAX", 2*time.Second),
			MessageGap:    getEnvDuration("MESSAGE_GAP", 300*time.Millisecond),
			RestartPause:  getEnvDuration("RESTART_PAUSE", 1500*time.Millisecond),
			FeedbackDelay: getEnvDuration("FEEDBACK_DELAY", 1200*time.Millisecond),
		},
	}
	cfg.AllowedOrigins = cfg.origins()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch strings.ToLower(c.DBDriver) {
	case "sqlite", "sqlite3":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres", "pg", "pgsql", "pgx":
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver)
	}
	if c.MaxLives <= 0 {
		return fmt.Errorf("MAX_LIVES must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	p := c.Pacing
	for name, d := range map[string]time.Duration{
		"TYPING_BASE":     p.TypingBase,
		"TYPING_PER_CHAR": p.TypingPerChar,
		"TYPING_MAX":      p.TypingMax,
		"MESSAGE_GAP":     p.MessageGap,
		"RESTART_PAUSE":   p.RestartPause,
		"FEEDBACK_DELAY":  p.FeedbackDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func (c *Config) origins() []string {
	if c.FrontendURL == "" {
		return []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	var out []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
