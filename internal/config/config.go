// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    string
	DBPath      string
	AssetsDir   string
	ContentPath string // Empty = embedded content document
	AdminToken  string // Empty = admin routes disabled

	Gemini    GeminiConfig
	Assistant AssistantConfig
	SSE       SSEConfig
	NATS      NATSConfig
	Tracking  TrackingConfig
}

// GeminiConfig controls the text-generation client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // Empty = SDK default endpoint
	Timeout time.Duration
}

// AssistantConfig controls assistant widget sessions.
type AssistantConfig struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
	RateLimit     int
	RateWindow    time.Duration
	MaxBodySize   int64
}

// SSEConfig controls the transcript event stream.
type SSEConfig struct {
	KeepaliveInterval time.Duration
	RetryDelay        time.Duration
}

// NATSConfig controls optional event publishing.
type NATSConfig struct {
	URL   string
	Token string
}

// TrackingConfig controls visit analytics.
type TrackingConfig struct {
	Enabled   bool
	Retention time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBPath:      getEnv("DB_PATH", "./data/casestudy.db"),
		AssetsDir:   getEnv("ASSETS_DIR", "./public"),
		ContentPath: getEnv("CONTENT_PATH", ""),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-preview-05-20"),
			BaseURL: getEnv("GEMINI_BASE_URL", ""),
			Timeout: getEnvDuration("GEMINI_TIMEOUT", 60*time.Second),
		},
		Assistant: AssistantConfig{
			SessionTTL:    getEnvDuration("ASSISTANT_SESSION_TTL", 30*time.Minute),
			SweepInterval: getEnvDuration("ASSISTANT_SWEEP_INTERVAL", time.Minute),
			RateLimit:     getEnvInt("ASSISTANT_RATE_LIMIT", 10),
			RateWindow:    getEnvDuration("ASSISTANT_RATE_WINDOW", time.Minute),
			MaxBodySize:   int64(getEnvInt("ASSISTANT_MAX_BODY_SIZE", 1<<16)),
		},
		SSE: SSEConfig{
			KeepaliveInterval: getEnvDuration("SSE_KEEPALIVE", 10*time.Second),
			RetryDelay:        getEnvDuration("SSE_RETRY_DELAY", 5*time.Second),
		},
		NATS: NATSConfig{
			URL:   getEnv("NATS_URL", ""),
			Token: getEnv("NATS_TOKEN", ""),
		},
		Tracking: TrackingConfig{
			Enabled:   getEnvBool("TRACKING_ENABLED", true),
			Retention: getEnvDuration("VISIT_RETENTION", 365*24*time.Hour),
		},
	}

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
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("GEMINI_MODEL cannot be empty")
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be > 0")
	}
	if c.Assistant.SessionTTL <= 0 {
		return fmt.Errorf("ASSISTANT_SESSION_TTL must be > 0")
	}
	if c.Assistant.SweepInterval <= 0 {
		return fmt.Errorf("ASSISTANT_SWEEP_INTERVAL must be > 0")
	}
	if c.Assistant.RateLimit <= 0 {
		return fmt.Errorf("ASSISTANT_RATE_LIMIT must be > 0")
	}
	if c.Assistant.RateWindow <= 0 {
		return fmt.Errorf("ASSISTANT_RATE_WINDOW must be > 0")
	}
	if c.Assistant.MaxBodySize <= 0 {
		return fmt.Errorf("ASSISTANT_MAX_BODY_SIZE must be > 0")
	}
	if c.SSE.KeepaliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE must be > 0")
	}
	if c.Tracking.Retention <= 0 {
		return fmt.Errorf("VISIT_RETENTION must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AIEnabled reports whether a text-generation API key is configured.
func (c *Config) AIEnabled() bool {
	return c.Gemini.APIKey != ""
}

// SlogLevel maps LogLevel onto a slog level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
