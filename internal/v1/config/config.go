package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the tunables recognized by the server.
const (
	DefaultHistoryLimit  = 50
	DefaultMessageMaxLen = 500
	DefaultWalkSpeed     = 4.0
	DefaultCanonicalSlug = "lobby"
	DefaultTokenTTL      = 15 * time.Minute
	MaxTokenTTL          = 15 * time.Minute
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	TokenSecret string
	DatabaseURL string
	Port        string

	// Optional variables with defaults
	ListenAddr     string
	GoEnv          string
	LogLevel       string
	AllowedOrigins string

	TokenTTL      time.Duration
	HistoryLimit  int
	MessageMaxLen int
	WalkSpeed     float64
	CanonicalSlug string

	// Rate Limits (ulule/limiter formatted rates)
	RateLimitChat string
	RateLimitMove string
	RateLimitWsIP string
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: TOKEN_SECRET (minimum 32 characters)
	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		errors = append(errors, "TOKEN_SECRET is required")
	} else if len(cfg.TokenSecret) < 32 {
		errors = append(errors, fmt.Sprintf("TOKEN_SECRET must be at least 32 characters (got %d)", len(cfg.TokenSecret)))
	}

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required")
	}

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Optional: LISTEN_ADDR (defaults to all interfaces)
	cfg.ListenAddr = os.Getenv("LISTEN_ADDR")

	// Optional: TOKEN_TTL (defaults to 15m, hard-capped at 15m)
	cfg.TokenTTL = DefaultTokenTTL
	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		switch {
		case err != nil:
			errors = append(errors, fmt.Sprintf("TOKEN_TTL must be a duration like '10m' (got '%s')", raw))
		case ttl <= 0 || ttl > MaxTokenTTL:
			errors = append(errors, fmt.Sprintf("TOKEN_TTL must be positive and at most %s (got '%s')", MaxTokenTTL, raw))
		default:
			cfg.TokenTTL = ttl
		}
	}

	cfg.HistoryLimit = intEnvOrDefault("HISTORY_LIMIT", DefaultHistoryLimit, &errors)
	cfg.MessageMaxLen = intEnvOrDefault("MESSAGE_MAX_LEN", DefaultMessageMaxLen, &errors)

	// Optional: WALK_SPEED (tiles per second)
	cfg.WalkSpeed = DefaultWalkSpeed
	if raw := os.Getenv("WALK_SPEED"); raw != "" {
		speed, err := strconv.ParseFloat(raw, 64)
		if err != nil || speed <= 0 {
			errors = append(errors, fmt.Sprintf("WALK_SPEED must be a positive number (got '%s')", raw))
		} else {
			cfg.WalkSpeed = speed
		}
	}

	cfg.CanonicalSlug = getEnvOrDefault("CANONICAL_SLUG", DefaultCanonicalSlug)

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Rate Limits (Defaults: S = Second, M = Minute)
	cfg.RateLimitChat = getEnvOrDefault("RATE_LIMIT_CHAT", "10-S")
	cfg.RateLimitMove = getEnvOrDefault("RATE_LIMIT_MOVE", "20-S")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "60-M")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// IsDevelopment reports whether the server runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.GoEnv != "production"
}

// Addr is the listen address handed to the HTTP server.
func (c *Config) Addr() string {
	return c.ListenAddr + ":" + c.Port
}

// intEnvOrDefault parses an optional integer environment variable,
// collecting a validation error when the value is present but unusable.
func intEnvOrDefault(key string, def int, errs *[]string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive integer (got '%s')", key, raw))
		return def
	}
	return v
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated")
	slog.Info("Configuration",
		"token_secret", redactSecret(cfg.TokenSecret),
		"database_url", redactSecret(cfg.DatabaseURL),
		"listen_addr", cfg.Addr(),
		"token_ttl", cfg.TokenTTL,
		"history_limit", cfg.HistoryLimit,
		"message_max_len", cfg.MessageMaxLen,
		"walk_speed", cfg.WalkSpeed,
		"canonical_slug", cfg.CanonicalSlug,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
