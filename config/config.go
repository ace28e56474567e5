// Package config provides environment-based configuration for feed-digest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Email    EmailConfig
	Archive  ArchiveConfig
	Schedule ScheduleConfig
	Retry    RetryConfig
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Port            int
	APIKey          string
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig configures the Streams queue and the digest archive.
type RedisConfig struct {
	URL          string
	GroupName    string
	ConsumerName string
	BatchSize    int64
	BlockTimeout time.Duration
}

// LLMConfig configures the generative-text backend.
type LLMConfig struct {
	Endpoint        string
	APIKey          string
	Model           string
	Temperature     float64
	Timeout         time.Duration
	DailyMaxTokens  int
	WeeklyMaxTokens int
}

// EmailConfig configures the outbound email capability. Email is optional:
// delivery runs only when the key, sender, and recipient list are all set.
type EmailConfig struct {
	Endpoint   string
	APIKey     string
	Sender     string
	Recipients []string
}

// Enabled reports whether email delivery is configured.
func (e EmailConfig) Enabled() bool {
	return e.APIKey != "" && e.Sender != "" && len(e.Recipients) > 0
}

// ArchiveConfig configures the historical-context archive namespace.
type ArchiveConfig struct {
	Prefix       string
	ContextWeeks int
}

// ScheduleConfig configures the time-based pipeline triggers.
type ScheduleConfig struct {
	Enabled           bool
	FeedFetchInterval time.Duration
	DailyInterval     time.Duration
	WeeklyInterval    time.Duration
}

// RetryConfig configures the LLM client's internal retry.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("SERVER_PORT", 9300),
			APIKey:          os.Getenv("API_KEY"),
			ShutdownTimeout: envDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     envString("DB_HOST", "localhost"),
			Port:     envString("DB_PORT", "5432"),
			User:     envString("DB_USER", "digest"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     envString("DB_NAME", "digest"),
			SSLMode:  envString("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			URL:          envString("REDIS_URL", "redis://localhost:6379"),
			GroupName:    envString("REDIS_GROUP", "digest-pipeline"),
			ConsumerName: envString("REDIS_CONSUMER", "digest-1"),
			BatchSize:    int64(envInt("REDIS_BATCH_SIZE", 10)),
			BlockTimeout: envDuration("REDIS_BLOCK_TIMEOUT", 5*time.Second),
		},
		LLM: LLMConfig{
			Endpoint:        envString("LLM_ENDPOINT", "http://localhost:11434/api/generate"),
			APIKey:          os.Getenv("LLM_API_KEY"),
			Model:           envString("LLM_MODEL", "gemma3:4b"),
			Temperature:     envFloat("LLM_TEMPERATURE", 0.4),
			Timeout:         envDuration("LLM_TIMEOUT", 60*time.Second),
			DailyMaxTokens:  envInt("LLM_DAILY_MAX_TOKENS", 1024),
			WeeklyMaxTokens: envInt("LLM_WEEKLY_MAX_TOKENS", 4096),
		},
		Email: EmailConfig{
			Endpoint:   envString("EMAIL_ENDPOINT", "https://api.resend.com/emails"),
			APIKey:     os.Getenv("EMAIL_API_KEY"),
			Sender:     os.Getenv("EMAIL_SENDER"),
			Recipients: envList("EMAIL_RECIPIENTS"),
		},
		Archive: ArchiveConfig{
			Prefix:       envString("ARCHIVE_PREFIX", "digest:archive"),
			ContextWeeks: envInt("ARCHIVE_CONTEXT_WEEKS", 4),
		},
		Schedule: ScheduleConfig{
			Enabled:           envBool("SCHEDULE_ENABLED", true),
			FeedFetchInterval: envDuration("SCHEDULE_FEED_FETCH_INTERVAL", time.Hour),
			DailyInterval:     envDuration("SCHEDULE_DAILY_INTERVAL", 24*time.Hour),
			WeeklyInterval:    envDuration("SCHEDULE_WEEKLY_INTERVAL", 7*24*time.Hour),
		},
		Retry: RetryConfig{
			MaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   envDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:    envDuration("RETRY_MAX_DELAY", 30*time.Second),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Redis.URL == "" {
		return fmt.Errorf("redis URL cannot be empty")
	}
	if cfg.Redis.BatchSize <= 0 {
		return fmt.Errorf("redis batch size must be positive: %d", cfg.Redis.BatchSize)
	}
	if cfg.LLM.Endpoint == "" {
		return fmt.Errorf("LLM endpoint cannot be empty")
	}
	if cfg.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive: %v", cfg.LLM.Timeout)
	}
	if cfg.LLM.DailyMaxTokens <= 0 || cfg.LLM.WeeklyMaxTokens <= 0 {
		return fmt.Errorf("LLM token ceilings must be positive")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive: %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Archive.ContextWeeks < 0 {
		return fmt.Errorf("archive context weeks must be non-negative: %d", cfg.Archive.ContextWeeks)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
