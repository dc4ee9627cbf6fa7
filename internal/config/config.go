// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage backend configuration
	Storage StorageConfig

	// Log collector configuration
	Collector CollectorConfig

	// AI service configuration
	AI AIConfig

	// Log processing configuration
	Processing ProcessingConfig

	// Detection defaults
	Detection DetectionConfig

	// Logging output configuration
	Log LogConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Port is the HTTP port to listen on.
	Port string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// RateLimitRPS is the sustained request rate allowed per client IP.
	RateLimitRPS float64

	// RateLimitBurst is the burst size allowed per client IP.
	RateLimitBurst int
}

// StorageDriver selects the repository implementation.
type StorageDriver string

const (
	// StorageMemory keeps everything in process memory.
	StorageMemory StorageDriver = "memory"

	// StorageSQLite persists to a SQLite database file.
	StorageSQLite StorageDriver = "sqlite"
)

// StorageConfig contains persistence settings.
type StorageConfig struct {
	Driver StorageDriver

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string

	// SourceCacheSize is the number of log sources kept in the LRU cache.
	SourceCacheSize int

	// OutboxPollInterval is how often undispatched events are relayed.
	OutboxPollInterval time.Duration

	// OutboxBatchSize caps the events relayed per poll.
	OutboxBatchSize int
}

// CollectorConfig contains log collection settings.
type CollectorConfig struct {
	// Timeout bounds a single collect or connection test.
	Timeout time.Duration

	// MaxEntries caps the entries returned by one collection.
	MaxEntries int

	// PrometheusQuery is the PromQL expression used when a source has none.
	PrometheusQuery string

	// PrometheusStep is the query_range resolution.
	PrometheusStep time.Duration
}

// AIConfig contains AI service settings.
type AIConfig struct {
	// APIKey is the authentication key for the AI provider.
	APIKey string

	// BaseURL is the base URL of the OpenAI-compatible API.
	BaseURL string

	// Model is the default AI model, used when a request names none.
	Model string

	// Timeout is the maximum time to wait for AI responses.
	Timeout time.Duration

	// MaxTokens is the maximum tokens for AI response.
	MaxTokens int

	// MaxRetries is the number of retries on transient failures.
	MaxRetries int

	// MaxLogLines caps the entries sent to the model per analysis.
	MaxLogLines int

	// MockMode runs the heuristic detector instead of calling the API.
	MockMode bool
}

// ProcessingConfig contains log processing settings.
type ProcessingConfig struct {
	// MaxLogSize is the maximum length of a single log line sent to the AI.
	MaxLogSize int
}

// DetectionConfig holds defaults applied when API callers omit them.
type DetectionConfig struct {
	DefaultThreshold   float64
	DefaultSensitivity float64
}

// LogConfig contains application log output settings.
type LogConfig struct {
	// File enables a rotating log file in addition to stderr.
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvOrDefault("PORT", "8080"),
			ReadTimeout:    getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RateLimitRPS:   getFloatOrDefault("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getIntOrDefault("RATE_LIMIT_BURST", 40),
		},
		Storage: StorageConfig{
			Driver:             StorageDriver(getEnvOrDefault("STORAGE_DRIVER", string(StorageMemory))),
			SQLitePath:         getEnvOrDefault("SQLITE_PATH", "loganomaly.db"),
			SourceCacheSize:    getIntOrDefault("SOURCE_CACHE_SIZE", 256),
			OutboxPollInterval: getDurationOrDefault("OUTBOX_POLL_INTERVAL", 2*time.Second),
			OutboxBatchSize:    getIntOrDefault("OUTBOX_BATCH_SIZE", 100),
		},
		Collector: CollectorConfig{
			Timeout:         getDurationOrDefault("COLLECTOR_TIMEOUT", 15*time.Second),
			MaxEntries:      getIntOrDefault("COLLECTOR_MAX_ENTRIES", 10000),
			PrometheusQuery: getEnvOrDefault("PROMETHEUS_QUERY", "ALERTS"),
			PrometheusStep:  getDurationOrDefault("PROMETHEUS_STEP", 60*time.Second),
		},
		AI: AIConfig{
			APIKey:      os.Getenv("AI_API_KEY"),
			BaseURL:     getEnvOrDefault("AI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnvOrDefault("AI_MODEL", "gpt-4o-mini"),
			Timeout:     getDurationOrDefault("AI_TIMEOUT", 30*time.Second),
			MaxTokens:   getIntOrDefault("AI_MAX_TOKENS", 1024),
			MaxRetries:  getIntOrDefault("AI_MAX_RETRIES", 2),
			MaxLogLines: getIntOrDefault("AI_MAX_LOG_LINES", 200),
			MockMode:    getBoolOrDefault("AI_MOCK_MODE", false),
		},
		Processing: ProcessingConfig{
			MaxLogSize: getIntOrDefault("MAX_LOG_SIZE", 2000),
		},
		Detection: DetectionConfig{
			DefaultThreshold:   getFloatOrDefault("DEFAULT_THRESHOLD", domain.DefaultThreshold),
			DefaultSensitivity: getFloatOrDefault("DEFAULT_SENSITIVITY", domain.DefaultSensitivity),
		},
		Log: LogConfig{
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getIntOrDefault("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getIntOrDefault("LOG_MAX_AGE_DAYS", 28),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// AI API key is required unless in mock mode
	if !c.AI.MockMode && c.AI.APIKey == "" {
		return fmt.Errorf("%w: AI_API_KEY is required when not in mock mode", domain.ErrInvalidConfig)
	}

	if c.AI.Timeout < time.Second {
		return fmt.Errorf("%w: AI_TIMEOUT must be at least 1 second", domain.ErrInvalidConfig)
	}

	if c.AI.MaxTokens < 100 {
		return fmt.Errorf("%w: AI_MAX_TOKENS must be at least 100", domain.ErrInvalidConfig)
	}

	if c.AI.MaxLogLines < 1 {
		return fmt.Errorf("%w: AI_MAX_LOG_LINES must be positive", domain.ErrInvalidConfig)
	}

	if c.Processing.MaxLogSize < 100 {
		return fmt.Errorf("%w: MAX_LOG_SIZE must be at least 100 bytes", domain.ErrInvalidConfig)
	}

	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	default:
		return fmt.Errorf("%w: STORAGE_DRIVER must be memory or sqlite, got %q", domain.ErrInvalidConfig, c.Storage.Driver)
	}

	if c.Storage.SourceCacheSize < 1 {
		return fmt.Errorf("%w: SOURCE_CACHE_SIZE must be positive", domain.ErrInvalidConfig)
	}

	if c.Collector.Timeout < time.Second {
		return fmt.Errorf("%w: COLLECTOR_TIMEOUT must be at least 1 second", domain.ErrInvalidConfig)
	}

	if c.Collector.MaxEntries < 1 {
		return fmt.Errorf("%w: COLLECTOR_MAX_ENTRIES must be positive", domain.ErrInvalidConfig)
	}

	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("%w: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive", domain.ErrInvalidConfig)
	}

	if c.Detection.DefaultThreshold < 0 || c.Detection.DefaultThreshold > 1 {
		return fmt.Errorf("%w: DEFAULT_THRESHOLD must be between 0 and 1", domain.ErrInvalidConfig)
	}

	if c.Detection.DefaultSensitivity < 0 || c.Detection.DefaultSensitivity > 1 {
		return fmt.Errorf("%w: DEFAULT_SENSITIVITY must be between 0 and 1", domain.ErrInvalidConfig)
	}

	return nil
}

// Helper functions for reading environment variables

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Plain integers are seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
