// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Storage
	DBPath string

	// NATS settings; an empty URL disables event publishing.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// CORSAllowedOrigins is read from a comma-separated list.
	CORSAllowedOrigins []string

	// Reasoning engine
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	DefaultLLM      string
	LLMModel        string
	LLMTimeout      time.Duration

	// Memory window
	MemoryWindowSize  int
	SummaryLineLimit  int
	CompactionTimeout time.Duration

	// Confirmations
	ConfirmationTTL time.Duration

	// Repository fetcher
	GitHubToken     string
	GitHubAPIURL    string
	FetchTimeout    time.Duration
	FetchMaxRetries int

	// Job workers
	JobWorkers   int
	JobQueueSize int
	JobTimeout   time.Duration

	// Rate limiting
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	UserRateLimitRequests int

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Storage
		DBPath: getEnv("DB_PATH", "./data/copilot.db"),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DefaultLLM:      strings.ToLower(getEnv("DEFAULT_LLM", "openai")),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 60*time.Second),

		// Memory
		MemoryWindowSize:  getIntEnv("MEMORY_WINDOW_SIZE", 10),
		SummaryLineLimit:  getIntEnv("SUMMARY_LINE_LIMIT", 500),
		CompactionTimeout: getDurationEnv("COMPACTION_TIMEOUT", 60*time.Second),

		// Confirmations
		ConfirmationTTL: getDurationEnv("CONFIRMATION_TTL", time.Hour),

		// Fetcher
		GitHubToken:     getEnv("GITHUB_TOKEN", ""),
		GitHubAPIURL:    strings.TrimRight(getEnv("GITHUB_API_URL", "https://api.github.com"), "/"),
		FetchTimeout:    getDurationEnv("FETCH_TIMEOUT", 30*time.Second),
		FetchMaxRetries: getIntEnv("FETCH_MAX_RETRIES", 3),

		// Jobs
		JobWorkers:   getIntEnv("JOB_WORKERS", 4),
		JobQueueSize: getIntEnv("JOB_QUEUE_SIZE", 256),
		JobTimeout:   getDurationEnv("JOB_TIMEOUT", 5*time.Minute),

		// Rate limiting
		RateLimitRequests:     getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:       getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		UserRateLimitRequests: getIntEnv("USER_RATE_LIMIT_REQUESTS", 20),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that configured values are usable.
func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MemoryWindowSize <= 0 {
		return fmt.Errorf("MEMORY_WINDOW_SIZE must be > 0")
	}
	if c.SummaryLineLimit <= 0 {
		return fmt.Errorf("SUMMARY_LINE_LIMIT must be > 0")
	}
	if c.JobWorkers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be > 0")
	}
	if c.JobQueueSize <= 0 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be > 0")
	}
	if c.FetchMaxRetries < 0 {
		return fmt.Errorf("FETCH_MAX_RETRIES must be >= 0")
	}
	if c.ConfirmationTTL < 0 {
		return fmt.Errorf("CONFIRMATION_TTL must be >= 0")
	}
	switch c.DefaultLLM {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("DEFAULT_LLM must be openai or anthropic, got %q", c.DefaultLLM)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
