package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIVideoModel   string
	OpenAIBetaHeader   string
	OpenAITimeout      time.Duration
	PollInterval       time.Duration
	DefaultUserID      string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

const defaultDatabaseURL = "sqlite:///./sora2.db"

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// The OpenAI credential is optional: without it the service still starts and
// the poller stays paused until a key becomes available.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", defaultDatabaseURL),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:      getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
		OpenAIVideoModel:   getEnv("OPENAI_VIDEO_MODEL", "sora-2"),
		OpenAIBetaHeader:   getEnvAllowEmpty("OPENAI_VIDEO_BETA_HEADER", "video-generation=2"),
		OpenAITimeout:      time.Second * time.Duration(getEnvInt("OPENAI_TIMEOUT_SECONDS", 30)),
		DefaultUserID:      getEnv("DEFAULT_USER_ID", "demo-user"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	interval, err := getEnvSeconds("POLL_INTERVAL_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = interval

	if _, err := ParseDatabaseURL(cfg.DatabaseURL); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HasOpenAIKey reports whether the credential was provided through the environment.
func (c *Config) HasOpenAIKey() bool {
	return c != nil && c.OpenAIAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty lets operators disable a header by setting it to an empty value.
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback float64) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return time.Duration(fallback * float64(time.Second)), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
