// Package config loads the taskchat configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // DEFAULT_TIMEZONE on hosts without zoneinfo

	"hound-taskchat/internal/i18n"
	"hound-taskchat/internal/llm"
	"hound-taskchat/internal/store"
)

// DriverMemory keeps tasks in process memory.
const DriverMemory = "memory"

// Config holds the configuration for taskchat
type Config struct {
	HTTPPort string
	GRPCPort string // empty disables the gRPC listener

	DatabaseDriver string
	DatabaseURL    string

	GeminiKeys        []string
	GeminiModel       string
	GeminiKeyCooldown time.Duration
	LLMMock           bool

	DefaultDialect  string
	DefaultTimezone string
	DefaultLocation *time.Location

	ConversationTTL     time.Duration
	ConversationMaxKeys int

	APIToken string

	RabbitMQURL string

	TwilioAuthToken  string
	TwilioWebhookURL string

	Debug bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:         getEnvOrDefault("HTTP_PORT", "8080"),
		GRPCPort:         lookupEnvOrDefault("GRPC_PORT", "50051"),
		DatabaseDriver:   strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", DriverMemory)),
		DatabaseURL:      getEnv("DATABASE_URL"),
		GeminiModel:      getEnvOrDefault("GEMINI_MODEL", llm.DefaultModel),
		DefaultDialect:   strings.ToLower(getEnvOrDefault("DEFAULT_DIALECT", i18n.DefaultDialect)),
		DefaultTimezone:  getEnvOrDefault("DEFAULT_TIMEZONE", "Asia/Hebron"),
		APIToken:         getEnv("API_TOKEN"),
		RabbitMQURL:      getEnv("RABBITMQ_URL"),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN"),
		TwilioWebhookURL: getEnv("TWILIO_WEBHOOK_URL"),
	}

	cfg.GeminiKeys = llm.ParseKeys(getEnv("GEMINI_API_KEYS"))
	if len(cfg.GeminiKeys) == 0 {
		single := getEnv("GOOGLE_API_KEY")
		if single == "" {
			single = getEnv("GEMINI_API_KEY")
		}
		cfg.GeminiKeys = llm.ParseKeys(single)
	}

	var err error
	if cfg.GeminiKeyCooldown, err = durationEnv("GEMINI_KEY_COOLDOWN", llm.DefaultCooldown); err != nil {
		return nil, err
	}
	if cfg.ConversationTTL, err = durationEnv("CONVERSATION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ConversationMaxKeys, err = intEnv("CONVERSATION_MAX_KEYS", 10000); err != nil {
		return nil, err
	}
	if cfg.LLMMock, err = boolEnv("LLM_MOCK"); err != nil {
		return nil, err
	}
	if cfg.Debug, err = boolEnv("DEBUG"); err != nil {
		return nil, err
	}

	switch cfg.DatabaseDriver {
	case DriverMemory:
	case store.DriverPostgres, store.DriverSQLite:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for driver %s", cfg.DatabaseDriver)
		}
	default:
		return nil, fmt.Errorf("DATABASE_DRIVER must be memory, postgres or sqlite, got %q", cfg.DatabaseDriver)
	}

	if !i18n.ValidDialect(cfg.DefaultDialect) {
		return nil, fmt.Errorf("DEFAULT_DIALECT must be one of %s, got %q", strings.Join(i18n.Dialects, ", "), cfg.DefaultDialect)
	}
	if cfg.DefaultLocation, err = time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// LLMEnabled reports whether Gemini calls will be attempted.
func (c *Config) LLMEnabled() bool {
	return !c.LLMMock && len(c.GeminiKeys) > 0
}

// getEnv returns the trimmed value of key. Values pasted from some editors
// carry a byte order mark.
func getEnv(key string) string {
	return strings.TrimSpace(strings.TrimPrefix(os.Getenv(key), "\ufeff"))
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := getEnv(key); val != "" {
		return val
	}
	return defaultVal
}

// lookupEnvOrDefault is getEnvOrDefault, except that a variable set to the
// empty string stays empty.
func lookupEnvOrDefault(key, defaultVal string) string {
	if _, ok := os.LookupEnv(key); ok {
		return getEnv(key)
	}
	return defaultVal
}

func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := getEnv(key)
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func intEnv(key string, defaultVal int) (int, error) {
	raw := getEnv(key)
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func boolEnv(key string) (bool, error) {
	raw := getEnv(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return b, nil
}
