package config

import (
	"strings"
	"testing"
	"time"
)

var allVars = []string{
	"HTTP_PORT", "GRPC_PORT", "DATABASE_DRIVER", "DATABASE_URL",
	"GEMINI_API_KEYS", "GOOGLE_API_KEY", "GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_KEY_COOLDOWN",
	"LLM_MOCK", "DEFAULT_DIALECT", "DEFAULT_TIMEZONE", "CONVERSATION_TTL", "CONVERSATION_MAX_KEYS",
	"API_TOKEN", "RABBITMQ_URL", "TWILIO_AUTH_TOKEN", "TWILIO_WEBHOOK_URL", "DEBUG",
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("expected HTTPPort 8080, got %s", cfg.HTTPPort)
	}
	if cfg.DatabaseDriver != DriverMemory {
		t.Errorf("expected driver memory, got %s", cfg.DatabaseDriver)
	}
	if cfg.GeminiModel != "gemini-1.5-flash" {
		t.Errorf("expected default model, got %s", cfg.GeminiModel)
	}
	if cfg.GeminiKeyCooldown != 15*time.Second {
		t.Errorf("expected cooldown 15s, got %v", cfg.GeminiKeyCooldown)
	}
	if cfg.ConversationTTL != 30*time.Minute {
		t.Errorf("expected TTL 30m, got %v", cfg.ConversationTTL)
	}
	if cfg.ConversationMaxKeys != 10000 {
		t.Errorf("expected max keys 10000, got %d", cfg.ConversationMaxKeys)
	}
	if cfg.DefaultDialect != "pal" {
		t.Errorf("expected dialect pal, got %s", cfg.DefaultDialect)
	}
	if cfg.DefaultLocation == nil || cfg.DefaultLocation.String() != "Asia/Hebron" {
		t.Errorf("expected Asia/Hebron, got %v", cfg.DefaultLocation)
	}
	if cfg.LLMEnabled() {
		t.Error("expected LLM disabled without keys")
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("GRPC_PORT", "")
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("DATABASE_URL", "file:tasks.db")
	t.Setenv("GEMINI_API_KEYS", " k1, k2 ,,k3 ")
	t.Setenv("GEMINI_KEY_COOLDOWN", "1m")
	t.Setenv("DEFAULT_DIALECT", "egy")
	t.Setenv("DEFAULT_TIMEZONE", "Africa/Cairo")
	t.Setenv("CONVERSATION_TTL", "10m")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("expected HTTPPort 9090, got %s", cfg.HTTPPort)
	}
	if cfg.GRPCPort != "" {
		t.Errorf("expected gRPC disabled, got %s", cfg.GRPCPort)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("expected driver sqlite, got %s", cfg.DatabaseDriver)
	}
	if strings.Join(cfg.GeminiKeys, ",") != "k1,k2,k3" {
		t.Errorf("expected keys k1,k2,k3, got %v", cfg.GeminiKeys)
	}
	if cfg.GeminiKeyCooldown != time.Minute {
		t.Errorf("expected cooldown 1m, got %v", cfg.GeminiKeyCooldown)
	}
	if cfg.DefaultDialect != "egy" {
		t.Errorf("expected dialect egy, got %s", cfg.DefaultDialect)
	}
	if cfg.ConversationTTL != 10*time.Minute {
		t.Errorf("expected TTL 10m, got %v", cfg.ConversationTTL)
	}
	if !cfg.Debug {
		t.Error("expected debug on")
	}
	if !cfg.LLMEnabled() {
		t.Error("expected LLM enabled with keys")
	}
}

func TestLoad_SingleKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "solo")

	cfg, err := Load()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.GeminiKeys) != 1 || cfg.GeminiKeys[0] != "solo" {
		t.Errorf("expected [solo], got %v", cfg.GeminiKeys)
	}

	t.Setenv("LLM_MOCK", "1")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLMEnabled() {
		t.Error("expected LLM_MOCK to disable the model")
	}
}

func TestLoad_TrimsBOMAndSpace(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_TOKEN", "\ufeff secret \n")

	cfg, err := Load()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIToken != "secret" {
		t.Errorf("expected secret, got %q", cfg.APIToken)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mongo"}},
		{"postgres without url", map[string]string{"DATABASE_DRIVER": "postgres"}},
		{"bad dialect", map[string]string{"DEFAULT_DIALECT": "fr"}},
		{"bad timezone", map[string]string{"DEFAULT_TIMEZONE": "Mars/Olympus"}},
		{"bad ttl", map[string]string{"CONVERSATION_TTL": "soon"}},
		{"negative cooldown", map[string]string{"GEMINI_KEY_COOLDOWN": "-5s"}},
		{"bad max keys", map[string]string{"CONVERSATION_MAX_KEYS": "0"}},
		{"bad bool", map[string]string{"DEBUG": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			if err == nil {
				t.Fatal("expected error")
			}
			if cfg != nil {
				t.Error("expected nil config when error occurs")
			}
		})
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		expected   string
	}{
		{
			name:       "returns env value when set",
			key:        "TEST_TASKCHAT_VAR_1",
			defaultVal: "default",
			envValue:   "custom",
			expected:   "custom",
		},
		{
			name:       "returns default when empty",
			key:        "TEST_TASKCHAT_VAR_2",
			defaultVal: "default",
			envValue:   "",
			expected:   "default",
		},
		{
			name:       "returns default when only whitespace",
			key:        "TEST_TASKCHAT_VAR_3",
			defaultVal: "default",
			envValue:   "  ",
			expected:   "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)

			result := getEnvOrDefault(tt.key, tt.defaultVal)
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}
