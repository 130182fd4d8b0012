package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"INTERVIEWER_CONFIG", "INTERVIEWER_PORT", "STORE_BACKEND", "DATABASE_URL", "BOLT_PATH",
	"NATS_URL", "NATS_TOKEN", "LOG_LEVEL", "ANTHROPIC_API_KEY", "INTERVIEWER_MODEL",
	"INTERVIEWER_MAX_TOKENS", "CONTEXT_CAPACITY", "TURN_TIMEOUT", "INTERVIEWER_API_TOKEN",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8760 {
		t.Errorf("expected default port 8760, got %d", cfg.Port)
	}
	if cfg.StoreBackend != BackendPostgres {
		t.Errorf("expected postgres backend, got %s", cfg.StoreBackend)
	}
	if cfg.BoltPath != "interviewer.db" {
		t.Errorf("expected default bolt path, got %s", cfg.BoltPath)
	}
	if cfg.NatsURL != "" {
		t.Errorf("expected events disabled by default, got %s", cfg.NatsURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.AnthropicModel != "claude-sonnet-4-20250514" {
		t.Errorf("expected default model, got %s", cfg.AnthropicModel)
	}
	if cfg.MaxTokens != 1024 {
		t.Errorf("expected 1024 max tokens, got %d", cfg.MaxTokens)
	}
	if cfg.ContextCapacity != 20 {
		t.Errorf("expected capacity 20, got %d", cfg.ContextCapacity)
	}
	if cfg.TurnTimeout != 120*time.Second {
		t.Errorf("expected 120s turn timeout, got %s", cfg.TurnTimeout)
	}
	if cfg.APIToken != "" {
		t.Errorf("expected empty default api token, got %s", cfg.APIToken)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTERVIEWER_PORT", "9999")
	t.Setenv("STORE_BACKEND", "bolt")
	t.Setenv("BOLT_PATH", "/var/lib/interviewer/data.db")
	t.Setenv("NATS_URL", "nats://custom:4222")
	t.Setenv("NATS_TOKEN", "s3cr3t-token")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
	t.Setenv("INTERVIEWER_MODEL", "claude-opus-4-1")
	t.Setenv("INTERVIEWER_MAX_TOKENS", "2048")
	t.Setenv("CONTEXT_CAPACITY", "40")
	t.Setenv("TURN_TIMEOUT", "45s")
	t.Setenv("INTERVIEWER_API_TOKEN", "interviewer-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.StoreBackend != BackendBolt || cfg.BoltPath != "/var/lib/interviewer/data.db" {
		t.Errorf("unexpected store settings: %s %s", cfg.StoreBackend, cfg.BoltPath)
	}
	if cfg.NatsURL != "nats://custom:4222" || cfg.NatsToken != "s3cr3t-token" {
		t.Errorf("unexpected nats settings: %s %s", cfg.NatsURL, cfg.NatsToken)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.LogLevel)
	}
	if cfg.AnthropicAPIKey != "sk-test-key" || cfg.AnthropicModel != "claude-opus-4-1" || cfg.MaxTokens != 2048 {
		t.Errorf("unexpected provider settings: %+v", cfg)
	}
	if cfg.ContextCapacity != 40 {
		t.Errorf("expected capacity 40, got %d", cfg.ContextCapacity)
	}
	if cfg.TurnTimeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %s", cfg.TurnTimeout)
	}
	if cfg.APIToken != "interviewer-secret" {
		t.Errorf("expected custom api token, got %s", cfg.APIToken)
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTERVIEWER_PORT", "notanumber")
	t.Setenv("TURN_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8760 {
		t.Errorf("expected default port on invalid value, got %d", cfg.Port)
	}
	if cfg.TurnTimeout != 120*time.Second {
		t.Errorf("expected default timeout on invalid value, got %s", cfg.TurnTimeout)
	}
}

func TestLoad_FileOverlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "interviewer.yaml")
	content := `
port: 9100
store_backend: bolt
bolt_path: /tmp/from-file.db
model: claude-haiku
context_capacity: 30
turn_timeout: 90s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INTERVIEWER_CONFIG", path)
	t.Setenv("INTERVIEWER_PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9200 {
		t.Errorf("expected env to win over file, got port %d", cfg.Port)
	}
	if cfg.StoreBackend != BackendBolt || cfg.BoltPath != "/tmp/from-file.db" {
		t.Errorf("expected file store settings, got %s %s", cfg.StoreBackend, cfg.BoltPath)
	}
	if cfg.AnthropicModel != "claude-haiku" || cfg.ContextCapacity != 30 || cfg.TurnTimeout != 90*time.Second {
		t.Errorf("unexpected file values: %+v", cfg)
	}
	if cfg.MaxTokens != 1024 {
		t.Errorf("expected default for keys absent from file, got %d", cfg.MaxTokens)
	}
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INTERVIEWER_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}

	t.Setenv("INTERVIEWER_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected read error")
	}
}

func TestValidate(t *testing.T) {
	valid := defaults()
	valid.DatabaseURL = "postgres://localhost/interviewer"
	valid.AnthropicAPIKey = "sk-test"
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "mongo" }, "unknown store backend"},
		{"missing api key", func(c *Config) { c.AnthropicAPIKey = "" }, "ANTHROPIC_API_KEY"},
		{"tiny capacity", func(c *Config) { c.ContextCapacity = 1 }, "context capacity"},
		{"zero timeout", func(c *Config) { c.TurnTimeout = 0 }, "turn timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
