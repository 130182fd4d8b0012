package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

type Config struct {
	Port            int           `yaml:"port"`
	StoreBackend    string        `yaml:"store_backend"`
	DatabaseURL     string        `yaml:"database_url"`
	BoltPath        string        `yaml:"bolt_path"`
	NatsURL         string        `yaml:"nats_url"`
	NatsToken       string        `yaml:"nats_token"`
	LogLevel        string        `yaml:"log_level"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AnthropicModel  string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
	ContextCapacity int           `yaml:"context_capacity"`
	TurnTimeout     time.Duration `yaml:"turn_timeout"`
	APIToken        string        `yaml:"api_token"`
}

func defaults() Config {
	return Config{
		Port:            8760,
		StoreBackend:    BackendPostgres,
		BoltPath:        "interviewer.db",
		LogLevel:        "info",
		AnthropicModel:  "claude-sonnet-4-20250514",
		MaxTokens:       1024,
		ContextCapacity: 20,
		TurnTimeout:     120 * time.Second,
	}
}

// Load builds the config from defaults, the YAML file named by
// INTERVIEWER_CONFIG if set, then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("INTERVIEWER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = envInt("INTERVIEWER_PORT", cfg.Port)
	cfg.StoreBackend = envStr("STORE_BACKEND", cfg.StoreBackend)
	cfg.DatabaseURL = envStr("DATABASE_URL", cfg.DatabaseURL)
	cfg.BoltPath = envStr("BOLT_PATH", cfg.BoltPath)
	cfg.NatsURL = envStr("NATS_URL", cfg.NatsURL)
	cfg.NatsToken = envStr("NATS_TOKEN", cfg.NatsToken)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = envStr("INTERVIEWER_MODEL", cfg.AnthropicModel)
	cfg.MaxTokens = envInt("INTERVIEWER_MAX_TOKENS", cfg.MaxTokens)
	cfg.ContextCapacity = envInt("CONTEXT_CAPACITY", cfg.ContextCapacity)
	cfg.TurnTimeout = envDuration("TURN_TIMEOUT", cfg.TurnTimeout)
	cfg.APIToken = envStr("INTERVIEWER_API_TOKEN", cfg.APIToken)
	return cfg, nil
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendBolt:
		if c.BoltPath == "" {
			errs = append(errs, errors.New("BOLT_PATH is required for the bolt backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	if c.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("ANTHROPIC_API_KEY is required"))
	}
	if c.ContextCapacity < 2 {
		errs = append(errs, fmt.Errorf("context capacity %d leaves no room for turns", c.ContextCapacity))
	}
	if c.TurnTimeout <= 0 {
		errs = append(errs, fmt.Errorf("turn timeout must be positive, got %s", c.TurnTimeout))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
