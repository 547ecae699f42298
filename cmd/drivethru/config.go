package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration wraps time.Duration with YAML decoding from strings like "30s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

type (
	// Config is the demo binary configuration, loaded from YAML with
	// environment overrides for connection settings.
	Config struct {
		RestaurantID int64       `yaml:"restaurant_id"`
		Model        ModelConfig `yaml:"model"`
		Redis        RedisConfig `yaml:"redis"`
		Mongo        MongoConfig `yaml:"mongo"`
		Turn         TurnConfig  `yaml:"turn"`
		Audio        AudioConfig `yaml:"audio"`
	}

	// ModelConfig selects and tunes the LLM backend.
	ModelConfig struct {
		// Provider is "anthropic" or "openai".
		Provider string `yaml:"provider"`
		// Model is the provider model identifier.
		Model string `yaml:"model"`
		// APIKeyEnv names the environment variable holding the API key.
		APIKeyEnv string `yaml:"api_key_env"`
		// RateLimitTPM enables the adaptive rate limiter when positive.
		RateLimitTPM float64 `yaml:"rate_limit_tpm"`
		// MaxTPM caps recovery; defaults to twice RateLimitTPM.
		MaxTPM float64 `yaml:"max_tpm"`
	}

	// RedisConfig selects the Redis backends. An empty Addr keeps sessions,
	// orders and the menu cache in memory.
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	}

	// MongoConfig selects the durable menu repository. An empty URI uses an
	// in-memory menu seeded with a small demo menu.
	MongoConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	// TurnConfig tunes the orchestrator.
	TurnConfig struct {
		ConfidenceThreshold float64  `yaml:"confidence_threshold"`
		SessionTTL          duration `yaml:"session_ttl"`
		TurnDeadline        duration `yaml:"turn_deadline"`
	}

	// AudioConfig enables audio dispatch with a placeholder TTS engine.
	AudioConfig struct {
		Enabled  bool   `yaml:"enabled"`
		Voice    string `yaml:"voice"`
		Language string `yaml:"language"`
	}
)

func defaultConfig() Config {
	return Config{
		RestaurantID: 1,
		Model: ModelConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		Mongo: MongoConfig{Database: "drivethru"},
	}
}

// loadConfig reads the YAML file when path is non-empty, then applies
// environment overrides for connection settings.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.Redis.Addr = envOr("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envOr("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Mongo.URI = envOr("MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = envOr("MONGO_DATABASE", cfg.Mongo.Database)
	cfg.Model.Provider = envOr("MODEL_PROVIDER", cfg.Model.Provider)
	cfg.Model.Model = envOr("MODEL_ID", cfg.Model.Model)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Model.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.Model == "" {
		return errors.New("model identifier is required")
	}
	if c.Model.APIKeyEnv == "" {
		return errors.New("api_key_env is required")
	}
	if c.RestaurantID <= 0 {
		return errors.New("restaurant_id must be positive")
	}
	if c.Mongo.URI != "" && c.Mongo.Database == "" {
		return errors.New("mongo database is required when a URI is set")
	}
	return nil
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
