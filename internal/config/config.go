package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meetline/recapd/internal/storage"
)

// EnvPrefix is the namespace prefix for all recapd environment variables.
const EnvPrefix = "RECAPD_"

// Config holds all application configuration. Secrets (API keys, the
// ingest token secret) are loaded exclusively from environment
// variables and never appear in the config file.
type Config struct {
	ListenAddr   string              `yaml:"listen_addr"`
	DBPath       string              `yaml:"db_path"`
	Kafka        storage.KafkaConfig `yaml:"kafka"`
	RecapModel   string              `yaml:"recap_model"`
	ASRModel     string              `yaml:"asr_model"`
	TokenTTL     string              `yaml:"token_ttl"`
	ConsumerIdle string              `yaml:"consumer_idle"`
	LogLevel     string              `yaml:"log_level"`
	LogFormat    string              `yaml:"log_format"`

	// Secrets — env vars only, never serialized to YAML.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	TokenSecret     string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:   ":8080",
		DBPath:       "data/recapd.db",
		RecapModel:   "openai/gpt-4o-mini",
		ASRModel:     "nova-2",
		TokenTTL:     "30m",
		ConsumerIdle: "15m",
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the
// result. It returns the config, any validation warnings, and an error
// if the file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedTokenTTL returns TokenTTL as a time.Duration, falling back to
// 30m if the value is invalid.
func (c *Config) ParsedTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// ParsedConsumerIdle returns ConsumerIdle as a time.Duration, falling
// back to 15m if the value is invalid.
func (c *Config) ParsedConsumerIdle() time.Duration {
	d, err := time.ParseDuration(c.ConsumerIdle)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = parseList(v)
	}
	if v := os.Getenv(EnvPrefix + "KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv(EnvPrefix + "RECAP_MODEL"); v != "" {
		cfg.RecapModel = v
	}
	if v := os.Getenv(EnvPrefix + "ASR_MODEL"); v != "" {
		cfg.ASRModel = v
	}
	if v := os.Getenv(EnvPrefix + "TOKEN_TTL"); v != "" {
		cfg.TokenTTL = v
	}
	if v := os.Getenv(EnvPrefix + "CONSUMER_IDLE"); v != "" {
		cfg.ConsumerIdle = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.TokenSecret = os.Getenv(EnvPrefix + "TOKEN_SECRET")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured — audio transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if providerKey(cfg) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key configured for recap model %q — recaps fall back to raw transcript text.", cfg.RecapModel))
	}
	if cfg.TokenSecret == "" {
		warnings = append(warnings, "Ingest token secret not configured — a random per-process secret will be generated. Set "+EnvPrefix+"TOKEN_SECRET.")
	}
	if _, err := time.ParseDuration(cfg.TokenTTL); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid token_ttl %q — using default 30m.", cfg.TokenTTL))
	}
	if _, err := time.ParseDuration(cfg.ConsumerIdle); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid consumer_idle %q — using default 15m.", cfg.ConsumerIdle))
	}

	return warnings
}

// RecapAPIKey returns the API key matching the recap model's provider,
// or "" when that provider has no key configured.
func (c *Config) RecapAPIKey() string {
	return providerKey(c)
}

func providerKey(cfg *Config) string {
	provider := cfg.RecapModel
	if i := strings.IndexByte(provider, '/'); i >= 0 {
		provider = provider[:i]
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return cfg.OpenAIAPIKey
	case "anthropic":
		return cfg.AnthropicAPIKey
	case "gemini":
		return cfg.GeminiAPIKey
	}
	return ""
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
