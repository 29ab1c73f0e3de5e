package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "DB_PATH", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"RECAP_MODEL", "ASR_MODEL", "TOKEN_TTL", "CONSUMER_IDLE",
		"LOG_LEVEL", "LOG_FORMAT",
		"DEEPGRAM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"GEMINI_API_KEY", "TOKEN_SECRET", "CONFIG",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen_addr, got %q", cfg.ListenAddr)
	}
	if cfg.DBPath != "data/recapd.db" {
		t.Fatalf("expected default db_path, got %q", cfg.DBPath)
	}
	if cfg.RecapModel != "openai/gpt-4o-mini" {
		t.Fatalf("expected default recap_model, got %q", cfg.RecapModel)
	}
	if cfg.ParsedTokenTTL() != 30*time.Minute {
		t.Fatalf("expected default token ttl 30m, got %v", cfg.ParsedTokenTTL())
	}
	if cfg.ParsedConsumerIdle() != 15*time.Minute {
		t.Fatalf("expected default consumer idle 15m, got %v", cfg.ParsedConsumerIdle())
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
listen_addr: ":9090"
db_path: /custom/recapd.db
kafka:
  brokers: [broker-1:9092, broker-2:9092]
  topic: transcripts
recap_model: anthropic/claude-sonnet-4-20250514
token_ttl: 10m
log_level: debug
log_format: console
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected yaml listen_addr, got %q", cfg.ListenAddr)
	}
	if cfg.DBPath != "/custom/recapd.db" {
		t.Fatalf("expected yaml db_path, got %q", cfg.DBPath)
	}
	if !reflect.DeepEqual(cfg.Kafka.Brokers, []string{"broker-1:9092", "broker-2:9092"}) {
		t.Fatalf("expected yaml kafka brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "transcripts" {
		t.Fatalf("expected yaml kafka topic, got %q", cfg.Kafka.Topic)
	}
	if cfg.RecapModel != "anthropic/claude-sonnet-4-20250514" {
		t.Fatalf("expected yaml recap_model, got %q", cfg.RecapModel)
	}
	if cfg.ParsedTokenTTL() != 10*time.Minute {
		t.Fatalf("expected yaml token ttl 10m, got %v", cfg.ParsedTokenTTL())
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected defaults for missing file, got %q", cfg.ListenAddr)
	}
}

func TestMalformedFileErrors(t *testing.T) {
	clearEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("listen_addr: [unbalanced"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := Load(configPath); err == nil {
		t.Fatal("expected parse error for malformed yaml")
	}
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("listen_addr: \":9090\"\nrecap_model: openai/gpt-4o\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvPrefix+"LISTEN_ADDR", ":7070")
	t.Setenv(EnvPrefix+"RECAP_MODEL", "gemini/gemini-2.0-flash")
	t.Setenv(EnvPrefix+"KAFKA_BROKERS", " broker-a:9092 , broker-b:9092 ,")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("env override lost, got %q", cfg.ListenAddr)
	}
	if cfg.RecapModel != "gemini/gemini-2.0-flash" {
		t.Fatalf("env override lost, got %q", cfg.RecapModel)
	}
	if !reflect.DeepEqual(cfg.Kafka.Brokers, []string{"broker-a:9092", "broker-b:9092"}) {
		t.Fatalf("broker list parse, got %v", cfg.Kafka.Brokers)
	}
}

func TestSecretsFromEnvOnly(t *testing.T) {
	clearEnv(t)

	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "dg-key")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oa-key")
	t.Setenv(EnvPrefix+"TOKEN_SECRET", "hush")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DeepgramAPIKey != "dg-key" || cfg.OpenAIAPIKey != "oa-key" || cfg.TokenSecret != "hush" {
		t.Fatal("secrets not loaded from env")
	}
	for _, w := range warnings {
		if strings.Contains(w, "DEEPGRAM") || strings.Contains(w, "TOKEN_SECRET") {
			t.Fatalf("unexpected warning with secrets set: %q", w)
		}
	}
}

func TestWarningsWhenSecretsMissing(t *testing.T) {
	clearEnv(t)

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	wantFragments := []string{"DEEPGRAM_API_KEY", "recap model", "TOKEN_SECRET"}
	for _, frag := range wantFragments {
		found := false
		for _, w := range warnings {
			if strings.Contains(w, frag) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing warning about %q in %v", frag, warnings)
		}
	}
}

func TestRecapAPIKeyMatchesProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oa-key")
	t.Setenv(EnvPrefix+"ANTHROPIC_API_KEY", "an-key")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.RecapModel = "openai/gpt-4o-mini"
	if got := cfg.RecapAPIKey(); got != "oa-key" {
		t.Fatalf("openai key, got %q", got)
	}
	cfg.RecapModel = "anthropic/claude-sonnet-4-20250514"
	if got := cfg.RecapAPIKey(); got != "an-key" {
		t.Fatalf("anthropic key, got %q", got)
	}
	cfg.RecapModel = "gemini/gemini-2.0-flash"
	if got := cfg.RecapAPIKey(); got != "" {
		t.Fatalf("gemini key unset, got %q", got)
	}
	cfg.RecapModel = "no-slash-model"
	if got := cfg.RecapAPIKey(); got != "" {
		t.Fatalf("unknown provider, got %q", got)
	}
}

func TestInvalidDurationsFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"TOKEN_TTL", "soon")
	t.Setenv(EnvPrefix+"CONSUMER_IDLE", "-5m")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ParsedTokenTTL() != 30*time.Minute {
		t.Fatalf("invalid ttl fallback, got %v", cfg.ParsedTokenTTL())
	}
	if cfg.ParsedConsumerIdle() != 15*time.Minute {
		t.Fatalf("negative idle fallback, got %v", cfg.ParsedConsumerIdle())
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "token_ttl") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing token_ttl warning in %v", warnings)
	}
}
