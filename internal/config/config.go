// Package config provides environment-driven configuration for graphrouter.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Backend variants.
const (
	BackendLocal    = "local"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendNeo4j    = "neo4j"
)

// Config holds all application configuration values. The env tag names the
// variable a field is read from and is used in validation messages.
type Config struct {
	Backend string `env:"GRAPH_BACKEND" validate:"oneof=local postgres badger neo4j"`

	LocalPath string `env:"LOCAL_PATH"`

	DatabaseURL Secret `env:"DATABASE_URL"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" validate:"min=1,max=200"`
	PGNotify    bool   `env:"PG_NOTIFY"`

	BadgerDir      string `env:"BADGER_DIR"`
	BadgerInMemory bool   `env:"BADGER_IN_MEMORY"`

	Neo4jURI      string `env:"NEO4J_URI"`
	Neo4jUser     string `env:"NEO4J_USER"`
	Neo4jPassword Secret `env:"NEO4J_PASSWORD"`
	Neo4jDatabase string `env:"NEO4J_DATABASE"`

	PoolSize           int           `env:"POOL_SIZE" validate:"min=1,max=256"`
	PoolAcquireTimeout time.Duration `env:"POOL_ACQUIRE_TIMEOUT" validate:"min=1ms"`
	OpTimeout          time.Duration `env:"OP_TIMEOUT" validate:"min=1ms"`
	CacheTTL           time.Duration `env:"CACHE_TTL" validate:"min=0"`

	OntologyFile string `env:"ONTOLOGY_FILE"`
	CoreOntology bool   `env:"CORE_ONTOLOGY"`

	OllamaURL         string `env:"OLLAMA_URL" validate:"required,url"`
	OllamaAllowRemote bool   `env:"OLLAMA_ALLOW_REMOTE"`
	LLMEnabled        bool   `env:"LLM_ENABLED"`
	LLMModel          string `env:"LLM_MODEL" validate:"required"`
	EmbeddingModel    string `env:"EMBEDDING_MODEL" validate:"required"`

	DedupMetadataKeys []string `env:"DEDUP_METADATA_KEYS"`
	DedupMinScore     float64  `env:"DEDUP_MIN_SCORE" validate:"gte=0,lte=1"`
	DedupLLMThreshold float64  `env:"DEDUP_LLM_THRESHOLD" validate:"gte=0,lte=1"`
	MergeThreshold    float64  `env:"MERGE_THRESHOLD" validate:"gt=0,lte=1"`
	EmbeddingField    string   `env:"EMBEDDING_FIELD"`
	COTMaxIterations  int      `env:"COT_MAX_ITERATIONS" validate:"min=1,max=50"`

	Port        string   `env:"PORT"`
	ListenHost  string   `env:"LISTEN_HOST"`
	CORSOrigins []string `env:"CORS_ORIGINS"`
	LogLevel    string   `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Backend:           strings.ToLower(envOrDefault("GRAPH_BACKEND", BackendLocal)),
		LocalPath:         envOrDefault("LOCAL_PATH", "graphrouter.json"),
		DatabaseURL:       Secret(envOrDefault("DATABASE_URL", "")),
		PGNotify:          envOrDefault("PG_NOTIFY", "true") == "true",
		BadgerDir:         envOrDefault("BADGER_DIR", "graphrouter-data"),
		BadgerInMemory:    envOrDefault("BADGER_IN_MEMORY", "false") == "true",
		Neo4jURI:          envOrDefault("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:         envOrDefault("NEO4J_USER", "neo4j"),
		Neo4jPassword:     Secret(envOrDefault("NEO4J_PASSWORD", "")),
		Neo4jDatabase:     envOrDefault("NEO4J_DATABASE", "neo4j"),
		OntologyFile:      envOrDefault("ONTOLOGY_FILE", ""),
		CoreOntology:      envOrDefault("CORE_ONTOLOGY", "true") == "true",
		OllamaURL:         envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaAllowRemote: envOrDefault("OLLAMA_ALLOW_REMOTE", "false") == "true",
		LLMEnabled:        envOrDefault("LLM_ENABLED", "false") == "true",
		LLMModel:          envOrDefault("LLM_MODEL", "llama3.1:8b"),
		EmbeddingModel:    envOrDefault("EMBEDDING_MODEL", "qwen3-embedding:0.6b"),
		EmbeddingField:    envOrDefault("EMBEDDING_FIELD", "embedding"),
		Port:              envOrDefault("PORT", "3030"),
		ListenHost:        envOrDefault("LISTEN_HOST", "127.0.0.1"),
		LogLevel:          strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		DedupMetadataKeys: splitList(envOrDefault("DEDUP_METADATA_KEYS", "")),
		CORSOrigins:       splitList(envOrDefault("CORS_ORIGINS", "http://localhost:3002")),
	}

	var err error

	ints := []struct {
		key, def string
		dst      *int
	}{
		{"DB_MAX_CONNS", "21", &cfg.DBMaxConns},
		{"POOL_SIZE", "10", &cfg.PoolSize},
		{"COT_MAX_ITERATIONS", "5", &cfg.COTMaxIterations},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(envOrDefault(f.key, f.def)); err != nil {
			return nil, fmt.Errorf("%s must be an integer: %w", f.key, err)
		}
	}

	floats := []struct {
		key, def string
		dst      *float64
	}{
		{"DEDUP_MIN_SCORE", "0.9", &cfg.DedupMinScore},
		{"DEDUP_LLM_THRESHOLD", "0", &cfg.DedupLLMThreshold},
		{"MERGE_THRESHOLD", "0.85", &cfg.MergeThreshold},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(envOrDefault(f.key, f.def), 64); err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", f.key, err)
		}
	}

	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"POOL_ACQUIRE_TIMEOUT", "5s", &cfg.PoolAcquireTimeout},
		{"OP_TIMEOUT", "30s", &cfg.OpTimeout},
		{"CACHE_TTL", "5m", &cfg.CacheTTL},
	}
	for _, f := range durations {
		if *f.dst, err = time.ParseDuration(envOrDefault(f.key, f.def)); err != nil {
			return nil, fmt.Errorf("%s must be a duration: %w", f.key, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
