// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for
// zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Model         ModelConfig         `yaml:"model"`
	Cache         CacheConfig         `yaml:"cache"`
	PromptCache   PromptCacheConfig   `yaml:"prompt_cache"`
	Batch         BatchConfig         `yaml:"batch"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Guardrails    GuardrailsConfig    `yaml:"guardrails"`
	Auth          AuthConfig          `yaml:"auth"`
	Audit         AuditConfig         `yaml:"audit"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Secrets       SecretsConfig       `yaml:"secrets"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// ModelConfig describes the inference backend. An empty BaseURL leaves the
// engine in demo mode.
type ModelConfig struct {
	Backend     string        `yaml:"backend"` // llamacpp
	BaseURL     string        `yaml:"base_url"`
	Name        string        `yaml:"name"`
	ContextSize int           `yaml:"context_size"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CacheConfig tunes the semantic response cache.
type CacheConfig struct {
	MaxEntries          int     `yaml:"max_entries"`
	Dimension           int     `yaml:"dimension"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	HitWeightSeconds    int64   `yaml:"hit_weight_seconds"`

	// Snapshot persists cache state through Redis when a URL is set.
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// SnapshotConfig controls Redis-backed cache persistence. The snapshot is
// rewritten on every cache mutation, so there is no flush schedule to tune.
type SnapshotConfig struct {
	RedisURL string `yaml:"redis_url"`
	Key      string `yaml:"key"`
}

// PromptCacheConfig tunes the exact-match shortcut.
type PromptCacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// BatchConfig tunes the continuous batching scheduler.
type BatchConfig struct {
	MaxBatchSize   int           `yaml:"max_batch_size"`
	Window         time.Duration `yaml:"window"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	QueueSize      int           `yaml:"queue_size"`
}

// RetrievalConfig tunes the document store.
type RetrievalConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Dimension   int     `yaml:"dimension"`
	TopK        int     `yaml:"top_k"`
	Threshold   float64 `yaml:"threshold"`
	StoragePath string  `yaml:"storage_path"`
}

// GuardrailsConfig tunes input/output screening.
type GuardrailsConfig struct {
	StrictMode             *bool   `yaml:"strict_mode"`
	MaskPII                *bool   `yaml:"mask_pii"`
	ToxicityThreshold      float64 `yaml:"toxicity_threshold"`
	HallucinationThreshold float64 `yaml:"hallucination_threshold"`
}

// AuthConfig controls API authentication. Mode is one of "none",
// "api_key", or "jwt".
type AuthConfig struct {
	Mode        string          `yaml:"mode"`
	APIKeys     []string        `yaml:"api_keys"`
	JWTSecret   string          `yaml:"jwt_secret"`
	OIDCIssuer  string          `yaml:"oidc_issuer"`
	OIDCAudience string         `yaml:"oidc_audience"`
	PostgresDSN string          `yaml:"postgres_dsn"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig defines per-caller rate limiting parameters.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
}

// AuditConfig controls the generation audit trail.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	S3Bucket      string        `yaml:"s3_bucket"`
	S3Region      string        `yaml:"s3_region"`
	S3Endpoint    string        `yaml:"s3_endpoint"` // MinIO-compatible endpoint
	KeyPrefix     string        `yaml:"key_prefix"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBatch      int           `yaml:"max_batch"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	Protocol    string  `yaml:"protocol"`     // "grpc" or "http"
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// SecretsConfig selects how secret:// references are resolved.
type SecretsConfig struct {
	VaultAddr  string `yaml:"vault_addr"`
	VaultToken string `yaml:"vault_token"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Model: ModelConfig{
			Backend: "llamacpp",
			Timeout: 120 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries:          10000,
			Dimension:           768,
			SimilarityThreshold: 0.95,
			HitWeightSeconds:    3600,
			Snapshot: SnapshotConfig{
				Key: "inferd:cache:snapshot",
			},
		},
		PromptCache: PromptCacheConfig{
			Enabled:    true,
			MaxEntries: 100,
			TTL:        time.Hour,
		},
		Batch: BatchConfig{
			MaxBatchSize:   4,
			Window:         100 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			QueueSize:      64,
		},
		Retrieval: RetrievalConfig{
			Enabled:   true,
			Dimension: 768,
			TopK:      2,
			Threshold: 0.3,
		},
		Guardrails: GuardrailsConfig{
			ToxicityThreshold:      0.7,
			HallucinationThreshold: 0.8,
		},
		Auth: AuthConfig{
			Mode: "none",
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
		},
		Audit: AuditConfig{
			Enabled:       false,
			S3Region:      "us-east-1",
			KeyPrefix:     "audit",
			FlushInterval: 30 * time.Second,
			MaxBatch:      100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			ServiceName: "inferd",
			SampleRate:  1.0,
			Insecure:    true,
		},
		Secrets: SecretsConfig{
			CacheTTL: 5 * time.Minute,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	if c.Cache.Dimension <= 0 {
		return fmt.Errorf("cache.dimension must be positive")
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be in (0, 1]: %v", c.Cache.SimilarityThreshold)
	}

	if c.Batch.MaxBatchSize <= 0 {
		return fmt.Errorf("batch.max_batch_size must be positive")
	}
	if c.Batch.Window <= 0 {
		return fmt.Errorf("batch.window must be positive")
	}
	if c.Batch.RequestTimeout <= 0 {
		return fmt.Errorf("batch.request_timeout must be positive")
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be in [0, 1]: %v", c.Retrieval.Threshold)
	}

	switch c.Auth.Mode {
	case "", "none":
	case "api_key":
		if len(c.Auth.APIKeys) == 0 && c.Auth.PostgresDSN == "" {
			return fmt.Errorf("auth.mode api_key requires api_keys or postgres_dsn")
		}
	case "jwt":
		if c.Auth.JWTSecret == "" && c.Auth.OIDCIssuer == "" {
			return fmt.Errorf("auth.mode jwt requires jwt_secret or oidc_issuer")
		}
	default:
		return fmt.Errorf("unknown auth.mode: %q", c.Auth.Mode)
	}

	if c.Audit.Enabled && c.Audit.S3Bucket == "" {
		return fmt.Errorf("audit.s3_bucket is required when audit is enabled")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level: %q", c.Logging.Level)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be in [0, 1]: %v", c.Tracing.SampleRate)
	}
	switch c.Tracing.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("unknown tracing.protocol: %q", c.Tracing.Protocol)
	}

	return nil
}
