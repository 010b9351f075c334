// Package config loads skillmece settings from a YAML file, SKILLMECE_* environment
// variables and command-line overrides, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file is looked up when --config is not given.
const DefaultPath = ".skillmece/config.yaml"

// Config is the complete runtime configuration.
type Config struct {
	Thresholds ThresholdConfig  `yaml:"thresholds"`
	Complexity ComplexityConfig `yaml:"complexity"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Retry      RetryConfig      `yaml:"retry"`
	Batch      BatchConfig      `yaml:"batch"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`

	// OutputDir receives report artifacts and the metrics textfile.
	OutputDir string `yaml:"output_dir"`
}

// ThresholdConfig holds every similarity cut-off used by the pipeline.
// All lower bounds are inclusive.
type ThresholdConfig struct {
	// VariantFloor is the minimum score for rule-based variant classification.
	VariantFloor float64 `yaml:"variant_floor"`

	// AmbiguousLow and AmbiguousHigh bound the LLM escalation band.
	// Only scores strictly inside (low, high) reach the adjudicator.
	AmbiguousLow  float64 `yaml:"ambiguous_low"`
	AmbiguousHigh float64 `yaml:"ambiguous_high"`

	// ConceptHigh is the minimum intra-group similarity for a High concept.
	ConceptHigh float64 `yaml:"concept_high"`

	MECEHigh   float64 `yaml:"mece_high"`
	MECEMedium float64 `yaml:"mece_medium"`

	// LabelMatch is the minimum centroid similarity for adopting a taxonomy label
	// as a concept's canonical name.
	LabelMatch float64 `yaml:"label_match"`
}

// ComplexityConfig tunes the grade-progression complexity signal.
type ComplexityConfig struct {
	Qualifiers       []string `yaml:"qualifiers"`
	QualifierWeight  float64  `yaml:"qualifier_weight"`
	NumeralWeight    float64  `yaml:"numeral_weight"`
	TokenWeight      float64  `yaml:"token_weight"`
	MinDelta         float64  `yaml:"min_delta"`
	BorderlineMargin float64  `yaml:"borderline_margin"`
}

// EmbeddingConfig configures the external embedding service and the vector cache.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	HotCacheSize      int     `yaml:"hot_cache_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	APIKey            string  `yaml:"-"`
}

// LLMConfig configures the ambiguous-pair adjudicator.
type LLMConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	APIKey            string  `yaml:"-"`
}

// RetryConfig holds retry and circuit breaker settings shared by external calls.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Timeout           time.Duration `yaml:"timeout"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	OpenTimeout       time.Duration `yaml:"open_timeout"`
}

// BatchConfig controls orchestration.
type BatchConfig struct {
	CheckpointInterval int `yaml:"checkpoint_interval"`
	Concurrency        int `yaml:"concurrency"`
	ShardSize          int `yaml:"shard_size"`
	// Limit samples the first N entities by id; 0 disables sampling.
	Limit int `yaml:"limit"`
	// MaxTokenDF skips tokens shared by more entities than this; 0 disables the guard.
	MaxTokenDF int `yaml:"max_token_df"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig selects the logger mode and level.
type LoggingConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Thresholds: ThresholdConfig{
			VariantFloor:  0.75,
			AmbiguousLow:  0.60,
			AmbiguousHigh: 0.75,
			ConceptHigh:   0.85,
			MECEHigh:      0.90,
			MECEMedium:    0.85,
			LabelMatch:    0.80,
		},
		Complexity: ComplexityConfig{
			Qualifiers:       DefaultQualifiers(),
			QualifierWeight:  1.0,
			NumeralWeight:    0.5,
			TokenWeight:      0.1,
			MinDelta:         0.5,
			BorderlineMargin: 0.25,
		},
		Embedding: EmbeddingConfig{
			Provider:          "openai",
			Model:             "text-embedding-3-small",
			Dimensions:        1536,
			BatchSize:         64,
			HotCacheSize:      10000,
			RequestsPerSecond: 5,
		},
		LLM: LLMConfig{
			Enabled:           true,
			Model:             "claude-3-5-haiku-20241022",
			MaxTokens:         512,
			RequestsPerSecond: 2,
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
			Timeout:           60 * time.Second,
			FailureThreshold:  5,
			OpenTimeout:       30 * time.Second,
		},
		Batch: BatchConfig{
			CheckpointInterval: 500,
			Concurrency:        4,
			ShardSize:          1000,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   ".skillmece/skillmece.db",
		},
		Logging: LoggingConfig{
			Mode:  "dev",
			Level: "info",
		},
		OutputDir: "out",
	}
}

// DefaultQualifiers is the lexicon of words that mark a more demanding task.
func DefaultQualifiers() []string {
	return []string{
		"multiple", "complex", "multi-step", "multisyllabic", "independently", "fluently",
		"accurately", "explain", "justify", "analyze", "evaluate", "compare", "contrast",
		"synthesize", "infer", "increasingly", "grade-level", "advanced", "abstract",
		"several", "various", "cite", "support", "evidence",
	}
}

// Load reads the config file at path over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	t := c.Thresholds
	for name, v := range map[string]float64{
		"variant_floor":  t.VariantFloor,
		"ambiguous_low":  t.AmbiguousLow,
		"ambiguous_high": t.AmbiguousHigh,
		"concept_high":   t.ConceptHigh,
		"mece_high":      t.MECEHigh,
		"mece_medium":    t.MECEMedium,
		"label_match":    t.LabelMatch,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0 (got %.2f)", name, v)
		}
	}
	if t.AmbiguousLow >= t.AmbiguousHigh {
		return fmt.Errorf("ambiguous_low must be below ambiguous_high (got %.2f >= %.2f)", t.AmbiguousLow, t.AmbiguousHigh)
	}
	if t.AmbiguousHigh > t.VariantFloor {
		return fmt.Errorf("ambiguous_high cannot exceed variant_floor (got %.2f > %.2f)", t.AmbiguousHigh, t.VariantFloor)
	}
	if t.MECEMedium >= t.MECEHigh {
		return fmt.Errorf("mece_medium must be below mece_high (got %.2f >= %.2f)", t.MECEMedium, t.MECEHigh)
	}

	if c.Complexity.MinDelta < 0 {
		return fmt.Errorf("complexity.min_delta cannot be negative (got %.2f)", c.Complexity.MinDelta)
	}
	if c.Complexity.BorderlineMargin < 0 {
		return fmt.Errorf("complexity.borderline_margin cannot be negative (got %.2f)", c.Complexity.BorderlineMargin)
	}

	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 2048 {
		return fmt.Errorf("embedding.batch_size must be in 1..2048 (got %d)", c.Embedding.BatchSize)
	}
	if c.Embedding.HotCacheSize <= 0 {
		return fmt.Errorf("embedding.hot_cache_size must be positive (got %d)", c.Embedding.HotCacheSize)
	}
	if c.Embedding.RequestsPerSecond < 0 || c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive (got %d)", c.LLM.MaxTokens)
	}

	r := c.Retry
	if r.MaxRetries < 0 || r.MaxRetries > 10 {
		return fmt.Errorf("retry.max_retries must be in 0..10 (got %d)", r.MaxRetries)
	}
	if r.InitialBackoff <= 0 || r.MaxBackoff < r.InitialBackoff {
		return fmt.Errorf("retry backoff must satisfy 0 < initial <= max (got %v, %v)", r.InitialBackoff, r.MaxBackoff)
	}
	if r.BackoffMultiplier < 1.0 {
		return fmt.Errorf("retry.backoff_multiplier must be >= 1.0 (got %.2f)", r.BackoffMultiplier)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("retry.timeout must be positive (got %v)", r.Timeout)
	}
	if r.FailureThreshold <= 0 {
		return fmt.Errorf("retry.failure_threshold must be positive (got %d)", r.FailureThreshold)
	}

	b := c.Batch
	if b.CheckpointInterval <= 0 {
		return fmt.Errorf("batch.checkpoint_interval must be positive (got %d)", b.CheckpointInterval)
	}
	if b.Concurrency <= 0 || b.Concurrency > 64 {
		return fmt.Errorf("batch.concurrency must be in 1..64 (got %d)", b.Concurrency)
	}
	if b.ShardSize <= 0 {
		return fmt.Errorf("batch.shard_size must be positive (got %d)", b.ShardSize)
	}
	if b.Limit < 0 || b.MaxTokenDF < 0 {
		return fmt.Errorf("batch.limit and batch.max_token_df cannot be negative")
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (want sqlite or postgres)", c.Storage.Driver)
	}

	switch strings.ToLower(c.Logging.Mode) {
	case "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("unknown logging mode %q", c.Logging.Mode)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Floor: %.2f, Ambiguous: (%.2f, %.2f), ConceptHigh: %.2f, MECE: %.2f/%.2f, "+
			"Embedding: %s/%s, LLM: %t/%s, Retries: %d, Timeout: %v, "+
			"Checkpoint: %d, Concurrency: %d, Limit: %d, Storage: %s}",
		c.Thresholds.VariantFloor, c.Thresholds.AmbiguousLow, c.Thresholds.AmbiguousHigh,
		c.Thresholds.ConceptHigh, c.Thresholds.MECEHigh, c.Thresholds.MECEMedium,
		c.Embedding.Provider, c.Embedding.Model, c.LLM.Enabled, c.LLM.Model,
		c.Retry.MaxRetries, c.Retry.Timeout,
		c.Batch.CheckpointInterval, c.Batch.Concurrency, c.Batch.Limit, c.Storage.Driver,
	)
}
