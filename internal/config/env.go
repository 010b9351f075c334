package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides fields from environment variables.
//
// Environment variables:
//   - SKILLMECE_VARIANT_FLOOR, SKILLMECE_AMBIGUOUS_LOW, SKILLMECE_AMBIGUOUS_HIGH
//   - SKILLMECE_CONCEPT_HIGH, SKILLMECE_MECE_HIGH, SKILLMECE_MECE_MEDIUM, SKILLMECE_LABEL_MATCH
//   - SKILLMECE_EMBEDDING_MODEL, SKILLMECE_EMBEDDING_BATCH_SIZE
//   - SKILLMECE_LLM_ENABLED, SKILLMECE_LLM_MODEL
//   - SKILLMECE_MAX_RETRIES, SKILLMECE_TIMEOUT_SECS
//   - SKILLMECE_CHECKPOINT_INTERVAL, SKILLMECE_CONCURRENCY, SKILLMECE_LIMIT
//   - SKILLMECE_DB, SKILLMECE_DB_DRIVER, SKILLMECE_DSN
//   - SKILLMECE_LOG_MODE, SKILLMECE_LOG_LEVEL, SKILLMECE_OUT
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY
//
// Returns an error if any environment variable has an invalid value.
func (c *Config) ApplyEnv() error {
	floats := []struct {
		key  string
		dest *float64
	}{
		{"SKILLMECE_VARIANT_FLOOR", &c.Thresholds.VariantFloor},
		{"SKILLMECE_AMBIGUOUS_LOW", &c.Thresholds.AmbiguousLow},
		{"SKILLMECE_AMBIGUOUS_HIGH", &c.Thresholds.AmbiguousHigh},
		{"SKILLMECE_CONCEPT_HIGH", &c.Thresholds.ConceptHigh},
		{"SKILLMECE_MECE_HIGH", &c.Thresholds.MECEHigh},
		{"SKILLMECE_MECE_MEDIUM", &c.Thresholds.MECEMedium},
		{"SKILLMECE_LABEL_MATCH", &c.Thresholds.LabelMatch},
	}
	for _, f := range floats {
		if err := parseEnvFloat(f.key, f.dest); err != nil {
			return err
		}
	}

	ints := []struct {
		key  string
		dest *int
	}{
		{"SKILLMECE_EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize},
		{"SKILLMECE_MAX_RETRIES", &c.Retry.MaxRetries},
		{"SKILLMECE_CHECKPOINT_INTERVAL", &c.Batch.CheckpointInterval},
		{"SKILLMECE_CONCURRENCY", &c.Batch.Concurrency},
		{"SKILLMECE_LIMIT", &c.Batch.Limit},
	}
	for _, i := range ints {
		if err := parseEnvInt(i.key, i.dest); err != nil {
			return err
		}
	}

	if err := parseEnvBool("SKILLMECE_LLM_ENABLED", &c.LLM.Enabled); err != nil {
		return err
	}
	if err := parseEnvDuration("SKILLMECE_TIMEOUT_SECS", &c.Retry.Timeout, time.Second); err != nil {
		return err
	}

	strs := []struct {
		key  string
		dest *string
	}{
		{"SKILLMECE_EMBEDDING_MODEL", &c.Embedding.Model},
		{"SKILLMECE_LLM_MODEL", &c.LLM.Model},
		{"SKILLMECE_DB", &c.Storage.Path},
		{"SKILLMECE_DB_DRIVER", &c.Storage.Driver},
		{"SKILLMECE_DSN", &c.Storage.DSN},
		{"SKILLMECE_LOG_MODE", &c.Logging.Mode},
		{"SKILLMECE_LOG_LEVEL", &c.Logging.Level},
		{"SKILLMECE_OUT", &c.OutputDir},
		{"OPENAI_API_KEY", &c.Embedding.APIKey},
		{"ANTHROPIC_API_KEY", &c.LLM.APIKey},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dest = v
		}
	}
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable.
// The multiplier converts the numeric value (e.g. time.Second for *_SECS keys).
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
