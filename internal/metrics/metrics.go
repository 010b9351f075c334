// Package metrics holds the per-run Prometheus registry. A run writes the registry
// to a textfile at the end so node_exporter style collectors can pick it up.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "skillmece"

// Collector holds all Prometheus metrics for a batch run.
// Every method is safe to call on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	Embeddings     *prometheus.CounterVec
	LLMCalls       *prometheus.CounterVec
	PairsCompared  *prometheus.CounterVec
	Conflicts      *prometheus.CounterVec
	Checkpoints    prometheus.Counter
	StageDuration  *prometheus.HistogramVec
	ExternalErrors *prometheus.CounterVec
}

// NewCollector creates a collector backed by a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Embeddings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embeddings_total",
				Help:      "Embedding lookups by outcome (hit, miss, failed)",
			},
			[]string{"result"},
		),
		LLMCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Adjudicator calls by outcome (ok, failed)",
			},
			[]string{"result"},
		),
		PairsCompared: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pairs_compared_total",
				Help:      "Similarity computations by entity kind",
			},
			[]string{"kind"},
		),
		Conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conflicts_total",
				Help:      "Taxonomy conflicts by category and status",
			},
			[]string{"category", "status"},
		),
		Checkpoints: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoints_written_total",
				Help:      "Checkpoints persisted",
			},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time per orchestrator stage",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"stage"},
		),
		ExternalErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_errors_total",
				Help:      "Failed attempts against external services",
			},
			[]string{"service"},
		),
	}

	registry.MustRegister(
		c.Embeddings, c.LLMCalls, c.PairsCompared, c.Conflicts,
		c.Checkpoints, c.StageDuration, c.ExternalErrors,
	)
	return c
}

// Registry exposes the underlying registry for gathering.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) EmbeddingLookup(result string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Embeddings.WithLabelValues(result).Add(float64(n))
}

func (c *Collector) LLMCall(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.LLMCalls.WithLabelValues(result).Inc()
}

func (c *Collector) PairCompared(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.PairsCompared.WithLabelValues(kind).Add(float64(n))
}

func (c *Collector) Conflict(category, status string) {
	if c == nil {
		return
	}
	c.Conflicts.WithLabelValues(category, status).Inc()
}

func (c *Collector) CheckpointWritten() {
	if c == nil {
		return
	}
	c.Checkpoints.Inc()
}

func (c *Collector) ExternalError(service string) {
	if c == nil {
		return
	}
	c.ExternalErrors.WithLabelValues(service).Inc()
}

// ObserveStage records how long a stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the text exposition format to dir/metrics.prom.
func (c *Collector) WriteTextfile(dir string) (string, error) {
	if c == nil {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create metrics directory: %w", err)
	}
	path := filepath.Join(dir, "metrics.prom")
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return "", fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return path, nil
}
