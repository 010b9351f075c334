package metrics

import (
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.EmbeddingLookup("hit", 3)
	c.EmbeddingLookup("miss", 2)
	c.EmbeddingLookup("miss", 0)
	c.LLMCall(true)
	c.LLMCall(false)
	c.LLMCall(false)
	c.Conflict("sibling-conflict", "open")

	assert.Equal(t, 3.0, testutil.ToFloat64(c.Embeddings.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Embeddings.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.LLMCalls.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Conflicts.WithLabelValues("sibling-conflict", "open")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.EmbeddingLookup("hit", 1)
		c.LLMCall(true)
		c.PairCompared("skill", 10)
		c.CheckpointWritten()
		c.ObserveStage("embed", time.Second)
		_, _ = c.WriteTextfile(t.TempDir())
	})
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.PairCompared("taxonomy", 7)
	c.ObserveStage("similarity", 250*time.Millisecond)

	path, err := c.WriteTextfile(t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `skillmece_pairs_compared_total{kind="taxonomy"} 7`)
	assert.Contains(t, string(data), "skillmece_stage_duration_seconds")
}
