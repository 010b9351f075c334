package embedding

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/resilience"
)

// fakeService derives a vector from the text hash and records every request.
type fakeService struct {
	mu      sync.Mutex
	calls   int
	texts   []string
	failFor map[string]bool
}

func (f *fakeService) Model() string { return "fake-model" }

func (f *fakeService) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failFor[t] {
			return nil, errors.New("503 service unavailable")
		}
		f.texts = append(f.texts, t)
		sum := sha256.Sum256([]byte(t))
		out[i] = []float32{float32(sum[0]) + 1, float32(sum[1]), float32(sum[2])}
	}
	return out, nil
}

func newTestGenerator(t *testing.T, svc Service, store VectorStore, batch int) *Generator {
	t.Helper()
	cache, err := NewCache(16, store)
	require.NoError(t, err)
	exec := resilience.New("embedding", resilience.Options{
		MaxRetries:       1,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       time.Millisecond,
		Timeout:          time.Second,
		FailureThreshold: 100,
	}, nil)
	return NewGenerator(svc, cache, exec, GeneratorOptions{BatchSize: batch, Concurrency: 2})
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Blend Phonemes", "blend phonemes"},
		{"  blend   phonemes\tto form words. ", "blend phonemes to form words"},
		{"Count to 100!", "count to 100"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("m1", "Blend phonemes.")
	b := ContentHash("m1", "  blend   PHONEMES")
	c := ContentHash("m2", "blend phonemes")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "m1:"))
}

func TestEmbedAllSharesVectorsForDuplicateText(t *testing.T) {
	svc := &fakeService{}
	g := newTestGenerator(t, svc, nil, 10)

	res, err := g.EmbedAll(context.Background(), []Item{
		{EntityID: "s1", Text: "Blend phonemes"},
		{EntityID: "s2", Text: "blend  PHONEMES."},
		{EntityID: "s3", Text: "Segment syllables"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Vectors, 3)
	assert.Equal(t, res.Vectors["s1"], res.Vectors["s2"])
	assert.Len(t, svc.texts, 2)
	assert.Equal(t, 2, res.Misses)
	assert.Empty(t, res.Failures)
}

func TestEmbedAllUsesCacheOnRerun(t *testing.T) {
	svc := &fakeService{}
	store := NewMemoryStore()
	items := []Item{{EntityID: "s1", Text: "a"}, {EntityID: "s2", Text: "b"}}

	g := newTestGenerator(t, svc, store, 10)
	_, err := g.EmbedAll(context.Background(), items)
	require.NoError(t, err)
	callsAfterFirst := svc.calls

	// A fresh generator over the same store must not call the service again.
	g2 := newTestGenerator(t, svc, store, 10)
	res, err := g2.EmbedAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, svc.calls)
	assert.Equal(t, 2, res.Hits)
	assert.Equal(t, 0, res.Misses)
}

func TestEmbedAllReportsFailuresWithoutAborting(t *testing.T) {
	svc := &fakeService{failFor: map[string]bool{"bad text": true}}
	g := newTestGenerator(t, svc, nil, 1)

	res, err := g.EmbedAll(context.Background(), []Item{
		{EntityID: "ok", Text: "good text"},
		{EntityID: "bad", Text: "Bad text"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Vectors, "ok")
	assert.NotContains(t, res.Vectors, "bad")
	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, "bad", f.EntityID)
	assert.Equal(t, 2, f.Attempts)
	assert.ErrorIs(t, f, ErrUnembedded)
}

func TestCacheFirstWriterWins(t *testing.T) {
	store := NewMemoryStore()
	c1, err := NewCache(4, store)
	require.NoError(t, err)
	c2, err := NewCache(4, store)
	require.NoError(t, err)

	first, err := c1.Put(context.Background(), "h", "m", []float32{1, 0})
	require.NoError(t, err)
	second, err := c2.Put(context.Background(), "h", "m", []float32{0, 1})
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 0}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.Len())
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3e-7}
	got, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
