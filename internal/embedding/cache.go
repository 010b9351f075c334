package embedding

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// VectorStore is the persistent, content-addressed tier of the cache.
type VectorStore interface {
	GetEmbeddings(ctx context.Context, hashes []string) (map[string][]float32, error)
	// PutEmbedding inserts vec under hash unless a vector is already stored,
	// and returns whichever vector the store holds afterwards.
	PutEmbedding(ctx context.Context, hash, model string, vec []float32) ([]float32, error)
}

// Cache is a bounded LRU of hot vectors in front of a VectorStore.
type Cache struct {
	hot   *lru.Cache[string, []float32]
	store VectorStore
}

// NewCache creates a cache holding up to size hot vectors.
func NewCache(size int, store VectorStore) (*Cache, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	hot, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create hot cache: %w", err)
	}
	return &Cache{hot: hot, store: store}, nil
}

// GetMany returns every cached vector among hashes.
func (c *Cache) GetMany(ctx context.Context, hashes []string) (map[string][]float32, error) {
	found := make(map[string][]float32, len(hashes))
	var cold []string
	for _, h := range hashes {
		if v, ok := c.hot.Get(h); ok {
			found[h] = v
			continue
		}
		cold = append(cold, h)
	}
	if len(cold) == 0 {
		return found, nil
	}

	stored, err := c.store.GetEmbeddings(ctx, cold)
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings: %w", err)
	}
	for h, v := range stored {
		c.hot.Add(h, v)
		found[h] = v
	}
	return found, nil
}

// Put stores vec (first writer wins) and returns the canonical cached vector.
func (c *Cache) Put(ctx context.Context, hash, model string, vec []float32) ([]float32, error) {
	if v, ok := c.hot.Get(hash); ok {
		return v, nil
	}
	stored, err := c.store.PutEmbedding(ctx, hash, model, vec)
	if err != nil {
		return nil, fmt.Errorf("failed to store embedding: %w", err)
	}
	c.hot.Add(hash, stored)
	return stored, nil
}

// MemoryStore is an in-process VectorStore.
type MemoryStore struct {
	mu      sync.Mutex
	vectors map[string][]float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vectors: make(map[string][]float32)}
}

func (m *MemoryStore) GetEmbeddings(_ context.Context, hashes []string) (map[string][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]float32)
	for _, h := range hashes {
		if v, ok := m.vectors[h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) PutEmbedding(_ context.Context, hash, _ string, vec []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.vectors[hash]; ok {
		return existing, nil
	}
	m.vectors[hash] = vec
	return vec, nil
}

// Len reports the number of stored vectors.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vectors)
}
