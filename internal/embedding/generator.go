// Package embedding produces and caches text vectors for skills and taxonomy nodes.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/metrics"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/resilience"
)

// Item is one entity to embed.
type Item struct {
	EntityID string
	Text     string
}

// Result is the outcome of EmbedAll. Vectors holds every entity that has a vector;
// entities listed in Failures are unembedded for this run.
type Result struct {
	Vectors  map[string][]float32
	Hashes   map[string]string
	Failures []*FailureError
	Hits     int
	Misses   int
}

// Generator resolves vectors through the cache and the external service.
type Generator struct {
	svc         Service
	cache       *Cache
	exec        *resilience.Executor
	batchSize   int
	concurrency int
	log         *logging.Logger
	metrics     *metrics.Collector
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	BatchSize   int
	Concurrency int
	Logger      *logging.Logger
	Metrics     *metrics.Collector
}

func NewGenerator(svc Service, cache *Cache, exec *resilience.Executor, opts GeneratorOptions) *Generator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Generator{
		svc:         svc,
		cache:       cache,
		exec:        exec,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
		metrics:     opts.Metrics,
	}
}

// Model is the embedding model name used in content hashes.
func (g *Generator) Model() string { return g.svc.Model() }

// EmbedAll returns a vector for every item it can. External failures never abort
// the call; they are reported per entity in Result.Failures. Only context
// cancellation and store errors are returned as errors.
func (g *Generator) EmbedAll(ctx context.Context, items []Item) (*Result, error) {
	model := g.svc.Model()
	res := &Result{
		Vectors: make(map[string][]float32, len(items)),
		Hashes:  make(map[string]string, len(items)),
	}

	// Identical normalized text shares one hash and one request slot.
	byHash := make(map[string][]string)
	textOf := make(map[string]string)
	for _, it := range items {
		h := ContentHash(model, it.Text)
		res.Hashes[it.EntityID] = h
		byHash[h] = append(byHash[h], it.EntityID)
		if _, ok := textOf[h]; !ok {
			textOf[h] = Normalize(it.Text)
		}
	}

	hashes := make([]string, 0, len(byHash))
	for h := range byHash {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	cached, err := g.cache.GetMany(ctx, hashes)
	if err != nil {
		return nil, err
	}

	var misses []string
	for _, h := range hashes {
		if v, ok := cached[h]; ok {
			for _, id := range byHash[h] {
				res.Vectors[id] = v
			}
			res.Hits += len(byHash[h])
			continue
		}
		misses = append(misses, h)
	}
	res.Misses = len(misses)
	g.metrics.EmbeddingLookup("hit", res.Hits)
	g.metrics.EmbeddingLookup("miss", res.Misses)

	var mu sync.Mutex
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.concurrency)

	for start := 0; start < len(misses); start += g.batchSize {
		end := start + g.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		grp.Go(func() error {
			texts := make([]string, len(batch))
			for i, h := range batch {
				texts[i] = textOf[h]
			}

			var vecs [][]float32
			callErr := g.exec.Do(gctx, "embed batch", func(ctx context.Context) error {
				out, err := g.svc.Embed(ctx, texts)
				if err != nil {
					return err
				}
				if len(out) != len(texts) {
					return fmt.Errorf("embedding service returned %d vectors for %d texts: temporary failure", len(out), len(texts))
				}
				vecs = out
				return nil
			})
			if callErr != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				attempts := 1
				var ex *resilience.ExhaustedError
				if errors.As(callErr, &ex) {
					attempts = ex.Attempts
				}
				mu.Lock()
				for _, h := range batch {
					for _, id := range byHash[h] {
						res.Failures = append(res.Failures, &FailureError{
							EntityID: id, ContentHash: h, Attempts: attempts, Err: callErr,
						})
					}
				}
				mu.Unlock()
				g.log.Warn("embedding batch failed", "batch_size", len(batch), "attempts", attempts, "error", callErr)
				return nil
			}

			for i, h := range batch {
				stored, err := g.cache.Put(gctx, h, model, vecs[i])
				if err != nil {
					return err
				}
				mu.Lock()
				for _, id := range byHash[h] {
					res.Vectors[id] = stored
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].EntityID < res.Failures[j].EntityID })
	failed := len(res.Failures)
	g.metrics.EmbeddingLookup("failed", failed)

	g.log.Info("embedding complete",
		"entities", len(items), "unique_texts", len(hashes),
		"cache_hits", res.Hits, "misses", res.Misses, "failed", failed)
	return res, nil
}
