package similarity

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/errgroup"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/metrics"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// ErrMissingEmbedding is returned for pairs that touch an unembedded entity.
var ErrMissingEmbedding = errors.New("missing embedding")

const (
	defaultNumCounters = 1e6
	defaultMaxCost     = 1 << 20
	defaultBufferItems = 64
	defaultShardSize   = 1000
)

// Options configure a Computer.
type Options struct {
	Workers   int
	ShardSize int
	// Kind labels the pair counter ("skill" or "taxonomy").
	Kind    string
	Metrics *metrics.Collector
}

// Computer scores pairs against a fixed set of vectors. Scores are cached by
// canonical pair key, so (a,b) and (b,a) hit the same entry.
type Computer struct {
	vectors map[string][]float32
	cache   *ristretto.Cache
	opts    Options
}

// NewComputer creates a Computer over vectors keyed by entity id.
func NewComputer(vectors map[string][]float32, opts Options) (*Computer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pair cache: %w", err)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ShardSize <= 0 {
		opts.ShardSize = defaultShardSize
	}
	return &Computer{vectors: vectors, cache: cache, opts: opts}, nil
}

// Close releases the pair cache.
func (c *Computer) Close() {
	c.cache.Close()
}

// Similarity scores the pair (a, b).
func (c *Computer) Similarity(a, b string) (float64, error) {
	return c.score(types.NewPairKey(a, b))
}

func (c *Computer) score(k types.PairKey) (float64, error) {
	key := k.String()
	if v, ok := c.cache.Get(key); ok {
		if s, ok := v.(float64); ok {
			return s, nil
		}
	}
	va, ok := c.vectors[k.A]
	if !ok {
		return 0, fmt.Errorf("%s: %w", k.A, ErrMissingEmbedding)
	}
	vb, ok := c.vectors[k.B]
	if !ok {
		return 0, fmt.Errorf("%s: %w", k.B, ErrMissingEmbedding)
	}
	s := Cosine(va, vb)
	c.cache.Set(key, s, 1)
	return s, nil
}

// Result is the outcome for one pair.
type Result struct {
	Key   types.PairKey
	Score float64
	Err   error
}

// ComputeAll scores keys in shards across workers. Results are in input order.
// Per-pair errors are reported in Result.Err; only cancellation fails the call.
func (c *Computer) ComputeAll(ctx context.Context, keys []types.PairKey) ([]Result, error) {
	out := make([]Result, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for start := 0; start < len(keys); start += c.opts.ShardSize {
		start := start
		end := min(start+c.opts.ShardSize, len(keys))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				s, err := c.score(keys[i])
				out[i] = Result{Key: keys[i], Score: s, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.opts.Metrics.PairCompared(c.opts.Kind, len(keys))
	return out, nil
}

// Pairs converts results into scored pairs, dropping those that failed.
// relation may be nil, in which case every pair gets types.RelationNone.
func Pairs(results []Result, relation func(a, b string) types.Relation) (pairs []types.SimilarityPair, skipped []Result) {
	for _, r := range results {
		if r.Err != nil {
			skipped = append(skipped, r)
			continue
		}
		rel := types.RelationNone
		if relation != nil {
			rel = relation(r.Key.A, r.Key.B)
		}
		pairs = append(pairs, types.SimilarityPair{Key: r.Key, Score: r.Score, Relation: rel})
	}
	return pairs, skipped
}
