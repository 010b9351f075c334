// Package storage persists embeddings, run artifacts, the decision ledger and
// checkpoints behind one interface with sqlite and postgres backends.
package storage

import (
	"context"
	"fmt"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/events"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/storage/postgres"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/storage/sqlite"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Storage defines the interface for persistence backends
type Storage interface {
	// Embeddings - content-addressed, first writer wins
	GetEmbeddings(ctx context.Context, hashes []string) (map[string][]float32, error)
	PutEmbedding(ctx context.Context, hash, model string, vec []float32) ([]float32, error)
	RecordEmbeddingFailure(ctx context.Context, f *types.EmbeddingFailure) error
	ListEmbeddingFailures(ctx context.Context) ([]types.EmbeddingFailure, error)
	ClearEmbeddingFailures(ctx context.Context, entityIDs []string) error

	// Inputs snapshotted by the last rebuild, used by decide and validate
	SaveSkills(ctx context.Context, skills []types.SkillRecord) error
	LoadSkills(ctx context.Context) ([]types.SkillRecord, error)
	SaveTaxonomy(ctx context.Context, nodes []types.TaxonomyNode) error
	LoadTaxonomy(ctx context.Context) ([]types.TaxonomyNode, error)

	// Classifications are upserted by canonical pair key
	SaveClassifications(ctx context.Context, cs []types.PairClassification) error
	LoadClassifications(ctx context.Context) (map[types.PairKey]types.PairClassification, error)

	// Derived artifacts; each Save replaces the previous run's set
	SaveGroups(ctx context.Context, runID string, groups []types.VariantGroup) error
	LoadGroups(ctx context.Context) ([]types.VariantGroup, error)
	SaveConcepts(ctx context.Context, runID string, concepts []types.MasterConcept) error
	LoadConcepts(ctx context.Context) ([]types.MasterConcept, error)
	SaveConflicts(ctx context.Context, runID string, conflicts []types.ConflictRecord) error
	LoadConflicts(ctx context.Context) ([]types.ConflictRecord, error)
	SaveReviewItems(ctx context.Context, items []types.ReviewItem) error
	ListReviewItems(ctx context.Context, status types.Status) ([]types.ReviewItem, error)

	// Decision ledger - append only
	AppendDecision(ctx context.Context, d *types.Decision) error
	ListDecisions(ctx context.Context) ([]types.Decision, error)

	// Run manifests
	CreateRun(ctx context.Context, run *types.Run) error
	UpdateRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	ListRuns(ctx context.Context, limit int) ([]types.Run, error)

	// Checkpoints
	PutCheckpoint(ctx context.Context, c *types.Checkpoint) error
	// ListCheckpoints returns valid checkpoints for run and stage, newest first.
	ListCheckpoints(ctx context.Context, runID string, stage types.Stage) ([]types.Checkpoint, error)
	InvalidateCheckpoint(ctx context.Context, runID string, stage types.Stage, offset int) error

	// Audit events
	StoreEvent(ctx context.Context, e *events.Event) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)

	// Lifecycle
	Close() error
}

var (
	_ Storage               = (*sqlite.SQLiteStorage)(nil)
	_ Storage               = (*postgres.PostgresStorage)(nil)
	_ embedding.VectorStore = Storage(nil)
	_ ledger.Store          = Storage(nil)
)

// NewStorage opens the backend selected by cfg.Driver.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = config.DefaultConfig().Storage.Path
		}
		return sqlite.New(path)
	case "postgres":
		pgCfg, err := postgres.ConfigFromDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return postgres.New(ctx, pgCfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q (want sqlite or postgres)", cfg.Driver)
	}
}
