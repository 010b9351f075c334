// Package orchestrator drives a batch run through its stages, checkpointing
// progress so an interrupted run resumes where it stopped.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ai"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/candidates"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/events"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/metrics"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/resilience"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/storage"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/variants"
)

// resumeWindow is how many recent runs are searched for a resumable one.
const resumeWindow = 20

// Config holds orchestrator dependencies.
type Config struct {
	Store    storage.Storage
	Settings *config.Config
	Embedder embedding.Service
	// Adjudicator resolves ambiguous pairs; nil runs rule-only.
	Adjudicator ai.Adjudicator
	Logger      *logging.Logger
	Metrics     *metrics.Collector
}

// Orchestrator runs batch jobs against one store.
type Orchestrator struct {
	store       storage.Storage
	cfg         *config.Config
	gen         *embedding.Generator
	cache       *embedding.Cache
	adjudicator ai.Adjudicator
	complexity  *variants.Complexity
	tok         *candidates.Tokenizer
	ledger      *ledger.Ledger
	log         *logging.Logger
	metrics     *metrics.Collector
	now         func() time.Time
}

// New creates an Orchestrator. Without an embedding service it can record
// decisions and report status but not run batches.
func New(c *Config) (*Orchestrator, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	cfg := c.Settings
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := c.Logger
	if log == nil {
		log = logging.NewNop()
	}

	cache, err := embedding.NewCache(cfg.Embedding.HotCacheSize, c.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	exec := resilience.New("embedding",
		resilience.OptionsFrom(cfg.Retry, cfg.Batch.Concurrency, cfg.Embedding.RequestsPerSecond), log)
	m := c.Metrics
	exec.OnFailure = func(error) { m.ExternalError("embedding") }

	tok, err := candidates.NewTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	o := &Orchestrator{
		store:       c.Store,
		cfg:         cfg,
		cache:       cache,
		adjudicator: c.Adjudicator,
		complexity:  variants.NewComplexity(cfg.Complexity, tok),
		tok:         tok,
		ledger:      ledger.New(c.Store, log),
		log:         log,
		metrics:     c.Metrics,
		now:         time.Now,
	}
	if c.Embedder != nil {
		o.gen = embedding.NewGenerator(c.Embedder, cache, exec, embedding.GeneratorOptions{
			BatchSize:   cfg.Embedding.BatchSize,
			Concurrency: cfg.Batch.Concurrency,
			Logger:      log,
			Metrics:     c.Metrics,
		})
	}
	return o, nil
}

// Ledger exposes the decision ledger backed by the orchestrator's store.
func (o *Orchestrator) Ledger() *ledger.Ledger { return o.ledger }

// Request describes one batch run.
type Request struct {
	Mode   types.RunMode
	Skills []types.SkillRecord
	Nodes  []types.TaxonomyNode
	// Changed restricts skill comparison to pairs touching these ids. Only used
	// by incremental runs.
	Changed map[string]bool
	// NoLLM classifies ambiguous pairs by rule only.
	NoLLM bool
	// Fresh starts a new run even if an interrupted one has the same input.
	Fresh     bool
	OutputDir string
}

// Outcome is what a finished run produced.
type Outcome struct {
	Run             *types.Run
	Resumed         bool
	Report          *mece.Report
	Groups          []types.VariantGroup
	Concepts        []types.MasterConcept
	Classifications []types.PairClassification
	Review          []types.ReviewItem
	Failures        []types.EmbeddingFailure
	Stale           []string
	Files           []string
	Counts          map[string]int
}

// Run executes req. Per-entity failures are reported in the outcome; only input,
// storage or cancellation errors fail the call. A canceled run is marked
// interrupted and picked up again by the next Run with the same input.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if !req.Mode.IsValid() || req.Mode == types.ModeDecide {
		return nil, fmt.Errorf("invalid batch mode: %q", req.Mode)
	}
	if o.gen == nil {
		return nil, fmt.Errorf("embedding service is required for batch runs")
	}
	hash, err := o.inputHash(req)
	if err != nil {
		return nil, err
	}

	run, resumed, err := o.startRun(ctx, req, hash)
	if err != nil {
		return nil, err
	}
	p := newPipeline(o, run, req)
	defer p.close()

	if resumed {
		p.emit(ctx, events.EventTypeRunResumed, "", events.SeverityInfo, "resuming interrupted run")
	} else {
		p.emit(ctx, events.EventTypeRunStarted, "", events.SeverityInfo, fmt.Sprintf("%s run started", req.Mode))
	}

	runErr := p.execute(ctx)

	// Final bookkeeping must land even when ctx was canceled.
	bg := context.WithoutCancel(ctx)
	finished := o.now().UTC()
	run.FinishedAt = &finished
	switch {
	case runErr == nil:
		run.Status = types.RunCompleted
		run.Summary = p.summary()
		p.emit(bg, events.EventTypeRunCompleted, "", events.SeverityInfo, run.Summary)
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		run.Status = types.RunInterrupted
		run.Summary = fmt.Sprintf("interrupted during %s", p.current)
		p.emit(bg, events.EventTypeRunFailed, p.current, events.SeverityWarning, run.Summary)
	default:
		run.Status = types.RunFailed
		run.Summary = runErr.Error()
		p.emit(bg, events.EventTypeRunFailed, p.current, events.SeverityError, run.Summary)
	}
	if err := o.store.UpdateRun(bg, run); err != nil {
		o.log.Error("failed to update run manifest", "run_id", run.ID, "error", err)
	}
	if runErr != nil {
		return nil, fmt.Errorf("run %s %s: %w", run.ID, run.Status, runErr)
	}

	out := p.outcome()
	out.Resumed = resumed
	return out, nil
}

// startRun resumes the most recent unfinished run with the same mode and input,
// or creates a new one.
func (o *Orchestrator) startRun(ctx context.Context, req Request, hash string) (*types.Run, bool, error) {
	if !req.Fresh {
		runs, err := o.store.ListRuns(ctx, resumeWindow)
		if err != nil {
			return nil, false, fmt.Errorf("failed to list runs: %w", err)
		}
		for i := range runs {
			r := runs[i]
			if r.Mode != req.Mode || r.InputHash != hash || r.Status == types.RunCompleted {
				continue
			}
			r.Status = types.RunRunning
			r.FinishedAt = nil
			if err := o.store.UpdateRun(ctx, &r); err != nil {
				return nil, false, fmt.Errorf("failed to reopen run %s: %w", r.ID, err)
			}
			o.log.Info("resuming run", "run_id", r.ID, "mode", string(r.Mode))
			return &r, true, nil
		}
	}

	run := &types.Run{
		ID:        uuid.New().String(),
		Mode:      req.Mode,
		Status:    types.RunRunning,
		InputHash: hash,
		StartedAt: o.now().UTC(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, false, fmt.Errorf("failed to create run: %w", err)
	}
	o.log.Info("starting run", "run_id", run.ID, "mode", string(run.Mode))
	return run, false, nil
}

// inputHash identifies a run's input so a resume never mixes two datasets.
func (o *Orchestrator) inputHash(req Request) (string, error) {
	changed := make([]string, 0, len(req.Changed))
	for id, ok := range req.Changed {
		if ok {
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)
	skills := append([]types.SkillRecord(nil), req.Skills...)
	sort.Slice(skills, func(i, j int) bool { return skills[i].ID < skills[j].ID })
	nodes := append([]types.TaxonomyNode(nil), req.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	data, err := json.Marshal(struct {
		Mode    types.RunMode          `json:"mode"`
		Skills  []types.SkillRecord    `json:"skills"`
		Nodes   []types.TaxonomyNode   `json:"nodes"`
		Changed []string               `json:"changed"`
		Limit   int                    `json:"limit"`
		LLM     bool                   `json:"llm"`
		Config  config.ThresholdConfig `json:"thresholds"`
	}{req.Mode, skills, nodes, changed, o.cfg.Batch.Limit, o.adjudicator != nil && !req.NoLLM, o.cfg.Thresholds})
	if err != nil {
		return "", fmt.Errorf("failed to hash input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
