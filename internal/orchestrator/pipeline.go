package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/events"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/similarity"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/taxonomy"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// pipeline is the in-memory state of one run. Every field can be rebuilt from the
// run's checkpoints, which is what makes a resumed run equal an uninterrupted one.
type pipeline struct {
	o       *Orchestrator
	run     *types.Run
	req     Request
	log     *logging.Logger
	current types.Stage

	skills    []types.SkillRecord
	skillByID map[string]types.SkillRecord
	tree      *taxonomy.Tree

	skillVectors map[string][]float32
	nodeVectors  map[string][]float32
	skillHashes  map[string]string
	failures     []types.EmbeddingFailure

	skillComp *similarity.Computer
	nodeComp  *similarity.Computer

	cands      candidateSet
	skillPairs []types.SimilarityPair
	nodePairs  []types.SimilarityPair

	classifications []types.PairClassification
	groups          []types.VariantGroup
	concepts        []types.MasterConcept
	review          []types.ReviewItem
	report          *mece.Report
	final           []types.MasterConcept
	stale           []string
	files           []string
	counts          map[string]int
}

func newPipeline(o *Orchestrator, run *types.Run, req Request) *pipeline {
	return &pipeline{
		o:            o,
		run:          run,
		req:          req,
		log:          o.log.With("run_id", run.ID),
		skillByID:    make(map[string]types.SkillRecord),
		skillVectors: make(map[string][]float32),
		nodeVectors:  make(map[string][]float32),
		skillHashes:  make(map[string]string),
		counts:       make(map[string]int),
	}
}

func (p *pipeline) close() {
	if p.skillComp != nil {
		p.skillComp.Close()
	}
	if p.nodeComp != nil {
		p.nodeComp.Close()
	}
}

// skillMode is false for validate-only runs, which touch the taxonomy alone.
func (p *pipeline) skillMode() bool {
	return p.req.Mode != types.ModeValidate
}

func (p *pipeline) execute(ctx context.Context) error {
	steps := []struct {
		stage types.Stage
		fn    func(context.Context) error
		skill bool
	}{
		{types.StageIngest, p.loadInputs, false},
		{types.StageEmbed, p.embed, false},
		{types.StageCandidates, p.findCandidates, false},
		{types.StageSimilarity, p.score, false},
		{types.StageClassify, p.classify, true},
		{types.StageGroup, p.group, true},
		{types.StageConcepts, p.generateConcepts, true},
		{types.StageValidate, p.validate, false},
		{types.StageLedger, p.applyLedger, false},
		{types.StageReport, p.writeReport, false},
	}
	for _, s := range steps {
		if s.skill && !p.skillMode() {
			continue
		}
		if err := p.stage(ctx, s.stage, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) stage(ctx context.Context, stage types.Stage, fn func(context.Context) error) error {
	p.current = stage
	start := p.o.now()
	p.log.Debug("stage started", "stage", string(stage))
	p.emit(ctx, events.EventTypeStageStarted, stage, events.SeverityInfo, "stage started")

	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s stage: %w", stage, err)
	}

	d := p.o.now().Sub(start)
	p.o.metrics.ObserveStage(string(stage), d)
	p.log.Info("stage complete", "stage", string(stage), "duration", d.String())
	p.emit(ctx, events.EventTypeStageCompleted, stage, events.SeverityInfo, "stage complete",
		"duration_ms", d.Milliseconds())
	return nil
}

// emit stores an audit event. Event storage failures are logged and never fail a run.
func (p *pipeline) emit(ctx context.Context, typ events.EventType, stage types.Stage, sev events.EventSeverity, msg string, kv ...interface{}) {
	e := events.NewEvent(typ, p.run.ID, string(stage), sev, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			e.With(key, kv[i+1])
		}
	}
	if err := p.o.store.StoreEvent(ctx, e); err != nil {
		p.log.Warn("failed to store event", "type", string(typ), "error", err)
	}
}

func (p *pipeline) summary() string {
	score, open := 1.0, 0
	if p.report != nil {
		score, open = p.report.MECEScore, p.report.OpenViolations()
	}
	return fmt.Sprintf("%d skills, %d concepts, %d open violations, mece score %.3f, %d failed entities",
		len(p.skills), len(p.final), open, score, len(p.failures))
}

func (p *pipeline) outcome() *Outcome {
	return &Outcome{
		Run:             p.run,
		Report:          p.report,
		Groups:          p.groups,
		Concepts:        p.final,
		Classifications: p.classifications,
		Review:          p.review,
		Failures:        p.failures,
		Stale:           p.stale,
		Files:           p.files,
		Counts:          p.counts,
	}
}

// sortReview orders review items by id and drops duplicates.
func sortReview(items []types.ReviewItem) []types.ReviewItem {
	seen := make(map[string]bool, len(items))
	out := make([]types.ReviewItem, 0, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
