package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/events"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ingest"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/storage"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/taxonomy"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// base loads the artifacts of the last batch run as a ledger base.
func (o *Orchestrator) base(ctx context.Context) (ledger.Base, error) {
	nodes, err := o.store.LoadTaxonomy(ctx)
	if err != nil {
		return ledger.Base{}, fmt.Errorf("failed to load taxonomy snapshot: %w", err)
	}
	skills, err := o.store.LoadSkills(ctx)
	if err != nil {
		return ledger.Base{}, fmt.Errorf("failed to load skill snapshot: %w", err)
	}
	concepts, err := o.store.LoadConcepts(ctx)
	if err != nil {
		return ledger.Base{}, fmt.Errorf("failed to load concepts: %w", err)
	}
	conflicts, err := o.store.LoadConflicts(ctx)
	if err != nil {
		return ledger.Base{}, fmt.Errorf("failed to load conflicts: %w", err)
	}
	reviews, err := o.store.ListReviewItems(ctx, "")
	if err != nil {
		return ledger.Base{}, fmt.Errorf("failed to load review items: %w", err)
	}

	byID := make(map[string]types.SkillRecord, len(skills))
	for _, s := range skills {
		byID[s.ID] = s
	}
	return ledger.Base{
		Tree:      taxonomy.Build(nodes),
		Concepts:  concepts,
		Conflicts: conflicts,
		Reviews:   reviews,
		Skills:    byID,
	}, nil
}

// State replays the full ledger over the stored artifacts.
func (o *Orchestrator) State(ctx context.Context) (*ledger.State, error) {
	b, err := o.base(ctx)
	if err != nil {
		return nil, err
	}
	return o.ledger.State(ctx, b, 0)
}

// DecideResult is the outcome of recording one decision.
type DecideResult struct {
	Decision *types.Decision
	Run      *types.Run
	// Report is the validation report re-computed with the decision applied.
	Report *mece.Report
	State  *ledger.State
}

// Decide records d against the current state and re-validates the taxonomy.
func (o *Orchestrator) Decide(ctx context.Context, d *types.Decision) (*DecideResult, error) {
	state, err := o.State(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.ledger.Record(ctx, state, d); err != nil {
		return nil, err
	}

	rep, err := o.revalidate(ctx, state)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	run := &types.Run{
		ID:         uuid.New().String(),
		Mode:       types.ModeDecide,
		Status:     types.RunCompleted,
		InputHash:  d.ID,
		StartedAt:  now,
		FinishedAt: &now,
		Summary: fmt.Sprintf("%s %v by %s; %d open violations, mece score %.3f",
			d.Action, d.Targets, d.Actor, rep.OpenViolations(), rep.MECEScore),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record decide run: %w", err)
	}
	e := events.NewEvent(events.EventTypeDecisionRecorded, run.ID, "", events.SeverityInfo, run.Summary).
		With("decision_id", d.ID).
		With("seq", d.Seq)
	if err := o.store.StoreEvent(ctx, e); err != nil {
		o.log.Warn("failed to store event", "type", string(e.Type), "error", err)
	}

	return &DecideResult{Decision: d, Run: run, Report: rep, State: state}, nil
}

// revalidate recomputes the validation report from the stored conflict pairs over
// the post-decision tree. Pairs touching an absorbed node are dropped.
func (o *Orchestrator) revalidate(ctx context.Context, s *ledger.State) (*mece.Report, error) {
	ids := make([]string, 0, len(s.Conflicts))
	for id := range s.Conflicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seen := make(map[types.PairKey]bool, len(ids))
	var pairs []types.SimilarityPair
	for _, id := range ids {
		p := s.Conflicts[id].Pair
		if seen[p.Key] {
			continue
		}
		if _, ok := s.Tree.Node(p.Key.A); !ok {
			continue
		}
		if _, ok := s.Tree.Node(p.Key.B); !ok {
			continue
		}
		seen[p.Key] = true
		p.Relation = s.Tree.Relation(p.Key.A, p.Key.B)
		pairs = append(pairs, p)
	}

	failures, err := o.store.ListEmbeddingFailures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding failures: %w", err)
	}
	failed := make([]string, 0, len(failures))
	for _, f := range failures {
		failed = append(failed, f.EntityID)
	}
	skillIDs := make(map[string]bool, len(s.Skills))
	for id := range s.Skills {
		skillIDs[id] = true
	}

	return mece.NewValidator(o.cfg.Thresholds, o.log, nil).Validate(mece.Input{
		Tree:          s.Tree,
		Pairs:         pairs,
		PairsCompared: len(pairs),
		Resolutions:   s.Resolutions,
		Failed:        failed,
		Concepts:      s.ConceptList(),
		SkillIDs:      skillIDs,
	}), nil
}

// MergeUpdates overlays updated records onto the stored skill snapshot and
// reports which ids are new or changed.
func (o *Orchestrator) MergeUpdates(ctx context.Context, updates []types.SkillRecord) ([]types.SkillRecord, map[string]bool, error) {
	base, err := o.store.LoadSkills(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load skill snapshot: %w", err)
	}
	merged, changed := ingest.MergeRecords(base, updates)
	return merged, changed, nil
}

// ImportLedger appends decisions from a JSONL ledger file, skipping known ids.
func (o *Orchestrator) ImportLedger(ctx context.Context, r io.Reader) (int, error) {
	n, err := o.ledger.Import(ctx, r)
	if err != nil {
		return n, err
	}
	e := events.NewEvent(events.EventTypeLedgerImported, "", "", events.SeverityInfo,
		fmt.Sprintf("imported %d decisions", n)).With("added", n)
	if err := o.store.StoreEvent(ctx, e); err != nil {
		o.log.Warn("failed to store event", "type", string(e.Type), "error", err)
	}
	return n, nil
}

// StageProgress is the newest valid checkpoint of one stage.
type StageProgress struct {
	Stage  types.Stage
	Offset int
	Done   bool
	At     time.Time
}

// StatusReport summarizes recent runs and outstanding work.
type StatusReport struct {
	Runs []types.Run
	// Progress covers the most recent batch run.
	Progress      []StageProgress
	OpenReview    []types.ReviewItem
	OpenConflicts []types.ConflictRecord
	Failures      []types.EmbeddingFailure
	Decisions     int
}

// Status lists the last limit runs, the checkpoint position of the latest batch
// run, and open review work with the ledger applied.
func (o *Orchestrator) Status(ctx context.Context, limit int) (*StatusReport, error) {
	runs, err := o.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	rep := &StatusReport{Runs: runs}

	for _, r := range runs {
		if r.Mode == types.ModeDecide {
			continue
		}
		for _, st := range types.Stages {
			cp, err := storage.LatestValidCheckpoint(ctx, o.store, r.ID, st, o.log)
			if err != nil {
				return nil, err
			}
			if cp != nil {
				rep.Progress = append(rep.Progress, StageProgress{Stage: st, Offset: cp.Offset, Done: cp.Done, At: cp.CreatedAt})
			}
		}
		break
	}

	state, err := o.State(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range state.Reviews {
		if r.Status == types.StatusOpen {
			rep.OpenReview = append(rep.OpenReview, r)
		}
	}
	sort.Slice(rep.OpenReview, func(i, j int) bool { return rep.OpenReview[i].ID < rep.OpenReview[j].ID })
	for _, c := range state.Conflicts {
		if c.Status != types.StatusOpen || !c.Category.IsViolation() {
			continue
		}
		if res, ok := state.Resolutions[c.ID]; ok && res.Closed {
			continue
		}
		rep.OpenConflicts = append(rep.OpenConflicts, c)
	}
	sort.Slice(rep.OpenConflicts, func(i, j int) bool { return rep.OpenConflicts[i].ID < rep.OpenConflicts[j].ID })

	if rep.Failures, err = o.store.ListEmbeddingFailures(ctx); err != nil {
		return nil, fmt.Errorf("failed to list embedding failures: %w", err)
	}
	ds, err := o.ledger.Decisions(ctx)
	if err != nil {
		return nil, err
	}
	rep.Decisions = len(ds)
	return rep, nil
}
