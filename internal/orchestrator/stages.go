package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/candidates"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/concepts"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/events"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ingest"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/report"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/similarity"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/taxonomy"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/variants"
)

// defaultOutputDir is used when neither the request nor the config names one.
const defaultOutputDir = "out"

func (p *pipeline) loadInputs(ctx context.Context) error {
	skills := p.req.Skills
	if !p.skillMode() {
		stored, err := p.o.store.LoadSkills(ctx)
		if err != nil {
			return fmt.Errorf("failed to load skill snapshot: %w", err)
		}
		skills = stored
		if p.concepts, err = p.o.store.LoadConcepts(ctx); err != nil {
			return fmt.Errorf("failed to load concepts: %w", err)
		}
		if p.review, err = p.o.store.ListReviewItems(ctx, ""); err != nil {
			return fmt.Errorf("failed to load review items: %w", err)
		}
	}
	p.skills = ingest.Sample(skills, p.o.cfg.Batch.Limit)
	for _, s := range p.skills {
		p.skillByID[s.ID] = s
	}

	p.tree = taxonomy.Build(p.req.Nodes)
	if issues := p.tree.Issues(); len(issues) > 0 {
		p.log.Warn("taxonomy has integrity issues", "count", len(issues), "error", p.tree.Err())
	}

	if p.skillMode() {
		if err := p.o.store.SaveSkills(ctx, p.skills); err != nil {
			return fmt.Errorf("failed to snapshot skills: %w", err)
		}
	}
	if err := p.o.store.SaveTaxonomy(ctx, p.req.Nodes); err != nil {
		return fmt.Errorf("failed to snapshot taxonomy: %w", err)
	}

	p.counts["skills"] = len(p.skills)
	p.counts["nodes"] = p.tree.Len()
	return save(ctx, p, types.StageIngest, len(p.skills)+p.tree.Len(), true, map[string]int{
		"skills": len(p.skills),
		"nodes":  p.tree.Len(),
	})
}

// embedItem is one entity queued for embedding. Skill and node ids live in
// separate namespaces, so the generator sees a prefixed key.
type embedItem struct {
	key  string
	id   string
	node bool
	text string
}

// embedRecord is the checkpointed result for one entity. Vectors are not part of
// the checkpoint; they are read back from the embedding cache.
type embedRecord struct {
	ID       string `json:"id"`
	Node     bool   `json:"node,omitempty"`
	Hash     string `json:"hash"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

func (p *pipeline) embedItems(ctx context.Context) ([]embedItem, error) {
	prev, err := p.o.store.ListEmbeddingFailures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding failures: %w", err)
	}
	retry := make(map[string]bool, len(prev))
	for _, f := range prev {
		retry[f.EntityID] = true
	}

	var items []embedItem
	if p.skillMode() {
		for _, s := range p.skills {
			items = append(items, embedItem{key: entityKey(s.ID, false), id: s.ID, text: s.Text})
		}
	}
	for _, n := range p.tree.Nodes() {
		items = append(items, embedItem{key: entityKey(n.ID, true), id: n.ID, node: true, text: n.Text()})
	}
	// Entities that failed last time go first.
	sort.SliceStable(items, func(i, j int) bool {
		return retry[items[i].key] && !retry[items[j].key]
	})
	return items, nil
}

func (p *pipeline) embed(ctx context.Context) error {
	items, err := p.embedItems(ctx)
	if err != nil {
		return err
	}

	recs, err := sharded(ctx, p, types.StageEmbed, len(items), func(ctx context.Context, start, end int) ([]embedRecord, error) {
		batch := make([]embedding.Item, 0, end-start)
		for _, it := range items[start:end] {
			batch = append(batch, embedding.Item{EntityID: it.key, Text: it.text})
		}
		res, err := p.o.gen.EmbedAll(ctx, batch)
		if err != nil {
			return nil, err
		}
		failed := make(map[string]*embedding.FailureError, len(res.Failures))
		for _, f := range res.Failures {
			failed[f.EntityID] = f
		}
		out := make([]embedRecord, 0, len(batch))
		for _, it := range items[start:end] {
			r := embedRecord{ID: it.id, Node: it.node, Hash: res.Hashes[it.key]}
			if f, ok := failed[it.key]; ok {
				r.Error, r.Attempts = f.Err.Error(), f.Attempts
			}
			out = append(out, r)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	if err := p.loadVectors(ctx, recs); err != nil {
		return err
	}

	opts := similarity.Options{
		Workers:   p.o.cfg.Batch.Concurrency,
		ShardSize: p.o.cfg.Batch.ShardSize,
		Metrics:   p.o.metrics,
	}
	opts.Kind = "skill"
	if p.skillComp, err = similarity.NewComputer(p.skillVectors, opts); err != nil {
		return err
	}
	opts.Kind = "taxonomy"
	if p.nodeComp, err = similarity.NewComputer(p.nodeVectors, opts); err != nil {
		return err
	}
	return nil
}

// entityKey namespaces skill and node ids, which may overlap, for the embedding
// failure log.
func entityKey(id string, node bool) string {
	if node {
		return "node:" + id
	}
	return "skill:" + id
}

// loadVectors reads every embedded entity's vector from the cache and records the
// entities that stay unembedded.
func (p *pipeline) loadVectors(ctx context.Context, recs []embedRecord) error {
	hashes := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.Error == "" {
			hashes = append(hashes, r.Hash)
		}
	}
	vecs, err := p.o.cache.GetMany(ctx, hashes)
	if err != nil {
		return err
	}

	var ok []string
	p.failures = nil
	for _, r := range recs {
		if r.Error == "" {
			if v, found := vecs[r.Hash]; found {
				if r.Node {
					p.nodeVectors[r.ID] = v
				} else {
					p.skillVectors[r.ID] = v
					p.skillHashes[r.ID] = r.Hash
				}
				ok = append(ok, entityKey(r.ID, r.Node))
				continue
			}
			r.Error = "vector missing from embedding cache"
		}
		f := types.EmbeddingFailure{
			EntityID:    entityKey(r.ID, r.Node),
			ContentHash: r.Hash,
			Error:       r.Error,
			Attempts:    r.Attempts,
			RunID:       p.run.ID,
			FailedAt:    p.o.now().UTC(),
		}
		if err := p.o.store.RecordEmbeddingFailure(ctx, &f); err != nil {
			return err
		}
		p.emit(ctx, events.EventTypeEmbeddingFailed, types.StageEmbed, events.SeverityWarning, f.Error,
			"entity_id", f.EntityID, "attempts", f.Attempts)
		p.failures = append(p.failures, f)
	}
	sort.Slice(p.failures, func(i, j int) bool { return p.failures[i].EntityID < p.failures[j].EntityID })

	if err := p.o.store.ClearEmbeddingFailures(ctx, ok); err != nil {
		return err
	}
	p.counts["embedded"] = len(ok)
	p.counts["embedding_failures"] = len(p.failures)
	return nil
}

type candidateSet struct {
	Skills []types.PairKey `json:"skills"`
	Nodes  []types.PairKey `json:"nodes"`
}

func keysOf(cs []candidates.Candidate) []types.PairKey {
	out := make([]types.PairKey, len(cs))
	for i, c := range cs {
		out[i] = c.Key
	}
	return out
}

func (p *pipeline) findCandidates(ctx context.Context) error {
	set, err := once(ctx, p, types.StageCandidates, func(ctx context.Context) (candidateSet, error) {
		var set candidateSet
		maxDF := p.o.cfg.Batch.MaxTokenDF

		if p.skillMode() {
			var ents []candidates.Entity
			for _, e := range candidates.FromSkills(p.skills) {
				if _, ok := p.skillVectors[e.ID]; ok {
					ents = append(ents, e)
				}
			}
			var changed map[string]bool
			if p.req.Mode == types.ModeIncremental {
				changed = p.req.Changed
				if changed == nil {
					changed = map[string]bool{}
				}
			}
			cs, st := candidates.Filter(p.o.tok, ents, candidates.Options{MaxTokenDF: maxDF, Changed: changed})
			p.log.Info("skill candidates filtered",
				"pairs", st.Pairs, "all_pairs", st.AllPairs, "skipped_tokens", st.SkippedTokens)
			set.Skills = keysOf(cs)
		}

		var ents []candidates.Entity
		for _, e := range candidates.FromNodes(p.tree.Nodes()) {
			if _, ok := p.nodeVectors[e.ID]; ok {
				ents = append(ents, e)
			}
		}
		cs, st := candidates.Filter(p.o.tok, ents, candidates.Options{MaxTokenDF: maxDF, Structure: p.tree})
		p.log.Info("taxonomy candidates filtered", "pairs", st.Pairs, "all_pairs", st.AllPairs)
		set.Nodes = keysOf(cs)
		return set, nil
	})
	if err != nil {
		return err
	}
	p.cands = set
	p.counts["skill_candidates"] = len(set.Skills)
	p.counts["node_candidates"] = len(set.Nodes)
	return nil
}

// scoredPair tags a scored pair with the entity kind it belongs to.
type scoredPair struct {
	Pair types.SimilarityPair `json:"pair"`
	Node bool                 `json:"node,omitempty"`
}

func (p *pipeline) score(ctx context.Context) error {
	keys := append(append([]types.PairKey(nil), p.cands.Skills...), p.cands.Nodes...)
	ns := len(p.cands.Skills)

	scored, err := sharded(ctx, p, types.StageSimilarity, len(keys), func(ctx context.Context, start, end int) ([]scoredPair, error) {
		var out []scoredPair
		if start < ns {
			rs, err := p.skillComp.ComputeAll(ctx, keys[start:min(end, ns)])
			if err != nil {
				return nil, err
			}
			pairs, skipped := similarity.Pairs(rs, nil)
			p.logSkipped("skill", skipped)
			for _, sp := range pairs {
				out = append(out, scoredPair{Pair: sp})
			}
		}
		if end > ns {
			rs, err := p.nodeComp.ComputeAll(ctx, keys[max(start, ns):end])
			if err != nil {
				return nil, err
			}
			pairs, skipped := similarity.Pairs(rs, p.tree.Relation)
			p.logSkipped("taxonomy", skipped)
			for _, sp := range pairs {
				out = append(out, scoredPair{Pair: sp, Node: true})
			}
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	p.skillPairs, p.nodePairs = nil, nil
	for _, s := range scored {
		if s.Node {
			p.nodePairs = append(p.nodePairs, s.Pair)
		} else {
			p.skillPairs = append(p.skillPairs, s.Pair)
		}
	}
	p.counts["skill_pairs"] = len(p.skillPairs)
	p.counts["node_pairs"] = len(p.nodePairs)
	return nil
}

func (p *pipeline) logSkipped(kind string, skipped []similarity.Result) {
	if len(skipped) == 0 {
		return
	}
	p.log.Warn("pairs skipped for missing embeddings", "kind", kind, "count", len(skipped),
		"first", skipped[0].Key.String(), "error", skipped[0].Err)
}

func (p *pipeline) classify(ctx context.Context) error {
	var prior map[types.PairKey]types.PairClassification
	if p.req.Mode == types.ModeIncremental {
		var err error
		if prior, err = p.o.store.LoadClassifications(ctx); err != nil {
			return fmt.Errorf("failed to load prior classifications: %w", err)
		}
	}
	opts := variants.Options{
		Thresholds:  p.o.cfg.Thresholds,
		Complexity:  p.o.complexity,
		Concurrency: p.o.cfg.Batch.Concurrency,
		Logger:      p.log,
	}
	if !p.req.NoLLM {
		opts.Adjudicator = p.o.adjudicator
	}
	clf := variants.NewClassifier(opts)
	in := variants.Input{Skills: p.skillByID, Hashes: p.skillHashes, Prior: prior}

	fresh, err := sharded(ctx, p, types.StageClassify, len(p.skillPairs), func(ctx context.Context, start, end int) ([]types.PairClassification, error) {
		out, st, err := clf.ClassifyAll(ctx, p.skillPairs[start:end], in)
		if err != nil {
			return nil, err
		}
		p.log.Debug("classified shard", "start", start, "end", end, "rule", st.Rule, "llm", st.LLM,
			"fallback", st.Fallback, "reused", st.Reused, "borderline", st.Borderline)
		if err := p.o.store.SaveClassifications(ctx, out); err != nil {
			return nil, err
		}
		for _, pc := range out {
			if pc.Source == types.SourceFallback {
				p.emit(ctx, events.EventTypeLLMFallback, types.StageClassify, events.SeverityWarning, pc.Rationale,
					"pair", pc.Pair.Key.String())
			}
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	p.countVerdicts(fresh)

	if p.classifications, err = p.effective(ctx, fresh); err != nil {
		return err
	}
	p.review = append(p.review, variants.ReviewItems(p.classifications)...)
	p.counts["classified"] = len(p.classifications)
	return nil
}

// countVerdicts counts this run's verdicts by origin. Shards restored from a
// checkpoint count the same as shards classified in this process.
func (p *pipeline) countVerdicts(cs []types.PairClassification) {
	llm, fallback, reused := 0, 0, 0
	for _, pc := range cs {
		switch {
		case pc.Reused:
			reused++
		case pc.Source == types.SourceLLM:
			llm++
		case pc.Source == types.SourceFallback:
			fallback++
		}
	}
	p.counts["llm_verdicts"] = llm
	p.counts["llm_fallbacks"] = fallback
	p.counts["reused_verdicts"] = reused
}

// effective returns the verdicts grouping works from. A rebuild uses only this
// run's verdicts; an incremental run also keeps stored verdicts whose texts are
// unchanged.
func (p *pipeline) effective(ctx context.Context, fresh []types.PairClassification) ([]types.PairClassification, error) {
	if p.req.Mode != types.ModeIncremental {
		return fresh, nil
	}
	stored, err := p.o.store.LoadClassifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load classifications: %w", err)
	}
	for _, pc := range fresh {
		stored[pc.Pair.Key] = pc
	}
	out := make([]types.PairClassification, 0, len(stored))
	for k, pc := range stored {
		ha, hb := p.skillHashes[k.A], p.skillHashes[k.B]
		if ha == "" || hb == "" || pc.HashA != ha || pc.HashB != hb {
			continue
		}
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair.Key.String() < out[j].Pair.Key.String() })
	return out, nil
}

type groupPayload struct {
	Groups []types.VariantGroup `json:"groups"`
	Review []types.ReviewItem   `json:"review"`
}

func (p *pipeline) group(ctx context.Context) error {
	gp, err := once(ctx, p, types.StageGroup, func(ctx context.Context) (groupPayload, error) {
		gr := variants.Group(p.classifications, p.skillComp, p.o.cfg.Thresholds)
		if err := p.o.store.SaveGroups(ctx, p.run.ID, gr.Groups); err != nil {
			return groupPayload{}, err
		}
		return groupPayload{Groups: gr.Groups, Review: gr.Review}, nil
	})
	if err != nil {
		return err
	}
	p.groups = gp.Groups
	p.review = append(p.review, gp.Review...)
	p.counts["groups"] = len(gp.Groups)
	return nil
}

type conceptPayload struct {
	Concepts []types.MasterConcept `json:"concepts"`
	Review   []types.ReviewItem    `json:"review"`
}

func (p *pipeline) generateConcepts(ctx context.Context) error {
	cp, err := once(ctx, p, types.StageConcepts, func(ctx context.Context) (conceptPayload, error) {
		var labels []concepts.Label
		for _, n := range p.tree.Nodes() {
			if v, ok := p.nodeVectors[n.ID]; ok {
				labels = append(labels, concepts.Label{NodeID: n.ID, Name: n.Name, Vector: v})
			}
		}
		res := concepts.Generate(concepts.Input{
			Groups:  p.groups,
			Skills:  p.skillByID,
			Vectors: p.skillVectors,
			Labels:  labels,
			Scorer:  p.skillComp,
		}, p.o.cfg.Thresholds)
		if err := p.o.store.SaveConcepts(ctx, p.run.ID, res.Concepts); err != nil {
			return conceptPayload{}, err
		}
		return conceptPayload{Concepts: res.Concepts, Review: res.Review}, nil
	})
	if err != nil {
		return err
	}
	p.concepts = cp.Concepts
	p.review = append(p.review, cp.Review...)
	p.counts["concepts"] = len(cp.Concepts)
	return nil
}

func (p *pipeline) validate(ctx context.Context) error {
	rep, err := once(ctx, p, types.StageValidate, func(ctx context.Context) (*mece.Report, error) {
		ds, err := p.o.ledger.Decisions(ctx)
		if err != nil {
			return nil, err
		}
		failed := make([]string, 0, len(p.failures))
		for _, f := range p.failures {
			failed = append(failed, f.EntityID)
		}
		skillIDs := make(map[string]bool, len(p.skills))
		for _, s := range p.skills {
			skillIDs[s.ID] = true
		}

		rep := mece.NewValidator(p.o.cfg.Thresholds, p.log, p.o.metrics).Validate(mece.Input{
			Tree:          p.tree,
			Pairs:         p.nodePairs,
			PairsCompared: len(p.nodePairs),
			Resolutions:   ledger.Resolutions(ds),
			Failed:        failed,
			Concepts:      p.concepts,
			SkillIDs:      skillIDs,
		})
		if err := p.o.store.SaveConflicts(ctx, p.run.ID, rep.Conflicts); err != nil {
			return nil, err
		}
		return rep, nil
	})
	if err != nil {
		return err
	}
	p.report = rep
	p.counts["conflicts"] = len(rep.Conflicts)
	return nil
}

type ledgerPayload struct {
	Concepts []types.MasterConcept `json:"concepts"`
	Review   []types.ReviewItem    `json:"review"`
	Stale    []string              `json:"stale,omitempty"`
}

// applyLedger replays recorded decisions over this run's artifacts.
func (p *pipeline) applyLedger(ctx context.Context) error {
	lp, err := once(ctx, p, types.StageLedger, func(ctx context.Context) (ledgerPayload, error) {
		st, err := p.o.ledger.State(ctx, ledger.Base{
			Tree:      p.tree,
			Concepts:  p.concepts,
			Conflicts: p.report.Conflicts,
			Reviews:   sortReview(p.review),
			Skills:    p.skillByID,
		}, 0)
		if err != nil {
			return ledgerPayload{}, err
		}
		reviews := make([]types.ReviewItem, 0, len(st.Reviews))
		for _, r := range st.Reviews {
			reviews = append(reviews, r)
		}
		reviews = sortReview(reviews)
		if err := p.o.store.SaveReviewItems(ctx, reviews); err != nil {
			return ledgerPayload{}, err
		}
		return ledgerPayload{Concepts: st.ConceptList(), Review: reviews, Stale: st.Stale}, nil
	})
	if err != nil {
		return err
	}
	p.final, p.review, p.stale = lp.Concepts, lp.Review, lp.Stale
	p.counts["review_items"] = len(lp.Review)
	if len(lp.Stale) > 0 {
		p.log.Warn("decisions reference artifacts missing from this run", "count", len(lp.Stale))
	}
	return nil
}

func (p *pipeline) writeReport(ctx context.Context) error {
	ds, err := p.o.ledger.Decisions(ctx)
	if err != nil {
		return err
	}
	dir := p.req.OutputDir
	if dir == "" {
		dir = p.o.cfg.OutputDir
	}
	if dir == "" {
		dir = defaultOutputDir
	}

	run := *p.run
	run.Status = types.RunCompleted
	files, err := report.Write(dir, &report.Bundle{
		Run:             &run,
		Skills:          p.skills,
		Concepts:        p.final,
		Classifications: p.classifications,
		Validation:      p.report,
		Review:          p.review,
		Decisions:       ds,
		Failures:        p.failures,
		Stale:           p.stale,
		Counts:          p.counts,
	})
	if err != nil {
		return err
	}
	path, err := p.o.metrics.WriteTextfile(dir)
	if err != nil {
		return err
	}
	if path != "" {
		files = append(files, path)
	}
	p.files = files
	return save(ctx, p, types.StageReport, len(files), true, files)
}
