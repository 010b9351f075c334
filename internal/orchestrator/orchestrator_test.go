package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ai"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/report"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/resilience"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/storage"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

const dims = 10

func unit(i int) []float32 {
	v := make([]float32, dims)
	v[i] = 1
	return v
}

func mix(i int, a float32, j int, b float32) []float32 {
	v := make([]float32, dims)
	v[i], v[j] = a, b
	return v
}

// fixtureVectors places the skills so that s1/s2 and s4/s5 clear the variant
// floor, s3/s4 and s3/s5 fall in the ambiguous band, and s6 matches nothing.
// The two "Note Taking" nodes are identical.
var fixtureVectors = map[string][]float32{
	"Take notes during a lecture":               unit(0),
	"Record notes while listening to a lecture": mix(0, 0.95, 1, 0.312),
	"Summarize key ideas of a text":             unit(2),
	"Summarize main ideas from a passage":       mix(2, 0.7, 3, 0.714),
	"Identify the main idea of a paragraph":     mix(2, 0.68, 3, 0.733),
	"Write a persuasive essay":                  unit(4),
	"Write a persuasive essay with evidence":    unit(4),
	"Learning Skills":                           unit(5),
	"Study":                                     unit(6),
	"Organization":                              unit(7),
	"Note Taking":                               unit(8),
	"Outlining":                                 unit(9),
}

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]bool
	calls   int
}

func newFakeEmbedder(fail ...string) *fakeEmbedder {
	f := &fakeEmbedder{vectors: make(map[string][]float32), fail: make(map[string]bool)}
	for text, v := range fixtureVectors {
		f.vectors[embedding.Normalize(text)] = v
	}
	for _, text := range fail {
		f.fail[embedding.Normalize(text)] = true
	}
	return f
}

func (f *fakeEmbedder) Model() string { return "fake-model" }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		key := embedding.Normalize(t)
		if f.fail[key] {
			return nil, resilience.Permanent(fmt.Errorf("input rejected: %q", t))
		}
		v, ok := f.vectors[key]
		if !ok {
			return nil, resilience.Permanent(fmt.Errorf("no fixture vector for %q", t))
		}
		out = append(out, append([]float32(nil), v...))
	}
	return out, nil
}

// fakeAdjudicator labels every pair cross-authority. With interruptAt set it
// cancels the run on that call instead.
type fakeAdjudicator struct {
	mu          sync.Mutex
	calls       int
	interruptAt int
	cancel      context.CancelFunc
}

func (f *fakeAdjudicator) Classify(ctx context.Context, a, b types.SkillRecord) (*ai.Verdict, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.interruptAt > 0 && n == f.interruptAt {
		f.cancel()
		return nil, ctx.Err()
	}
	return &ai.Verdict{Label: types.VariantCrossAuthority, Rationale: "same skill, different wording"}, nil
}

func (f *fakeAdjudicator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fixtureSkills() []types.SkillRecord {
	skill := func(id, text, authority string, grade int) types.SkillRecord {
		return types.SkillRecord{
			ID:            id,
			Text:          text,
			Authority:     authority,
			GradeLabel:    fmt.Sprintf("Grade %d", grade),
			Grade:         types.GradeLevel(grade),
			Area:          "ELA",
			ContentDomain: "Literacy",
		}
	}
	return []types.SkillRecord{
		skill("s1", "Take notes during a lecture", "A", 3),
		skill("s2", "Record notes while listening to a lecture", "B", 3),
		skill("s3", "Summarize key ideas of a text", "A", 4),
		skill("s4", "Summarize main ideas from a passage", "C", 4),
		skill("s5", "Identify the main idea of a paragraph", "B", 4),
		skill("s6", "Write a persuasive essay", "A", 4),
	}
}

func fixtureNodes() []types.TaxonomyNode {
	return []types.TaxonomyNode{
		{ID: "st", Level: types.LevelStrand, Name: "Learning Skills"},
		{ID: "p", Level: types.LevelPillar, Name: "Study", ParentID: "st"},
		{ID: "d", Level: types.LevelDomain, Name: "Organization", ParentID: "p"},
		{ID: "sa", Level: types.LevelSkillArea, Name: "Note Taking", ParentID: "d"},
		{ID: "ss", Level: types.LevelSkillSet, Name: "Note Taking", ParentID: "sa"},
		{ID: "ss2", Level: types.LevelSkillSet, Name: "Outlining", ParentID: "sa"},
	}
}

func testSettings(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Batch.CheckpointInterval = 1
	cfg.Batch.Concurrency = 1
	cfg.Embedding.BatchSize = 1
	cfg.Embedding.RequestsPerSecond = 0
	cfg.Retry.MaxRetries = 1
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.OutputDir = t.TempDir()
	return cfg
}

func newTestStore(t *testing.T) storage.Storage {
	ctx := context.Background()
	store, err := storage.NewStorage(ctx, config.StorageConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type harness struct {
	store storage.Storage
	cfg   *config.Config
	emb   *fakeEmbedder
	adj   *fakeAdjudicator
	orch  *Orchestrator
}

func newHarness(t *testing.T, store storage.Storage, emb *fakeEmbedder, adj *fakeAdjudicator) *harness {
	if store == nil {
		store = newTestStore(t)
	}
	if emb == nil {
		emb = newFakeEmbedder()
	}
	if adj == nil {
		adj = &fakeAdjudicator{}
	}
	cfg := testSettings(t)
	o, err := New(&Config{Store: store, Settings: cfg, Embedder: emb, Adjudicator: adj})
	require.NoError(t, err)
	return &harness{store: store, cfg: cfg, emb: emb, adj: adj, orch: o}
}

func rebuild() Request {
	return Request{Mode: types.ModeRebuild, Skills: fixtureSkills(), Nodes: fixtureNodes()}
}

func conceptMembers(cs []types.MasterConcept) [][]string {
	out := make([][]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Members)
	}
	return out
}

func asJSON(t *testing.T, v interface{}) string {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestRebuildProducesConceptsAndConflicts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil, nil)

	out, err := h.orch.Run(ctx, rebuild())
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, out.Run.Status)
	assert.False(t, out.Resumed)
	assert.Empty(t, out.Failures)
	assert.Equal(t, 2, h.adj.count(), "only the two ambiguous-band pairs are adjudicated")

	require.Len(t, out.Concepts, 2)
	assert.ElementsMatch(t, [][]string{{"s1", "s2"}, {"s3", "s4", "s5"}}, conceptMembers(out.Concepts))
	for _, c := range out.Concepts {
		assert.NotContains(t, c.Members, "s6")
	}

	require.NotNil(t, out.Report)
	require.Len(t, out.Report.Conflicts, 1)
	cf := out.Report.Conflicts[0]
	assert.Equal(t, types.CategoryParentChild, cf.Category)
	assert.Equal(t, types.PairKey{A: "sa", B: "ss"}, cf.Pair.Key)
	assert.Equal(t, types.StatusOpen, cf.Status)
	assert.Equal(t, 1, out.Report.OpenViolations())
	assert.Less(t, out.Report.MECEScore, 1.0)

	for _, name := range []string{report.ConceptsFile, report.MappingFile, report.ConflictsFile, report.ValidationFile, report.SummaryFile} {
		_, err := os.Stat(filepath.Join(h.cfg.OutputDir, name))
		assert.NoError(t, err, name)
	}

	runs, err := h.store.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunCompleted, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)

	st, err := h.orch.Status(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, st.OpenConflicts, 1)
	require.NotEmpty(t, st.Progress)
	for _, p := range st.Progress {
		assert.True(t, p.Done, "stage %s", p.Stage)
	}
}

func TestRebuildIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := newHarness(t, nil, nil, nil).orch.Run(ctx, rebuild())
	require.NoError(t, err)
	b, err := newHarness(t, nil, nil, nil).orch.Run(ctx, rebuild())
	require.NoError(t, err)

	assert.JSONEq(t, asJSON(t, a.Concepts), asJSON(t, b.Concepts))
	assert.JSONEq(t, asJSON(t, a.Classifications), asJSON(t, b.Classifications))
	assert.JSONEq(t, asJSON(t, a.Report), asJSON(t, b.Report))
}

func readSummary(t *testing.T, h *harness) report.Summary {
	data, err := os.ReadFile(filepath.Join(h.cfg.OutputDir, report.SummaryFile))
	require.NoError(t, err)
	var sum report.Summary
	require.NoError(t, json.Unmarshal(data, &sum))
	return sum
}

func TestInterruptedRunResumesToSameResult(t *testing.T) {
	whole := newHarness(t, nil, nil, nil)
	want, err := whole.orch.Run(context.Background(), rebuild())
	require.NoError(t, err)
	require.Equal(t, 2, want.Counts["llm_verdicts"])

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupting := &fakeAdjudicator{interruptAt: 2, cancel: cancel}
	h := newHarness(t, store, nil, interrupting)

	_, err = h.orch.Run(ctx, rebuild())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	runs, err := store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunInterrupted, runs[0].Status)

	resumed := newHarness(t, store, nil, nil)
	got, err := resumed.orch.Run(context.Background(), rebuild())
	require.NoError(t, err)

	assert.True(t, got.Resumed)
	assert.Equal(t, runs[0].ID, got.Run.ID)
	assert.Equal(t, 1, resumed.adj.count(), "the verdict checkpointed before the interrupt is not requested again")
	assert.JSONEq(t, asJSON(t, want.Concepts), asJSON(t, got.Concepts))
	assert.JSONEq(t, asJSON(t, want.Classifications), asJSON(t, got.Classifications))
	assert.JSONEq(t, asJSON(t, want.Report), asJSON(t, got.Report))
	assert.Equal(t, want.Counts, got.Counts)
	assert.Equal(t, readSummary(t, whole).Counts, readSummary(t, resumed).Counts)

	runs, err = store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunCompleted, runs[0].Status)
}

func TestCorruptCheckpointIsSkippedOnResume(t *testing.T) {
	want, err := newHarness(t, nil, nil, nil).orch.Run(context.Background(), rebuild())
	require.NoError(t, err)

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, store, nil, &fakeAdjudicator{interruptAt: 2, cancel: cancel})
	_, err = h.orch.Run(ctx, rebuild())
	require.Error(t, err)

	bg := context.Background()
	runs, err := store.ListRuns(bg, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	cps, err := store.ListCheckpoints(bg, runs[0].ID, types.StageClassify)
	require.NoError(t, err)
	require.NotEmpty(t, cps)
	for _, cp := range cps {
		cp := cp
		cp.Payload = []byte(`[{"pair":"tampered"}]`)
		require.NoError(t, store.PutCheckpoint(bg, &cp))
	}

	resumed := newHarness(t, store, nil, nil)
	got, err := resumed.orch.Run(bg, rebuild())
	require.NoError(t, err)
	assert.True(t, got.Resumed)
	assert.Equal(t, 2, resumed.adj.count(), "classification restarts once its checkpoints fail verification")
	assert.JSONEq(t, asJSON(t, want.Concepts), asJSON(t, got.Concepts))
	assert.JSONEq(t, asJSON(t, want.Report), asJSON(t, got.Report))
}

func TestEmbeddingFailureIsReportedNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	h := newHarness(t, store, newFakeEmbedder("Write a persuasive essay"), nil)

	out, err := h.orch.Run(ctx, rebuild())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, out.Run.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "skill:s6", out.Failures[0].EntityID)
	assert.Contains(t, out.Failures[0].Error, "input rejected")
	assert.Len(t, out.Concepts, 2)
	assert.Contains(t, out.Report.Failed, "skill:s6")

	data, err := os.ReadFile(filepath.Join(h.cfg.OutputDir, report.SummaryFile))
	require.NoError(t, err)
	var sum report.Summary
	require.NoError(t, json.Unmarshal(data, &sum))
	require.Len(t, sum.FailedEntities, 1)
	assert.Equal(t, "skill:s6", sum.FailedEntities[0].ID)

	stored, err := store.ListEmbeddingFailures(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	// The entity is retried by the next run and cleared once it embeds.
	fixed := newHarness(t, store, nil, nil)
	out, err = fixed.orch.Run(ctx, Request{Mode: types.ModeRebuild, Skills: fixtureSkills(), Nodes: fixtureNodes(), Fresh: true})
	require.NoError(t, err)
	assert.Empty(t, out.Failures)
	stored, err = store.ListEmbeddingFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestEmbeddingFailureSurvivesNodeWithSameID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	skills := fixtureSkills()
	skills[5].ID = "d" // same id as the "Organization" node, which embeds fine
	h := newHarness(t, store, newFakeEmbedder("Write a persuasive essay"), nil)

	out, err := h.orch.Run(ctx, Request{Mode: types.ModeRebuild, Skills: skills, Nodes: fixtureNodes()})
	require.NoError(t, err)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "skill:d", out.Failures[0].EntityID)

	stored, err := store.ListEmbeddingFailures(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1, "the node's success must not clear the skill's failure")
	assert.Equal(t, "skill:d", stored[0].EntityID)

	again := newHarness(t, store, newFakeEmbedder("Write a persuasive essay"), nil)
	_, err = again.orch.Run(ctx, Request{Mode: types.ModeRebuild, Skills: skills, Nodes: fixtureNodes(), Fresh: true})
	require.NoError(t, err)
	stored, err = store.ListEmbeddingFailures(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "skill:d", stored[0].EntityID)
}

func TestNoLLMLeavesAmbiguousPairsUnrelated(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	req := rebuild()
	req.NoLLM = true

	out, err := h.orch.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, h.adj.count())

	byKey := make(map[types.PairKey]types.PairClassification)
	for _, pc := range out.Classifications {
		byKey[pc.Pair.Key] = pc
	}
	pc, ok := byKey[types.PairKey{A: "s3", B: "s4"}]
	require.True(t, ok)
	assert.Equal(t, types.VariantUnrelated, pc.Label)
	assert.Equal(t, types.ConfidenceLow, pc.Confidence)

	assert.ElementsMatch(t, [][]string{{"s1", "s2"}, {"s4", "s5"}}, conceptMembers(out.Concepts))
}

func TestIncrementalReusesStoredVerdicts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil, nil)
	first, err := h.orch.Run(ctx, rebuild())
	require.NoError(t, err)
	require.Equal(t, 2, h.adj.count())

	edited := fixtureSkills()[5]
	edited.Text = "Write a persuasive essay with evidence"
	merged, changed, err := h.orch.MergeUpdates(ctx, []types.SkillRecord{edited})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"s6": true}, changed)
	require.Len(t, merged, 6)

	out, err := h.orch.Run(ctx, Request{Mode: types.ModeIncremental, Skills: merged, Nodes: fixtureNodes(), Changed: changed})
	require.NoError(t, err)
	assert.Equal(t, 2, h.adj.count(), "unchanged pairs are not adjudicated again")
	assert.JSONEq(t, asJSON(t, first.Concepts), asJSON(t, out.Concepts))
	assert.Len(t, out.Classifications, len(first.Classifications))
}

func TestValidateModeUsesStoredConcepts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil, nil)
	_, err := h.orch.Run(ctx, rebuild())
	require.NoError(t, err)
	calls := h.emb.calls

	out, err := h.orch.Run(ctx, Request{Mode: types.ModeValidate, Nodes: fixtureNodes()})
	require.NoError(t, err)
	assert.Equal(t, calls, h.emb.calls, "every node vector comes from the cache")
	assert.Len(t, out.Concepts, 2)
	assert.Empty(t, out.Classifications)
	require.Len(t, out.Report.Conflicts, 1)
	assert.Equal(t, types.CategoryParentChild, out.Report.Conflicts[0].Category)
}

func TestDecideMergeResolvesConflict(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil, nil)
	out, err := h.orch.Run(ctx, rebuild())
	require.NoError(t, err)
	require.Len(t, out.Report.Conflicts, 1)
	cfID := out.Report.Conflicts[0].ID

	res, err := h.orch.Decide(ctx, &types.Decision{
		Action:    types.ActionMerge,
		Targets:   []string{cfID},
		Rationale: "same skill area",
		Actor:     "reviewer",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Decision.ID)
	assert.Equal(t, types.ModeDecide, res.Run.Mode)
	assert.Zero(t, res.Report.OpenViolations())
	assert.Equal(t, 1.0, res.Report.MECEScore)
	assert.Equal(t, "sa", res.State.Redirects["ss"])

	st, err := h.orch.Status(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, st.OpenConflicts)
	assert.Equal(t, 1, st.Decisions)

	// A later batch run over the unchanged taxonomy keeps the conflict closed.
	again, err := h.orch.Run(ctx, Request{Mode: types.ModeRebuild, Skills: fixtureSkills(), Nodes: fixtureNodes(), Fresh: true})
	require.NoError(t, err)
	require.Len(t, again.Report.Conflicts, 1)
	assert.Equal(t, types.StatusResolved, again.Report.Conflicts[0].Status)
	assert.Zero(t, again.Report.OpenViolations())
	assert.Empty(t, again.Stale)
}

func TestDecideRejectsUnknownTarget(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil, nil)
	_, err := h.orch.Run(ctx, rebuild())
	require.NoError(t, err)

	_, err = h.orch.Decide(ctx, &types.Decision{Action: types.ActionKeep, Targets: []string{"nope"}, Actor: "reviewer"})
	require.Error(t, err)

	st, err := h.orch.Status(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, st.Decisions)
}

func TestRunRejectsDecideMode(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	_, err := h.orch.Run(context.Background(), Request{Mode: types.ModeDecide})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid batch mode")
}

func TestInputHashIgnoresOrder(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	req := rebuild()
	a, err := h.orch.inputHash(req)
	require.NoError(t, err)

	reversed := rebuild()
	for i, j := 0, len(reversed.Skills)-1; i < j; i, j = i+1, j-1 {
		reversed.Skills[i], reversed.Skills[j] = reversed.Skills[j], reversed.Skills[i]
	}
	b, err := h.orch.inputHash(reversed)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	req.NoLLM = true
	c, err := h.orch.inputHash(req)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
