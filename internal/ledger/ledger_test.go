package ledger

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/taxonomy"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

type memStore struct {
	mu        sync.Mutex
	decisions []types.Decision
}

func (m *memStore) AppendDecision(_ context.Context, d *types.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Seq = int64(len(m.decisions) + 1)
	m.decisions = append(m.decisions, *d)
	return nil
}

func (m *memStore) ListDecisions(context.Context) ([]types.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Decision(nil), m.decisions...), nil
}

func testTree() *taxonomy.Tree {
	return taxonomy.Build([]types.TaxonomyNode{
		{ID: "st", Level: types.LevelStrand, Name: "Learning Skills"},
		{ID: "p", Level: types.LevelPillar, Name: "Study", ParentID: "st"},
		{ID: "d", Level: types.LevelDomain, Name: "Organization", ParentID: "p"},
		{ID: "sa", Level: types.LevelSkillArea, Name: "Note Taking", ParentID: "d"},
		{ID: "ss", Level: types.LevelSkillSet, Name: "Note Taking", ParentID: "sa"},
		{ID: "ss2", Level: types.LevelSkillSet, Name: "Outlining", ParentID: "sa"},
	})
}

func testBase() Base {
	conflict := types.ConflictRecord{
		ID:       "cf-parentchild",
		Category: types.CategoryParentChild,
		Pair:     types.SimilarityPair{Key: types.NewPairKey("sa", "ss"), Score: 1, Relation: types.RelationAncestor},
		Status:   types.StatusOpen,
	}
	return Base{
		Tree:      testTree(),
		Conflicts: []types.ConflictRecord{conflict},
		Concepts: []types.MasterConcept{
			{ID: "mc-1", Name: "Blend Phonemes", Members: []string{"s1", "s2"}, Confidence: types.ConfidenceHigh,
				Metrics: types.ConceptMetrics{MemberCount: 2, MinSimilarity: 0.9, MeanSimilarity: 0.9}},
			{ID: "mc-2", Name: "Blend Sounds", Members: []string{"s3", "s4"}, Confidence: types.ConfidenceLow, NeedsReview: true,
				Metrics: types.ConceptMetrics{MemberCount: 2, MinSimilarity: 0.8, MeanSimilarity: 0.8}},
		},
		Reviews: []types.ReviewItem{types.NewReviewItem(types.ReviewLowConfidenceGroup, "mc-2", "low")},
		Skills: map[string]types.SkillRecord{
			"s1": {ID: "s1", Text: "Blend phonemes", Grade: types.GradeKindergarten, Authority: "A"},
			"s2": {ID: "s2", Text: "Blend phonemes orally", Grade: types.GradeLevel(1), Authority: "B"},
			"s3": {ID: "s3", Text: "Blend sounds", Grade: types.GradeKindergarten, Authority: "C"},
			"s4": {ID: "s4", Text: "Blend sounds into words", Grade: types.GradeLevel(1), Authority: "C"},
		},
	}
}

func decision(action types.DecisionAction, rationale string, targets ...string) *types.Decision {
	return &types.Decision{Action: action, Targets: targets, Rationale: rationale, Actor: "reviewer"}
}

func TestRecordAssignsIdentityAndSequence(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store, nil)
	state := NewState(testBase())

	d := decision(types.ActionKeep, "distinct enough", "cf-parentchild")
	require.NoError(t, l.Record(ctx, state, d))

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, int64(1), d.Seq)
	assert.False(t, d.Timestamp.IsZero())
	assert.Equal(t, types.StatusResolved, state.Conflicts["cf-parentchild"].Status)
	assert.Equal(t, d.ID, state.Conflicts["cf-parentchild"].ResolvedBy)
	assert.True(t, state.Resolutions["cf-parentchild"].Closed)
}

func TestRecordRejectsBadDecisions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		d    *types.Decision
		want error
	}{
		{"unknown target", decision(types.ActionKeep, "", "nope"), ErrUnknownTarget},
		{"clarify without rationale", decision(types.ActionClarify, "", "mc-1"), ErrInvalidDecision},
		{"merge single concept", decision(types.ActionMerge, "", "mc-1"), ErrInvalidDecision},
		{"merge mixed kinds", decision(types.ActionMerge, "", "mc-1", "sa"), ErrInvalidDecision},
		{"merge ancestor into descendant", decision(types.ActionMerge, "", "ss", "sa"), ErrInvalidDecision},
		{"merge conflict outside run", decision(types.ActionMerge, "", "cf-elsewhere"), ErrUnknownTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			err := New(store, nil).Record(ctx, NewState(testBase()), tt.d)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.decisions, "rejected decisions must not be appended")
		})
	}
}

func TestMergeConflictKeepsAncestor(t *testing.T) {
	ctx := context.Background()
	state := NewState(testBase())
	require.NoError(t, New(&memStore{}, nil).Record(ctx, state, decision(types.ActionMerge, "same skill", "cf-parentchild")))

	_, ok := state.Tree.Node("ss")
	assert.False(t, ok)
	_, ok = state.Tree.Node("sa")
	assert.True(t, ok)
	assert.Equal(t, []string{"ss2"}, state.Tree.Children("sa"))
	assert.Equal(t, "sa", state.Redirects["ss"])
	assert.Equal(t, types.StatusResolved, state.Conflicts["cf-parentchild"].Status)
}

func TestMergeConcepts(t *testing.T) {
	ctx := context.Background()
	state := NewState(testBase())
	require.NoError(t, New(&memStore{}, nil).Record(ctx, state, decision(types.ActionMerge, "", "mc-1", "mc-2")))

	require.Len(t, state.Concepts, 1)
	c := state.Concepts["mc-1"]
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, c.Members)
	assert.Equal(t, 4, c.Metrics.MemberCount)
	assert.Equal(t, 3, c.Metrics.AuthorityCount)
	assert.InDelta(t, 0.8, c.Metrics.MinSimilarity, 1e-9)
	assert.InDelta(t, 0.85, c.Metrics.MeanSimilarity, 1e-9)
	assert.Equal(t, types.ConfidenceLow, c.Confidence)
	require.NoError(t, c.Validate())

	// Later decisions naming the absorbed concept follow the redirect.
	require.NoError(t, New(&memStore{}, nil).Record(ctx, state, decision(types.ActionClarify, "covers oral blending", "mc-2")))
	assert.Equal(t, "covers oral blending", state.Concepts["mc-1"].Rationale)
}

func TestClarifyDoesNotClose(t *testing.T) {
	ctx := context.Background()
	state := NewState(testBase())
	require.NoError(t, New(&memStore{}, nil).Record(ctx, state, decision(types.ActionClarify, "needs a grade note", "cf-parentchild")))

	assert.Equal(t, types.StatusOpen, state.Conflicts["cf-parentchild"].Status)
	res := state.Resolutions["cf-parentchild"]
	assert.False(t, res.Closed)
	assert.Equal(t, "needs a grade note", res.Rationale)
}

func TestKeepResolvesReviewItem(t *testing.T) {
	ctx := context.Background()
	base := testBase()
	state := NewState(base)
	reviewID := base.Reviews[0].ID

	require.NoError(t, New(&memStore{}, nil).Record(ctx, state, decision(types.ActionKeep, "", reviewID)))
	assert.Equal(t, types.StatusResolved, state.Reviews[reviewID].Status)
	assert.False(t, state.Concepts["mc-2"].NeedsReview)
}

func TestReplayReproducesState(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store, nil)
	live := NewState(testBase())
	require.NoError(t, l.Record(ctx, live, decision(types.ActionMerge, "", "mc-1", "mc-2")))
	require.NoError(t, l.Record(ctx, live, decision(types.ActionMerge, "", "cf-parentchild")))

	replayed, err := l.State(ctx, testBase(), 0)
	require.NoError(t, err)
	assert.Equal(t, live.ConceptList(), replayed.ConceptList())
	assert.Equal(t, live.Tree.Nodes(), replayed.Tree.Nodes())
	assert.Equal(t, live.Resolutions, replayed.Resolutions)
	assert.Equal(t, int64(2), replayed.Seq)

	// Replaying to seq 1 leaves the conflict open.
	partial, err := l.State(ctx, testBase(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, partial.Conflicts["cf-parentchild"].Status)
	assert.Len(t, partial.Tree.IDs(), 6)
}

func TestReplayRecordsStaleTargets(t *testing.T) {
	ds := []types.Decision{
		{ID: "d1", Seq: 1, Action: types.ActionKeep, Targets: []string{"mc-gone"}, Actor: "r"},
		{ID: "d2", Seq: 2, Action: types.ActionKeep, Targets: []string{"mc-1"}, Actor: "r"},
	}
	s, err := Replay(testBase(), ds, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, s.Stale)
	assert.Equal(t, int64(2), s.Seq)
}

func TestResolutionsFromDecisionsAlone(t *testing.T) {
	ds := []types.Decision{
		{ID: "d1", Seq: 1, Action: types.ActionMerge, Targets: []string{"cf-a"}, Actor: "r"},
		{ID: "d2", Seq: 2, Action: types.ActionClarify, Targets: []string{"cf-b"}, Rationale: "why", Actor: "r"},
		{ID: "d3", Seq: 3, Action: types.ActionSpecify, Targets: []string{"cf-c", "mc-x"}, Actor: "r"},
	}
	res := Resolutions(ds)
	assert.True(t, res["cf-a"].Closed)
	assert.Equal(t, "d1", res["cf-a"].DecisionID)
	assert.False(t, res["cf-b"].Closed)
	assert.Equal(t, "why", res["cf-b"].Rationale)
	// d3 names a concept that does not exist without a run, so it is stale.
	assert.NotContains(t, res, "cf-c")
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := &memStore{}
	l := New(src, nil)
	state := NewState(testBase())
	require.NoError(t, l.Record(ctx, state, decision(types.ActionKeep, "fine", "cf-parentchild")))
	require.NoError(t, l.Record(ctx, state, decision(types.ActionClarify, "note", "mc-1")))

	var buf bytes.Buffer
	n, err := l.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	dst := &memStore{}
	imported := New(dst, nil)
	added, err := imported.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// A second import of the same file adds nothing.
	added, err = imported.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	for i := range src.decisions {
		assert.Equal(t, src.decisions[i].ID, dst.decisions[i].ID)
		assert.True(t, src.decisions[i].Timestamp.Equal(dst.decisions[i].Timestamp))
	}
}

func TestReadJSONLRejectsMalformedLines(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"id\":\"d1\",\"action\":\"keep\",\"targets\":[\"x\"],\"actor\":\"r\"}\n{not json}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadJSONL(strings.NewReader("{\"id\":\"d1\",\"action\":\"shred\",\"targets\":[\"x\"],\"actor\":\"r\"}\n"))
	assert.ErrorIs(t, err, ErrInvalidDecision)
}
