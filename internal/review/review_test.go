package review

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/orchestrator"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/taxonomy"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

func init() {
	color.NoColor = true
}

// memBackend applies decisions to an in-memory state.
type memBackend struct {
	state     *ledger.State
	decisions []types.Decision
}

func (m *memBackend) State(ctx context.Context) (*ledger.State, error) {
	return m.state, nil
}

func (m *memBackend) Decide(ctx context.Context, d *types.Decision) (*orchestrator.DecideResult, error) {
	d.ID = fmt.Sprintf("d%d", len(m.decisions)+1)
	d.Seq = int64(len(m.decisions) + 1)
	if err := m.state.Check(d); err != nil {
		return nil, err
	}
	if err := m.state.Apply(*d); err != nil {
		return nil, err
	}
	m.decisions = append(m.decisions, *d)
	return &orchestrator.DecideResult{Decision: d, Report: &mece.Report{MECEScore: 1}, State: m.state}, nil
}

func fixtureState(t *testing.T) *ledger.State {
	tree := taxonomy.Build([]types.TaxonomyNode{
		{ID: "st", Level: types.LevelStrand, Name: "Learning"},
		{ID: "p", Level: types.LevelPillar, Name: "Study", ParentID: "st"},
		{ID: "d", Level: types.LevelDomain, Name: "Organization", ParentID: "p"},
		{ID: "sa", Level: types.LevelSkillArea, Name: "Note Taking", ParentID: "d"},
		{ID: "ss", Level: types.LevelSkillSet, Name: "Note Taking", ParentID: "sa"},
	})
	low := types.MasterConcept{ID: "mc-low", Name: "summarize ideas", Members: []string{"s3", "s4"}, Confidence: types.ConfidenceLow, NeedsReview: true}
	bare := types.MasterConcept{ID: "mc-bare", Name: "take notes", Members: []string{"s1", "s2"}, Confidence: types.ConfidenceLow, NeedsReview: true}
	ok := types.MasterConcept{ID: "mc-ok", Name: "write essays", Members: []string{"s5", "s6"}, Confidence: types.ConfidenceHigh}
	s, err := ledger.Replay(ledger.Base{
		Tree:     tree,
		Concepts: []types.MasterConcept{low, bare, ok},
		Conflicts: []types.ConflictRecord{
			{
				ID:       "cf-1",
				Category: types.CategoryParentChild,
				Pair:     types.SimilarityPair{Key: types.PairKey{A: "sa", B: "ss"}, Score: 1, Relation: types.RelationAncestor},
				Status:   types.StatusOpen,
			},
			{
				ID:       "cf-2",
				Category: types.CategoryMediumOverlap,
				Pair:     types.SimilarityPair{Key: types.PairKey{A: "d", B: "ss"}, Score: 0.86},
				Status:   types.StatusOpen,
			},
		},
		Reviews: []types.ReviewItem{
			types.NewReviewItem(types.ReviewLowConfidenceGroup, "mc-low", "low confidence group"),
		},
	}, nil, 0)
	require.NoError(t, err)
	return s
}

func newSession(t *testing.T) (*Session, *memBackend, *bytes.Buffer) {
	b := &memBackend{state: fixtureState(t)}
	out := &bytes.Buffer{}
	s, err := New(&Config{Backend: b, Actor: "tester", Stdout: out})
	require.NoError(t, err)
	return s, b, out
}

func TestQueueOrdersConflictsReviewsConcepts(t *testing.T) {
	q := Queue(fixtureState(t))
	require.Len(t, q, 3, "medium overlap is not a violation and mc-low is covered by its review item")

	assert.Equal(t, KindConflict, q[0].Kind)
	assert.Equal(t, "cf-1", q[0].Target)
	assert.Contains(t, q[0].Detail, "Note Taking")

	assert.Equal(t, KindReview, q[1].Kind)
	assert.Equal(t, []string{"s3", "s4"}, q[1].Members)

	assert.Equal(t, KindConcept, q[2].Kind)
	assert.Equal(t, "mc-bare", q[2].Target)
}

func TestKeepByQueuePositionRecordsDecision(t *testing.T) {
	ctx := context.Background()
	s, b, out := newSession(t)

	require.NoError(t, s.Execute(ctx, "list"))
	require.NoError(t, s.Execute(ctx, "keep 1 -- both levels are intended"))

	require.Len(t, b.decisions, 1)
	d := b.decisions[0]
	assert.Equal(t, types.ActionKeep, d.Action)
	assert.Equal(t, []string{"cf-1"}, d.Targets)
	assert.Equal(t, "both levels are intended", d.Rationale)
	assert.Equal(t, "tester", d.Actor)

	assert.Contains(t, out.String(), "keep recorded (seq 1)")
	require.Len(t, s.queue, 2)
	assert.NotEqual(t, "cf-1", s.queue[0].Target)
}

func TestMergeConflictRemovesItFromQueue(t *testing.T) {
	ctx := context.Background()
	s, b, _ := newSession(t)

	require.NoError(t, s.Execute(ctx, "merge cf-1 -- duplicate level"))
	require.Len(t, b.decisions, 1)
	assert.Equal(t, "sa", b.state.Redirects["ss"])
	for _, it := range s.queue {
		assert.NotEqual(t, KindConflict, it.Kind)
	}
}

func TestMergeConceptsByID(t *testing.T) {
	ctx := context.Background()
	s, b, _ := newSession(t)

	require.NoError(t, s.Execute(ctx, "merge mc-low mc-bare"))
	assert.Equal(t, "mc-low", b.state.Redirects["mc-bare"])
	assert.ElementsMatch(t, []string{"s1", "s2", "s3", "s4"}, b.state.Concepts["mc-low"].Members)
}

func TestDecisionErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		line string
		want string
	}{
		{"no targets", "keep -- nothing", "at least one target"},
		{"position out of range", "keep 9", "no queue entry"},
		{"clarify without rationale", "clarify 1", "rationale"},
		{"unknown id", "specify mc-missing", "unknown"},
		{"unknown command", "frobnicate", "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b, _ := newSession(t)
			err := s.Execute(ctx, tt.line)
			require.Error(t, err)
			assert.Contains(t, strings.ToLower(err.Error()), tt.want)
			assert.Empty(t, b.decisions)
		})
	}
}

func TestShowPrintsMembers(t *testing.T) {
	ctx := context.Background()
	s, _, out := newSession(t)

	require.NoError(t, s.Execute(ctx, "show 2"))
	assert.Contains(t, out.String(), "members: s3, s4")
	assert.Error(t, s.Execute(ctx, "show"))
}

func TestRunExitsOnCommand(t *testing.T) {
	b := &memBackend{state: fixtureState(t)}
	out := &bytes.Buffer{}
	s, err := New(&Config{
		Backend: b,
		Actor:   "tester",
		Stdin:   io.NopCloser(strings.NewReader("specify 3 -- distinct on purpose\nexit\n")),
		Stdout:  out,
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, b.decisions, 1)
	assert.Equal(t, []string{"mc-bare"}, b.decisions[0].Targets)
	assert.Contains(t, out.String(), "Goodbye!")
}
