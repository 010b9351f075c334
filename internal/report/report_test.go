package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func sampleBundle() *Bundle {
	skills := []types.SkillRecord{
		{ID: "s2", Text: "Take notes while reading", Authority: "B", Grade: 4},
		{ID: "s1", Text: "Take notes during a lecture", Authority: "A", Grade: 3},
		{ID: "s3", Text: "Compare fractions", Authority: "A", Grade: 5},
	}
	concepts := []types.MasterConcept{{
		ID: "mc-1", Name: "Note Taking", GroupID: "vg-1", Members: []string{"s1", "s2"},
		Confidence: types.ConfidenceHigh,
		Metrics:    types.ConceptMetrics{MemberCount: 2, AuthorityCount: 2, GradeMin: 3, GradeMax: 4, MinSimilarity: 0.91, MeanSimilarity: 0.91},
	}}
	pair := types.SimilarityPair{Key: types.NewPairKey("sa", "ss"), Score: 0.95, Relation: types.RelationAncestor}
	return &Bundle{
		Run:      &types.Run{ID: "run-1", Mode: types.ModeRebuild, Status: types.RunCompleted},
		Skills:   skills,
		Concepts: concepts,
		Classifications: []types.PairClassification{{
			Pair:  types.SimilarityPair{Key: types.NewPairKey("s1", "s2"), Score: 0.91},
			Label: types.VariantCrossAuthority, Confidence: types.ConfidenceHigh, Source: types.SourceRule,
		}},
		Validation: &mece.Report{
			NodeCount: 4, MECEScore: 0.75,
			Counts:    map[types.ConflictCategory]mece.CategoryCount{types.CategoryParentChild: {Open: 1}},
			Conflicts: []types.ConflictRecord{{ID: "cf-1", Category: types.CategoryParentChild, Pair: pair, Status: types.StatusOpen}},
		},
		Review: []types.ReviewItem{
			{ID: "rv-1", Status: types.StatusOpen},
			{ID: "rv-2", Status: types.StatusResolved},
		},
		Decisions: []types.Decision{{ID: "d1", Seq: 1, Action: types.ActionKeep, Targets: []string{"cf-1"}, Actor: "kim"}},
		Failures:  []types.EmbeddingFailure{{EntityID: "s9", Error: "timeout", Attempts: 3}},
	}
}

func TestWriteProducesEveryArtifact(t *testing.T) {
	dir := t.TempDir()
	paths, err := Write(dir, sampleBundle())
	require.NoError(t, err)
	require.Len(t, paths, 8)
	for _, p := range paths {
		assert.FileExists(t, p)
	}

	mapping := readCSV(t, filepath.Join(dir, MappingFile))
	assert.Equal(t, [][]string{
		{"skill_id", "authority", "grade", "concept_id"},
		{"s1", "A", "3", "mc-1"},
		{"s2", "B", "4", "mc-1"},
		{"s3", "A", "5", ""},
	}, mapping)

	concepts := readCSV(t, filepath.Join(dir, ConceptsFile))
	require.Len(t, concepts, 2)
	assert.Equal(t, "Note Taking", concepts[1][1])
	assert.Equal(t, "0.9100", concepts[1][11])

	redundancies := readCSV(t, filepath.Join(dir, RedundanciesFile))
	assert.Len(t, redundancies, 3)

	conflicts := readCSV(t, filepath.Join(dir, ConflictsFile))
	require.Len(t, conflicts, 2)
	assert.Equal(t, []string{"cf-1", "parent-child-redundancy", "sa", "ss", "0.9500", "ancestor-descendant", "open", "", ""}, conflicts[1])

	f, err := os.Open(filepath.Join(dir, LedgerFile))
	require.NoError(t, err)
	defer f.Close()
	ds, err := ledger.ReadJSONL(f)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "d1", ds[0].ID)
}

func TestSummaryListsFailedEntities(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, sampleBundle())
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	var s Summary
	require.NoError(t, json.Unmarshal(raw, &s))

	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 3, s.Skills)
	assert.Equal(t, 1, s.Unmapped)
	assert.Equal(t, 1, s.OpenViolations)
	assert.Equal(t, 1, s.OpenReview)
	assert.Equal(t, []FailedEntity{{ID: "s9", Error: "timeout", Attempts: 3}}, s.FailedEntities)
	assert.Len(t, s.Files, 8)
}

func TestSummaryWithoutFailuresHasEmptyList(t *testing.T) {
	b := sampleBundle()
	b.Failures = nil
	b.Validation = nil
	s := Summarize(b, MappingOf(b.Skills, b.Concepts))
	assert.NotNil(t, s.FailedEntities)
	assert.Empty(t, s.FailedEntities)
	assert.Equal(t, 0.0, s.MECEScore)

	rows := conflictRows(nil)
	assert.Len(t, rows, 1)
}
