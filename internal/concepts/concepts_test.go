package concepts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/similarity"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/variants"
)

func TestActionTarget(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Blend phonemes to form words", "blend phonemes"},
		{"Orally blend 2–3 phonemes into recognizable words", "blend phonemes"},
		{"Blend spoken phonemes into one-syllable words", "blend spoken"},
		{"Apply the distributive property", "apply distributive"},
		{"Count", "count"},
		{"the and", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, actionTarget(tt.text))
		})
	}
}

func TestFrequentPhraseTieBreak(t *testing.T) {
	assert.Equal(t, "Add Fractions", frequentPhrase([]string{"Subtract fractions", "Add fractions"}))
	assert.Equal(t, "", frequentPhrase(nil))
}

// Scenario: three authorities phrase the same kindergarten skill differently.
func TestGenerateCrossAuthorityScenario(t *testing.T) {
	skills := map[string]types.SkillRecord{
		"s1": {ID: "s1", Text: "Blend phonemes to form words", Authority: "X", GradeLabel: "K", Area: "Reading", ContentDomain: "Phonological Awareness"},
		"s2": {ID: "s2", Text: "Blend spoken phonemes into one-syllable words", Authority: "Y", GradeLabel: "K", Area: "Reading", ContentDomain: "Phonological Awareness"},
		"s3": {ID: "s3", Text: "Orally blend 2–3 phonemes into recognizable words", Authority: "Z", GradeLabel: "K", Area: "Reading", ContentDomain: "Phonics"},
	}
	vectors := map[string][]float32{
		"s1": {1, 0.10, 0.05},
		"s2": {1, 0.15, 0.00},
		"s3": {1, 0.05, 0.12},
	}
	scorer, err := similarity.NewComputer(vectors, similarity.Options{})
	require.NoError(t, err)
	defer scorer.Close()

	th := config.DefaultConfig().Thresholds
	var cls []types.PairClassification
	ids := []string{"s1", "s2", "s3"}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			s, err := scorer.Similarity(ids[i], ids[j])
			require.NoError(t, err)
			require.GreaterOrEqual(t, s, 0.85)
			cls = append(cls, types.PairClassification{
				Pair:       types.SimilarityPair{Key: types.NewPairKey(ids[i], ids[j]), Score: s, Relation: types.RelationNone},
				Label:      types.VariantCrossAuthority,
				Confidence: types.ConfidenceHigh,
				Source:     types.SourceRule,
			})
		}
	}

	grouped := variants.Group(cls, scorer, th)
	require.Len(t, grouped.Groups, 1)
	assert.Equal(t, types.VariantCrossAuthority, grouped.Groups[0].Type)
	assert.Equal(t, types.ConfidenceHigh, grouped.Groups[0].Confidence)

	res := Generate(Input{Groups: grouped.Groups, Skills: skills, Vectors: vectors, Scorer: scorer}, th)
	require.Len(t, res.Concepts, 1)
	mc := res.Concepts[0]
	assert.Equal(t, 3, mc.Metrics.MemberCount)
	assert.Equal(t, 3, mc.Metrics.AuthorityCount)
	assert.Equal(t, types.ConfidenceHigh, mc.Confidence)
	assert.False(t, mc.NeedsReview)
	assert.Equal(t, "Blend Phonemes", mc.Name)
	assert.Empty(t, mc.TaxonomyNodeID)
	assert.Equal(t, []string{"Phonics", "Phonological Awareness"}, mc.Metrics.ContentDomains)
	assert.GreaterOrEqual(t, mc.Metrics.MinSimilarity, 0.85)
	assert.GreaterOrEqual(t, mc.Metrics.MeanSimilarity, mc.Metrics.MinSimilarity)
	assert.NoError(t, mc.Validate())
	assert.Empty(t, res.Review)
}

func TestGeneratePrefersTaxonomyLabel(t *testing.T) {
	skills := map[string]types.SkillRecord{
		"a": {ID: "a", Text: "Count to ten", Grade: 0},
		"b": {ID: "b", Text: "Count to 100", Grade: 1},
	}
	vectors := map[string][]float32{"a": {1, 0}, "b": {0.9, 0.1}}
	labels := []Label{
		{NodeID: "n2", Name: "Counting", Vector: []float32{1, 0.05}},
		{NodeID: "n1", Name: "Shapes", Vector: []float32{0, 1}},
	}
	group := types.VariantGroup{ID: "vg-x", Members: []string{"a", "b"}, Type: types.VariantGradeProgression, Confidence: types.ConfidenceLow}

	res := Generate(Input{Groups: []types.VariantGroup{group}, Skills: skills, Vectors: vectors, Labels: labels}, config.DefaultConfig().Thresholds)
	require.Len(t, res.Concepts, 1)
	mc := res.Concepts[0]
	assert.Equal(t, "Counting", mc.Name)
	assert.Equal(t, "n2", mc.TaxonomyNodeID)
	assert.Equal(t, types.GradeLevel(0), mc.Metrics.GradeMin)
	assert.Equal(t, types.GradeLevel(1), mc.Metrics.GradeMax)
	assert.Equal(t, 1, mc.Metrics.AuthorityCount)

	assert.True(t, mc.NeedsReview)
	require.Len(t, res.Review, 1)
	assert.Equal(t, types.ReviewLowConfidenceGroup, res.Review[0].Kind)
	assert.Equal(t, mc.ID, res.Review[0].Ref)
}

func TestAssignments(t *testing.T) {
	concepts := []types.MasterConcept{{ID: "mc-1", Members: []string{"a", "b"}}}
	got := Assignments([]string{"a", "b", "c"}, concepts)
	assert.Equal(t, map[string]string{"a": "mc-1", "b": "mc-1", "c": ""}, got)
}
