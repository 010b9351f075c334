package candidates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

func newTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := NewTokenizer()
	require.NoError(t, err)
	return tok
}

func TestTokens(t *testing.T) {
	tok := newTokenizer(t)

	got := tok.Tokens("Counting the Objects, counting  objects!")
	assert.Equal(t, []string{"count", "object"}, got)
	assert.Empty(t, tok.Tokens("the and of"))
}

type fakeStructure map[string][]string

func (f fakeStructure) StructuralNeighbors(id string) []string { return f[id] }

func keys(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Key.String()
	}
	return out
}

func TestFilter(t *testing.T) {
	tok := newTokenizer(t)
	entities := []Entity{
		{ID: "s3", Text: "Counting to ten", Band: types.BandK2, Area: "Math"},
		{ID: "s1", Text: "Count objects", Band: types.BandK2, Area: "Reading"},
		{ID: "s2", Text: "Identify shapes", Band: types.BandK2, Area: "math"},
		{ID: "s4", Text: "Write an essay", Band: types.Band912, Area: "Writing"},
	}

	got, stats := Filter(tok, entities, Options{})
	assert.Equal(t, []string{"s1|s3", "s2|s3"}, keys(got))
	assert.True(t, got[0].Has(ReasonSharedToken))
	assert.False(t, got[0].Has(ReasonBucket))
	assert.Equal(t, []Reason{ReasonBucket}, got[1].Reasons)

	assert.Equal(t, 4, stats.Entities)
	assert.Equal(t, 6, stats.AllPairs)
	assert.Equal(t, 2, stats.Pairs)
}

func TestFilterSymmetricOutput(t *testing.T) {
	tok := newTokenizer(t)
	a := []Entity{{ID: "x", Text: "blend sounds"}, {ID: "y", Text: "blend phonemes"}}
	b := []Entity{a[1], a[0]}

	ga, _ := Filter(tok, a, Options{})
	gb, _ := Filter(tok, b, Options{})
	assert.Equal(t, ga, gb)
	require.Len(t, ga, 1)
	assert.Equal(t, "x", ga[0].Key.A)
}

func TestFilterStructural(t *testing.T) {
	tok := newTokenizer(t)
	entities := []Entity{
		{ID: "p", Text: "Literacy"},
		{ID: "c1", Text: "Phonics"},
		{ID: "c2", Text: "Fluency"},
	}
	structure := fakeStructure{
		"c1": {"p", "c2"},
		"c2": {"p", "c1"},
		"x":  {"p"},
	}

	got, _ := Filter(tok, entities, Options{Structure: structure})
	assert.Equal(t, []string{"c1|c2", "c1|p", "c2|p"}, keys(got))
	for _, c := range got {
		assert.Equal(t, []Reason{ReasonStructural}, c.Reasons)
	}
}

func TestFilterChangedOnly(t *testing.T) {
	tok := newTokenizer(t)
	entities := []Entity{
		{ID: "a", Text: "read words"},
		{ID: "b", Text: "read sentences"},
		{ID: "c", Text: "read stories"},
	}

	got, _ := Filter(tok, entities, Options{Changed: map[string]bool{"c": true}})
	assert.Equal(t, []string{"a|c", "b|c"}, keys(got))
}

func TestFilterMaxTokenDF(t *testing.T) {
	tok := newTokenizer(t)
	entities := []Entity{
		{ID: "a", Text: "skill alpha"},
		{ID: "b", Text: "skill beta"},
		{ID: "c", Text: "skill gamma alpha"},
	}

	got, stats := Filter(tok, entities, Options{MaxTokenDF: 2})
	assert.Equal(t, []string{"a|c"}, keys(got))
	assert.Equal(t, 1, stats.SkippedTokens)
}

func TestFromSkillsAndNodes(t *testing.T) {
	skills := []types.SkillRecord{{ID: "s", Text: "t", Grade: 4, Area: "Math"}}
	es := FromSkills(skills)
	assert.Equal(t, types.Band35, es[0].Band)

	nodes := []types.TaxonomyNode{{ID: "n", Name: "Note Taking", Annotation: "outlines"}}
	en := FromNodes(nodes)
	assert.Equal(t, "Note Taking. outlines", en[0].Text)
	assert.Equal(t, types.BandUnknown, en[0].Band)
}
