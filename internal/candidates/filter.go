// Package candidates narrows the all-pairs comparison space to pairs worth a vector
// comparison. The filter is recall-biased: any pair that shares a content token, a
// coarse bucket or a structural relation is admitted.
package candidates

import (
	"sort"
	"strings"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Reason records why a pair was admitted.
type Reason string

const (
	ReasonSharedToken Reason = "shared-token"
	ReasonBucket      Reason = "bucket"
	ReasonStructural  Reason = "structural"
)

type reasonSet uint8

const (
	bitToken reasonSet = 1 << iota
	bitBucket
	bitStructural
)

func (r reasonSet) list() []Reason {
	var out []Reason
	if r&bitToken != 0 {
		out = append(out, ReasonSharedToken)
	}
	if r&bitBucket != 0 {
		out = append(out, ReasonBucket)
	}
	if r&bitStructural != 0 {
		out = append(out, ReasonStructural)
	}
	return out
}

// Entity is anything that can be compared: a skill or a taxonomy node.
// Band and Area are empty for taxonomy nodes, which disables bucketing for them.
type Entity struct {
	ID   string
	Text string
	Band types.GradeBand
	Area string
}

// FromSkills converts skill records to entities.
func FromSkills(skills []types.SkillRecord) []Entity {
	out := make([]Entity, len(skills))
	for i := range skills {
		out[i] = Entity{ID: skills[i].ID, Text: skills[i].Text, Band: skills[i].Band(), Area: skills[i].Area}
	}
	return out
}

// FromNodes converts taxonomy nodes to entities; node text is name plus annotation.
func FromNodes(nodes []types.TaxonomyNode) []Entity {
	out := make([]Entity, len(nodes))
	for i := range nodes {
		out[i] = Entity{ID: nodes[i].ID, Text: nodes[i].Text()}
	}
	return out
}

// Structure supplies structural neighbours (ancestors and siblings) of an entity.
type Structure interface {
	StructuralNeighbors(id string) []string
}

// Options tune the filter.
type Options struct {
	// MaxTokenDF skips tokens carried by more than this many entities. 0 disables the guard.
	MaxTokenDF int
	// Changed restricts output to pairs touching at least one changed entity. nil means all.
	Changed map[string]bool
	// Structure adds ancestor/descendant and sibling pairs.
	Structure Structure
}

// Candidate is one admitted pair.
type Candidate struct {
	Key     types.PairKey
	Reasons []Reason
}

// Has reports whether the candidate was admitted for reason r.
func (c Candidate) Has(r Reason) bool {
	for _, x := range c.Reasons {
		if x == r {
			return true
		}
	}
	return false
}

// Stats summarizes a filter pass.
type Stats struct {
	Entities      int
	Tokens        int
	SkippedTokens int
	Pairs         int
	AllPairs      int
}

// Filter produces the de-duplicated candidate pairs for entities, sorted by key.
func Filter(tok *Tokenizer, entities []Entity, opts Options) ([]Candidate, Stats) {
	stats := Stats{Entities: len(entities), AllPairs: len(entities) * (len(entities) - 1) / 2}
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[e.ID] = true
	}

	pairs := make(map[types.PairKey]reasonSet)
	admit := func(a, b string, r reasonSet) {
		if a == b || !known[a] || !known[b] {
			return
		}
		if opts.Changed != nil && !opts.Changed[a] && !opts.Changed[b] {
			return
		}
		k := types.NewPairKey(a, b)
		pairs[k] |= r
	}

	postings := make(map[string][]string)
	for _, e := range entities {
		for _, t := range tok.Tokens(e.Text) {
			postings[t] = append(postings[t], e.ID)
		}
	}
	stats.Tokens = len(postings)
	for _, ids := range postings {
		if opts.MaxTokenDF > 0 && len(ids) > opts.MaxTokenDF {
			stats.SkippedTokens++
			continue
		}
		admitGroup(ids, opts.Changed, bitToken, admit)
	}

	buckets := make(map[bucketKey][]string)
	for _, e := range entities {
		if e.Band == types.BandUnknown || e.Area == "" {
			continue
		}
		k := bucketKey{band: e.Band, area: normalizeArea(e.Area)}
		buckets[k] = append(buckets[k], e.ID)
	}
	for _, ids := range buckets {
		admitGroup(ids, opts.Changed, bitBucket, admit)
	}

	if opts.Structure != nil {
		for _, e := range entities {
			for _, n := range opts.Structure.StructuralNeighbors(e.ID) {
				admit(e.ID, n, bitStructural)
			}
		}
	}

	out := make([]Candidate, 0, len(pairs))
	for k, r := range pairs {
		out = append(out, Candidate{Key: k, Reasons: r.list()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.A != out[j].Key.A {
			return out[i].Key.A < out[j].Key.A
		}
		return out[i].Key.B < out[j].Key.B
	})
	stats.Pairs = len(out)
	return out, stats
}

type bucketKey struct {
	band types.GradeBand
	area string
}

// admitGroup admits every pair inside ids. With a changed set only pairs touching a
// changed id are generated, which keeps incremental runs near-linear.
func admitGroup(ids []string, changed map[string]bool, r reasonSet, admit func(a, b string, r reasonSet)) {
	if changed != nil {
		for _, a := range ids {
			if !changed[a] {
				continue
			}
			for _, b := range ids {
				admit(a, b, r)
			}
		}
		return
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			admit(ids[i], ids[j], r)
		}
	}
}

func normalizeArea(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
