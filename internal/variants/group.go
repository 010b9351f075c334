package variants

import (
	"fmt"
	"sort"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Scorer looks up the similarity of two skills.
type Scorer interface {
	Similarity(a, b string) (float64, error)
}

// GroupResult is the outcome of grouping.
type GroupResult struct {
	Groups []types.VariantGroup
	// Review holds closure conflicts and unmerged low-confidence edges.
	Review []types.ReviewItem
	// Membership maps skill id to group id.
	Membership map[string]string
}

type component struct {
	members []string
	kind    types.VariantType
	weakest types.ConfidenceTier
}

// Group unions variant edges into groups, strongest edges first. Low edges never
// merge. A merge that would join components of different variant types, or join
// skills whose own pair was classified unrelated with at least the edge's
// confidence, is refused and reported. A weaker unrelated verdict does not block
// the merge; its pair is reported instead.
func Group(classifications []types.PairClassification, scorer Scorer, thresholds config.ThresholdConfig) *GroupResult {
	rejected := make(map[types.PairKey]types.ConfidenceTier)
	var edges []types.PairClassification
	for _, pc := range classifications {
		switch {
		case pc.Label.IsGroupable():
			edges = append(edges, pc)
		case pc.Label == types.VariantUnrelated && pc.Source != types.SourceFallback:
			rejected[pc.Pair.Key] = pc.Confidence
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		ri, rj := edges[i].Confidence.Rank(), edges[j].Confidence.Rank()
		if ri != rj {
			return ri > rj
		}
		if edges[i].Pair.Score != edges[j].Pair.Score {
			return edges[i].Pair.Score > edges[j].Pair.Score
		}
		return edges[i].Pair.Key.String() < edges[j].Pair.Key.String()
	})

	parent := make(map[string]string)
	comps := make(map[string]*component)
	var find func(string) string
	find = func(x string) string {
		p, ok := parent[x]
		if !ok {
			parent[x] = x
			comps[x] = &component{members: []string{x}, weakest: types.ConfidenceHigh}
			return x
		}
		if p == x {
			return x
		}
		root := find(p)
		parent[x] = root
		return root
	}

	res := &GroupResult{Membership: make(map[string]string)}
	for _, e := range edges {
		key := e.Pair.Key
		if e.Confidence == types.ConfidenceLow {
			if !e.NeedsReview {
				res.Review = append(res.Review, types.NewReviewItem(types.ReviewLowEdge, key.String(),
					fmt.Sprintf("low-confidence %s edge (score %.3f) not merged", e.Label, e.Pair.Score)))
			}
			continue
		}
		ra, rb := find(key.A), find(key.B)
		if ra == rb {
			ca := comps[ra]
			ca.weakest = types.MinTier(ca.weakest, e.Confidence)
			continue
		}
		ca, cb := comps[ra], comps[rb]

		reason, overridden := mergeConflict(ca, cb, e, rejected)
		if reason != "" {
			res.Review = append(res.Review, types.NewReviewItem(types.ReviewClosureConflict, key.String(),
				fmt.Sprintf("%s edge (%s, score %.3f) not merged: %s", e.Label, e.Confidence, e.Pair.Score, reason)))
			continue
		}
		for _, k := range overridden {
			res.Review = append(res.Review, types.NewReviewItem(types.ReviewClosureConflict, k.String(),
				fmt.Sprintf("unrelated verdict (%s) overridden by %s %s edge %s (score %.3f)",
					rejected[k], e.Confidence, e.Label, key, e.Pair.Score)))
		}

		// Union by size, ties to the smaller root id for determinism.
		if len(cb.members) > len(ca.members) || (len(cb.members) == len(ca.members) && rb < ra) {
			ra, rb = rb, ra
			ca, cb = cb, ca
		}
		parent[rb] = ra
		ca.members = append(ca.members, cb.members...)
		ca.kind = e.Label
		ca.weakest = types.MinTier(types.MinTier(ca.weakest, cb.weakest), e.Confidence)
		delete(comps, rb)
	}

	for _, c := range comps {
		if len(c.members) < 2 {
			continue
		}
		members := append([]string(nil), c.members...)
		sort.Strings(members)
		g := types.VariantGroup{
			ID:         types.HashID("vg-", members...),
			Members:    members,
			Type:       c.kind,
			Confidence: types.MinTier(GroupTier(members, scorer, thresholds), c.weakest),
		}
		res.Groups = append(res.Groups, g)
		for _, m := range members {
			res.Membership[m] = g.ID
		}
	}
	sort.Slice(res.Groups, func(i, j int) bool { return res.Groups[i].Members[0] < res.Groups[j].Members[0] })
	sort.SliceStable(res.Review, func(i, j int) bool { return res.Review[i].Ref < res.Review[j].Ref })
	return res
}

// mergeConflict returns why a and b must not be joined by e. Unrelated verdicts
// weaker than e do not block the merge and are returned as overridden.
func mergeConflict(a, b *component, e types.PairClassification, rejected map[types.PairKey]types.ConfidenceTier) (string, []types.PairKey) {
	for _, k := range []types.VariantType{a.kind, b.kind} {
		if k != "" && k != e.Label {
			return fmt.Sprintf("would join a %s group with a %s edge", k, e.Label), nil
		}
	}
	var overridden []types.PairKey
	for _, x := range a.members {
		for _, y := range b.members {
			k := types.NewPairKey(x, y)
			tier, ok := rejected[k]
			if !ok {
				continue
			}
			if tier.Rank() >= e.Confidence.Rank() {
				return fmt.Sprintf("would merge %s and %s, which were classified unrelated", k.A, k.B), nil
			}
			overridden = append(overridden, k)
		}
	}
	sort.Slice(overridden, func(i, j int) bool { return overridden[i].String() < overridden[j].String() })
	return "", overridden
}

// GroupTier rates a member set: High needs at least three members and minimum
// pairwise similarity at ConceptHigh; Medium needs the minimum at VariantFloor.
func GroupTier(members []string, scorer Scorer, t config.ThresholdConfig) types.ConfidenceTier {
	minSim, ok := MinPairwise(members, scorer)
	if !ok {
		return types.ConfidenceLow
	}
	switch {
	case len(members) >= 3 && minSim >= t.ConceptHigh:
		return types.ConfidenceHigh
	case minSim >= t.VariantFloor:
		return types.ConfidenceMedium
	}
	return types.ConfidenceLow
}

// MinPairwise is the minimum similarity over all member pairs. ok is false when
// any pair cannot be scored.
func MinPairwise(members []string, scorer Scorer) (float64, bool) {
	if scorer == nil || len(members) < 2 {
		return 0, false
	}
	minSim := 1.0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			s, err := scorer.Similarity(members[i], members[j])
			if err != nil {
				return 0, false
			}
			if s < minSim {
				minSim = s
			}
		}
	}
	return minSim, true
}

