// Package concepts synthesizes one master concept per variant group.
package concepts

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/variants"
)

// Input is what Generate works from.
type Input struct {
	Groups  []types.VariantGroup
	Skills  map[string]types.SkillRecord
	Vectors map[string][]float32
	Labels  []Label
	Scorer  variants.Scorer
}

// Result holds the generated concepts and any review items.
type Result struct {
	Concepts []types.MasterConcept
	Review   []types.ReviewItem
}

// Generate builds a MasterConcept for each group. Output follows group order.
func Generate(in Input, t config.ThresholdConfig) *Result {
	res := &Result{}
	for _, g := range in.Groups {
		mc := types.MasterConcept{
			ID:         types.HashID("mc-", g.Members...),
			GroupID:    g.ID,
			Members:    append([]string(nil), g.Members...),
			Confidence: g.Confidence,
		}
		mc.Metrics = Metrics(g.Members, in.Skills, in.Scorer)

		if c := centroid(g.Members, in.Vectors); c != nil {
			if l, score, ok := bestLabel(c, in.Labels); ok && score >= t.LabelMatch {
				mc.Name, mc.TaxonomyNodeID = l.Name, l.NodeID
			}
		}
		texts := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			texts = append(texts, in.Skills[m].Text)
		}
		if mc.Name == "" {
			mc.Name = frequentPhrase(texts)
		}
		mc.Description = description(g, texts)

		mc.NeedsReview = mc.Confidence == types.ConfidenceLow
		if mc.NeedsReview {
			res.Review = append(res.Review, types.NewReviewItem(types.ReviewLowConfidenceGroup, mc.ID,
				fmt.Sprintf("%s group of %d skills has low confidence (min similarity %.3f)",
					g.Type, mc.Metrics.MemberCount, mc.Metrics.MinSimilarity)))
		}
		res.Concepts = append(res.Concepts, mc)
	}
	return res
}

// description uses the shortest member text as the most concise phrasing.
func description(g types.VariantGroup, texts []string) string {
	best := ""
	for _, t := range texts {
		if best == "" || len(t) < len(best) || (len(t) == len(best) && t < best) {
			best = t
		}
	}
	return fmt.Sprintf("%s (%s, %d variants)", best, g.Type, len(g.Members))
}

// Metrics aggregates member attributes. Two skills without an authority count as one.
func Metrics(members []string, skills map[string]types.SkillRecord, scorer variants.Scorer) types.ConceptMetrics {
	m := types.ConceptMetrics{MemberCount: len(members)}
	authorities := make(map[string]bool)
	domains := make(map[string]bool)
	first := true
	for _, id := range members {
		s, ok := skills[id]
		if !ok {
			continue
		}
		authorities[s.Authority] = true
		if s.ContentDomain != "" {
			domains[s.ContentDomain] = true
		}
		if first || s.Grade < m.GradeMin {
			m.GradeMin = s.Grade
		}
		if first || s.Grade > m.GradeMax {
			m.GradeMax = s.Grade
		}
		first = false
	}
	m.AuthorityCount = len(authorities)
	for d := range domains {
		m.ContentDomains = append(m.ContentDomains, d)
	}
	sort.Strings(m.ContentDomains)

	var scores []float64
	if scorer != nil {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				if s, err := scorer.Similarity(members[i], members[j]); err == nil {
					scores = append(scores, s)
				}
			}
		}
	}
	if len(scores) > 0 {
		m.MinSimilarity = floats.Min(scores)
		m.MeanSimilarity = stat.Mean(scores, nil)
	}
	return m
}

// Assignments maps every skill id to its concept id; unmapped skills map to "".
func Assignments(skillIDs []string, concepts []types.MasterConcept) map[string]string {
	out := make(map[string]string, len(skillIDs))
	for _, id := range skillIDs {
		out[id] = ""
	}
	for _, c := range concepts {
		for _, m := range c.Members {
			out[m] = c.ID
		}
	}
	return out
}
