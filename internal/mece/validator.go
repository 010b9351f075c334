package mece

import (
	"fmt"
	"sort"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/metrics"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/taxonomy"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Resolution is the ledger's verdict on one conflict id.
type Resolution struct {
	DecisionID string
	Rationale  string
	Closed     bool
}

// Input is everything a validation pass looks at.
type Input struct {
	Tree  *taxonomy.Tree
	Pairs []types.SimilarityPair
	// PairsCompared counts scored pairs, including those below every category.
	PairsCompared int
	Resolutions   map[string]Resolution
	// Failed lists entities left out of comparison (e.g. unembedded).
	Failed []string

	// Concepts and SkillIDs enable mapping integrity checks; both may be empty.
	Concepts []types.MasterConcept
	SkillIDs map[string]bool
}

// CategoryCount splits a category by status.
type CategoryCount struct {
	Open     int `json:"open"`
	Resolved int `json:"resolved"`
}

// Report is the validation report.
type Report struct {
	NodeCount     int                                      `json:"node_count"`
	PairsCompared int                                      `json:"pairs_compared"`
	Counts        map[types.ConflictCategory]CategoryCount `json:"counts"`
	MECEScore     float64                                  `json:"mece_score"`
	OverlapRatio  float64                                  `json:"overlap_ratio"`
	Conflicts     []types.ConflictRecord                   `json:"conflicts"`
	Integrity     []types.IntegrityIssue                   `json:"integrity_issues"`
	Failed        []string                                 `json:"failed_entities"`
}

// OpenViolations counts open conflicts in the violation categories.
func (r *Report) OpenViolations() int {
	n := 0
	for c, cnt := range r.Counts {
		if c.IsViolation() {
			n += cnt.Open
		}
	}
	return n
}

// Validator classifies taxonomy pairs and scores the taxonomy.
type Validator struct {
	thresholds config.ThresholdConfig
	log        *logging.Logger
	metrics    *metrics.Collector
}

// NewValidator creates a Validator.
func NewValidator(t config.ThresholdConfig, log *logging.Logger, m *metrics.Collector) *Validator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Validator{thresholds: t, log: log, metrics: m}
}

// Validate builds the report. Resolved conflicts stay resolved until either
// node's text changes, which yields a new conflict id.
func (v *Validator) Validate(in Input) *Report {
	r := &Report{
		NodeCount:     in.Tree.Len(),
		PairsCompared: in.PairsCompared,
		Counts:        make(map[types.ConflictCategory]CategoryCount, len(types.AllCategories)),
		Failed:        append([]string{}, in.Failed...),
	}
	for _, c := range types.AllCategories {
		r.Counts[c] = CategoryCount{}
	}

	for _, p := range in.Pairs {
		cat, ok := Categorize(p, v.thresholds)
		if !ok {
			continue
		}
		na, okA := in.Tree.Node(p.Key.A)
		nb, okB := in.Tree.Node(p.Key.B)
		if !okA || !okB {
			v.log.Warn("conflict pair references unknown node", "pair", p.Key.String())
			continue
		}
		fp := Fingerprint(na.Text(), nb.Text())
		rec := types.ConflictRecord{
			ID:          ConflictID(p.Key, fp),
			Category:    cat,
			Pair:        p,
			Status:      types.StatusOpen,
			Fingerprint: fp,
		}
		if res, ok := in.Resolutions[rec.ID]; ok {
			rec.Rationale = res.Rationale
			if res.Closed {
				rec.Status = types.StatusResolved
				rec.ResolvedBy = res.DecisionID
			}
		}

		cnt := r.Counts[cat]
		if rec.Status == types.StatusOpen {
			cnt.Open++
		} else {
			cnt.Resolved++
		}
		r.Counts[cat] = cnt
		r.Conflicts = append(r.Conflicts, rec)
		v.metrics.Conflict(string(cat), string(rec.Status))
	}

	precedence := make(map[types.ConflictCategory]int, len(types.AllCategories))
	for i, c := range types.AllCategories {
		precedence[c] = i
	}
	sort.SliceStable(r.Conflicts, func(i, j int) bool {
		pi, pj := precedence[r.Conflicts[i].Category], precedence[r.Conflicts[j].Category]
		if pi != pj {
			return pi < pj
		}
		return r.Conflicts[i].Pair.Key.String() < r.Conflicts[j].Pair.Key.String()
	})

	if r.NodeCount > 0 {
		r.MECEScore = clamp(1 - float64(r.OpenViolations())/float64(r.NodeCount))
		r.OverlapRatio = float64(r.Counts[types.CategoryMediumOverlap].Open) / float64(r.NodeCount)
	} else {
		r.MECEScore = 1
	}

	r.Integrity = append(r.Integrity, in.Tree.Issues()...)
	r.Integrity = append(r.Integrity, ConceptIntegrity(in.Concepts, in.SkillIDs)...)

	v.log.Info("taxonomy validated",
		"nodes", r.NodeCount, "conflicts", len(r.Conflicts), "open_violations", r.OpenViolations(),
		"mece_score", r.MECEScore, "overlap_ratio", r.OverlapRatio, "integrity_issues", len(r.Integrity))
	return r
}

// ConceptIntegrity finds concepts that reference missing skills, lack a name, or
// share a skill with another concept. skillIDs nil skips the missing-skill check.
func ConceptIntegrity(concepts []types.MasterConcept, skillIDs map[string]bool) []types.IntegrityIssue {
	var issues []types.IntegrityIssue
	owner := make(map[string]string)
	for _, c := range concepts {
		if c.Name == "" {
			issues = append(issues, types.IntegrityIssue{Kind: types.IntegrityMissingName, Ref: c.ID,
				Detail: "concept has no canonical name"})
		}
		for _, m := range c.Members {
			if skillIDs != nil && !skillIDs[m] {
				issues = append(issues, types.IntegrityIssue{Kind: types.IntegrityOrphanMapping, Ref: c.ID,
					Detail: fmt.Sprintf("concept references skill %s, which no longer exists", m)})
			}
			if prev, ok := owner[m]; ok && prev != c.ID {
				issues = append(issues, types.IntegrityIssue{Kind: types.IntegrityMultiMembership, Ref: m,
					Detail: fmt.Sprintf("skill belongs to both %s and %s", prev, c.ID)})
				continue
			}
			owner[m] = c.ID
		}
	}
	return issues
}

func clamp(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
