package types

import (
	"fmt"
	"time"
)

// VariantType labels the relation between two variant skills.
type VariantType string

const (
	VariantCrossAuthority   VariantType = "cross-authority"
	VariantGradeProgression VariantType = "grade-progression"
	// VariantUnrelated is a classifier label only; groups never carry it.
	VariantUnrelated VariantType = "unrelated"
)

// IsValid checks if the variant type value is valid
func (v VariantType) IsValid() bool {
	switch v {
	case VariantCrossAuthority, VariantGradeProgression, VariantUnrelated:
		return true
	}
	return false
}

// IsGroupable reports whether a pair with this label may join a VariantGroup.
func (v VariantType) IsGroupable() bool {
	return v == VariantCrossAuthority || v == VariantGradeProgression
}

// ConfidenceTier is the three-level trust rating of a derived artifact.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "High"
	ConfidenceMedium ConfidenceTier = "Medium"
	ConfidenceLow    ConfidenceTier = "Low"
)

// IsValid checks if the tier value is valid
func (c ConfidenceTier) IsValid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Rank orders tiers: High=3, Medium=2, Low=1, anything else 0.
func (c ConfidenceTier) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// MinTier returns the weaker of two tiers.
func MinTier(a, b ConfidenceTier) ConfidenceTier {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

// ClassificationSource records who produced a pair label.
type ClassificationSource string

const (
	SourceRule     ClassificationSource = "rule"
	SourceLLM      ClassificationSource = "llm"
	SourceFallback ClassificationSource = "fallback"
)

// PairClassification is the classifier verdict for one skill pair.
type PairClassification struct {
	Pair       SimilarityPair       `json:"pair"`
	Label      VariantType          `json:"label"`
	Confidence ConfidenceTier       `json:"confidence"`
	Source     ClassificationSource `json:"source"`
	Rationale  string               `json:"rationale,omitempty"`
	// NeedsReview marks borderline or degraded verdicts routed to a human.
	NeedsReview bool   `json:"needs_review,omitempty"`
	HashA       string `json:"hash_a,omitempty"`
	HashB       string `json:"hash_b,omitempty"`
	// Reused marks a stored verdict carried over because neither text changed.
	Reused bool `json:"reused,omitempty"`
}

// VariantGroup is a set of skills judged equivalent under one variant type.
type VariantGroup struct {
	ID         string         `json:"id"`
	Members    []string       `json:"members"`
	Type       VariantType    `json:"type"`
	Confidence ConfidenceTier `json:"confidence"`
}

// Validate checks if the group has valid field values
func (g *VariantGroup) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("group id is required")
	}
	if len(g.Members) < 2 {
		return fmt.Errorf("group %s must have at least 2 members (got %d)", g.ID, len(g.Members))
	}
	if !g.Type.IsGroupable() {
		return fmt.Errorf("invalid group type: %s", g.Type)
	}
	if !g.Confidence.IsValid() {
		return fmt.Errorf("invalid confidence tier: %s", g.Confidence)
	}
	seen := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		if seen[m] {
			return fmt.Errorf("group %s lists member %s twice", g.ID, m)
		}
		seen[m] = true
	}
	return nil
}

// ConceptMetrics are pure aggregates over a concept's members.
type ConceptMetrics struct {
	MemberCount    int        `json:"member_count"`
	AuthorityCount int        `json:"authority_count"`
	GradeMin       GradeLevel `json:"grade_min"`
	GradeMax       GradeLevel `json:"grade_max"`
	MinSimilarity  float64    `json:"min_similarity"`
	MeanSimilarity float64    `json:"mean_similarity"`
	ContentDomains []string   `json:"content_domains,omitempty"`
}

// MasterConcept is the canonical representation of one variant group.
type MasterConcept struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	TaxonomyNodeID string         `json:"taxonomy_node_id,omitempty"`
	GroupID        string         `json:"group_id"`
	Members        []string       `json:"members"`
	Metrics        ConceptMetrics `json:"metrics"`
	Confidence     ConfidenceTier `json:"confidence"`
	// NeedsReview is always true for Low confidence concepts.
	NeedsReview bool `json:"needs_review"`
	// Rationale is attached by clarify decisions.
	Rationale string `json:"rationale,omitempty"`
}

// Validate checks if the concept has valid field values
func (c *MasterConcept) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("concept id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("concept %s has no canonical name", c.ID)
	}
	if !c.Confidence.IsValid() {
		return fmt.Errorf("invalid confidence tier: %s", c.Confidence)
	}
	if c.Metrics.MemberCount != len(c.Members) {
		return fmt.Errorf("concept %s member_count (%d) does not match members (%d)",
			c.ID, c.Metrics.MemberCount, len(c.Members))
	}
	return nil
}

// ReviewKind says why an item was routed to a human.
type ReviewKind string

const (
	ReviewLowConfidenceGroup ReviewKind = "low-confidence-group"
	ReviewClosureConflict    ReviewKind = "closure-conflict"
	ReviewBorderline         ReviewKind = "borderline-progression"
	ReviewLLMFallback        ReviewKind = "llm-fallback"
	ReviewLowEdge            ReviewKind = "low-confidence-edge"
)

// ReviewItem is a flagged artifact awaiting a human decision.
type ReviewItem struct {
	ID        string     `json:"id"`
	Kind      ReviewKind `json:"kind"`
	Ref       string     `json:"ref"`
	Detail    string     `json:"detail"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}
