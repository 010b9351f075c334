package types

import (
	"fmt"
	"time"
)

// ConflictCategory classifies a taxonomy similarity pair.
type ConflictCategory string

const (
	CategoryParentChild   ConflictCategory = "parent-child-redundancy"
	CategorySibling       ConflictCategory = "sibling-conflict"
	CategoryCrossStrand   ConflictCategory = "cross-strand-duplicate"
	CategoryHighDuplicate ConflictCategory = "high-priority-duplicate"
	CategoryMediumOverlap ConflictCategory = "medium-priority-overlap"
)

// AllCategories lists categories in precedence order.
var AllCategories = []ConflictCategory{
	CategoryParentChild,
	CategorySibling,
	CategoryCrossStrand,
	CategoryHighDuplicate,
	CategoryMediumOverlap,
}

// IsValid checks if the category value is valid
func (c ConflictCategory) IsValid() bool {
	switch c {
	case CategoryParentChild, CategorySibling, CategoryCrossStrand, CategoryHighDuplicate, CategoryMediumOverlap:
		return true
	}
	return false
}

// IsViolation reports whether the category counts against the MECE score.
// Medium overlaps are advisory.
func (c ConflictCategory) IsViolation() bool {
	return c.IsValid() && c != CategoryMediumOverlap
}

// Status is the lifecycle state of a conflict or review item.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusResolved
}

// ConflictRecord is one flagged taxonomy pair.
type ConflictRecord struct {
	ID       string           `json:"id"`
	Category ConflictCategory `json:"category"`
	Pair     SimilarityPair   `json:"pair"`
	Status   Status           `json:"status"`
	// Fingerprint covers both node texts; a text change yields a new conflict.
	Fingerprint string `json:"fingerprint"`
	ResolvedBy  string `json:"resolved_by,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
}

// Validate checks if the conflict has valid field values
func (c *ConflictRecord) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("conflict id is required")
	}
	if !c.Category.IsValid() {
		return fmt.Errorf("invalid conflict category: %s", c.Category)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", c.Status)
	}
	if c.Status == StatusResolved && c.ResolvedBy == "" {
		return fmt.Errorf("resolved conflict %s must reference a decision", c.ID)
	}
	return c.Pair.Validate()
}

// DecisionAction is the human resolution applied by a Decision.
type DecisionAction string

const (
	ActionMerge   DecisionAction = "merge"
	ActionSpecify DecisionAction = "specify"
	ActionClarify DecisionAction = "clarify"
	ActionKeep    DecisionAction = "keep"
)

// IsValid checks if the action value is valid
func (a DecisionAction) IsValid() bool {
	switch a {
	case ActionMerge, ActionSpecify, ActionClarify, ActionKeep:
		return true
	}
	return false
}

// Closes reports whether the action resolves the conflicts it targets.
// Clarify only annotates.
func (a DecisionAction) Closes() bool {
	return a == ActionMerge || a == ActionSpecify || a == ActionKeep
}

// Decision is one append-only ledger entry.
type Decision struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Action    DecisionAction `json:"action"`
	Targets   []string       `json:"targets"`
	Rationale string         `json:"rationale"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
}

// Validate checks if the decision has valid field values
func (d *Decision) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("decision id is required")
	}
	if !d.Action.IsValid() {
		return fmt.Errorf("invalid action: %s", d.Action)
	}
	if len(d.Targets) == 0 {
		return fmt.Errorf("decision %s has no targets", d.ID)
	}
	if d.Actor == "" {
		return fmt.Errorf("decision %s has no actor", d.ID)
	}
	if d.Action == ActionClarify && d.Rationale == "" {
		return fmt.Errorf("clarify decisions require a rationale")
	}
	for _, t := range d.Targets {
		if t == "" {
			return fmt.Errorf("decision %s has an empty target", d.ID)
		}
	}
	return nil
}
