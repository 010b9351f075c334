// Package mece validates a taxonomy for mutual exclusivity: it classifies similar
// node pairs into conflict categories and scores the taxonomy as a whole.
package mece

import (
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Categorize assigns a pair to exactly one category, first match wins:
// parent-child, sibling, cross-strand, high-priority duplicate, medium overlap.
// Both thresholds are inclusive lower bounds. ok is false below the medium bound.
func Categorize(p types.SimilarityPair, t config.ThresholdConfig) (types.ConflictCategory, bool) {
	if p.Score >= t.MECEHigh {
		switch p.Relation {
		case types.RelationAncestor:
			return types.CategoryParentChild, true
		case types.RelationSiblings:
			return types.CategorySibling, true
		case types.RelationCrossBranch:
			return types.CategoryCrossStrand, true
		}
		return types.CategoryHighDuplicate, true
	}
	if p.Score >= t.MECEMedium {
		return types.CategoryMediumOverlap, true
	}
	return "", false
}

// Fingerprint identifies the texts of both sides of a pair, in key order.
func Fingerprint(textA, textB string) string {
	return types.HashID("fp-", embedding.Normalize(textA), embedding.Normalize(textB))
}

// ConflictID is stable while both texts are unchanged.
func ConflictID(key types.PairKey, fingerprint string) string {
	return types.HashID("cf-", key.String(), fingerprint)
}
