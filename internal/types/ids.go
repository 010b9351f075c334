package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashID derives a stable id: prefix + first 12 hex chars of SHA-256 over parts.
// Callers sort parts whenever their order is not meaningful.
func HashID(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return prefix + hex.EncodeToString(sum[:])[:12]
}

// NewReviewItem builds an open review item whose id is stable for (kind, ref).
// CreatedAt is stamped by the store.
func NewReviewItem(kind ReviewKind, ref, detail string) ReviewItem {
	return ReviewItem{
		ID:     HashID("rv-", string(kind), ref),
		Kind:   kind,
		Ref:    ref,
		Detail: detail,
		Status: StatusOpen,
	}
}
