package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize lowercases text, collapses whitespace and strips trailing punctuation,
// so phrasing that differs only in case or spacing shares one vector.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".!?;:, ")
	return s
}

// ContentHash is the cache key for text under a given model. The model prefix keeps
// vectors from different models apart.
func ContentHash(model, text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return model + ":" + hex.EncodeToString(sum[:])
}
