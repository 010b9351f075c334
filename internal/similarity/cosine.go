// Package similarity scores candidate pairs by cosine similarity of their embeddings.
package similarity

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// precision bounds score noise between SIMD and scalar dot products.
const precision = 1e6

// Cosine returns the cosine similarity of a and b clamped to [0,1].
// Vectors of different length or zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := math.Sqrt(float64(vek32.Dot(a, a)))
	nb := math.Sqrt(float64(vek32.Dot(b, b)))
	if na == 0 || nb == 0 {
		return 0
	}
	s := float64(vek32.Dot(a, b)) / (na * nb)
	s = math.Round(s*precision) / precision
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
