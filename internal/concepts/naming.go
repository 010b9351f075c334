package concepts

import (
	"sort"
	"strings"
	"unicode"

	"github.com/viterin/vek/vek32"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/similarity"
)

// Label is a taxonomy node offered as a canonical name.
type Label struct {
	NodeID string
	Name   string
	Vector []float32
}

// centroid is the mean of the member vectors, or nil if none are known.
func centroid(members []string, vectors map[string][]float32) []float32 {
	var sum []float32
	n := 0
	for _, m := range members {
		v, ok := vectors[m]
		if !ok {
			continue
		}
		if sum == nil {
			sum = make([]float32, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		vek32.Add_Inplace(sum, v)
		n++
	}
	if n == 0 {
		return nil
	}
	vek32.MulNumber_Inplace(sum, 1/float32(n))
	return sum
}

// bestLabel returns the label most similar to c. Ties go to the lower node id.
func bestLabel(c []float32, labels []Label) (Label, float64, bool) {
	var best Label
	bestScore := -1.0
	for _, l := range labels {
		s := similarity.Cosine(c, l.Vector)
		if s > bestScore || (s == bestScore && l.NodeID < best.NodeID) {
			best, bestScore = l, s
		}
	}
	return best, bestScore, bestScore >= 0
}

var phraseFillers = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "and": true, "or": true, "of": true,
	"in": true, "into": true, "on": true, "with": true, "for": true, "by": true, "from": true,
	"at": true, "as": true, "using": true,
}

// actionTarget extracts the leading verb and its first object word, skipping
// leading adverbs ("orally blend") and numerals.
func actionTarget(text string) string {
	words := strings.FieldsFunc(embedding.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-' && r != '\''
	})
	i := 0
	for i < len(words) && (isAdverb(words[i]) || phraseFillers[words[i]]) {
		i++
	}
	if i >= len(words) {
		return ""
	}
	action := words[i]
	for _, w := range words[i+1:] {
		if phraseFillers[w] || strings.Trim(w, "-'") == "" {
			continue
		}
		return action + " " + w
	}
	return action
}

var lyVerbs = map[string]bool{"apply": true, "supply": true, "multiply": true, "reply": true, "rely": true, "comply": true}

func isAdverb(w string) bool {
	return strings.HasSuffix(w, "ly") && len(w) > 4 && !lyVerbs[w]
}

// frequentPhrase returns the most frequent action+target phrase across texts,
// breaking ties lexicographically.
func frequentPhrase(texts []string) string {
	counts := make(map[string]int)
	for _, t := range texts {
		if p := actionTarget(t); p != "" {
			counts[p]++
		}
	}
	phrases := make([]string, 0, len(counts))
	for p := range counts {
		phrases = append(phrases, p)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if counts[phrases[i]] != counts[phrases[j]] {
			return counts[phrases[i]] > counts[phrases[j]]
		}
		return phrases[i] < phrases[j]
	})
	if len(phrases) == 0 {
		return ""
	}
	return titleCase(phrases[0])
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
