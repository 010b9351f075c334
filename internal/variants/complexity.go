package variants

import (
	"strings"
	"unicode"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/candidates"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
)

// Complexity scores the task-complexity markers of a skill statement: qualifier
// lexicon hits, numerals and content-token count, each weighted by config.
type Complexity struct {
	cfg     config.ComplexityConfig
	tok     *candidates.Tokenizer
	words   map[string]bool
	phrases []string
}

// NewComplexity builds a scorer from config. Multi-word qualifiers match as phrases.
func NewComplexity(cfg config.ComplexityConfig, tok *candidates.Tokenizer) *Complexity {
	c := &Complexity{cfg: cfg, tok: tok, words: make(map[string]bool)}
	for _, q := range cfg.Qualifiers {
		q = embedding.Normalize(q)
		if q == "" {
			continue
		}
		if strings.Contains(q, " ") {
			c.phrases = append(c.phrases, q)
		} else {
			c.words[q] = true
		}
	}
	return c
}

// Signal returns the weighted complexity of text.
func (c *Complexity) Signal(text string) float64 {
	norm := embedding.Normalize(text)
	words := strings.FieldsFunc(norm, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	qualifiers, numerals := 0, 0
	for _, w := range words {
		if c.words[w] {
			qualifiers++
		}
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			numerals++
		}
	}
	padded := " " + norm + " "
	for _, p := range c.phrases {
		qualifiers += strings.Count(padded, " "+p+" ")
	}

	tokens := len(words)
	if c.tok != nil {
		tokens = len(c.tok.Tokens(text))
	}

	return c.cfg.QualifierWeight*float64(qualifiers) +
		c.cfg.NumeralWeight*float64(numerals) +
		c.cfg.TokenWeight*float64(tokens)
}

// progression compares the lower-grade and higher-grade statements.
type progression int

const (
	progressionNone progression = iota
	progressionBorderline
	progressionClear
)

// progression reports whether higher shows increasing complexity over lower.
// A delta within BorderlineMargin of MinDelta is borderline.
func (c *Complexity) progression(lower, higher string) (progression, float64) {
	delta := c.Signal(higher) - c.Signal(lower)
	switch {
	case delta >= c.cfg.MinDelta+c.cfg.BorderlineMargin:
		return progressionClear, delta
	case delta >= c.cfg.MinDelta-c.cfg.BorderlineMargin:
		return progressionBorderline, delta
	}
	return progressionNone, delta
}
