package candidates

import (
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
)

// Tokenizer produces normalized content tokens: lowercased, stop words removed, stemmed.
type Tokenizer struct {
	analyzer analysis.Analyzer
}

// NewTokenizer builds a tokenizer on bleve's English analyzer.
func NewTokenizer() (*Tokenizer, error) {
	cache := registry.NewCache()
	analyzer, err := cache.AnalyzerNamed(en.AnalyzerName)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s analyzer: %w", en.AnalyzerName, err)
	}
	return &Tokenizer{analyzer: analyzer}, nil
}

// Tokens returns the distinct tokens of text in sorted order.
func (t *Tokenizer) Tokens(text string) []string {
	stream := t.analyzer.Analyze([]byte(embedding.Normalize(text)))
	seen := make(map[string]struct{}, len(stream))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}
