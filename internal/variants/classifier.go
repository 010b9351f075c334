// Package variants labels similar skill pairs as cross-authority or grade-progression
// variants and unions them into consistent variant groups.
package variants

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ai"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Options configure a Classifier.
type Options struct {
	Thresholds config.ThresholdConfig
	Complexity *Complexity
	// Adjudicator resolves ambiguous-band pairs. nil runs rule-only.
	Adjudicator ai.Adjudicator
	// Concurrency caps in-flight adjudications.
	Concurrency int
	Logger      *logging.Logger
}

// Classifier applies the variant rules and escalates ambiguous pairs.
type Classifier struct {
	opts Options
	log  *logging.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(opts Options) *Classifier {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Classifier{opts: opts, log: log}
}

// Stats counts how each pair was resolved.
type Stats struct {
	Considered int
	Rule       int
	LLM        int
	Fallback   int
	Reused     int
	Borderline int
}

// Input is everything ClassifyAll needs beyond the pairs.
type Input struct {
	Skills map[string]types.SkillRecord
	// Hashes maps entity id to content hash; stored on each verdict so it can be
	// reused while both texts stay unchanged.
	Hashes map[string]string
	// Prior holds verdicts from earlier runs.
	Prior map[types.PairKey]types.PairClassification
}

// InScope reports whether a score is high enough to be classified at all.
func (c *Classifier) InScope(score float64) bool {
	t := c.opts.Thresholds
	return score >= t.VariantFloor || score > t.AmbiguousLow
}

// inBand reports whether score lies strictly inside the ambiguous band.
func (c *Classifier) inBand(score float64) bool {
	t := c.opts.Thresholds
	return score > t.AmbiguousLow && score < t.AmbiguousHigh
}

// Rule applies the deterministic rules. ok is false when the pair must be escalated.
func (c *Classifier) Rule(a, b *types.SkillRecord, pair types.SimilarityPair) (pc types.PairClassification, ok bool) {
	pc = types.PairClassification{Pair: pair, Source: types.SourceRule}
	score := pair.Score

	if score >= c.opts.Thresholds.VariantFloor {
		sameAuthority := a.Authority == b.Authority
		sameBand := a.Band() == b.Band()
		switch {
		case !sameAuthority && sameBand:
			pc.Label, pc.Confidence = types.VariantCrossAuthority, types.ConfidenceHigh
			pc.Rationale = fmt.Sprintf("different authorities at grade band %s", a.Band())
		case sameAuthority && !sameBand:
			return c.progressionRule(a, b, pc), true
		default:
			pc.Label, pc.Confidence = types.VariantUnrelated, types.ConfidenceHigh
			pc.Rationale = "similar text but no variant rule applies"
		}
		return pc, true
	}

	if c.inBand(score) {
		return pc, false
	}
	pc.Label, pc.Confidence = types.VariantUnrelated, types.ConfidenceHigh
	pc.Rationale = "below variant floor"
	return pc, true
}

func (c *Classifier) progressionRule(a, b *types.SkillRecord, pc types.PairClassification) types.PairClassification {
	lower, higher := a, b
	if b.Grade < a.Grade {
		lower, higher = b, a
	}
	if c.opts.Complexity == nil {
		pc.Label, pc.Confidence, pc.NeedsReview = types.VariantGradeProgression, types.ConfidenceLow, true
		pc.Rationale = "grade progression without a complexity signal"
		return pc
	}
	kind, delta := c.opts.Complexity.progression(lower.Text, higher.Text)
	switch kind {
	case progressionClear:
		pc.Label, pc.Confidence = types.VariantGradeProgression, types.ConfidenceHigh
		pc.Rationale = fmt.Sprintf("complexity rises by %.2f from grade %s to %s", delta, lower.Grade, higher.Grade)
	case progressionBorderline:
		pc.Label, pc.Confidence, pc.NeedsReview = types.VariantGradeProgression, types.ConfidenceLow, true
		pc.Rationale = fmt.Sprintf("borderline complexity delta %.2f from grade %s to %s", delta, lower.Grade, higher.Grade)
	default:
		pc.Label, pc.Confidence = types.VariantUnrelated, types.ConfidenceHigh
		pc.Rationale = fmt.Sprintf("no complexity increase (delta %.2f) across grades", delta)
	}
	return pc
}

// ClassifyAll labels every in-scope pair. Output order follows input order; pairs
// below scope are dropped. Rule-resolved pairs never reach the adjudicator.
func (c *Classifier) ClassifyAll(ctx context.Context, pairs []types.SimilarityPair, in Input) ([]types.PairClassification, Stats, error) {
	var stats Stats
	out := make([]types.PairClassification, 0, len(pairs))
	var escalate []int

	for _, p := range pairs {
		if !c.InScope(p.Score) {
			continue
		}
		a, okA := in.Skills[p.Key.A]
		b, okB := in.Skills[p.Key.B]
		if !okA || !okB {
			c.log.Warn("pair references unknown skill", "pair", p.Key.String())
			continue
		}
		stats.Considered++
		hashA, hashB := in.Hashes[p.Key.A], in.Hashes[p.Key.B]

		if prior, ok := in.Prior[p.Key]; ok && prior.HashA == hashA && prior.HashB == hashB && hashA != "" &&
			prior.Source != types.SourceFallback {
			prior.Pair = p
			prior.Reused = true
			out = append(out, prior)
			stats.Reused++
			continue
		}

		pc, resolved := c.Rule(&a, &b, p)
		pc.HashA, pc.HashB = hashA, hashB
		if resolved {
			stats.Rule++
			if pc.NeedsReview {
				stats.Borderline++
			}
		} else {
			escalate = append(escalate, len(out))
		}
		out = append(out, pc)
	}

	if len(escalate) == 0 {
		return out, stats, nil
	}
	if c.opts.Adjudicator == nil {
		for _, i := range escalate {
			out[i].Label, out[i].Confidence = types.VariantUnrelated, types.ConfidenceLow
			out[i].Rationale = "ambiguous similarity; adjudication disabled"
			stats.Rule++
		}
		return out, stats, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, i := range escalate {
		i := i
		g.Go(func() error {
			pc := out[i]
			a, b := in.Skills[pc.Pair.Key.A], in.Skills[pc.Pair.Key.B]
			verdict, err := c.opts.Adjudicator.Classify(gctx, a, b)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warn("adjudication failed, falling back to unrelated", "pair", pc.Pair.Key.String(), "error", err)
				pc.Label, pc.Confidence, pc.Source, pc.NeedsReview = types.VariantUnrelated, types.ConfidenceLow, types.SourceFallback, true
				pc.Rationale = fmt.Sprintf("adjudication failed: %v", err)
				mu.Lock()
				stats.Fallback++
				mu.Unlock()
			} else {
				pc.Label, pc.Confidence, pc.Source = verdict.Label, types.ConfidenceMedium, types.SourceLLM
				pc.Rationale = verdict.Rationale
				mu.Lock()
				stats.LLM++
				mu.Unlock()
			}
			out[i] = pc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// ReviewItems returns the review items for verdicts that need a human.
func ReviewItems(classifications []types.PairClassification) []types.ReviewItem {
	var items []types.ReviewItem
	for _, pc := range classifications {
		if !pc.NeedsReview {
			continue
		}
		kind := types.ReviewBorderline
		if pc.Source == types.SourceFallback {
			kind = types.ReviewLLMFallback
		}
		items = append(items, types.NewReviewItem(kind, pc.Pair.Key.String(), pc.Rationale))
	}
	return items
}
