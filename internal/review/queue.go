package review

import (
	"fmt"
	"sort"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// ItemKind tells what a queue entry points at.
type ItemKind string

const (
	KindConflict ItemKind = "conflict"
	KindConcept  ItemKind = "concept"
	KindReview   ItemKind = "review"
)

// Item is one entry of the review queue. Target is the id a decision about the
// entry is recorded against.
type Item struct {
	Kind    ItemKind
	Target  string
	Title   string
	Detail  string
	Members []string
}

// Queue lists the open work in s: unresolved violations first, then open review
// items, then low-confidence concepts no review item covers. Each group is
// sorted by id.
func Queue(s *ledger.State) []Item {
	var conflicts, reviews, concepts []Item

	for id, c := range s.Conflicts {
		if c.Status != types.StatusOpen || !c.Category.IsViolation() {
			continue
		}
		if res, ok := s.Resolutions[id]; ok && res.Closed {
			continue
		}
		conflicts = append(conflicts, Item{
			Kind:    KindConflict,
			Target:  id,
			Title:   string(c.Category),
			Detail:  fmt.Sprintf("%s (%s) vs %s (%s), similarity %.3f", c.Pair.Key.A, nodeName(s, c.Pair.Key.A), c.Pair.Key.B, nodeName(s, c.Pair.Key.B), c.Pair.Score),
			Members: []string{c.Pair.Key.A, c.Pair.Key.B},
		})
	}

	covered := make(map[string]bool)
	for id, r := range s.Reviews {
		if r.Status != types.StatusOpen {
			continue
		}
		covered[r.Ref] = true
		it := Item{Kind: KindReview, Target: id, Title: string(r.Kind), Detail: r.Detail}
		if c, ok := s.Concepts[r.Ref]; ok {
			it.Members = c.Members
		}
		reviews = append(reviews, it)
	}

	for id, c := range s.Concepts {
		if !c.NeedsReview || covered[id] {
			continue
		}
		concepts = append(concepts, Item{
			Kind:    KindConcept,
			Target:  id,
			Title:   c.Name,
			Detail:  fmt.Sprintf("%s concept, min similarity %.3f", c.Confidence, c.Metrics.MinSimilarity),
			Members: c.Members,
		})
	}

	out := make([]Item, 0, len(conflicts)+len(reviews)+len(concepts))
	for _, group := range [][]Item{conflicts, reviews, concepts} {
		sort.Slice(group, func(i, j int) bool { return group[i].Target < group[j].Target })
		out = append(out, group...)
	}
	return out
}

func nodeName(s *ledger.State, id string) string {
	if n, ok := s.Tree.Node(id); ok {
		return n.Name
	}
	return "?"
}
