package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/concepts"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/taxonomy"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// ConflictPrefix marks conflict ids among decision targets.
const ConflictPrefix = "cf-"

// State is derived by replaying decisions over one run's artifacts. It is never
// stored; replaying the ledger again always reproduces it.
type State struct {
	Tree      *taxonomy.Tree
	Concepts  map[string]*types.MasterConcept
	Conflicts map[string]types.ConflictRecord
	Reviews   map[string]types.ReviewItem
	Skills    map[string]types.SkillRecord

	// Resolutions feed the validator so resolved conflicts are not re-raised.
	Resolutions map[string]mece.Resolution
	// Redirects maps absorbed concept or node ids to their survivor.
	Redirects map[string]string
	// Stale lists decisions whose targets no longer exist in this run.
	Stale []string
	// Seq is the sequence of the last applied decision.
	Seq int64
}

// Base is the artifact set a State starts from.
type Base struct {
	Tree      *taxonomy.Tree
	Concepts  []types.MasterConcept
	Conflicts []types.ConflictRecord
	Reviews   []types.ReviewItem
	Skills    map[string]types.SkillRecord
}

// NewState copies base into a fresh State.
func NewState(base Base) *State {
	s := &State{
		Tree:        base.Tree,
		Concepts:    make(map[string]*types.MasterConcept, len(base.Concepts)),
		Conflicts:   make(map[string]types.ConflictRecord, len(base.Conflicts)),
		Reviews:     make(map[string]types.ReviewItem, len(base.Reviews)),
		Skills:      base.Skills,
		Resolutions: make(map[string]mece.Resolution),
		Redirects:   make(map[string]string),
	}
	if s.Tree == nil {
		s.Tree = taxonomy.Build(nil)
	}
	for i := range base.Concepts {
		c := base.Concepts[i]
		c.Members = append([]string(nil), c.Members...)
		s.Concepts[c.ID] = &c
	}
	for _, c := range base.Conflicts {
		s.Conflicts[c.ID] = c
	}
	for _, r := range base.Reviews {
		s.Reviews[r.ID] = r
	}
	return s
}

// ConceptList returns concepts sorted by id.
func (s *State) ConceptList() []types.MasterConcept {
	out := make([]types.MasterConcept, 0, len(s.Concepts))
	for _, c := range s.Concepts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type targetKind int

const (
	targetUnknown targetKind = iota
	targetConflict
	targetConcept
	targetNode
	targetReview
)

func (s *State) kindOf(id string) targetKind {
	if strings.HasPrefix(id, ConflictPrefix) {
		// Conflict ids are resolvable even when the record is not loaded, so that
		// resolutions carry across runs.
		return targetConflict
	}
	if _, ok := s.Concepts[id]; ok {
		return targetConcept
	}
	if _, ok := s.Reviews[id]; ok {
		return targetReview
	}
	if _, ok := s.Tree.Node(id); ok {
		return targetNode
	}
	return targetUnknown
}

// Check reports whether d can be applied to s without modifying it.
func (s *State) Check(d *types.Decision) error {
	resolved := *d
	resolved.Targets = s.resolveAll(d.Targets)
	return s.check(&resolved, true)
}

// check validates targets. Strict mode also requires merged conflicts and nodes to
// be present in this run; lenient mode lets a conflict merge close the conflict
// even when its nodes are not loaded.
func (s *State) check(d *types.Decision, strict bool) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	kinds := make([]targetKind, len(d.Targets))
	for i, t := range d.Targets {
		kinds[i] = s.kindOf(t)
		if kinds[i] == targetUnknown {
			return fmt.Errorf("%w: %s", ErrUnknownTarget, t)
		}
	}
	if d.Action != types.ActionMerge {
		return nil
	}

	if len(d.Targets) == 1 {
		if kinds[0] != targetConflict {
			return fmt.Errorf("%w: merge needs a conflict or at least two targets", ErrInvalidDecision)
		}
		c, ok := s.Conflicts[d.Targets[0]]
		if !ok {
			if strict {
				return fmt.Errorf("%w: conflict %s is not part of this run", ErrUnknownTarget, d.Targets[0])
			}
			return nil
		}
		for _, id := range []string{c.Pair.Key.A, c.Pair.Key.B} {
			if _, ok := s.Tree.Node(s.resolve(id)); !ok {
				return fmt.Errorf("%w: node %s", ErrUnknownTarget, id)
			}
		}
		return nil
	}
	for _, k := range kinds[1:] {
		if k != kinds[0] || (k != targetConcept && k != targetNode) {
			return fmt.Errorf("%w: merge targets must all be concepts or all be taxonomy nodes", ErrInvalidDecision)
		}
	}
	if kinds[0] == targetNode {
		for _, absorbed := range d.Targets[1:] {
			if absorbed == d.Targets[0] || s.Tree.IsAncestor(absorbed, d.Targets[0]) {
				return fmt.Errorf("%w: cannot merge %s into %s", ErrInvalidDecision, absorbed, d.Targets[0])
			}
		}
	}
	return nil
}

// Apply applies one decision. Targets that are gone from this run are recorded in
// Stale instead of failing, so historical decisions keep replaying.
func (s *State) Apply(d types.Decision) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if d.Seq > s.Seq {
		s.Seq = d.Seq
	}
	targets := s.resolveAll(d.Targets)
	resolved := d
	resolved.Targets = targets
	if err := s.check(&resolved, false); err != nil {
		s.Stale = append(s.Stale, d.ID)
		return nil
	}

	switch d.Action {
	case types.ActionMerge:
		if err := s.merge(d, targets); err != nil {
			s.Stale = append(s.Stale, d.ID)
		}
	case types.ActionSpecify, types.ActionKeep:
		for _, t := range targets {
			s.close(d, t)
		}
	case types.ActionClarify:
		for _, t := range targets {
			s.annotate(d, t)
		}
	}
	return nil
}

func (s *State) resolveAll(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.resolve(id)
	}
	return out
}

func (s *State) resolve(id string) string {
	seen := map[string]bool{}
	for {
		next, ok := s.Redirects[id]
		if !ok || seen[id] {
			return id
		}
		seen[id] = true
		id = next
	}
}

func (s *State) close(d types.Decision, target string) {
	switch s.kindOf(target) {
	case targetConflict:
		s.Resolutions[target] = mece.Resolution{DecisionID: d.ID, Rationale: d.Rationale, Closed: true}
		if c, ok := s.Conflicts[target]; ok {
			c.Status, c.ResolvedBy, c.Rationale = types.StatusResolved, d.ID, d.Rationale
			s.Conflicts[target] = c
		}
	case targetReview:
		r := s.Reviews[target]
		r.Status = types.StatusResolved
		s.Reviews[target] = r
		if c, ok := s.Concepts[r.Ref]; ok {
			c.NeedsReview = false
		}
	case targetConcept:
		c := s.Concepts[target]
		c.NeedsReview = false
		if d.Rationale != "" {
			c.Rationale = d.Rationale
		}
	}
}

func (s *State) annotate(d types.Decision, target string) {
	switch s.kindOf(target) {
	case targetConflict:
		res := s.Resolutions[target]
		res.Rationale = d.Rationale
		if res.DecisionID == "" {
			res.DecisionID = d.ID
		}
		s.Resolutions[target] = res
		if c, ok := s.Conflicts[target]; ok {
			c.Rationale = d.Rationale
			s.Conflicts[target] = c
		}
	case targetConcept:
		s.Concepts[target].Rationale = d.Rationale
	case targetReview:
		r := s.Reviews[target]
		r.Detail = r.Detail + " | " + d.Rationale
		s.Reviews[target] = r
	}
}

func (s *State) merge(d types.Decision, targets []string) error {
	if len(targets) == 1 {
		c, ok := s.Conflicts[targets[0]]
		if !ok {
			s.close(d, targets[0])
			return nil
		}
		survivor, absorbed := s.resolve(c.Pair.Key.A), s.resolve(c.Pair.Key.B)
		if survivor == absorbed {
			s.close(d, targets[0])
			return nil
		}
		if s.Tree.IsAncestor(absorbed, survivor) {
			survivor, absorbed = absorbed, survivor
		}
		if err := s.mergeNodes(survivor, absorbed); err != nil {
			return err
		}
		s.close(d, targets[0])
		return nil
	}

	survivor := targets[0]
	for _, absorbed := range targets[1:] {
		if absorbed == survivor {
			continue
		}
		var err error
		if _, ok := s.Concepts[survivor]; ok {
			err = s.mergeConcepts(d, survivor, absorbed)
		} else {
			err = s.mergeNodes(survivor, absorbed)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *State) mergeNodes(survivor, absorbed string) error {
	tree, err := s.Tree.WithMerge(survivor, absorbed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	s.Tree = tree
	s.Redirects[absorbed] = survivor
	return nil
}

func (s *State) mergeConcepts(d types.Decision, survivor, absorbed string) error {
	a, b := s.Concepts[survivor], s.Concepts[absorbed]
	if b == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, absorbed)
	}

	members := append(append([]string(nil), a.Members...), b.Members...)
	sort.Strings(members)
	members = compact(members)

	na, nb := float64(a.Metrics.MemberCount), float64(b.Metrics.MemberCount)
	minSim := min(a.Metrics.MinSimilarity, b.Metrics.MinSimilarity)
	meanSim := 0.0
	if na+nb > 0 {
		meanSim = (a.Metrics.MeanSimilarity*na + b.Metrics.MeanSimilarity*nb) / (na + nb)
	}

	if s.Skills != nil {
		a.Metrics = concepts.Metrics(members, s.Skills, nil)
	} else {
		a.Metrics.MemberCount = len(members)
	}
	a.Metrics.MinSimilarity, a.Metrics.MeanSimilarity = minSim, meanSim
	a.Members = members
	a.Confidence = types.MinTier(a.Confidence, b.Confidence)
	a.NeedsReview = false
	if d.Rationale != "" {
		a.Rationale = d.Rationale
	}

	delete(s.Concepts, absorbed)
	s.Redirects[absorbed] = survivor
	return nil
}

func compact(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// Replay applies decisions in sequence order up to and including until.
// until <= 0 replays everything.
func Replay(base Base, decisions []types.Decision, until int64) (*State, error) {
	sorted := append([]types.Decision(nil), decisions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	s := NewState(base)
	for _, d := range sorted {
		if until > 0 && d.Seq > until {
			break
		}
		if err := s.Apply(d); err != nil {
			return nil, fmt.Errorf("replaying decision %s (seq %d): %w", d.ID, d.Seq, err)
		}
	}
	return s, nil
}

// Resolutions derives conflict resolutions from decisions alone.
func Resolutions(decisions []types.Decision) map[string]mece.Resolution {
	s, err := Replay(Base{}, decisions, 0)
	if err != nil {
		return map[string]mece.Resolution{}
	}
	return s.Resolutions
}
