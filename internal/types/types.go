package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SkillRecord is one skill description from the upstream catalog.
// Records are immutable once ingested.
type SkillRecord struct {
	ID            string     `json:"id" validate:"required"`
	Text          string     `json:"text" validate:"required"`
	Authority     string     `json:"authority,omitempty"`
	GradeLabel    string     `json:"grade_label" validate:"required"`
	Grade         GradeLevel `json:"grade"`
	Area          string     `json:"area" validate:"required"`
	ContentDomain string     `json:"content_domain" validate:"required"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Band returns the normalized grade band of the record.
func (s *SkillRecord) Band() GradeBand {
	return s.Grade.Band()
}

// Validate checks if the skill has valid field values
func (s *SkillRecord) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("text is required (skill %s)", s.ID)
	}
	if !s.Grade.IsValid() {
		return fmt.Errorf("invalid grade level %d (skill %s)", s.Grade, s.ID)
	}
	return nil
}

// TaxonomyNode is one node of the skill taxonomy.
type TaxonomyNode struct {
	ID         string `json:"id" validate:"required"`
	Level      Level  `json:"level"`
	Name       string `json:"name" validate:"required"`
	ParentID   string `json:"parent_id,omitempty"`
	Path       string `json:"path,omitempty"`
	Annotation string `json:"annotation,omitempty"`
}

// IsRoot reports whether the node sits at the top of the hierarchy.
func (n *TaxonomyNode) IsRoot() bool {
	return n.ParentID == ""
}

// Text is the string embedded for the node: name plus annotation.
func (n *TaxonomyNode) Text() string {
	ann := strings.TrimSpace(n.Annotation)
	if ann == "" {
		return n.Name
	}
	return n.Name + ". " + ann
}

// Level is a taxonomy hierarchy level. Lower values are closer to the root.
type Level int

const (
	LevelStrand Level = iota + 1
	LevelPillar
	LevelDomain
	LevelSkillArea
	LevelSkillSet
	LevelSkillSubset
)

var levelNames = map[Level]string{
	LevelStrand:      "Strand",
	LevelPillar:      "Pillar",
	LevelDomain:      "Domain",
	LevelSkillArea:   "SkillArea",
	LevelSkillSet:    "SkillSet",
	LevelSkillSubset: "SkillSubset",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// IsValid checks if the level value is valid
func (l Level) IsValid() bool {
	return l >= LevelStrand && l <= LevelSkillSubset
}

// ParseLevel accepts "SkillArea", "skill_area", "skill area" or the 1-based ordinal.
func ParseLevel(s string) (Level, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	if key == "" {
		return 0, fmt.Errorf("level is required")
	}
	if n, err := strconv.Atoi(key); err == nil {
		l := Level(n)
		if !l.IsValid() {
			return 0, fmt.Errorf("level %d out of range", n)
		}
		return l, nil
	}
	for l, name := range levelNames {
		if strings.ToLower(name) == key {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

// Relation is the structural relation between the two sides of a pair.
type Relation string

const (
	RelationSiblings       Relation = "same-level-siblings"
	RelationAncestor       Relation = "ancestor-descendant"
	RelationCrossBranch    Relation = "cross-branch"
	RelationUnrelatedLevel Relation = "unrelated-level"
	// RelationNone is used for skill pairs, which carry no hierarchy.
	RelationNone Relation = "none"
)

// IsValid checks if the relation value is valid
func (r Relation) IsValid() bool {
	switch r {
	case RelationSiblings, RelationAncestor, RelationCrossBranch, RelationUnrelatedLevel, RelationNone:
		return true
	}
	return false
}

// PairKey is the canonical (min, max) ordering of two entity ids.
type PairKey struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPairKey orders x and y so that (x,y) and (y,x) produce the same key.
func NewPairKey(x, y string) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

func (k PairKey) String() string {
	return k.A + "|" + k.B
}

// Other returns the side of the pair that is not id.
func (k PairKey) Other(id string) string {
	if k.A == id {
		return k.B
	}
	return k.A
}

// ParsePairKey is the inverse of PairKey.String.
func ParsePairKey(s string) (PairKey, error) {
	a, b, ok := strings.Cut(s, "|")
	if !ok || a == "" || b == "" {
		return PairKey{}, fmt.Errorf("invalid pair key %q", s)
	}
	return NewPairKey(a, b), nil
}

// SimilarityPair is a scored pair of entities.
type SimilarityPair struct {
	Key      PairKey  `json:"key"`
	Score    float64  `json:"score"`
	Relation Relation `json:"relation"`
}

// Validate checks if the pair has valid field values
func (p *SimilarityPair) Validate() error {
	if p.Key.A == "" || p.Key.B == "" {
		return fmt.Errorf("pair ids are required")
	}
	if p.Key.A == p.Key.B {
		return fmt.Errorf("pair %s compares an entity with itself", p.Key)
	}
	if p.Key.B < p.Key.A {
		return fmt.Errorf("pair %s is not canonically ordered", p.Key)
	}
	if p.Score < 0 || p.Score > 1 {
		return fmt.Errorf("score must be between 0.0 and 1.0 (got %.4f)", p.Score)
	}
	if !p.Relation.IsValid() {
		return fmt.Errorf("invalid relation: %s", p.Relation)
	}
	return nil
}
