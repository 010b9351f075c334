// Package report writes the output artifacts of a run: the concept, mapping,
// relationship, conflict and redundancy tables, the validation report, the ledger
// file and a run summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Output file names, relative to the output directory.
const (
	ConceptsFile      = "master_concepts.csv"
	MappingFile       = "skill_concept_mapping.csv"
	RelationshipsFile = "relationships.csv"
	ConflictsFile     = "conflicts.csv"
	RedundanciesFile  = "redundancies.csv"
	ValidationFile    = "validation_report.json"
	LedgerFile        = "decisions.jsonl"
	SummaryFile       = "summary.json"
)

// Bundle is everything a run reports.
type Bundle struct {
	Run             *types.Run
	Skills          []types.SkillRecord
	Concepts        []types.MasterConcept
	Classifications []types.PairClassification
	Validation      *mece.Report
	Review          []types.ReviewItem
	Decisions       []types.Decision
	Failures        []types.EmbeddingFailure
	// Stale lists decisions whose targets no longer exist.
	Stale []string
	// Counts are free-form stage counters copied into the summary.
	Counts map[string]int
}

// Summary is the machine-readable run summary. It always lists failed entities.
type Summary struct {
	RunID          string          `json:"run_id"`
	Mode           types.RunMode   `json:"mode"`
	Status         types.RunStatus `json:"status"`
	Skills         int             `json:"skills"`
	Concepts       int             `json:"concepts"`
	Unmapped       int             `json:"unmapped_skills"`
	MECEScore      float64         `json:"mece_score"`
	OpenViolations int             `json:"open_violations"`
	OpenReview     int             `json:"open_review_items"`
	Decisions      int             `json:"decisions"`
	StaleDecisions []string        `json:"stale_decisions,omitempty"`
	FailedEntities []FailedEntity  `json:"failed_entities"`
	Counts         map[string]int  `json:"counts,omitempty"`
	Files          []string        `json:"files"`
}

// FailedEntity is one entity left out of comparison.
type FailedEntity struct {
	ID       string `json:"id"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// Write renders b into dir and returns the written paths in a stable order.
func Write(dir string, b *Bundle) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	mapping := MappingOf(b.Skills, b.Concepts)
	writers := []struct {
		name string
		fn   func(path string) error
	}{
		{ConceptsFile, func(p string) error { return writeCSV(p, conceptRows(b.Concepts)) }},
		{MappingFile, func(p string) error { return writeCSV(p, mappingRows(b.Skills, mapping)) }},
		{RelationshipsFile, func(p string) error { return writeCSV(p, relationshipRows(b.Classifications)) }},
		{ConflictsFile, func(p string) error { return writeCSV(p, conflictRows(b.Validation)) }},
		{RedundanciesFile, func(p string) error { return writeCSV(p, redundancyRows(b.Concepts, b.Skills)) }},
		{ValidationFile, func(p string) error { return writeJSON(p, b.Validation) }},
		{LedgerFile, func(p string) error { return writeLedger(p, b.Decisions) }},
	}

	var paths []string
	for _, w := range writers {
		p := filepath.Join(dir, w.name)
		if err := w.fn(p); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", w.name, err)
		}
		paths = append(paths, p)
	}

	sp := filepath.Join(dir, SummaryFile)
	s := Summarize(b, mapping)
	s.Files = append(append([]string(nil), paths...), sp)
	if err := writeJSON(sp, s); err != nil {
		return paths, fmt.Errorf("failed to write %s: %w", SummaryFile, err)
	}
	return append(paths, sp), nil
}

// MappingOf assigns each skill to the concept that lists it. Skills in no concept
// map to "".
func MappingOf(skills []types.SkillRecord, concepts []types.MasterConcept) map[string]string {
	m := make(map[string]string, len(skills))
	for _, s := range skills {
		m[s.ID] = ""
	}
	for _, c := range concepts {
		for _, id := range c.Members {
			if cur, ok := m[id]; ok && cur == "" {
				m[id] = c.ID
			}
		}
	}
	return m
}

// Summarize builds the run summary for b.
func Summarize(b *Bundle, mapping map[string]string) *Summary {
	s := &Summary{
		Skills:         len(b.Skills),
		Concepts:       len(b.Concepts),
		Decisions:      len(b.Decisions),
		StaleDecisions: b.Stale,
		FailedEntities: []FailedEntity{},
		Counts:         b.Counts,
	}
	if b.Run != nil {
		s.RunID, s.Mode, s.Status = b.Run.ID, b.Run.Mode, b.Run.Status
	}
	for _, cid := range mapping {
		if cid == "" {
			s.Unmapped++
		}
	}
	if b.Validation != nil {
		s.MECEScore = b.Validation.MECEScore
		s.OpenViolations = b.Validation.OpenViolations()
	}
	for _, r := range b.Review {
		if r.Status == types.StatusOpen {
			s.OpenReview++
		}
	}
	for _, f := range b.Failures {
		s.FailedEntities = append(s.FailedEntities, FailedEntity{ID: f.EntityID, Error: f.Error, Attempts: f.Attempts})
	}
	sort.Slice(s.FailedEntities, func(i, j int) bool { return s.FailedEntities[i].ID < s.FailedEntities[j].ID })
	return s
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func writeLedger(path string, ds []types.Decision) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := ledger.WriteJSONL(f, ds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
