package report

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/mece"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func conceptRows(concepts []types.MasterConcept) [][]string {
	rows := [][]string{{
		"concept_id", "name", "description", "taxonomy_node_id", "group_id", "confidence", "needs_review",
		"member_count", "authority_count", "grade_min", "grade_max", "min_similarity", "mean_similarity",
		"content_domains", "rationale",
	}}
	for _, c := range concepts {
		m := c.Metrics
		rows = append(rows, []string{
			c.ID, c.Name, c.Description, c.TaxonomyNodeID, c.GroupID, string(c.Confidence),
			strconv.FormatBool(c.NeedsReview),
			strconv.Itoa(m.MemberCount), strconv.Itoa(m.AuthorityCount),
			m.GradeMin.String(), m.GradeMax.String(),
			ftoa(m.MinSimilarity), ftoa(m.MeanSimilarity),
			strings.Join(m.ContentDomains, "; "), c.Rationale,
		})
	}
	return rows
}

// mappingRows has exactly one row per skill; unmapped skills get an empty concept id.
func mappingRows(skills []types.SkillRecord, mapping map[string]string) [][]string {
	rows := [][]string{{"skill_id", "authority", "grade", "concept_id"}}
	sorted := append([]types.SkillRecord(nil), skills...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, s := range sorted {
		rows = append(rows, []string{s.ID, s.Authority, s.Grade.String(), mapping[s.ID]})
	}
	return rows
}

func relationshipRows(cs []types.PairClassification) [][]string {
	rows := [][]string{{"skill_a", "skill_b", "similarity", "relation", "confidence", "source", "needs_review", "rationale"}}
	for _, pc := range cs {
		rows = append(rows, []string{
			pc.Pair.Key.A, pc.Pair.Key.B, ftoa(pc.Pair.Score), string(pc.Label), string(pc.Confidence),
			string(pc.Source), strconv.FormatBool(pc.NeedsReview), pc.Rationale,
		})
	}
	return rows
}

func conflictRows(r *mece.Report) [][]string {
	rows := [][]string{{"conflict_id", "category", "node_a", "node_b", "similarity", "relation", "status", "resolved_by", "rationale"}}
	if r == nil {
		return rows
	}
	for _, c := range r.Conflicts {
		rows = append(rows, []string{
			c.ID, string(c.Category), c.Pair.Key.A, c.Pair.Key.B, ftoa(c.Pair.Score),
			string(c.Pair.Relation), string(c.Status), c.ResolvedBy, c.Rationale,
		})
	}
	return rows
}

// redundancyRows lists every member of each multi-skill concept: the skills that
// restate one another.
func redundancyRows(concepts []types.MasterConcept, skills []types.SkillRecord) [][]string {
	byID := make(map[string]types.SkillRecord, len(skills))
	for _, s := range skills {
		byID[s.ID] = s
	}
	rows := [][]string{{"concept_id", "concept_name", "confidence", "skill_id", "authority", "grade", "text"}}
	for _, c := range concepts {
		if len(c.Members) < 2 {
			continue
		}
		for _, id := range c.Members {
			s := byID[id]
			grade := ""
			if s.ID != "" {
				grade = s.Grade.String()
			}
			rows = append(rows, []string{c.ID, c.Name, string(c.Confidence), id, s.Authority, grade, s.Text})
		}
	}
	return rows
}
