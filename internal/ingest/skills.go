package ingest

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

var skillColumns = map[string]string{
	"ID":            "id",
	"Text":          "text",
	"GradeLabel":    "grade",
	"Area":          "area",
	"ContentDomain": "content_domain",
}

// LoadSkills reads a skill table from a CSV file.
func LoadSkills(path string) ([]types.SkillRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open skills file: %w", err)
	}
	defer f.Close()
	return ReadSkills(f, path)
}

// ReadSkills parses skill rows. Required columns: id, text, grade, area, content_domain.
// Optional: authority, updated_at (RFC 3339 or YYYY-MM-DD).
func ReadSkills(r io.Reader, name string) ([]types.SkillRecord, error) {
	t, err := readTable(r, name)
	if err != nil {
		return nil, err
	}

	idCol, err := t.column(true, "id", "skill_id")
	if err != nil {
		return nil, err
	}
	textCol, err := t.column(true, "text", "skill_name", "name", "skill", "description")
	if err != nil {
		return nil, err
	}
	gradeCol, err := t.column(true, "grade", "grade_level", "grade_label")
	if err != nil {
		return nil, err
	}
	areaCol, err := t.column(true, "area", "skill_area", "subject")
	if err != nil {
		return nil, err
	}
	domainCol, err := t.column(true, "content_domain", "domain")
	if err != nil {
		return nil, err
	}
	authCol, _ := t.column(false, "authority", "source", "standard_body")
	updCol, _ := t.column(false, "updated_at", "modified", "last_modified")

	seen := make(map[string]int, len(t.rows))
	out := make([]types.SkillRecord, 0, len(t.rows))
	for i, rec := range t.rows {
		row := i + 1
		s := types.SkillRecord{
			ID:            field(rec, idCol),
			Text:          field(rec, textCol),
			Authority:     field(rec, authCol),
			GradeLabel:    field(rec, gradeCol),
			Area:          field(rec, areaCol),
			ContentDomain: field(rec, domainCol),
		}
		if err := t.checkStruct(row, &s, skillColumns); err != nil {
			return nil, err
		}
		if prev, dup := seen[s.ID]; dup {
			return nil, &SchemaError{File: name, Row: row, Column: "id",
				Reason: fmt.Sprintf("duplicate id %s (first seen on row %d)", s.ID, prev)}
		}
		seen[s.ID] = row

		grade, err := types.ParseGradeLevel(s.GradeLabel)
		if err != nil {
			return nil, &SchemaError{File: name, Row: row, Column: "grade", Reason: err.Error()}
		}
		s.Grade = grade

		if raw := field(rec, updCol); raw != "" {
			ts, err := parseTime(raw)
			if err != nil {
				return nil, &SchemaError{File: name, Row: row, Column: "updated_at", Reason: err.Error()}
			}
			s.UpdatedAt = &ts
		}
		out = append(out, s)
	}
	return out, nil
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// ParseSince parses the --since flag value.
func ParseSince(raw string) (time.Time, error) {
	return parseTime(raw)
}

// ChangedSince returns the ids of skills updated at or after since.
// Records without an updated_at are treated as unchanged.
func ChangedSince(skills []types.SkillRecord, since time.Time) map[string]bool {
	changed := make(map[string]bool)
	for _, s := range skills {
		if s.UpdatedAt != nil && !s.UpdatedAt.Before(since) {
			changed[s.ID] = true
		}
	}
	return changed
}

// MergeRecords overlays updates onto base by id and reports which ids are new or changed.
func MergeRecords(base, updates []types.SkillRecord) ([]types.SkillRecord, map[string]bool) {
	idx := make(map[string]int, len(base))
	out := append([]types.SkillRecord(nil), base...)
	for i, s := range out {
		idx[s.ID] = i
	}
	changed := make(map[string]bool, len(updates))
	for _, u := range updates {
		if i, ok := idx[u.ID]; ok {
			if out[i].Text != u.Text || out[i].Authority != u.Authority ||
				out[i].GradeLabel != u.GradeLabel || out[i].Area != u.Area || out[i].ContentDomain != u.ContentDomain {
				changed[u.ID] = true
			}
			out[i] = u
			continue
		}
		idx[u.ID] = len(out)
		out = append(out, u)
		changed[u.ID] = true
	}
	return out, changed
}

// Sample keeps the first n skills in id order. n <= 0 keeps everything.
func Sample(skills []types.SkillRecord, n int) []types.SkillRecord {
	out := append([]types.SkillRecord(nil), skills...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
