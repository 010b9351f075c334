package ingest

import (
	"fmt"
	"io"
	"os"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/taxonomy"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

var nodeColumns = map[string]string{
	"ID":   "id",
	"Name": "name",
}

// LoadTaxonomy reads a taxonomy table from a CSV file.
func LoadTaxonomy(path string) ([]types.TaxonomyNode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open taxonomy file: %w", err)
	}
	defer f.Close()
	return ReadTaxonomy(f, path)
}

// ReadTaxonomy parses taxonomy rows. Required columns: id, level, name, and one of
// parent_id or path. Parents missing from parent_id are inferred from the path.
func ReadTaxonomy(r io.Reader, name string) ([]types.TaxonomyNode, error) {
	t, err := readTable(r, name)
	if err != nil {
		return nil, err
	}

	idCol, err := t.column(true, "id", "node_id")
	if err != nil {
		return nil, err
	}
	levelCol, err := t.column(true, "level", "hierarchy_level")
	if err != nil {
		return nil, err
	}
	nameCol, err := t.column(true, "name", "display_name", "label")
	if err != nil {
		return nil, err
	}
	parentCol, _ := t.column(false, "parent_id", "parent")
	pathCol, _ := t.column(false, "path", "full_path", "materialized_path")
	if parentCol < 0 && pathCol < 0 {
		return nil, &SchemaError{File: name, Column: "parent_id",
			Reason: "either parent_id or path is required for parent linkage"}
	}
	annCol, _ := t.column(false, "annotation", "examples", "notes", "description")

	out := make([]types.TaxonomyNode, 0, len(t.rows))
	for i, rec := range t.rows {
		row := i + 1
		n := types.TaxonomyNode{
			ID:         field(rec, idCol),
			Name:       field(rec, nameCol),
			ParentID:   field(rec, parentCol),
			Path:       field(rec, pathCol),
			Annotation: field(rec, annCol),
		}
		if err := t.checkStruct(row, &n, nodeColumns); err != nil {
			return nil, err
		}
		level, err := types.ParseLevel(field(rec, levelCol))
		if err != nil {
			return nil, &SchemaError{File: name, Row: row, Column: "level", Reason: err.Error()}
		}
		n.Level = level
		out = append(out, n)
	}
	return taxonomy.ResolveParents(out), nil
}
