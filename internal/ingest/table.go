// Package ingest reads the skill and taxonomy tables.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// table is a CSV file with a normalized header index.
type table struct {
	name   string
	header map[string]int
	rows   [][]string
}

func readTable(r io.Reader, name string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &SchemaError{File: name, Reason: "file is empty"}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading header: %w", name, err)
	}

	t := &table{name: name, header: make(map[string]int, len(head))}
	for i, h := range head {
		key := normalizeColumn(h)
		if i == 0 {
			key = strings.TrimPrefix(key, "\ufeff")
		}
		if _, dup := t.header[key]; !dup {
			t.header[key] = i
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &SchemaError{File: name, Row: pe.Line - 1, Column: "", Reason: pe.Err.Error()}
			}
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if isBlank(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func normalizeColumn(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// column resolves the first present alias; required columns produce a SchemaError.
func (t *table) column(required bool, aliases ...string) (int, error) {
	for _, a := range aliases {
		if idx, ok := t.header[a]; ok {
			return idx, nil
		}
	}
	if required {
		return -1, &SchemaError{File: t.name, Column: aliases[0],
			Reason: fmt.Sprintf("required column missing (accepted names: %s)", strings.Join(aliases, ", "))}
	}
	return -1, nil
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

// checkStruct runs validator tags and converts the first failure into a SchemaError.
func (t *table) checkStruct(row int, v interface{}, columns map[string]string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	e := verrs[0]
	col := columns[e.Field()]
	if col == "" {
		col = strings.ToLower(e.Field())
	}
	reason := "invalid value"
	if e.Tag() == "required" {
		reason = "value is required"
	}
	return &SchemaError{File: t.name, Row: row, Column: col, Reason: reason}
}
