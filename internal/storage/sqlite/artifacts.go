package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// replaceAll runs del and then insert for every row inside one transaction.
func (s *SQLiteStorage) replaceAll(ctx context.Context, del string, insert string, n int, args func(i int) ([]interface{}, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("failed to clear table: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		a, err := args(i)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// SaveSkills replaces the stored skill snapshot.
func (s *SQLiteStorage) SaveSkills(ctx context.Context, skills []types.SkillRecord) error {
	return s.replaceAll(ctx, `DELETE FROM skills`, `
		INSERT INTO skills (id, text, authority, grade_label, grade, area, content_domain, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, len(skills), func(i int) ([]interface{}, error) {
		sk := skills[i]
		var updated interface{}
		if sk.UpdatedAt != nil {
			updated = *sk.UpdatedAt
		}
		return []interface{}{sk.ID, sk.Text, sk.Authority, sk.GradeLabel, int(sk.Grade), sk.Area, sk.ContentDomain, updated}, nil
	})
}

// LoadSkills returns the skill snapshot ordered by id.
func (s *SQLiteStorage) LoadSkills(ctx context.Context) ([]types.SkillRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, authority, grade_label, grade, area, content_domain, updated_at
		FROM skills ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query skills: %w", err)
	}
	defer rows.Close()

	var out []types.SkillRecord
	for rows.Next() {
		var sk types.SkillRecord
		var grade int
		var updated sql.NullTime
		if err := rows.Scan(&sk.ID, &sk.Text, &sk.Authority, &sk.GradeLabel, &grade, &sk.Area, &sk.ContentDomain, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		sk.Grade = types.GradeLevel(grade)
		if updated.Valid {
			t := updated.Time.UTC()
			sk.UpdatedAt = &t
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// SaveTaxonomy replaces the stored taxonomy snapshot.
func (s *SQLiteStorage) SaveTaxonomy(ctx context.Context, nodes []types.TaxonomyNode) error {
	return s.replaceAll(ctx, `DELETE FROM taxonomy_nodes`, `
		INSERT INTO taxonomy_nodes (id, level, name, parent_id, path, annotation)
		VALUES (?, ?, ?, ?, ?, ?)
	`, len(nodes), func(i int) ([]interface{}, error) {
		n := nodes[i]
		return []interface{}{n.ID, int(n.Level), n.Name, n.ParentID, n.Path, n.Annotation}, nil
	})
}

// LoadTaxonomy returns the taxonomy snapshot ordered by id.
func (s *SQLiteStorage) LoadTaxonomy(ctx context.Context) ([]types.TaxonomyNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, name, parent_id, path, annotation
		FROM taxonomy_nodes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy: %w", err)
	}
	defer rows.Close()

	var out []types.TaxonomyNode
	for rows.Next() {
		var n types.TaxonomyNode
		var level int
		if err := rows.Scan(&n.ID, &level, &n.Name, &n.ParentID, &n.Path, &n.Annotation); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy node: %w", err)
		}
		n.Level = types.Level(level)
		out = append(out, n)
	}
	return out, rows.Err()
}

// SaveClassifications upserts verdicts by canonical pair key.
func (s *SQLiteStorage) SaveClassifications(ctx context.Context, cs []types.PairClassification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO classifications (pair_key, hash_a, hash_b, label, source, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_key) DO UPDATE SET
			hash_a = excluded.hash_a,
			hash_b = excluded.hash_b,
			label = excluded.label,
			source = excluded.source,
			data = excluded.data,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare classification upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range cs {
		c := cs[i]
		data, err := marshalRow(c)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.Pair.Key.String(), c.HashA, c.HashB, string(c.Label), string(c.Source), data, now); err != nil {
			return fmt.Errorf("failed to save classification %s: %w", c.Pair.Key, err)
		}
	}
	return tx.Commit()
}

// LoadClassifications returns every stored verdict.
func (s *SQLiteStorage) LoadClassifications(ctx context.Context) (map[types.PairKey]types.PairClassification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM classifications`)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	out := make(map[types.PairKey]types.PairClassification)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		var c types.PairClassification
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to decode classification: %w", err)
		}
		out[c.Pair.Key] = c
	}
	return out, rows.Err()
}

// SaveGroups replaces the stored variant groups.
func (s *SQLiteStorage) SaveGroups(ctx context.Context, runID string, groups []types.VariantGroup) error {
	return s.replaceAll(ctx, `DELETE FROM variant_groups`,
		`INSERT INTO variant_groups (id, run_id, data) VALUES (?, ?, ?)`,
		len(groups), func(i int) ([]interface{}, error) {
			data, err := marshalRow(groups[i])
			return []interface{}{groups[i].ID, runID, data}, err
		})
}

// LoadGroups returns stored groups ordered by id.
func (s *SQLiteStorage) LoadGroups(ctx context.Context) ([]types.VariantGroup, error) {
	var out []types.VariantGroup
	err := s.loadJSON(ctx, `SELECT data FROM variant_groups ORDER BY id`, func(raw []byte) error {
		var g types.VariantGroup
		if err := json.Unmarshal(raw, &g); err != nil {
			return err
		}
		out = append(out, g)
		return nil
	})
	return out, err
}

// SaveConcepts replaces the stored master concepts.
func (s *SQLiteStorage) SaveConcepts(ctx context.Context, runID string, concepts []types.MasterConcept) error {
	return s.replaceAll(ctx, `DELETE FROM concepts`,
		`INSERT INTO concepts (id, run_id, name, confidence, data) VALUES (?, ?, ?, ?, ?)`,
		len(concepts), func(i int) ([]interface{}, error) {
			c := concepts[i]
			data, err := marshalRow(c)
			return []interface{}{c.ID, runID, c.Name, string(c.Confidence), data}, err
		})
}

// LoadConcepts returns stored concepts ordered by id.
func (s *SQLiteStorage) LoadConcepts(ctx context.Context) ([]types.MasterConcept, error) {
	var out []types.MasterConcept
	err := s.loadJSON(ctx, `SELECT data FROM concepts ORDER BY id`, func(raw []byte) error {
		var c types.MasterConcept
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// SaveConflicts replaces the stored conflict records.
func (s *SQLiteStorage) SaveConflicts(ctx context.Context, runID string, conflicts []types.ConflictRecord) error {
	return s.replaceAll(ctx, `DELETE FROM conflicts`,
		`INSERT INTO conflicts (id, run_id, category, status, data) VALUES (?, ?, ?, ?, ?)`,
		len(conflicts), func(i int) ([]interface{}, error) {
			c := conflicts[i]
			data, err := marshalRow(c)
			return []interface{}{c.ID, runID, string(c.Category), string(c.Status), data}, err
		})
}

// LoadConflicts returns stored conflicts ordered by id.
func (s *SQLiteStorage) LoadConflicts(ctx context.Context) ([]types.ConflictRecord, error) {
	var out []types.ConflictRecord
	err := s.loadJSON(ctx, `SELECT data FROM conflicts ORDER BY id`, func(raw []byte) error {
		var c types.ConflictRecord
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *SQLiteStorage) loadJSON(ctx context.Context, query string, decode func([]byte) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if err := decode([]byte(data)); err != nil {
			return fmt.Errorf("failed to decode row: %w", err)
		}
	}
	return rows.Err()
}

// SaveReviewItems replaces the review queue. Items keep their original
// created_at when they were already queued.
func (s *SQLiteStorage) SaveReviewItems(ctx context.Context, items []types.ReviewItem) error {
	created := make(map[string]time.Time)
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at FROM review_items`)
	if err != nil {
		return fmt.Errorf("failed to query review items: %w", err)
	}
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan review item: %w", err)
		}
		created[id] = at
	}
	rows.Close()

	now := time.Now()
	return s.replaceAll(ctx, `DELETE FROM review_items`, `
		INSERT INTO review_items (id, kind, ref, detail, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, len(items), func(i int) ([]interface{}, error) {
		it := items[i]
		at, ok := created[it.ID]
		switch {
		case ok:
		case !it.CreatedAt.IsZero():
			at = it.CreatedAt
		default:
			at = now
		}
		return []interface{}{it.ID, string(it.Kind), it.Ref, it.Detail, string(it.Status), at}, nil
	})
}

// ListReviewItems returns items with the given status (all when empty), oldest first.
func (s *SQLiteStorage) ListReviewItems(ctx context.Context, status types.Status) ([]types.ReviewItem, error) {
	query := `SELECT id, kind, ref, detail, status, created_at FROM review_items`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query review items: %w", err)
	}
	defer rows.Close()

	var out []types.ReviewItem
	for rows.Next() {
		var it types.ReviewItem
		var kind, st string
		if err := rows.Scan(&it.ID, &kind, &it.Ref, &it.Detail, &st, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		it.Kind, it.Status = types.ReviewKind(kind), types.Status(st)
		out = append(out, it)
	}
	return out, rows.Err()
}
