package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// replaceAll clears a table and batch-inserts n rows in one transaction.
func (s *PostgresStorage) replaceAll(ctx context.Context, del, insert string, n int, args func(i int) ([]interface{}, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, del); err != nil {
		return fmt.Errorf("failed to clear table: %w", err)
	}

	batch := &pgx.Batch{}
	for i := 0; i < n; i++ {
		a, err := args(i)
		if err != nil {
			return err
		}
		batch.Queue(insert, a...)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert rows: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStorage) loadJSON(ctx context.Context, query string, decode func([]byte) error) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if err := decode(data); err != nil {
			return fmt.Errorf("failed to decode row: %w", err)
		}
	}
	return rows.Err()
}

// SaveSkills replaces the stored skill snapshot.
func (s *PostgresStorage) SaveSkills(ctx context.Context, skills []types.SkillRecord) error {
	return s.replaceAll(ctx, `DELETE FROM skills`, `
		INSERT INTO skills (id, text, authority, grade_label, grade, area, content_domain, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, len(skills), func(i int) ([]interface{}, error) {
		sk := skills[i]
		return []interface{}{sk.ID, sk.Text, sk.Authority, sk.GradeLabel, int(sk.Grade), sk.Area, sk.ContentDomain, sk.UpdatedAt}, nil
	})
}

// LoadSkills returns the skill snapshot ordered by id.
func (s *PostgresStorage) LoadSkills(ctx context.Context) ([]types.SkillRecord, error) {
	rows, err := s.pool.Query(ctx, `
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
		var updated *time.Time
		if err := rows.Scan(&sk.ID, &sk.Text, &sk.Authority, &sk.GradeLabel, &grade, &sk.Area, &sk.ContentDomain, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		sk.Grade = types.GradeLevel(grade)
		if updated != nil {
			t := updated.UTC()
			sk.UpdatedAt = &t
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// SaveTaxonomy replaces the stored taxonomy snapshot.
func (s *PostgresStorage) SaveTaxonomy(ctx context.Context, nodes []types.TaxonomyNode) error {
	return s.replaceAll(ctx, `DELETE FROM taxonomy_nodes`, `
		INSERT INTO taxonomy_nodes (id, level, name, parent_id, path, annotation)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, len(nodes), func(i int) ([]interface{}, error) {
		n := nodes[i]
		return []interface{}{n.ID, int(n.Level), n.Name, n.ParentID, n.Path, n.Annotation}, nil
	})
}

// LoadTaxonomy returns the taxonomy snapshot ordered by id.
func (s *PostgresStorage) LoadTaxonomy(ctx context.Context) ([]types.TaxonomyNode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, level, name, parent_id, path, annotation FROM taxonomy_nodes ORDER BY id
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
func (s *PostgresStorage) SaveClassifications(ctx context.Context, cs []types.PairClassification) error {
	if len(cs) == 0 {
		return nil
	}
	now := time.Now()
	batch := &pgx.Batch{}
	for i := range cs {
		c := cs[i]
		data, err := marshalRow(c)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO classifications (pair_key, hash_a, hash_b, label, source, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (pair_key) DO UPDATE SET
				hash_a = EXCLUDED.hash_a,
				hash_b = EXCLUDED.hash_b,
				label = EXCLUDED.label,
				source = EXCLUDED.source,
				data = EXCLUDED.data,
				updated_at = EXCLUDED.updated_at
		`, c.Pair.Key.String(), c.HashA, c.HashB, string(c.Label), string(c.Source), data, now)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save classifications: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadClassifications returns every stored verdict.
func (s *PostgresStorage) LoadClassifications(ctx context.Context) (map[types.PairKey]types.PairClassification, error) {
	out := make(map[types.PairKey]types.PairClassification)
	err := s.loadJSON(ctx, `SELECT data FROM classifications`, func(raw []byte) error {
		var c types.PairClassification
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		out[c.Pair.Key] = c
		return nil
	})
	return out, err
}

// SaveGroups replaces the stored variant groups.
func (s *PostgresStorage) SaveGroups(ctx context.Context, runID string, groups []types.VariantGroup) error {
	return s.replaceAll(ctx, `DELETE FROM variant_groups`,
		`INSERT INTO variant_groups (id, run_id, data) VALUES ($1, $2, $3)`,
		len(groups), func(i int) ([]interface{}, error) {
			data, err := marshalRow(groups[i])
			return []interface{}{groups[i].ID, runID, data}, err
		})
}

// LoadGroups returns stored groups ordered by id.
func (s *PostgresStorage) LoadGroups(ctx context.Context) ([]types.VariantGroup, error) {
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
func (s *PostgresStorage) SaveConcepts(ctx context.Context, runID string, concepts []types.MasterConcept) error {
	return s.replaceAll(ctx, `DELETE FROM concepts`,
		`INSERT INTO concepts (id, run_id, name, confidence, data) VALUES ($1, $2, $3, $4, $5)`,
		len(concepts), func(i int) ([]interface{}, error) {
			c := concepts[i]
			data, err := marshalRow(c)
			return []interface{}{c.ID, runID, c.Name, string(c.Confidence), data}, err
		})
}

// LoadConcepts returns stored concepts ordered by id.
func (s *PostgresStorage) LoadConcepts(ctx context.Context) ([]types.MasterConcept, error) {
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
func (s *PostgresStorage) SaveConflicts(ctx context.Context, runID string, conflicts []types.ConflictRecord) error {
	return s.replaceAll(ctx, `DELETE FROM conflicts`,
		`INSERT INTO conflicts (id, run_id, category, status, data) VALUES ($1, $2, $3, $4, $5)`,
		len(conflicts), func(i int) ([]interface{}, error) {
			c := conflicts[i]
			data, err := marshalRow(c)
			return []interface{}{c.ID, runID, string(c.Category), string(c.Status), data}, err
		})
}

// LoadConflicts returns stored conflicts ordered by id.
func (s *PostgresStorage) LoadConflicts(ctx context.Context) ([]types.ConflictRecord, error) {
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

// SaveReviewItems replaces the review queue, keeping created_at for items that
// were already queued.
func (s *PostgresStorage) SaveReviewItems(ctx context.Context, items []types.ReviewItem) error {
	created := make(map[string]time.Time)
	rows, err := s.pool.Query(ctx, `SELECT id, created_at FROM review_items`)
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
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now()
	return s.replaceAll(ctx, `DELETE FROM review_items`, `
		INSERT INTO review_items (id, kind, ref, detail, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
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
func (s *PostgresStorage) ListReviewItems(ctx context.Context, status types.Status) ([]types.ReviewItem, error) {
	query := `SELECT id, kind, ref, detail, status, created_at FROM review_items`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
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
