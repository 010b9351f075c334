package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// sqlite caps bound parameters per statement.
const maxParams = 500

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// GetEmbeddings returns stored vectors for the given content hashes.
func (s *SQLiteStorage) GetEmbeddings(ctx context.Context, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	for start := 0; start < len(hashes); start += maxParams {
		end := min(start+maxParams, len(hashes))
		chunk := hashes[start:end]
		args := make([]interface{}, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT content_hash, vector FROM embeddings WHERE content_hash IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query embeddings: %w", err)
		}
		for rows.Next() {
			var hash string
			var blob []byte
			if err := rows.Scan(&hash, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan embedding: %w", err)
			}
			vec, err := embedding.DecodeVector(blob)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("embedding %s: %w", hash, err)
			}
			out[hash] = vec
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// PutEmbedding inserts vec unless hash is already stored, then reads back the
// stored vector so concurrent writers converge on the first one.
func (s *SQLiteStorage) PutEmbedding(ctx context.Context, hash, model string, vec []float32) ([]float32, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO embeddings (content_hash, model, dimensions, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, hash, model, len(vec), embedding.EncodeVector(vec), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert embedding: %w", err)
	}

	var blob []byte
	if err := s.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE content_hash = ?`, hash).Scan(&blob); err != nil {
		return nil, fmt.Errorf("failed to read back embedding: %w", err)
	}
	return embedding.DecodeVector(blob)
}

// RecordEmbeddingFailure upserts the latest failure for an entity.
func (s *SQLiteStorage) RecordEmbeddingFailure(ctx context.Context, f *types.EmbeddingFailure) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_failures (entity_id, content_hash, error, attempts, run_id, failed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			error = excluded.error,
			attempts = excluded.attempts,
			run_id = excluded.run_id,
			failed_at = excluded.failed_at
	`, f.EntityID, f.ContentHash, f.Error, f.Attempts, f.RunID, f.FailedAt)
	if err != nil {
		return fmt.Errorf("failed to record embedding failure: %w", err)
	}
	return nil
}

// ListEmbeddingFailures returns outstanding failures ordered by entity id.
func (s *SQLiteStorage) ListEmbeddingFailures(ctx context.Context) ([]types.EmbeddingFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, content_hash, error, attempts, run_id, failed_at
		FROM embedding_failures
		ORDER BY entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedding failures: %w", err)
	}
	defer rows.Close()

	var out []types.EmbeddingFailure
	for rows.Next() {
		var f types.EmbeddingFailure
		if err := rows.Scan(&f.EntityID, &f.ContentHash, &f.Error, &f.Attempts, &f.RunID, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ClearEmbeddingFailures drops failures for entities that now have vectors.
func (s *SQLiteStorage) ClearEmbeddingFailures(ctx context.Context, entityIDs []string) error {
	for start := 0; start < len(entityIDs); start += maxParams {
		end := min(start+maxParams, len(entityIDs))
		args := make([]interface{}, end-start)
		for i, id := range entityIDs[start:end] {
			args[i] = id
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM embedding_failures WHERE entity_id IN (`+placeholders(len(args))+`)`, args...); err != nil {
			return fmt.Errorf("failed to clear embedding failures: %w", err)
		}
	}
	return nil
}
