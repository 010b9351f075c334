package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// GetEmbeddings returns stored vectors for the given content hashes.
func (s *PostgresStorage) GetEmbeddings(ctx context.Context, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT content_hash, vector FROM embeddings WHERE content_hash = ANY($1)`, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		var blob []byte
		if err := rows.Scan(&hash, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := embedding.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", hash, err)
		}
		out[hash] = vec
	}
	return out, rows.Err()
}

// PutEmbedding inserts vec unless hash is already stored and returns the stored vector.
func (s *PostgresStorage) PutEmbedding(ctx context.Context, hash, model string, vec []float32) ([]float32, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (content_hash, model, dimensions, vector, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_hash) DO NOTHING
	`, hash, model, len(vec), embedding.EncodeVector(vec), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert embedding: %w", err)
	}

	var blob []byte
	if err := s.pool.QueryRow(ctx, `SELECT vector FROM embeddings WHERE content_hash = $1`, hash).Scan(&blob); err != nil {
		return nil, fmt.Errorf("failed to read back embedding: %w", err)
	}
	return embedding.DecodeVector(blob)
}

// RecordEmbeddingFailure upserts the latest failure for an entity.
func (s *PostgresStorage) RecordEmbeddingFailure(ctx context.Context, f *types.EmbeddingFailure) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO embedding_failures (entity_id, content_hash, error, attempts, run_id, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			error = EXCLUDED.error,
			attempts = EXCLUDED.attempts,
			run_id = EXCLUDED.run_id,
			failed_at = EXCLUDED.failed_at
	`, f.EntityID, f.ContentHash, f.Error, f.Attempts, f.RunID, f.FailedAt)
	if err != nil {
		return fmt.Errorf("failed to record embedding failure: %w", err)
	}
	return nil
}

// ListEmbeddingFailures returns outstanding failures ordered by entity id.
func (s *PostgresStorage) ListEmbeddingFailures(ctx context.Context) ([]types.EmbeddingFailure, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id, content_hash, error, attempts, run_id, failed_at
		FROM embedding_failures ORDER BY entity_id
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
func (s *PostgresStorage) ClearEmbeddingFailures(ctx context.Context, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM embedding_failures WHERE entity_id = ANY($1)`, entityIDs); err != nil {
		return fmt.Errorf("failed to clear embedding failures: %w", err)
	}
	return nil
}
