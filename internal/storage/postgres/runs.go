package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// CreateRun inserts a run manifest.
func (s *PostgresStorage) CreateRun(ctx context.Context, run *types.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, mode, status, input_hash, started_at, finished_at, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, string(run.Mode), string(run.Status), run.InputHash, run.StartedAt, run.FinishedAt, run.Summary)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun updates status, finish time and summary.
func (s *PostgresStorage) UpdateRun(ctx context.Context, run *types.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runs SET status = $1, finished_at = $2, summary = $3 WHERE id = $4
	`, string(run.Status), run.FinishedAt, run.Summary, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

// GetRun returns the run, or nil if it does not exist.
func (s *PostgresStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, mode, status, input_hash, started_at, finished_at, summary
		FROM runs WHERE id = $1
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *PostgresStorage) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	query := `
		SELECT id, mode, status, input_hash, started_at, finished_at, summary
		FROM runs ORDER BY started_at DESC, id
	`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*types.Run, error) {
	var run types.Run
	var mode, status string
	if err := row.Scan(&run.ID, &mode, &status, &run.InputHash, &run.StartedAt, &run.FinishedAt, &run.Summary); err != nil {
		return nil, err
	}
	run.Mode, run.Status = types.RunMode(mode), types.RunStatus(status)
	return &run, nil
}

// PutCheckpoint stores c, replacing an earlier checkpoint at the same offset.
func (s *PostgresStorage) PutCheckpoint(ctx context.Context, c *types.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (run_id, stage, item_offset, done, payload, checksum, version, invalid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (run_id, stage, item_offset) DO UPDATE SET
			done = EXCLUDED.done,
			payload = EXCLUDED.payload,
			checksum = EXCLUDED.checksum,
			version = EXCLUDED.version,
			invalid = FALSE,
			created_at = EXCLUDED.created_at
	`, c.RunID, string(c.Stage), c.Offset, c.Done, c.Payload, c.Checksum, c.Version, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns non-invalidated checkpoints, newest first.
func (s *PostgresStorage) ListCheckpoints(ctx context.Context, runID string, stage types.Stage) ([]types.Checkpoint, error) {
	query := `
		SELECT run_id, stage, item_offset, done, payload, checksum, version, created_at
		FROM checkpoints
		WHERE run_id = $1 AND NOT invalid
	`
	args := []interface{}{runID}
	if stage != "" {
		query += ` AND stage = $2`
		args = append(args, string(stage))
	}
	query += ` ORDER BY done DESC, item_offset DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []types.Checkpoint
	for rows.Next() {
		var c types.Checkpoint
		var stage string
		if err := rows.Scan(&c.RunID, &stage, &c.Offset, &c.Done, &c.Payload, &c.Checksum, &c.Version, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		c.Stage = types.Stage(stage)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InvalidateCheckpoint marks a checkpoint so it is never resumed from.
func (s *PostgresStorage) InvalidateCheckpoint(ctx context.Context, runID string, stage types.Stage, offset int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE checkpoints SET invalid = TRUE WHERE run_id = $1 AND stage = $2 AND item_offset = $3
	`, runID, string(stage), offset)
	if err != nil {
		return fmt.Errorf("failed to invalidate checkpoint: %w", err)
	}
	return nil
}
