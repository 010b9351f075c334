package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// CreateRun inserts a run manifest.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, status, input_hash, started_at, finished_at, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Mode), string(run.Status), run.InputHash, run.StartedAt, run.FinishedAt, run.Summary)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun updates status, finish time and summary.
func (s *SQLiteStorage) UpdateRun(ctx context.Context, run *types.Run) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, summary = ? WHERE id = ?
	`, string(run.Status), run.FinishedAt, run.Summary, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

// GetRun returns the run, or nil if it does not exist.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, status, input_hash, started_at, finished_at, summary
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	query := `
		SELECT id, mode, status, input_hash, started_at, finished_at, summary
		FROM runs ORDER BY started_at DESC, id
	`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*types.Run, error) {
	var run types.Run
	var mode, status string
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &mode, &status, &run.InputHash, &run.StartedAt, &finished, &run.Summary); err != nil {
		return nil, err
	}
	run.Mode, run.Status = types.RunMode(mode), types.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// PutCheckpoint stores c, replacing an earlier checkpoint at the same offset.
func (s *SQLiteStorage) PutCheckpoint(ctx context.Context, c *types.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, stage, item_offset, done, payload, checksum, version, invalid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(run_id, stage, item_offset) DO UPDATE SET
			done = excluded.done,
			payload = excluded.payload,
			checksum = excluded.checksum,
			version = excluded.version,
			invalid = 0,
			created_at = excluded.created_at
	`, c.RunID, string(c.Stage), c.Offset, c.Done, c.Payload, c.Checksum, c.Version, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns non-invalidated checkpoints, newest (highest offset) first.
func (s *SQLiteStorage) ListCheckpoints(ctx context.Context, runID string, stage types.Stage) ([]types.Checkpoint, error) {
	query := `
		SELECT run_id, stage, item_offset, done, payload, checksum, version, created_at
		FROM checkpoints
		WHERE run_id = ? AND invalid = 0
	`
	args := []interface{}{runID}
	if stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(stage))
	}
	query += ` ORDER BY done DESC, item_offset DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStorage) InvalidateCheckpoint(ctx context.Context, runID string, stage types.Stage, offset int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE checkpoints SET invalid = 1 WHERE run_id = ? AND stage = ? AND item_offset = ?
	`, runID, string(stage), offset)
	if err != nil {
		return fmt.Errorf("failed to invalidate checkpoint: %w", err)
	}
	return nil
}
