package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// AppendDecision inserts d and assigns its sequence number.
func (s *SQLiteStorage) AppendDecision(ctx context.Context, d *types.Decision) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	targets, err := json.Marshal(d.Targets)
	if err != nil {
		return fmt.Errorf("failed to marshal targets: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, action, targets, rationale, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, string(d.Action), string(targets), d.Rationale, d.Actor, d.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get decision sequence: %w", err)
	}
	d.Seq = seq
	return nil
}

// ListDecisions returns the ledger in sequence order.
func (s *SQLiteStorage) ListDecisions(ctx context.Context) ([]types.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, action, targets, rationale, actor, created_at
		FROM decisions ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []types.Decision
	for rows.Next() {
		var d types.Decision
		var action, targets string
		if err := rows.Scan(&d.Seq, &d.ID, &action, &targets, &d.Rationale, &d.Actor, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Action = types.DecisionAction(action)
		if err := json.Unmarshal([]byte(targets), &d.Targets); err != nil {
			return nil, fmt.Errorf("decision %s has malformed targets: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
