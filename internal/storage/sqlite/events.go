package sqlite

import (
	"context"
	"fmt"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/events"
)

// StoreEvent appends an audit event.
func (s *SQLiteStorage) StoreEvent(ctx context.Context, e *events.Event) error {
	data, err := e.MarshalData()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events (id, type, timestamp, run_id, stage, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Type), e.Timestamp, e.RunID, e.Stage, string(e.Severity), e.Message, data)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// GetEvents retrieves events matching filter, most recent first.
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, run_id, stage, severity, message, data
		FROM run_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.AfterTime)
	}

	query += " ORDER BY timestamp DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		var e events.Event
		var typ, severity, data string
		if err := rows.Scan(&e.ID, &typ, &e.Timestamp, &e.RunID, &e.Stage, &severity, &e.Message, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type, e.Severity = events.EventType(typ), events.EventSeverity(severity)
		if err := e.UnmarshalData(data); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
