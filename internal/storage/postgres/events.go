package postgres

import (
	"context"
	"fmt"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/events"
)

// StoreEvent appends an audit event.
func (s *PostgresStorage) StoreEvent(ctx context.Context, e *events.Event) error {
	data, err := e.MarshalData()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO run_events (id, type, timestamp, run_id, stage, severity, message, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, string(e.Type), e.Timestamp, e.RunID, e.Stage, string(e.Severity), e.Message, []byte(data))
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// GetEvents retrieves events matching filter, most recent first.
func (s *PostgresStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, run_id, stage, severity, message, data::text
		FROM run_events
		WHERE 1=1
	`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.RunID != "" {
		query += " AND run_id = " + arg(filter.RunID)
	}
	if filter.Type != "" {
		query += " AND type = " + arg(string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = " + arg(string(filter.Severity))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > " + arg(filter.AfterTime)
	}
	query += " ORDER BY timestamp DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
