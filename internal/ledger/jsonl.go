package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Export writes every decision as one JSON object per line, in Seq order.
func (l *Ledger) Export(ctx context.Context, w io.Writer) (int, error) {
	ds, err := l.Decisions(ctx)
	if err != nil {
		return 0, err
	}
	return WriteJSONL(w, ds)
}

// WriteJSONL encodes decisions one per line.
func WriteJSONL(w io.Writer, ds []types.Decision) (int, error) {
	enc := json.NewEncoder(w)
	for i := range ds {
		if err := enc.Encode(&ds[i]); err != nil {
			return i, fmt.Errorf("failed to encode decision %s: %w", ds[i].ID, err)
		}
	}
	return len(ds), nil
}

// ReadJSONL decodes a JSONL ledger. Blank lines are ignored.
func ReadJSONL(r io.Reader) ([]types.Decision, error) {
	var out []types.Decision
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var d types.Decision
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrInvalidDecision, err)
		}
		out = append(out, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return out, nil
}

// Import appends decisions from r that are not already in the ledger, preserving
// their ids, actors and timestamps. Imported decisions get new sequence numbers
// after the existing ones, in file order. It returns how many were added.
func (l *Ledger) Import(ctx context.Context, r io.Reader) (int, error) {
	incoming, err := ReadJSONL(r)
	if err != nil {
		return 0, err
	}
	existing, err := l.Decisions(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		seen[d.ID] = true
	}

	added := 0
	for i := range incoming {
		d := incoming[i]
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		d.Seq = 0
		if err := l.store.AppendDecision(ctx, &d); err != nil {
			return added, fmt.Errorf("failed to import decision %s: %w", d.ID, err)
		}
		added++
	}
	l.log.Info("ledger imported", "read", len(incoming), "added", added)
	return added, nil
}
