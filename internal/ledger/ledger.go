// Package ledger is the append-only record of human decisions. Resolution state is
// never stored directly; it is derived by replaying the ledger over a run.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Store persists decisions. AppendDecision assigns Seq; ListDecisions returns
// decisions in Seq order.
type Store interface {
	AppendDecision(ctx context.Context, d *types.Decision) error
	ListDecisions(ctx context.Context) ([]types.Decision, error)
}

type Ledger struct {
	store Store
	log   *logging.Logger
	now   func() time.Time
}

func New(store Store, log *logging.Logger) *Ledger {
	if log == nil {
		log = logging.NewNop()
	}
	return &Ledger{store: store, log: log, now: time.Now}
}

// Record validates d against state, appends it and applies it to state. d gets a
// fresh id and timestamp; Seq is assigned by the store.
func (l *Ledger) Record(ctx context.Context, state *State, d *types.Decision) error {
	d.ID = uuid.New().String()
	d.Timestamp = l.now().UTC()

	if err := state.Check(d); err != nil {
		return err
	}
	if err := l.store.AppendDecision(ctx, d); err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}
	if err := state.Apply(*d); err != nil {
		return err
	}

	l.log.Info("decision recorded",
		"decision_id", d.ID,
		"seq", d.Seq,
		"action", string(d.Action),
		"targets", d.Targets,
		"actor", d.Actor)
	return nil
}

// Decisions returns the full ledger.
func (l *Ledger) Decisions(ctx context.Context) ([]types.Decision, error) {
	ds, err := l.store.ListDecisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return ds, nil
}

// State replays the ledger over base. until > 0 stops after that sequence number.
func (l *Ledger) State(ctx context.Context, base Base, until int64) (*State, error) {
	ds, err := l.Decisions(ctx)
	if err != nil {
		return nil, err
	}
	s, err := Replay(base, ds, until)
	if err != nil {
		return nil, err
	}
	if len(s.Stale) > 0 {
		l.log.Warn("decisions reference targets missing from this run", "count", len(s.Stale), "decisions", s.Stale)
	}
	return s, nil
}
