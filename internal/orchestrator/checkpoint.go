package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/events"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/storage"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// restore loads the newest verified checkpoint for stage. A checkpoint whose
// payload no longer decodes is invalidated and skipped, like a corrupt one.
func restore[T any](ctx context.Context, p *pipeline, stage types.Stage) (T, *types.Checkpoint, error) {
	for {
		var out T
		cp, err := storage.LatestValidCheckpoint(ctx, p.o.store, p.run.ID, stage, p.log)
		if err != nil || cp == nil {
			return out, nil, err
		}
		err = json.Unmarshal(cp.Payload, &out)
		if err == nil {
			return out, cp, nil
		}
		p.log.Warn("discarding unreadable checkpoint", "stage", string(stage), "offset", cp.Offset, "error", err)
		p.emit(ctx, events.EventTypeCheckpointCorrupt, stage, events.SeverityWarning, err.Error())
		if err := p.o.store.InvalidateCheckpoint(ctx, p.run.ID, stage, cp.Offset); err != nil {
			return out, nil, fmt.Errorf("failed to invalidate checkpoint: %w", err)
		}
	}
}

// save writes a checkpoint holding payload.
func save(ctx context.Context, p *pipeline, stage types.Stage, offset int, done bool, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s checkpoint: %w", stage, err)
	}
	c := &types.Checkpoint{RunID: p.run.ID, Stage: stage, Offset: offset, Done: done, Payload: data}
	if err := storage.WriteCheckpoint(ctx, p.o.store, c); err != nil {
		return err
	}
	p.o.metrics.CheckpointWritten()
	p.log.Debug("checkpoint written", "stage", string(stage), "offset", offset, "done", done)
	return nil
}

// sharded runs step over [0, n) in chunks of the checkpoint interval. After each
// chunk the accumulated results are checkpointed, so a resumed stage continues at
// the first unprocessed item and a completed stage is not run again.
func sharded[T any](ctx context.Context, p *pipeline, stage types.Stage, n int, step func(ctx context.Context, start, end int) ([]T, error)) ([]T, error) {
	start := 0
	acc, cp, err := restore[[]T](ctx, p, stage)
	if err != nil {
		return nil, err
	}
	if cp != nil {
		if cp.Done {
			p.log.Info("stage already complete", "stage", string(stage), "items", len(acc))
			return acc, nil
		}
		start = cp.Offset
		p.log.Info("resuming stage from checkpoint", "stage", string(stage), "offset", start, "total", n)
	}

	interval := p.o.cfg.Batch.CheckpointInterval
	if interval <= 0 {
		interval = max(n, 1)
	}
	for start < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+interval, n)
		out, err := step(ctx, start, end)
		if err != nil {
			return nil, err
		}
		acc = append(acc, out...)
		if err := save(ctx, p, stage, end, end == n, acc); err != nil {
			return nil, err
		}
		start = end
	}
	if n == 0 {
		if err := save(ctx, p, stage, 0, true, acc); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// once runs fn unless stage already has a completed checkpoint, in which case its
// stored result is returned.
func once[T any](ctx context.Context, p *pipeline, stage types.Stage, fn func(ctx context.Context) (T, error)) (T, error) {
	out, cp, err := restore[T](ctx, p, stage)
	if err != nil {
		return out, err
	}
	if cp != nil && cp.Done {
		p.log.Info("stage already complete", "stage", string(stage))
		return out, nil
	}
	out, err = fn(ctx)
	if err != nil {
		return out, err
	}
	if err := save(ctx, p, stage, 1, true, out); err != nil {
		return out, err
	}
	return out, nil
}
