package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/mod/semver"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// CheckpointVersion is the payload format written by this build. Resume accepts any
// checkpoint with the same major version.
const CheckpointVersion = "v1.0.0"

// ErrCheckpointCorrupt marks a checkpoint whose checksum or version marker does not verify.
var ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

// Checksum covers the identity fields and payload of c.
func Checksum(c *types.Checkpoint) string {
	h := sha256.New()
	h.Write([]byte(c.RunID))
	h.Write([]byte{0})
	h.Write([]byte(c.Stage))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(c.Offset)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(c.Done)))
	h.Write([]byte{0})
	h.Write(c.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Seal stamps c with the current format version and its checksum.
func Seal(c *types.Checkpoint) {
	c.Version = CheckpointVersion
	c.Checksum = Checksum(c)
}

// Verify reports ErrCheckpointCorrupt when c's marker or checksum is wrong.
func Verify(c *types.Checkpoint) error {
	if !semver.IsValid(c.Version) {
		return fmt.Errorf("%w: invalid version marker %q", ErrCheckpointCorrupt, c.Version)
	}
	if semver.Major(c.Version) != semver.Major(CheckpointVersion) {
		return fmt.Errorf("%w: format %s is not readable by %s", ErrCheckpointCorrupt, c.Version, CheckpointVersion)
	}
	if got := Checksum(c); got != c.Checksum {
		return fmt.Errorf("%w: checksum mismatch at %s offset %d", ErrCheckpointCorrupt, c.Stage, c.Offset)
	}
	return nil
}

// WriteCheckpoint seals and stores c.
func WriteCheckpoint(ctx context.Context, s Storage, c *types.Checkpoint) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid checkpoint: %w", err)
	}
	Seal(c)
	if err := s.PutCheckpoint(ctx, c); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LatestValidCheckpoint returns the newest checkpoint for run and stage that
// verifies. Corrupt checkpoints on the way are logged and invalidated so they are
// never considered again. It returns nil when the stage must start from scratch.
func LatestValidCheckpoint(ctx context.Context, s Storage, runID string, stage types.Stage, log *logging.Logger) (*types.Checkpoint, error) {
	cps, err := s.ListCheckpoints(ctx, runID, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for i := range cps {
		c := cps[i]
		verr := Verify(&c)
		if verr == nil {
			return &c, nil
		}
		if log != nil {
			log.Warn("discarding corrupt checkpoint",
				"run_id", runID, "stage", string(stage), "offset", c.Offset, "error", verr)
		}
		if err := s.InvalidateCheckpoint(ctx, runID, stage, c.Offset); err != nil {
			return nil, fmt.Errorf("failed to invalidate checkpoint: %w", err)
		}
	}
	return nil, nil
}
