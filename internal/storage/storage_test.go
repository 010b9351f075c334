package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

func openSQLite(t *testing.T) Storage {
	t.Helper()
	s, err := NewStorage(context.Background(), config.StorageConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "s.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStorageRejectsUnknownDriver(t *testing.T) {
	_, err := NewStorage(context.Background(), config.StorageConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")

	_, err = NewStorage(context.Background(), config.StorageConfig{Driver: "postgres"})
	assert.Error(t, err, "postgres needs a dsn")
}

func TestSealAndVerify(t *testing.T) {
	c := &types.Checkpoint{RunID: "r", Stage: types.StageEmbed, Offset: 5, Payload: []byte(`{"n":5}`)}
	Seal(c)
	assert.Equal(t, CheckpointVersion, c.Version)
	require.NoError(t, Verify(c))

	tests := []struct {
		name   string
		mutate func(c *types.Checkpoint)
	}{
		{"payload changed", func(c *types.Checkpoint) { c.Payload = []byte(`{"n":6}`) }},
		{"offset changed", func(c *types.Checkpoint) { c.Offset = 6 }},
		{"done flipped", func(c *types.Checkpoint) { c.Done = true }},
		{"missing version", func(c *types.Checkpoint) { c.Version = "" }},
		{"future major version", func(c *types.Checkpoint) { c.Version = "v2.0.0" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := *c
			tt.mutate(&cp)
			err := Verify(&cp)
			assert.True(t, errors.Is(err, ErrCheckpointCorrupt), "got %v", err)
		})
	}

	minor := *c
	minor.Version = "v1.4.0"
	assert.NoError(t, Verify(&minor), "minor versions stay readable")
}

func TestLatestValidCheckpointSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	require.NoError(t, s.CreateRun(ctx, &types.Run{ID: "r1", Mode: types.ModeRebuild, Status: types.RunRunning, StartedAt: time.Now()}))

	for _, off := range []int{100, 200} {
		require.NoError(t, WriteCheckpoint(ctx, s, &types.Checkpoint{
			RunID: "r1", Stage: types.StageSimilarity, Offset: off, Payload: []byte(`[]`), CreatedAt: time.Now(),
		}))
	}
	// Corrupt the newest one behind the checksum's back.
	bad := &types.Checkpoint{RunID: "r1", Stage: types.StageSimilarity, Offset: 200, Payload: []byte(`[1]`),
		Checksum: "deadbeef", Version: CheckpointVersion, CreatedAt: time.Now()}
	require.NoError(t, s.PutCheckpoint(ctx, bad))

	got, err := LatestValidCheckpoint(ctx, s, "r1", types.StageSimilarity, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 100, got.Offset)

	// The corrupt checkpoint was invalidated and is never listed again.
	cps, err := s.ListCheckpoints(ctx, "r1", types.StageSimilarity)
	require.NoError(t, err)
	assert.Len(t, cps, 1)

	none, err := LatestValidCheckpoint(ctx, s, "r1", types.StageReport, nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWriteCheckpointValidates(t *testing.T) {
	s := openSQLite(t)
	err := WriteCheckpoint(context.Background(), s, &types.Checkpoint{RunID: "", Stage: types.StageEmbed})
	assert.Error(t, err)
}
