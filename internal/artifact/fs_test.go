package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForecastPull/internal/domain/models"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFSStore(filepath.Join(dir, "models"))
	require.NoError(t, err)

	_, err = s.Load(ctx, "BTC", "ses")
	assert.ErrorIs(t, err, models.ErrNoArtifact)
	_, ok, err := s.LastModified(ctx, "BTC", "ses")
	require.NoError(t, err)
	assert.False(t, ok)

	trained := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	in := &models.Artifact{
		Asset:        "BTC",
		Family:       "ses",
		TrainedAt:    trained,
		Points:       240,
		Coefficients: map[string]float64{"alpha": 0.3, "level": 67000.5},
	}
	require.NoError(t, s.Save(ctx, "BTC", "ses", in))

	out, err := s.Load(ctx, "BTC", "ses")
	require.NoError(t, err)
	assert.Equal(t, in.Coefficients, out.Coefficients)
	assert.True(t, trained.Equal(out.TrainedAt))
	assert.Equal(t, 240, out.Points)

	_, ok, err = s.LastModified(ctx, "BTC", "ses")
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := os.ReadDir(filepath.Join(dir, "models"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "BTC__ses.msgpack", entries[0].Name())
}

func TestFSStoreOverwriteKeepsLatest(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "ETH", "holt", &models.Artifact{Points: 1}))
	require.NoError(t, s.Save(ctx, "ETH", "holt", &models.Artifact{Points: 2}))

	out, err := s.Load(ctx, "ETH", "holt")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Points)
}

func TestFSStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTC__ses.msgpack"), []byte{0xc1}, 0o644))

	_, err = s.Load(context.Background(), "BTC", "ses")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNoArtifact)
}

func TestIsStale(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stale, err := IsStale(ctx, s, "BTC", "ses", 24*time.Hour, now)
	require.NoError(t, err)
	assert.True(t, stale, "missing artifact is stale")

	require.NoError(t, s.Save(ctx, "BTC", "ses", &models.Artifact{Points: 240}))
	written := now.Add(-23 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, objectName("BTC", "ses")), written, written))

	stale, err = IsStale(ctx, s, "BTC", "ses", 24*time.Hour, now)
	require.NoError(t, err)
	assert.False(t, stale)

	stale, err = IsStale(ctx, s, "BTC", "ses", 24*time.Hour, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, stale)
}
