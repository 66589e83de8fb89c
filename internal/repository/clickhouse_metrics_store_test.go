package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForecastPull/internal/domain/models"
)

func TestRunKeyFilter(t *testing.T) {
	at := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	where, args := runKeyFilter([]models.RunKey{
		{Asset: "BTC", Variant: "v1", AnchorAt: at},
		{Asset: "ETH", Variant: "v2", AnchorAt: at.Add(time.Hour)},
	})
	assert.Equal(t, "(asset, variant, anchor_at) IN ((?, ?, ?), (?, ?, ?))", where)
	require.Len(t, args, 6)
	assert.Equal(t, "ETH", args[3])
}

func TestChunkKeys(t *testing.T) {
	keys := make([]models.RunKey, keyChunk*2+1)
	chunks := chunkKeys(keys)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 1)
	assert.Empty(t, chunkKeys(nil))
}

func TestTierColumn(t *testing.T) {
	table, col, err := tierColumn(models.TierWindowed)
	require.NoError(t, err)
	assert.Equal(t, "windowed_metrics", table)
	assert.Equal(t, "fwmv_insert_time", col)

	_, _, err = tierColumn("daily")
	assert.Error(t, err)
}
