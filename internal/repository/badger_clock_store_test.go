package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForecastPull/internal/domain/models"
	pkgbadger "ForecastPull/pkg/badger"
)

func TestBadgerClockStore(t *testing.T) {
	db, err := pkgbadger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	s := NewBadgerClockStore(db)

	st, err := s.Get(ctx, "BTC", "ses")
	require.NoError(t, err)
	assert.False(t, st.Retrain.Valid)
	assert.False(t, st.Forecast.Valid)
	assert.Equal(t, "BTC", st.Asset)

	at := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	st.Retrain = st.Retrain.Advance(at)
	st.Forecast = st.Forecast.Advance(at.Add(5 * time.Hour))
	st.FitFailures = 2
	require.NoError(t, s.Put(ctx, st))
	require.NoError(t, s.Put(ctx, models.ClockState{Asset: "ETH", Family: "holt"}))

	got, err := s.Get(ctx, "BTC", "ses")
	require.NoError(t, err)
	assert.True(t, got.Retrain.Valid)
	assert.True(t, at.Equal(got.Retrain.LastSuccessAt))
	assert.True(t, at.Add(5*time.Hour).Equal(got.Forecast.LastSuccessAt))
	assert.Equal(t, 2, got.FitFailures)
	assert.False(t, got.UpdatedAt.IsZero())

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "BTC", all[0].Asset)
	assert.Equal(t, "ETH", all[1].Asset)
}
