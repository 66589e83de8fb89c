package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForecastPull/internal/adapters"
	"ForecastPull/internal/artifact"
	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	"ForecastPull/internal/domain/service"
	"ForecastPull/internal/fingerprint"
	"ForecastPull/internal/repository"
	pkgbadger "ForecastPull/pkg/badger"
	"ForecastPull/pkg/cache"
	"ForecastPull/pkg/logger"
	"ForecastPull/pkg/metrics"
	"ForecastPull/pkg/util"
)

type harness struct {
	orch      *Orchestrator
	obs       *memObservations
	forecasts *memForecasts
	clocks    *repository.BadgerClockStore
	market    *memMarket
	events    *memEvents
	locker    *cache.MemoryLocker
	arts      *flakyArtifacts
}

func price(ts time.Time) float64 { return 100 + float64(ts.Sub(t0)/time.Hour) }

func newHarness(t *testing.T, specs []models.ModelSpec, resolver service.AdapterResolver) *harness {
	t.Helper()
	db, err := pkgbadger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	arts, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		obs:       newMemObservations(),
		forecasts: newMemForecasts(),
		clocks:    repository.NewBadgerClockStore(db),
		market:    &memMarket{value: price},
		events:    &memEvents{},
		locker:    cache.NewMemoryLocker(),
	}
	h.arts = &flakyArtifacts{ArtifactStore: arts}
	h.orch = h.build(specs, resolver, h.arts)
	return h
}

func (h *harness) build(specs []models.ModelSpec, resolver service.AdapterResolver, arts domrepo.ArtifactStore) *Orchestrator {
	l := logger.Nop()
	guard := NewCompletenessGuard(h.obs, h.market, l)
	o := NewOrchestrator(OrchestratorConfig{
		Start:          t0,
		Models:         specs,
		Parallelism:    2,
		AlertThreshold: 3,
	}, OrchestratorDeps{
		Observations: h.obs,
		Forecasts:    h.forecasts,
		Clocks:       h.clocks,
		Artifacts:    arts,
		Adapters:     resolver,
		Guard:        guard,
		Locker:       h.locker,
		Events:       h.events,
		Metrics:      metrics.Nop{},
	}, l)
	o.now = func() time.Time { return t0.Add(1000 * time.Hour) }
	n := 0
	o.newRunID = func() string { n++; return fmt.Sprintf("run-%d", n) }
	return o
}

func (h *harness) seed(asset string, from time.Time, hours int) {
	h.obs.seed(asset, from, hours, func(i int) float64 { return price(from.Add(util.Hours(i))) })
}

func btcSpec() models.ModelSpec {
	return models.ModelSpec{
		Family:          "naive",
		TrainingWindow:  240,
		RetrainInterval: 2880,
		ForecastWindow:  48,
		ForecastCadence: 120,
		ForecastHorizon: 120,
	}
}

func hourly(family string, td, mu, fd, ff, fh int) models.ModelSpec {
	return models.ModelSpec{Family: family, TrainingWindow: td, RetrainInterval: mu, ForecastWindow: fd, ForecastCadence: ff, ForecastHorizon: fh}
}

func TestBTCScenario(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{btcSpec()}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-240*time.Hour), 500)
	ctx := context.Background()

	end := t0.Add(250 * time.Hour)
	require.NoError(t, h.orch.RunAsset(ctx, "BTC", end))

	assert.Equal(t, int32(1), ad.fits.Load(), "next retrain only at cursor+2880h")
	assert.Equal(t, int32(3), ad.forecasts.Load())
	assert.Equal(t, []time.Time{t0, t0.Add(120 * time.Hour), t0.Add(240 * time.Hour)}, h.forecasts.anchors("BTC", "naive"))
	assert.Equal(t, int32(0), h.market.calls.Load(), "history already complete")

	st, err := h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.Equal(t, models.At(t0), st.Retrain)
	assert.Equal(t, models.At(t0.Add(240*time.Hour)), st.Forecast)

	pts, err := h.forecasts.Forecasts(ctx, forecastQuery("BTC", t0))
	require.NoError(t, err)
	require.Len(t, pts, 121)
	assert.Equal(t, 0, pts[0].Step)
	assert.Equal(t, t0, pts[0].Timestamp)
	assert.Equal(t, price(t0), pts[0].Value, "step 0 is the anchor observation")
	assert.Equal(t, 120, pts[120].Step)
	assert.Equal(t, t0.Add(120*time.Hour), pts[120].Timestamp)
	assert.Equal(t, fingerprint.Of(btcSpec()).Name, pts[5].Variant)
	assert.Equal(t, t0.Add(-48*time.Hour), pts[0].WindowStart)

	require.Len(t, h.events.forecasts, 3)
	assert.Equal(t, 121, h.events.forecasts[0].Written)
}

func TestClocksNeverMoveBackwards(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{btcSpec()}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-240*time.Hour), 500)
	ctx := context.Background()

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(250*time.Hour)))
	before, err := h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)

	// an earlier end than the persisted clocks is a no-op
	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(130*time.Hour)))
	// a re-run resumes at the forecast clock and finds nothing due
	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(250*time.Hour)))

	after, err := h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.Equal(t, before.Retrain, after.Retrain)
	assert.Equal(t, before.Forecast, after.Forecast)
	assert.Equal(t, int32(1), ad.fits.Load())
	assert.Equal(t, int32(3), ad.forecasts.Load())

	from, err := h.orch.ResumePoint(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(240*time.Hour), from)
}

func TestRerunFromScratchIsIdempotent(t *testing.T) {
	resolver := staticResolver{"naive": adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{btcSpec()}, resolver)
	h.seed("BTC", t0.Add(-240*time.Hour), 500)
	ctx := context.Background()
	end := t0.Add(250 * time.Hour)

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", end))
	stored := len(h.forecasts.rows)

	// same forecast store, fresh clocks and artifacts: every row already holds the same value
	db, err := pkgbadger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	arts, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)
	h.clocks = repository.NewBadgerClockStore(db)
	h.events = &memEvents{}
	second := h.build([]models.ModelSpec{btcSpec()}, resolver, arts)

	require.NoError(t, second.RunAsset(ctx, "BTC", end))
	assert.Equal(t, stored, len(h.forecasts.rows))
	require.Len(t, h.events.forecasts, 3)
	for _, ev := range h.events.forecasts {
		assert.Zero(t, ev.Written)
		assert.Equal(t, 121, ev.Skipped)
	}
}

func TestGapsAreFilledBeforeTheWalk(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 1000, 6, 1, 3)}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-24*time.Hour), 45)
	h.obs.drop("BTC", t0.Add(-5*time.Hour))
	h.obs.drop("BTC", t0.Add(10*time.Hour))
	h.obs.drop("BTC", t0.Add(11*time.Hour))
	ctx := context.Background()

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(20*time.Hour)))

	assert.Equal(t, int32(2), h.market.calls.Load(), "one fetch per contiguous missing range")
	missing, err := h.obs.FindMissingHours(ctx, "BTC", t0.Add(-24*time.Hour), t0.Add(20*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, missing)

	assert.Equal(t, models.ProvenanceTraining, h.obs.rows[obsKey{"BTC", t0.Add(-5 * time.Hour), models.ProvenanceTraining}].Label)
	_, ok := h.obs.rows[obsKey{"BTC", t0.Add(10 * time.Hour), models.ProvenanceHistorical}]
	assert.True(t, ok)

	assert.Len(t, h.forecasts.anchors("BTC", "naive"), 21)
}

func TestHoleLeftByTheSourceSkipsTicks(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 1000, 6, 1, 3)}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-24*time.Hour), 45)
	h.obs.drop("BTC", t0.Add(10*time.Hour))
	h.orch.guard.source = emptyMarket{}
	ctx := context.Background()

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(20*time.Hour)))

	var want []time.Time
	for i := 0; i <= 20; i++ {
		if i >= 10 && i <= 15 {
			continue
		}
		want = append(want, t0.Add(util.Hours(i)))
	}
	assert.Equal(t, want, h.forecasts.anchors("BTC", "naive"))
}

type emptyMarket struct{}

func (emptyMarket) Fetch(context.Context, string, time.Time, time.Time) (models.Series, error) {
	return nil, nil
}

func TestFetchFailureSkipsTheAsset(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 24, 6, 1, 3)}, staticResolver{"naive": ad})
	h.market.fail = fmt.Errorf("%w: upstream down", models.ErrFetchFailure)
	ctx := context.Background()

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(5*time.Hour)))
	assert.Zero(t, ad.fits.Load())
	st, err := h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.False(t, st.Retrain.Valid)
	assert.False(t, st.Forecast.Valid)
}

func TestFitFailuresHoldTheClockAndAlert(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}, fitErr: errors.New("singular matrix")}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 1, 6, 1, 3)}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-24*time.Hour), 32)
	ctx := context.Background()

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(5*time.Hour)))

	assert.Equal(t, int32(6), ad.fits.Load(), "retried every tick")
	assert.Zero(t, ad.forecasts.Load(), "no artifact, no forecast")
	st, err := h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.False(t, st.Retrain.Valid)
	assert.Equal(t, 6, st.FitFailures)
	require.Len(t, h.events.alerts, 2)
	assert.Equal(t, 3, h.events.alerts[0].Failures)
	assert.Equal(t, "fit_failure", h.events.alerts[0].Kind)

	// recovery resets the streak
	ad.fitErr = nil
	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(6*time.Hour)))
	st, err = h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.Zero(t, st.FitFailures)
	assert.Equal(t, models.At(t0.Add(6*time.Hour)), st.Retrain)
}

func TestForecastFailuresHoldTheClock(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}, forecastErr: errors.New("diverged")}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 100, 6, 4, 3)}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-24*time.Hour), 32)
	ctx := context.Background()

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(2*time.Hour)))

	assert.Equal(t, int32(3), ad.forecasts.Load(), "retried every tick")
	assert.Empty(t, h.forecasts.rows)
	st, err := h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.False(t, st.Forecast.Valid)
	assert.Equal(t, 3, st.ForecastFailures)
	assert.Equal(t, models.At(t0), st.Retrain, "the fit still counts")

	// the held clock sends the next walk back to the failed tick
	ad.forecastErr = nil
	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(3*time.Hour)))
	st, err = h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.Equal(t, models.At(t0), st.Forecast)
	assert.Zero(t, st.ForecastFailures)
	assert.Equal(t, int32(4), ad.forecasts.Load())
	assert.Equal(t, []time.Time{t0}, h.forecasts.anchors("BTC", "naive"))
}

func TestShortForecastIsAFailure(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}, truncate: true}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 100, 6, 4, 3)}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-24*time.Hour), 32)
	ctx := context.Background()

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0))
	st, err := h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.False(t, st.Forecast.Valid)
	assert.Equal(t, 1, st.ForecastFailures)
	assert.Empty(t, h.forecasts.rows)
}

func TestArtifactSaveFailureHoldsTheRetrainClock(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 100, 6, 4, 3)}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-24*time.Hour), 32)
	h.arts.saveErr = errors.New("disk full")
	ctx := context.Background()

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(time.Hour)))

	assert.Equal(t, int32(2), ad.fits.Load(), "refit on the next tick")
	assert.Zero(t, ad.forecasts.Load(), "nothing saved, nothing to forecast from")
	st, err := h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.False(t, st.Retrain.Valid)
	assert.Zero(t, st.FitFailures)

	h.arts.saveErr = nil
	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(2*time.Hour)))
	assert.Equal(t, int32(3), ad.fits.Load())
	st, err = h.clocks.Get(ctx, "BTC", "naive")
	require.NoError(t, err)
	assert.Equal(t, models.At(t0), st.Retrain)
	assert.Equal(t, models.At(t0), st.Forecast)
}

func TestOneModelFailingDoesNotBlockAnother(t *testing.T) {
	bad := &countingAdapter{inner: adapters.Naive{}, fitErr: errors.New("boom")}
	good := &countingAdapter{inner: adapters.Drift{}}
	specs := []models.ModelSpec{hourly("bad", 24, 24, 6, 4, 3), hourly("drift", 24, 24, 6, 4, 3)}
	h := newHarness(t, specs, staticResolver{"bad": bad, "drift": good})
	h.seed("BTC", t0.Add(-24*time.Hour), 40)

	require.NoError(t, h.orch.RunAsset(context.Background(), "BTC", t0.Add(8*time.Hour)))
	assert.Empty(t, h.forecasts.anchors("BTC", "bad"))
	assert.Equal(t, []time.Time{t0, t0.Add(4 * time.Hour), t0.Add(8 * time.Hour)}, h.forecasts.anchors("BTC", "drift"))
}

func TestRetrainLeaseHeldElsewhere(t *testing.T) {
	ad := &countingAdapter{inner: adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 24, 6, 1, 3)}, staticResolver{"naive": ad})
	h.seed("BTC", t0.Add(-24*time.Hour), 30)
	ctx := context.Background()

	ok, err := h.locker.TryLock(ctx, "retrain:BTC:naive", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.orch.RunAsset(ctx, "BTC", t0.Add(2*time.Hour)))
	assert.Zero(t, ad.fits.Load())
}

func TestRunAllWalksEveryAsset(t *testing.T) {
	resolver := staticResolver{"naive": adapters.Naive{}}
	h := newHarness(t, []models.ModelSpec{hourly("naive", 24, 24, 6, 6, 3)}, resolver)
	for _, a := range []string{"BTC", "ETH", "SOL"} {
		h.seed(a, t0.Add(-24*time.Hour), 40)
	}

	require.NoError(t, h.orch.RunAll(context.Background(), []string{"BTC", "ETH", "SOL"}, t0.Add(12*time.Hour)))
	for _, a := range []string{"BTC", "ETH", "SOL"} {
		assert.Len(t, h.forecasts.anchors(a, "naive"), 3, a)
	}
}

func TestRunAllReportsUnknownFamily(t *testing.T) {
	h := newHarness(t, []models.ModelSpec{hourly("arima", 24, 24, 6, 6, 3)}, staticResolver{})
	h.seed("BTC", t0.Add(-24*time.Hour), 40)

	err := h.orch.RunAll(context.Background(), []string{"BTC"}, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, models.ErrUnknownFamily)
}
