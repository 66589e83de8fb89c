package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ForecastPull/internal/artifact"
	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	"ForecastPull/internal/domain/service"
	"ForecastPull/internal/fingerprint"
	"ForecastPull/pkg/logger"
	"ForecastPull/pkg/util"
)

// Tick actions and outcomes reported to the metrics recorder.
const (
	ActionRetrain  = "retrain"
	ActionForecast = "forecast"
	ActionFetch    = "fetch"

	OutcomeOK         = "ok"
	OutcomeNotDue     = "not_due"
	OutcomeNotReady   = "not_ready"
	OutcomeNoArtifact = "no_artifact"
	OutcomeLocked     = "locked"
	OutcomeFailed     = "failed"
)

type OrchestratorConfig struct {
	Start          time.Time
	Models         []models.ModelSpec
	Parallelism    int
	LeaseTTL       time.Duration
	AlertThreshold int
	// Live marks a run whose end tracks the wall clock; enables stale-artifact warnings.
	Live bool
}

// Orchestrator walks an hourly cursor per asset and decides, per model, whether to retrain
// and whether to forecast.
type Orchestrator struct {
	cfg       OrchestratorConfig
	variants  map[string]models.ModelVariant
	obs       domrepo.ObservationStore
	forecasts domrepo.ForecastStore
	clocks    domrepo.ClockStore
	artifacts domrepo.ArtifactStore
	adapters  service.AdapterResolver
	guard     *CompletenessGuard
	locker    domrepo.Locker
	events    domrepo.EventPublisher
	metrics   domrepo.Metrics
	l         *logger.Logger

	now      func() time.Time
	newRunID func() string
}

type OrchestratorDeps struct {
	Observations domrepo.ObservationStore
	Forecasts    domrepo.ForecastStore
	Clocks       domrepo.ClockStore
	Artifacts    domrepo.ArtifactStore
	Adapters     service.AdapterResolver
	Guard        *CompletenessGuard
	Locker       domrepo.Locker
	Events       domrepo.EventPublisher
	Metrics      domrepo.Metrics
}

func NewOrchestrator(cfg OrchestratorConfig, d OrchestratorDeps, l *logger.Logger) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = 3
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Minute
	}
	cfg.Start = util.TruncateHour(cfg.Start)

	variants := make(map[string]models.ModelVariant, len(cfg.Models))
	for _, m := range cfg.Models {
		variants[m.Family] = fingerprint.Of(m)
	}
	return &Orchestrator{
		cfg:       cfg,
		variants:  variants,
		obs:       d.Observations,
		forecasts: d.Forecasts,
		clocks:    d.Clocks,
		artifacts: d.Artifacts,
		adapters:  d.Adapters,
		guard:     d.Guard,
		locker:    d.Locker,
		events:    d.Events,
		metrics:   d.Metrics,
		l:         l.Component("orchestrator"),
		now:       time.Now,
		newRunID:  func() string { return uuid.NewString() },
	}
}

// maxTraining returns the widest training window, in hours.
func (o *Orchestrator) maxTraining() int {
	n := 0
	for _, m := range o.cfg.Models {
		n = max(n, m.TrainingWindow, m.ForecastWindow)
	}
	return n
}

// RunAll walks every asset up to end. Assets run in parallel up to the configured limit; one
// asset failing does not stop the others.
func (o *Orchestrator) RunAll(ctx context.Context, assets []string, end time.Time) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(o.cfg.Parallelism)

	for _, asset := range assets {
		g.Go(func() error {
			if err := o.RunAsset(ctx, asset, end); err != nil {
				o.l.Error("asset walk failed", logger.String("asset", asset), logger.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", asset, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ResumePoint returns where the walk of asset starts: the earliest forecast clock across
// models, or the configured start when any model has never forecast.
func (o *Orchestrator) ResumePoint(ctx context.Context, asset string) (time.Time, error) {
	var resume time.Time
	for _, m := range o.cfg.Models {
		st, err := o.clocks.Get(ctx, asset, m.Family)
		if err != nil {
			return time.Time{}, fmt.Errorf("load clock %s/%s: %w", asset, m.Family, err)
		}
		if !st.Forecast.Valid {
			return o.cfg.Start, nil
		}
		if resume.IsZero() || st.Forecast.LastSuccessAt.Before(resume) {
			resume = st.Forecast.LastSuccessAt
		}
	}
	if resume.Before(o.cfg.Start) {
		return o.cfg.Start, nil
	}
	return resume, nil
}

// RunAsset walks the cursor of one asset from its resume point up to end, inclusive.
// Recoverable conditions are logged and skipped; only store failures are returned.
func (o *Orchestrator) RunAsset(ctx context.Context, asset string, end time.Time) error {
	end = util.TruncateHour(end)
	from, err := o.ResumePoint(ctx, asset)
	if err != nil {
		return err
	}
	if from.After(end) {
		return nil
	}
	dataStart := from.Add(-util.Hours(o.maxTraining()))

	if o.guard != nil {
		if _, err := o.guard.Ensure(ctx, asset, dataStart, end, o.cfg.Start); err != nil {
			if errors.Is(err, models.ErrFetchFailure) {
				o.metrics.RecordTick(asset, "", ActionFetch, OutcomeFailed)
				o.metrics.RecordError("fetch")
				o.l.Warn("market data unavailable, walk skipped",
					logger.String("asset", asset),
					logger.Time("cursor", from),
					logger.Error(err),
				)
				return nil
			}
			return err
		}
	}

	series, err := o.obs.Series(ctx, asset, dataStart, end)
	if err != nil {
		return fmt.Errorf("load series %s: %w", asset, err)
	}

	states := make(map[string]*models.ClockState, len(o.cfg.Models))
	for _, m := range o.cfg.Models {
		st, err := o.clocks.Get(ctx, asset, m.Family)
		if err != nil {
			return fmt.Errorf("load clock %s/%s: %w", asset, m.Family, err)
		}
		st.Asset, st.Family = asset, m.Family
		states[m.Family] = &st
	}

	began := o.now()
	o.l.Info("walk started",
		logger.String("asset", asset),
		logger.Time("from", from),
		logger.Time("to", end),
		logger.Int("points", len(series)),
	)

	for c := from; !c.After(end); c = c.Add(time.Hour) {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, m := range o.cfg.Models {
			if err := o.Tick(ctx, asset, m, states[m.Family], series, c); err != nil {
				return err
			}
		}
	}

	o.metrics.RecordLatency("walk", o.now().Sub(began).Seconds())
	o.l.Info("walk finished",
		logger.String("asset", asset),
		logger.Time("to", end),
		logger.Duration("took_ms", o.now().Sub(began)),
	)
	return nil
}

// Tick runs the retrain and forecast decisions of one model at cursor c. Retrain runs first so a
// forecast due at the same tick uses the fresh artifact.
func (o *Orchestrator) Tick(ctx context.Context, asset string, m models.ModelSpec, st *models.ClockState, series models.Series, c time.Time) error {
	if err := o.retrain(ctx, asset, m, st, series, c); err != nil {
		return err
	}
	return o.forecast(ctx, asset, m, st, series, c)
}

// window slices [c-size h, c] and reports whether it holds at least size contiguous hours.
func window(series models.Series, c time.Time, size int) (models.Series, bool) {
	w := series.Slice(c.Add(-util.Hours(size)), c)
	if len(w) < size || !util.IsContiguous(w.Timestamps()) {
		return nil, false
	}
	return w, true
}

func (o *Orchestrator) retrain(ctx context.Context, asset string, m models.ModelSpec, st *models.ClockState, series models.Series, c time.Time) error {
	if !st.Retrain.Due(c, m.RetrainEvery()) {
		return nil
	}
	train, ok := window(series, c, m.TrainingWindow)
	if !ok {
		o.metrics.RecordTick(asset, m.Family, ActionRetrain, OutcomeNotReady)
		o.l.Debug("training window not ready",
			logger.String("asset", asset),
			logger.String("model", m.Family),
			logger.Time("cursor", c),
		)
		return nil
	}

	adapter, err := o.adapters.Resolve(m.Family)
	if err != nil {
		return err
	}

	lease := "retrain:" + asset + ":" + m.Family
	acquired, err := o.locker.TryLock(ctx, lease, o.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", lease, err)
	}
	if !acquired {
		o.metrics.RecordTick(asset, m.Family, ActionRetrain, OutcomeLocked)
		o.l.Info("retrain lease held elsewhere",
			logger.String("asset", asset),
			logger.String("model", m.Family),
			logger.Time("cursor", c),
		)
		return nil
	}
	defer func() {
		if err := o.locker.Unlock(context.WithoutCancel(ctx), lease); err != nil {
			o.l.Warn("release lease", logger.String("lease", lease), logger.Error(err))
		}
	}()

	began := o.now()
	art, err := adapter.Fit(ctx, train, m.Hyperparameters)
	o.metrics.RecordLatency("fit", o.now().Sub(began).Seconds())
	if err == nil && art == nil {
		err = fmt.Errorf("%w: adapter returned no artifact", models.ErrFitFailure)
	}
	if err != nil {
		return o.fitFailed(ctx, asset, m, st, c, err)
	}

	first := train[0]
	last, _ := train.Last()
	art.Asset, art.Family = asset, m.Family
	art.TrainedAt = c
	art.TrainStart, art.TrainEnd = first.Timestamp, last.Timestamp
	art.Points = len(train)

	if err := o.artifacts.Save(ctx, asset, m.Family, art); err != nil {
		o.metrics.RecordTick(asset, m.Family, ActionRetrain, OutcomeFailed)
		o.metrics.RecordError("artifact_save")
		o.l.Error("save artifact",
			logger.String("asset", asset),
			logger.String("model", m.Family),
			logger.Time("cursor", c),
			logger.Error(err),
		)
		return nil
	}

	st.Retrain = st.Retrain.Advance(c)
	st.FitFailures = 0
	if err := o.clocks.Put(ctx, *st); err != nil {
		return fmt.Errorf("persist clock %s/%s: %w", asset, m.Family, err)
	}
	o.metrics.RecordTick(asset, m.Family, ActionRetrain, OutcomeOK)
	o.metrics.RecordFitFailureStreak(asset, m.Family, 0)
	o.l.Debug("model retrained",
		logger.String("asset", asset),
		logger.String("model", m.Family),
		logger.Time("cursor", c),
		logger.Int("points", art.Points),
	)
	return nil
}

func (o *Orchestrator) fitFailed(ctx context.Context, asset string, m models.ModelSpec, st *models.ClockState, c time.Time, cause error) error {
	st.FitFailures++
	if err := o.clocks.Put(ctx, *st); err != nil {
		return fmt.Errorf("persist clock %s/%s: %w", asset, m.Family, err)
	}
	o.metrics.RecordTick(asset, m.Family, ActionRetrain, OutcomeFailed)
	o.metrics.RecordFitFailureStreak(asset, m.Family, st.FitFailures)
	o.metrics.RecordError("fit")
	o.l.Error("fit failed",
		logger.String("asset", asset),
		logger.String("model", m.Family),
		logger.Time("cursor", c),
		logger.Int("consecutive", st.FitFailures),
		logger.Error(cause),
	)

	if st.FitFailures%o.cfg.AlertThreshold != 0 {
		return nil
	}
	ev := models.AlertEvent{
		Kind:     "fit_failure",
		Asset:    asset,
		Family:   m.Family,
		Cursor:   c,
		Failures: st.FitFailures,
		Message:  cause.Error(),
		RaisedAt: o.now().UTC(),
	}
	if err := o.events.PublishAlert(ctx, ev); err != nil {
		o.l.Warn("publish alert", logger.String("asset", asset), logger.Error(err))
	}
	return nil
}

func (o *Orchestrator) forecast(ctx context.Context, asset string, m models.ModelSpec, st *models.ClockState, series models.Series, c time.Time) error {
	if !st.Forecast.Due(c, m.ForecastEvery()) {
		return nil
	}
	input, ok := window(series, c, m.ForecastWindow)
	if ok {
		last, _ := input.Last()
		ok = last.Timestamp.Equal(c)
	}
	if !ok {
		o.metrics.RecordTick(asset, m.Family, ActionForecast, OutcomeNotReady)
		o.l.Debug("forecast window not ready",
			logger.String("asset", asset),
			logger.String("model", m.Family),
			logger.Time("cursor", c),
		)
		return nil
	}

	art, err := o.artifacts.Load(ctx, asset, m.Family)
	if errors.Is(err, models.ErrNoArtifact) {
		o.metrics.RecordTick(asset, m.Family, ActionForecast, OutcomeNoArtifact)
		return nil
	}
	if err != nil {
		o.metrics.RecordError("artifact_load")
		o.l.Error("load artifact",
			logger.String("asset", asset),
			logger.String("model", m.Family),
			logger.Time("cursor", c),
			logger.Error(err),
		)
		return nil
	}
	if o.cfg.Live {
		if stale, err := artifact.IsStale(ctx, o.artifacts, asset, m.Family, m.RetrainEvery(), o.now()); err == nil && stale {
			o.l.Warn("forecasting from a stale artifact",
				logger.String("asset", asset),
				logger.String("model", m.Family),
				logger.Time("trained_at", art.TrainedAt),
			)
		}
	}

	adapter, err := o.adapters.Resolve(m.Family)
	if err != nil {
		return err
	}
	began := o.now()
	values, err := adapter.Forecast(ctx, art, input, m.ForecastHorizon)
	o.metrics.RecordLatency("forecast", o.now().Sub(began).Seconds())
	if err == nil && len(values) != m.ForecastHorizon {
		err = fmt.Errorf("%w: adapter returned %d values, want %d", models.ErrForecastFailure, len(values), m.ForecastHorizon)
	}
	if err != nil {
		st.ForecastFailures++
		if perr := o.clocks.Put(ctx, *st); perr != nil {
			return fmt.Errorf("persist clock %s/%s: %w", asset, m.Family, perr)
		}
		o.metrics.RecordTick(asset, m.Family, ActionForecast, OutcomeFailed)
		o.metrics.RecordError("forecast")
		o.l.Error("forecast failed",
			logger.String("asset", asset),
			logger.String("model", m.Family),
			logger.Time("cursor", c),
			logger.Error(err),
		)
		return nil
	}

	points := o.buildPoints(asset, m, input, values, c)
	res, err := o.forecasts.UpsertForecasts(ctx, points)
	if err != nil {
		o.metrics.RecordTick(asset, m.Family, ActionForecast, OutcomeFailed)
		o.metrics.RecordError("forecast_write")
		o.l.Error("write forecast",
			logger.String("asset", asset),
			logger.String("model", m.Family),
			logger.Time("cursor", c),
			logger.Error(err),
		)
		return nil
	}

	st.Forecast = st.Forecast.Advance(c)
	st.ForecastFailures = 0
	if err := o.clocks.Put(ctx, *st); err != nil {
		return fmt.Errorf("persist clock %s/%s: %w", asset, m.Family, err)
	}
	o.metrics.RecordTick(asset, m.Family, ActionForecast, OutcomeOK)
	o.metrics.RecordRows("forecasts", res.Written)

	ev := models.ForecastEvent{
		RunID:    points[0].RunID,
		Asset:    asset,
		Family:   m.Family,
		Variant:  points[0].Variant,
		AnchorAt: c,
		Steps:    len(points),
		Written:  res.Written,
		Skipped:  res.Skipped,
	}
	if err := o.events.PublishForecast(ctx, ev); err != nil {
		o.l.Warn("publish forecast event", logger.String("asset", asset), logger.Error(err))
	}
	o.l.Debug("forecast stored",
		logger.String("asset", asset),
		logger.String("model", m.Family),
		logger.String("variant", ev.Variant),
		logger.Time("cursor", c),
		logger.Int("written", res.Written),
		logger.Int("skipped", res.Skipped),
	)
	return nil
}

// buildPoints lays out one run: step 0 is the observation at c, step k the prediction for c+k h.
func (o *Orchestrator) buildPoints(asset string, m models.ModelSpec, input models.Series, values []float64, c time.Time) []models.ForecastPoint {
	variant := o.variants[m.Family]
	anchor, _ := input.Last()
	runID := o.newRunID()
	now := o.now().UTC()

	points := make([]models.ForecastPoint, 0, len(values)+1)
	add := func(step int, v float64) {
		points = append(points, models.ForecastPoint{
			Asset:           asset,
			Timestamp:       c.Add(util.Hours(step)),
			Family:          m.Family,
			Variant:         variant.Name,
			Step:            step,
			Value:           v,
			AnchorAt:        c,
			WindowStart:     input[0].Timestamp,
			WindowEnd:       anchor.Timestamp,
			RunID:           runID,
			UploadedAt:      now,
			UpdatedAt:       now,
			Hyperparameters: m.Hyperparameters,
		})
	}
	add(0, anchor.Value)
	for k, v := range values {
		add(k+1, v)
	}
	return points
}
