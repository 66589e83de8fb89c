package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	"ForecastPull/internal/evaluation"
	"ForecastPull/pkg/logger"
)

type MetricsPipelineConfig struct {
	Epsilon float64
	// SettleLag keeps Tier 1 away from rows whose transactions may still be committing.
	SettleLag time.Duration
}

// MetricsPipeline promotes forecast/observation pairs through the pointwise, aggregated and
// windowed tiers. Each tier reads only what is newer than its own high-water mark.
type MetricsPipeline struct {
	cfg     MetricsPipelineConfig
	pairs   domrepo.PairSource
	store   domrepo.MetricsStore
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	l       *logger.Logger
	now     func() time.Time

	mu     sync.Mutex
	seen   map[models.Tier]time.Time
	halted map[models.Tier]error
	// floor is how far a tier has read without writing anything, so later passes skip rows
	// already found unchanged. It is not persisted.
	floor map[models.Tier]time.Time
}

func NewMetricsPipeline(cfg MetricsPipelineConfig, pairs domrepo.PairSource, store domrepo.MetricsStore,
	events domrepo.EventPublisher, metrics domrepo.Metrics, l *logger.Logger) *MetricsPipeline {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = evaluation.DefaultEpsilon
	}
	return &MetricsPipeline{
		cfg:     cfg,
		pairs:   pairs,
		store:   store,
		events:  events,
		metrics: metrics,
		l:       l.Component("metrics"),
		now:     time.Now,
		seen:    make(map[models.Tier]time.Time),
		halted:  make(map[models.Tier]error),
		floor:   make(map[models.Tier]time.Time),
	}
}

// TierResult reports one tier run.
type TierResult struct {
	Tier      models.Tier `json:"tier"`
	Read      int         `json:"read"`
	Written   int         `json:"written"`
	Watermark time.Time   `json:"watermark"`
}

// RunAll runs the three tiers in order. A failing tier does not prevent the next ones.
func (p *MetricsPipeline) RunAll(ctx context.Context) ([]TierResult, error) {
	var errs []error
	out := make([]TierResult, 0, 3)
	for _, run := range []func(context.Context) (TierResult, error){p.Pointwise, p.Aggregated, p.Windowed} {
		res, err := run(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// Halted returns the tiers stopped by a watermark regression.
func (p *MetricsPipeline) Halted() map[models.Tier]error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[models.Tier]error, len(p.halted))
	for t, err := range p.halted {
		out[t] = err
	}
	return out
}

// watermark reads the high-water mark of tier and halts the tier if it moved backwards since the
// last read in this process.
func (p *MetricsPipeline) watermark(ctx context.Context, tier models.Tier) (time.Time, error) {
	p.mu.Lock()
	if err, ok := p.halted[tier]; ok {
		p.mu.Unlock()
		return time.Time{}, fmt.Errorf("%s: %w: %v", tier, models.ErrTierHalted, err)
	}
	p.mu.Unlock()

	wm, err := p.store.Watermark(ctx, tier)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s watermark: %w", tier, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.seen[tier]; ok && wm.Before(prev) {
		err := fmt.Errorf("%s: %w: %s < %s", tier, models.ErrWatermarkRegression,
			wm.Format(time.RFC3339Nano), prev.Format(time.RFC3339Nano))
		p.halted[tier] = err
		p.metrics.RecordError("watermark_regression")
		p.l.Error("tier halted", logger.String("tier", string(tier)), logger.Error(err))
		return time.Time{}, err
	}
	p.seen[tier] = wm
	return wm, nil
}

func (p *MetricsPipeline) advanced(ctx context.Context, res TierResult, began time.Time) {
	p.mu.Lock()
	if res.Watermark.After(p.seen[res.Tier]) {
		p.seen[res.Tier] = res.Watermark
	}
	p.mu.Unlock()

	took := p.now().Sub(began)
	p.metrics.RecordRows(string(res.Tier), res.Written)
	p.metrics.RecordWatermark(string(res.Tier), res.Watermark)
	p.metrics.RecordLatency("tier_"+string(res.Tier), took.Seconds())
	p.l.Info("tier done",
		logger.String("tier", string(res.Tier)),
		logger.Int("read", res.Read),
		logger.Int("written", res.Written),
		logger.Time("watermark", res.Watermark),
		logger.Duration("took_ms", took),
	)
	if res.Written == 0 {
		return
	}
	ev := models.TierEvent{Tier: res.Tier, Rows: res.Written, Watermark: res.Watermark, Duration: took.Seconds()}
	if err := p.events.PublishTier(ctx, ev); err != nil {
		p.l.Warn("publish tier event", logger.String("tier", string(res.Tier)), logger.Error(err))
	}
}

// Pointwise evaluates pairs that became available after the Tier 1 watermark and up to
// now minus the settle lag. Rows are stamped with that upper bound so the next run resumes
// exactly where this one stopped.
func (p *MetricsPipeline) Pointwise(ctx context.Context) (TierResult, error) {
	began := p.now()
	res := TierResult{Tier: models.TierPointwise}

	wm, err := p.watermark(ctx, models.TierPointwise)
	if err != nil {
		return res, err
	}
	res.Watermark = wm

	upTo := p.now().UTC().Add(-p.cfg.SettleLag)
	if !upTo.After(wm) {
		return res, nil
	}
	pairs, err := p.pairs.EvaluationPairs(ctx, wm, upTo)
	if err != nil {
		return res, fmt.Errorf("read evaluation pairs: %w", err)
	}
	res.Read = len(pairs)
	if len(pairs) == 0 {
		p.advanced(ctx, res, began)
		return res, nil
	}

	rows := evaluation.PointwiseBatch(pairs, p.cfg.Epsilon, upTo)
	if err := p.store.WritePointwise(ctx, rows); err != nil {
		return res, fmt.Errorf("write pointwise: %w", err)
	}
	res.Written = len(rows)
	res.Watermark = upTo
	p.advanced(ctx, res, began)
	return res, nil
}

// consumed returns the greatest pointwise insert time in rows.
func consumed(rows []models.PointwiseMetric) time.Time {
	var at time.Time
	for _, r := range rows {
		if r.InsertedAt.After(at) {
			at = r.InsertedAt
		}
	}
	return at
}

// Aggregated summarises pointwise rows inserted after the Tier 2 watermark, one row per
// (asset, variant). Rows are stamped with the newest pointwise insert time consumed.
func (p *MetricsPipeline) Aggregated(ctx context.Context) (TierResult, error) {
	began := p.now()
	res := TierResult{Tier: models.TierAggregated}

	wm, err := p.watermark(ctx, models.TierAggregated)
	if err != nil {
		return res, err
	}
	res.Watermark = wm

	upTo, err := p.store.Watermark(ctx, models.TierPointwise)
	if err != nil {
		return res, fmt.Errorf("pointwise watermark: %w", err)
	}
	if !upTo.After(wm) {
		return res, nil
	}
	rows, err := p.store.PointwiseSince(ctx, wm, upTo)
	if err != nil {
		return res, fmt.Errorf("read pointwise: %w", err)
	}
	res.Read = len(rows)
	if len(rows) == 0 {
		return res, nil
	}

	at := consumed(rows)
	agg := evaluation.Aggregate(rows, at)
	if err := p.store.WriteAggregated(ctx, agg); err != nil {
		return res, fmt.Errorf("write aggregated: %w", err)
	}
	res.Written = len(agg)
	res.Watermark = at
	p.advanced(ctx, res, began)
	return res, nil
}

// readFrom is the lower bound of the next read of tier: its watermark, or the in-process floor
// when that is further ahead.
func (p *MetricsPipeline) readFrom(tier models.Tier, wm time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f := p.floor[tier]; f.After(wm) {
		return f
	}
	return wm
}

func (p *MetricsPipeline) raiseFloor(tier models.Tier, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if at.After(p.floor[tier]) {
		p.floor[tier] = at
	}
}

// Windowed recomputes the running statistics of every run touched by pointwise rows inserted
// after the Tier 3 watermark. Whole runs are re-read so cumulative values start at step 0;
// only rows that differ from what is stored are written.
func (p *MetricsPipeline) Windowed(ctx context.Context) (TierResult, error) {
	began := p.now()
	res := TierResult{Tier: models.TierWindowed}

	wm, err := p.watermark(ctx, models.TierWindowed)
	if err != nil {
		return res, err
	}
	res.Watermark = wm

	upTo, err := p.store.Watermark(ctx, models.TierPointwise)
	if err != nil {
		return res, fmt.Errorf("pointwise watermark: %w", err)
	}
	from := p.readFrom(models.TierWindowed, wm)
	if !upTo.After(from) {
		return res, nil
	}
	fresh, err := p.store.PointwiseSince(ctx, from, upTo)
	if err != nil {
		return res, fmt.Errorf("read pointwise: %w", err)
	}
	if len(fresh) == 0 {
		return res, nil
	}
	at := consumed(fresh)

	keys := runKeys(fresh)
	full, err := p.store.PointwiseRuns(ctx, keys)
	if err != nil {
		return res, fmt.Errorf("read runs: %w", err)
	}
	res.Read = len(full)
	stored, err := p.store.Windowed(ctx, keys)
	if err != nil {
		return res, fmt.Errorf("read windowed: %w", err)
	}
	existing := make(map[models.RunKey][]models.WindowedMetric, len(keys))
	for _, w := range stored {
		existing[w.Key()] = append(existing[w.Key()], w)
	}

	var out []models.WindowedMetric
	for k, run := range evaluation.GroupRuns(full) {
		out = append(out, evaluation.Changed(evaluation.Windowed(run, at), existing[k])...)
	}
	if len(out) == 0 {
		// nothing to write, so the stored watermark cannot move
		p.raiseFloor(models.TierWindowed, at)
		return res, nil
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		if a.Variant != b.Variant {
			return a.Variant < b.Variant
		}
		if !a.AnchorAt.Equal(b.AnchorAt) {
			return a.AnchorAt.Before(b.AnchorAt)
		}
		return a.Step < b.Step
	})

	if err := p.store.WriteWindowed(ctx, out); err != nil {
		return res, fmt.Errorf("write windowed: %w", err)
	}
	res.Written = len(out)
	res.Watermark = at
	p.advanced(ctx, res, began)
	return res, nil
}

func runKeys(rows []models.PointwiseMetric) []models.RunKey {
	seen := make(map[models.RunKey]struct{})
	var keys []models.RunKey
	for _, r := range rows {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
