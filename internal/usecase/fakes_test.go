package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	"ForecastPull/internal/domain/service"
	"ForecastPull/pkg/util"
)

var t0 = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

type obsKey struct {
	asset string
	ts    time.Time
	label models.Provenance
}

// memObservations mirrors the Postgres observation store: write-if-changed upserts and a
// historical-preferred series read.
type memObservations struct {
	mu   sync.Mutex
	rows map[obsKey]models.Observation
}

func newMemObservations() *memObservations {
	return &memObservations{rows: make(map[obsKey]models.Observation)}
}

func (m *memObservations) seed(asset string, from time.Time, hours int, value func(i int) float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < hours; i++ {
		ts := from.Add(util.Hours(i))
		k := obsKey{asset, ts, models.ProvenanceHistorical}
		m.rows[k] = models.Observation{Asset: asset, Timestamp: ts, Value: value(i), Label: k.label, UploadedAt: ts}
	}
}

func (m *memObservations) drop(asset string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range []models.Provenance{models.ProvenanceHistorical, models.ProvenanceTraining} {
		delete(m.rows, obsKey{asset, ts, l})
	}
}

func (m *memObservations) UpsertObservations(_ context.Context, rows []models.Observation) (models.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res models.WriteResult
	for _, o := range rows {
		o.Value = util.Round8(o.Value)
		k := obsKey{o.Asset, o.Timestamp.UTC(), o.Label}
		if prev, ok := m.rows[k]; ok && prev.Value == o.Value {
			res.Skipped++
			continue
		}
		m.rows[k] = o
		res.Written++
	}
	return res, nil
}

func (m *memObservations) Series(_ context.Context, asset string, from, to time.Time) (models.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := make(map[time.Time]models.Observation)
	for k, o := range m.rows {
		if k.asset != asset || k.ts.Before(from) || k.ts.After(to) {
			continue
		}
		if prev, ok := best[k.ts]; ok && prev.Label == models.ProvenanceHistorical {
			continue
		}
		best[k.ts] = o
	}
	out := make(models.Series, 0, len(best))
	for ts, o := range best {
		out = append(out, models.Point{Timestamp: ts, Value: o.Value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memObservations) FindMissingHours(ctx context.Context, asset string, start, end time.Time) ([]time.Time, error) {
	s, _ := m.Series(ctx, asset, start, end)
	return util.MissingHours(s.Timestamps(), start, end), nil
}

func (m *memObservations) IsContiguous(ctx context.Context, asset string, from time.Time) (bool, error) {
	s, _ := m.Series(ctx, asset, from, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
	return util.IsContiguous(s.Timestamps()), nil
}

type fcKey struct {
	ts     time.Time
	asset  string
	family string
	step   int
}

// memForecasts keeps the earliest run metadata and moves updated_at only on value changes.
type memForecasts struct {
	mu   sync.Mutex
	rows map[fcKey]models.ForecastPoint
}

func newMemForecasts() *memForecasts { return &memForecasts{rows: make(map[fcKey]models.ForecastPoint)} }

func (m *memForecasts) UpsertForecasts(_ context.Context, rows []models.ForecastPoint) (models.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res models.WriteResult
	for _, p := range rows {
		p.Value = util.Round8(p.Value)
		k := fcKey{p.Timestamp.UTC(), p.Asset, p.Family, p.Step}
		prev, ok := m.rows[k]
		switch {
		case !ok:
			m.rows[k] = p
			res.Written++
		case prev.Value == p.Value:
			res.Skipped++
		default:
			prev.Value, prev.Variant, prev.UpdatedAt = p.Value, p.Variant, p.UpdatedAt
			m.rows[k] = prev
			res.Written++
		}
	}
	return res, nil
}

func (m *memForecasts) Forecasts(_ context.Context, q domrepo.ForecastQuery) ([]models.ForecastPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ForecastPoint
	for _, p := range m.rows {
		if q.Asset != "" && p.Asset != q.Asset {
			continue
		}
		if q.Family != "" && p.Family != q.Family {
			continue
		}
		if !q.AnchorAt.IsZero() && !p.AnchorAt.Equal(q.AnchorAt) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnchorAt.Equal(out[j].AnchorAt) {
			return out[i].AnchorAt.Before(out[j].AnchorAt)
		}
		return out[i].Step < out[j].Step
	})
	return out, nil
}

func (m *memForecasts) anchors(asset, family string) []time.Time {
	pts, _ := m.Forecasts(context.Background(), domrepo.ForecastQuery{Asset: asset, Family: family})
	var out []time.Time
	for _, p := range pts {
		if p.Step == 0 {
			out = append(out, p.AnchorAt)
		}
	}
	return out
}

// memMarket serves a deterministic series and counts fetches.
type memMarket struct {
	calls atomic.Int32
	fail  error
	value func(ts time.Time) float64
}

func (m *memMarket) Fetch(_ context.Context, _ string, start, end time.Time) (models.Series, error) {
	m.calls.Add(1)
	if m.fail != nil {
		return nil, m.fail
	}
	var out models.Series
	for _, ts := range util.HourRange(start, end) {
		out = append(out, models.Point{Timestamp: ts, Value: m.value(ts)})
	}
	return out, nil
}

// countingAdapter wraps an adapter and counts calls. fitErr and forecastErr, when set, fail
// every call; truncate drops the last forecast value.
type countingAdapter struct {
	inner       service.ModelAdapter
	fits        atomic.Int32
	forecasts   atomic.Int32
	fitErr      error
	forecastErr error
	truncate    bool
}

func (a *countingAdapter) Fit(ctx context.Context, training models.Series, hp map[string]any) (*models.Artifact, error) {
	a.fits.Add(1)
	if a.fitErr != nil {
		return nil, a.fitErr
	}
	return a.inner.Fit(ctx, training, hp)
}

func (a *countingAdapter) Forecast(ctx context.Context, art *models.Artifact, input models.Series, horizon int) ([]float64, error) {
	a.forecasts.Add(1)
	if a.forecastErr != nil {
		return nil, a.forecastErr
	}
	values, err := a.inner.Forecast(ctx, art, input, horizon)
	if a.truncate && len(values) > 0 {
		values = values[:len(values)-1]
	}
	return values, err
}

// flakyArtifacts fails saves while saveErr is set.
type flakyArtifacts struct {
	domrepo.ArtifactStore
	saveErr error
}

func (f *flakyArtifacts) Save(ctx context.Context, asset, family string, a *models.Artifact) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.ArtifactStore.Save(ctx, asset, family, a)
}

type staticResolver map[string]service.ModelAdapter

func (r staticResolver) Resolve(family string) (service.ModelAdapter, error) {
	a, ok := r[family]
	if !ok {
		return nil, models.ErrUnknownFamily
	}
	return a, nil
}

// memEvents records published events.
type memEvents struct {
	mu        sync.Mutex
	forecasts []models.ForecastEvent
	alerts    []models.AlertEvent
	tiers     []models.TierEvent
}

func (e *memEvents) PublishForecast(_ context.Context, ev models.ForecastEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forecasts = append(e.forecasts, ev)
	return nil
}

func (e *memEvents) PublishAlert(_ context.Context, ev models.AlertEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, ev)
	return nil
}

func (e *memEvents) PublishTier(_ context.Context, ev models.TierEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tiers = append(e.tiers, ev)
	return nil
}

func (e *memEvents) Close() error { return nil }

// memPairs serves a fixed list of pairs filtered by availability time.
type memPairs struct {
	mu    sync.Mutex
	pairs []models.EvaluationPair
}

func (m *memPairs) add(p ...models.EvaluationPair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs = append(m.pairs, p...)
}

func (m *memPairs) EvaluationPairs(_ context.Context, after, upTo time.Time) ([]models.EvaluationPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EvaluationPair
	for _, p := range m.pairs {
		if p.AvailableAt.After(after) && !p.AvailableAt.After(upTo) {
			out = append(out, p)
		}
	}
	return out, nil
}

type pwKey struct {
	run  models.RunKey
	step int
}

// memMetrics behaves like the ReplacingMergeTree tables: a newer insert time replaces a row with
// the same sorting key.
type memMetrics struct {
	mu         sync.Mutex
	pointwise  map[pwKey]models.PointwiseMetric
	aggregated []models.AggregatedMetric
	windowed   map[pwKey]models.WindowedMetric
	writes     map[models.Tier]int
	override   map[models.Tier]time.Time
}

func newMemMetrics() *memMetrics {
	return &memMetrics{
		pointwise: make(map[pwKey]models.PointwiseMetric),
		windowed:  make(map[pwKey]models.WindowedMetric),
		writes:    make(map[models.Tier]int),
		override:  make(map[models.Tier]time.Time),
	}
}

func (m *memMetrics) Watermark(_ context.Context, tier models.Tier) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.override[tier]; ok {
		return t, nil
	}
	var wm time.Time
	switch tier {
	case models.TierPointwise:
		for _, r := range m.pointwise {
			if r.InsertedAt.After(wm) {
				wm = r.InsertedAt
			}
		}
	case models.TierAggregated:
		for _, r := range m.aggregated {
			if r.InsertedAt.After(wm) {
				wm = r.InsertedAt
			}
		}
	case models.TierWindowed:
		for _, r := range m.windowed {
			if r.InsertedAt.After(wm) {
				wm = r.InsertedAt
			}
		}
	default:
		return time.Time{}, errors.New("unknown tier")
	}
	return wm, nil
}

func (m *memMetrics) WritePointwise(_ context.Context, rows []models.PointwiseMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[models.TierPointwise]++
	for _, r := range rows {
		m.pointwise[pwKey{r.Key(), r.Step}] = r
	}
	return nil
}

func (m *memMetrics) PointwiseSince(_ context.Context, after, upTo time.Time) ([]models.PointwiseMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PointwiseMetric
	for _, r := range m.pointwise {
		if r.InsertedAt.After(after) && !r.InsertedAt.After(upTo) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMetrics) PointwiseRuns(_ context.Context, keys []models.RunKey) ([]models.PointwiseMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[models.RunKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []models.PointwiseMetric
	for k, r := range m.pointwise {
		if want[k.run] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMetrics) WriteAggregated(_ context.Context, rows []models.AggregatedMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[models.TierAggregated]++
	m.aggregated = append(m.aggregated, rows...)
	return nil
}

func (m *memMetrics) Aggregated(_ context.Context, asset, variant string) ([]models.AggregatedMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AggregatedMetric
	for _, r := range m.aggregated {
		if (asset == "" || r.Asset == asset) && (variant == "" || r.Variant == variant) {
			out = append(out, r)
		}
	}
	return out, nil
}

// PointwiseTotals sums the current rows, as the FINAL read does.
func (m *memMetrics) PointwiseTotals(_ context.Context, asset, variant string) ([]models.MetricsSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type gk struct{ asset, variant string }
	byKey := make(map[gk]*models.MetricsSummary)
	runs := make(map[gk]map[time.Time]bool)
	for _, r := range m.pointwise {
		if (asset != "" && r.Asset != asset) || (variant != "" && r.Variant != variant) {
			continue
		}
		k := gk{r.Asset, r.Variant}
		t, ok := byKey[k]
		if !ok {
			t = &models.MetricsSummary{AggregatedMetric: models.AggregatedMetric{Asset: r.Asset, Variant: r.Variant}}
			byKey[k] = t
			runs[k] = make(map[time.Time]bool)
		}
		t.RowCount++
		t.SumAbs += r.AbsError
		t.SumSq += r.SquaredError
		t.SumAPE += r.APE
		t.SumBias += r.Bias
		t.SumBiasSq += r.Bias * r.Bias
		if r.Overpredicted {
			t.OverCount++
		}
		if r.Underpredicted {
			t.UnderCount++
		}
		t.MaxAbsError = max(t.MaxAbsError, r.AbsError)
		t.MaxAPE = max(t.MaxAPE, r.APE)
		if r.InsertedAt.After(t.InsertedAt) {
			t.InsertedAt = r.InsertedAt
		}
		runs[k][r.AnchorAt] = true
	}
	out := make([]models.MetricsSummary, 0, len(byKey))
	for k, t := range byKey {
		t.Runs = int64(len(runs[k]))
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset+out[i].Variant < out[j].Asset+out[j].Variant })
	return out, nil
}

func (m *memMetrics) WriteWindowed(_ context.Context, rows []models.WindowedMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[models.TierWindowed]++
	for _, r := range rows {
		m.windowed[pwKey{r.Key(), r.Step}] = r
	}
	return nil
}

func (m *memMetrics) Windowed(_ context.Context, keys []models.RunKey) ([]models.WindowedMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[models.RunKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []models.WindowedMetric
	for k, r := range m.windowed {
		if want[k.run] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMetrics) WindowedRuns(_ context.Context, asset, variant string, limit int) ([]models.RunKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[models.RunKey]bool)
	var out []models.RunKey
	for k := range m.windowed {
		if k.run.Asset != asset || (variant != "" && k.run.Variant != variant) || seen[k.run] {
			continue
		}
		seen[k.run] = true
		out = append(out, k.run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnchorAt.After(out[j].AnchorAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func forecastQuery(asset string, anchor time.Time) domrepo.ForecastQuery {
	return domrepo.ForecastQuery{Asset: asset, AnchorAt: anchor}
}
