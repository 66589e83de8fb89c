package repository

import (
	"context"
	"time"

	"ForecastPull/internal/domain/models"
)

// ObservationStore is the time-series store plus its gap detector.
type ObservationStore interface {
	UpsertObservations(ctx context.Context, rows []models.Observation) (models.WriteResult, error)
	Series(ctx context.Context, asset string, from, to time.Time) (models.Series, error)
	FindMissingHours(ctx context.Context, asset string, start, end time.Time) ([]time.Time, error)
	IsContiguous(ctx context.Context, asset string, from time.Time) (bool, error)
}

// ForecastQuery filters forecast reads. Zero values mean "any".
type ForecastQuery struct {
	Asset    string
	Family   string
	AnchorAt time.Time
	From     time.Time
	To       time.Time
	Limit    int
}

type ForecastStore interface {
	UpsertForecasts(ctx context.Context, rows []models.ForecastPoint) (models.WriteResult, error)
	Forecasts(ctx context.Context, q ForecastQuery) ([]models.ForecastPoint, error)
}

// PairSource yields forecast/observation pairs that became available in (after, upTo].
type PairSource interface {
	EvaluationPairs(ctx context.Context, after, upTo time.Time) ([]models.EvaluationPair, error)
}

// ClockStore persists per (asset, family) scheduling state. Get returns a Never/Never state when absent.
type ClockStore interface {
	Get(ctx context.Context, asset, family string) (models.ClockState, error)
	Put(ctx context.Context, state models.ClockState) error
	List(ctx context.Context) ([]models.ClockState, error)
}

// ArtifactStore persists fitted model state keyed by (asset, family).
type ArtifactStore interface {
	Save(ctx context.Context, asset, family string, a *models.Artifact) error
	Load(ctx context.Context, asset, family string) (*models.Artifact, error)
	LastModified(ctx context.Context, asset, family string) (time.Time, bool, error)
}

// MetricsStore is the storage of the three metric tiers.
type MetricsStore interface {
	// Watermark returns max(own insert time) of a tier, or the zero time when the tier is empty.
	Watermark(ctx context.Context, tier models.Tier) (time.Time, error)

	WritePointwise(ctx context.Context, rows []models.PointwiseMetric) error
	PointwiseSince(ctx context.Context, after, upTo time.Time) ([]models.PointwiseMetric, error)
	PointwiseRuns(ctx context.Context, keys []models.RunKey) ([]models.PointwiseMetric, error)

	WriteAggregated(ctx context.Context, rows []models.AggregatedMetric) error
	Aggregated(ctx context.Context, asset, variant string) ([]models.AggregatedMetric, error)
	// PointwiseTotals returns the sufficient statistics and maxima of the current pointwise rows
	// per (asset, variant). Derived fields are left zero.
	PointwiseTotals(ctx context.Context, asset, variant string) ([]models.MetricsSummary, error)

	WriteWindowed(ctx context.Context, rows []models.WindowedMetric) error
	Windowed(ctx context.Context, keys []models.RunKey) ([]models.WindowedMetric, error)
	WindowedRuns(ctx context.Context, asset, variant string, limit int) ([]models.RunKey, error)
}

// MarketData is the upstream source of hourly values.
type MarketData interface {
	Fetch(ctx context.Context, asset string, start, end time.Time) (models.Series, error)
}

// Locker is a best-effort lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishForecast(ctx context.Context, ev models.ForecastEvent) error
	PublishAlert(ctx context.Context, ev models.AlertEvent) error
	PublishTier(ctx context.Context, ev models.TierEvent) error
	Close() error
}

type Metrics interface {
	RecordTick(asset, family, action, outcome string)
	RecordFitFailureStreak(asset, family string, n int)
	RecordRows(target string, n int)
	RecordWatermark(tier string, t time.Time)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
