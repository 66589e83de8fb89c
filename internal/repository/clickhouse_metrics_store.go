package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	pkgch "ForecastPull/pkg/clickhouse"
	applogger "ForecastPull/pkg/logger"
)

const keyChunk = 500

const pointwiseColumns = `asset, variant, family, anchor_at, step, ts, forecast, actual,
    abs_error, bias, squared_error, ape, perc_error, log_error, rel_error,
    overprediction, underprediction, zero_crossed, pw_insert_time`

const aggregatedColumns = `asset, variant, mae, mse, rmse, mape, bias_mean, bias_stddev,
    overprediction_rate, underprediction_rate, max_abs_error, max_ape, row_count,
    sum_abs, sum_sq, sum_ape, sum_bias, sum_bias_sq, over_count, under_count, am_insert_time`

// pointwiseTotalsQuery reads through FINAL so a replaced pointwise row is not counted.
const pointwiseTotalsQuery = `SELECT asset, variant, toInt64(count()),
    sum(abs_error), sum(squared_error), sum(ape), sum(bias), sum(bias * bias),
    toInt64(countIf(overprediction)), toInt64(countIf(underprediction)),
    max(abs_error), max(ape), toInt64(uniqExact(anchor_at)), max(pw_insert_time)
    FROM pointwise_metrics FINAL
    WHERE (asset = ? OR ? = '') AND (variant = ? OR ? = '')
    GROUP BY asset, variant
    ORDER BY asset, variant`

const windowedColumns = `asset, variant, anchor_at, step, ts, cumulative_mae, cumulative_rmse,
    mean_bias, error_growth_rate, relative_step_error, is_reversal, step_stddev, step_rank,
    fwmv_insert_time`

// CHMetricsStore keeps the three metric tiers in ClickHouse.
type CHMetricsStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHMetricsStore(ch *pkgch.Client, l *applogger.Logger) *CHMetricsStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHMetricsStore{ch: ch, db: ch.DB(), l: l}
}

// Init creates the tier tables.
func (s *CHMetricsStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, ClickHouseSchema)
}

func tierColumn(tier models.Tier) (table, column string, err error) {
	switch tier {
	case models.TierPointwise:
		return "pointwise_metrics", "pw_insert_time", nil
	case models.TierAggregated:
		return "aggregated_metrics", "am_insert_time", nil
	case models.TierWindowed:
		return "windowed_metrics", "fwmv_insert_time", nil
	default:
		return "", "", fmt.Errorf("unknown tier %q", tier)
	}
}

// Watermark returns the zero time for an empty tier.
func (s *CHMetricsStore) Watermark(ctx context.Context, tier models.Tier) (time.Time, error) {
	table, col, err := tierColumn(tier)
	if err != nil {
		return time.Time{}, err
	}
	var (
		n  uint64
		wm time.Time
	)
	q := fmt.Sprintf("SELECT count(), max(%s) FROM %s", col, table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n, &wm); err != nil {
		s.l.Error("clickhouse watermark error", applogger.String("tier", string(tier)), applogger.Error(err))
		return time.Time{}, fmt.Errorf("watermark %s: %w", tier, err)
	}
	if n == 0 {
		return time.Time{}, nil
	}
	return wm.UTC(), nil
}

func (s *CHMetricsStore) WritePointwise(ctx context.Context, rows []models.PointwiseMetric) error {
	start := time.Now()
	q := "INSERT INTO pointwise_metrics (" + pointwiseColumns + ")"
	err := s.ch.InsertBatch(ctx, q, len(rows), func(i int) []any {
		r := rows[i]
		return []any{
			r.Asset, r.Variant, r.Family, r.AnchorAt.UTC(), int32(r.Step), r.Timestamp.UTC(),
			r.Forecast, r.Actual, r.AbsError, r.Bias, r.SquaredError, r.APE, r.PercError,
			r.LogError, r.RelError, r.Overpredicted, r.Underpredicted, r.ZeroCrossed, r.InsertedAt.UTC(),
		}
	})
	return s.logWrite(models.TierPointwise, len(rows), start, err)
}

func (s *CHMetricsStore) WriteAggregated(ctx context.Context, rows []models.AggregatedMetric) error {
	start := time.Now()
	q := "INSERT INTO aggregated_metrics (" + aggregatedColumns + ")"
	err := s.ch.InsertBatch(ctx, q, len(rows), func(i int) []any {
		r := rows[i]
		return []any{
			r.Asset, r.Variant, r.MAE, r.MSE, r.RMSE, r.MAPE, r.BiasMean, r.BiasStddev,
			r.OverRate, r.UnderRate, r.MaxAbsError, r.MaxAPE, r.RowCount,
			r.SumAbs, r.SumSq, r.SumAPE, r.SumBias, r.SumBiasSq, r.OverCount, r.UnderCount,
			r.InsertedAt.UTC(),
		}
	})
	return s.logWrite(models.TierAggregated, len(rows), start, err)
}

func (s *CHMetricsStore) WriteWindowed(ctx context.Context, rows []models.WindowedMetric) error {
	start := time.Now()
	q := "INSERT INTO windowed_metrics (" + windowedColumns + ")"
	err := s.ch.InsertBatch(ctx, q, len(rows), func(i int) []any {
		r := rows[i]
		return []any{
			r.Asset, r.Variant, r.AnchorAt.UTC(), int32(r.Step), r.Timestamp.UTC(),
			r.CumulativeMAE, r.CumulativeRMSE, r.MeanBias, r.ErrorGrowthRate, r.RelativeStepError,
			r.IsReversal, r.StepStddev, int32(r.StepRank), r.InsertedAt.UTC(),
		}
	})
	return s.logWrite(models.TierWindowed, len(rows), start, err)
}

func (s *CHMetricsStore) logWrite(tier models.Tier, n int, start time.Time, err error) error {
	if err != nil {
		s.l.Error("clickhouse write error",
			applogger.String("tier", string(tier)),
			applogger.Int("rows", n),
			applogger.Error(err),
		)
		return fmt.Errorf("write %s: %w", tier, err)
	}
	if n > 0 {
		s.l.Debug("clickhouse write ok",
			applogger.String("tier", string(tier)),
			applogger.Int("rows", n),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// PointwiseSince returns rows with after < pw_insert_time <= upTo.
func (s *CHMetricsStore) PointwiseSince(ctx context.Context, after, upTo time.Time) ([]models.PointwiseMetric, error) {
	q := "SELECT " + pointwiseColumns + ` FROM pointwise_metrics FINAL
        WHERE pw_insert_time > ? AND pw_insert_time <= ?
        ORDER BY asset, variant, anchor_at, step`
	return s.queryPointwise(ctx, q, after.UTC(), upTo.UTC())
}

// PointwiseRuns returns every row of the given runs.
func (s *CHMetricsStore) PointwiseRuns(ctx context.Context, keys []models.RunKey) ([]models.PointwiseMetric, error) {
	var out []models.PointwiseMetric
	for _, chunk := range chunkKeys(keys) {
		where, args := runKeyFilter(chunk)
		q := "SELECT " + pointwiseColumns + " FROM pointwise_metrics FINAL WHERE " + where +
			" ORDER BY asset, variant, anchor_at, step"
		rows, err := s.queryPointwise(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *CHMetricsStore) queryPointwise(ctx context.Context, q string, args ...any) ([]models.PointwiseMetric, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse pointwise query error", applogger.Error(err))
		return nil, fmt.Errorf("query pointwise: %w", err)
	}
	defer rows.Close()

	var out []models.PointwiseMetric
	for rows.Next() {
		var (
			m    models.PointwiseMetric
			step int32
		)
		if err := rows.Scan(&m.Asset, &m.Variant, &m.Family, &m.AnchorAt, &step, &m.Timestamp,
			&m.Forecast, &m.Actual, &m.AbsError, &m.Bias, &m.SquaredError, &m.APE, &m.PercError,
			&m.LogError, &m.RelError, &m.Overpredicted, &m.Underpredicted, &m.ZeroCrossed, &m.InsertedAt); err != nil {
			return nil, fmt.Errorf("scan pointwise: %w", err)
		}
		m.Step = int(step)
		m.AnchorAt, m.Timestamp, m.InsertedAt = m.AnchorAt.UTC(), m.Timestamp.UTC(), m.InsertedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Aggregated returns the batches of one asset, optionally narrowed to a variant, oldest first.
func (s *CHMetricsStore) Aggregated(ctx context.Context, asset, variant string) ([]models.AggregatedMetric, error) {
	q := "SELECT " + aggregatedColumns + ` FROM aggregated_metrics FINAL
        WHERE (asset = ? OR ? = '') AND (variant = ? OR ? = '')
        ORDER BY asset, variant, am_insert_time`
	rows, err := s.db.QueryContext(ctx, q, asset, asset, variant, variant)
	if err != nil {
		s.l.Error("clickhouse aggregated query error", applogger.String("asset", asset), applogger.Error(err))
		return nil, fmt.Errorf("query aggregated: %w", err)
	}
	defer rows.Close()

	var out []models.AggregatedMetric
	for rows.Next() {
		var m models.AggregatedMetric
		if err := rows.Scan(&m.Asset, &m.Variant, &m.MAE, &m.MSE, &m.RMSE, &m.MAPE, &m.BiasMean,
			&m.BiasStddev, &m.OverRate, &m.UnderRate, &m.MaxAbsError, &m.MaxAPE, &m.RowCount,
			&m.SumAbs, &m.SumSq, &m.SumAPE, &m.SumBias, &m.SumBiasSq, &m.OverCount, &m.UnderCount,
			&m.InsertedAt); err != nil {
			return nil, fmt.Errorf("scan aggregated: %w", err)
		}
		m.InsertedAt = m.InsertedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *CHMetricsStore) PointwiseTotals(ctx context.Context, asset, variant string) ([]models.MetricsSummary, error) {
	rows, err := s.db.QueryContext(ctx, pointwiseTotalsQuery, asset, asset, variant, variant)
	if err != nil {
		s.l.Error("clickhouse totals query error", applogger.String("asset", asset), applogger.Error(err))
		return nil, fmt.Errorf("query pointwise totals: %w", err)
	}
	defer rows.Close()

	var out []models.MetricsSummary
	for rows.Next() {
		var m models.MetricsSummary
		if err := rows.Scan(&m.Asset, &m.Variant, &m.RowCount, &m.SumAbs, &m.SumSq, &m.SumAPE,
			&m.SumBias, &m.SumBiasSq, &m.OverCount, &m.UnderCount, &m.MaxAbsError, &m.MaxAPE,
			&m.Runs, &m.InsertedAt); err != nil {
			return nil, fmt.Errorf("scan pointwise totals: %w", err)
		}
		m.InsertedAt = m.InsertedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *CHMetricsStore) Windowed(ctx context.Context, keys []models.RunKey) ([]models.WindowedMetric, error) {
	var out []models.WindowedMetric
	for _, chunk := range chunkKeys(keys) {
		where, args := runKeyFilter(chunk)
		q := "SELECT " + windowedColumns + " FROM windowed_metrics FINAL WHERE " + where +
			" ORDER BY asset, variant, anchor_at, step"
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			s.l.Error("clickhouse windowed query error", applogger.Error(err))
			return nil, fmt.Errorf("query windowed: %w", err)
		}
		for rows.Next() {
			var (
				m          models.WindowedMetric
				step, rank int32
			)
			if err := rows.Scan(&m.Asset, &m.Variant, &m.AnchorAt, &step, &m.Timestamp,
				&m.CumulativeMAE, &m.CumulativeRMSE, &m.MeanBias, &m.ErrorGrowthRate,
				&m.RelativeStepError, &m.IsReversal, &m.StepStddev, &rank, &m.InsertedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan windowed: %w", err)
			}
			m.Step, m.StepRank = int(step), int(rank)
			m.AnchorAt, m.Timestamp, m.InsertedAt = m.AnchorAt.UTC(), m.Timestamp.UTC(), m.InsertedAt.UTC()
			out = append(out, m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("rows windowed: %w", err)
		}
	}
	return out, nil
}

// WindowedRuns lists the newest runs of an (asset, variant), newest first.
func (s *CHMetricsStore) WindowedRuns(ctx context.Context, asset, variant string, limit int) ([]models.RunKey, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT DISTINCT asset, variant, anchor_at
        FROM windowed_metrics
        WHERE asset = ? AND (variant = ? OR ? = '')
        ORDER BY anchor_at DESC, variant
        LIMIT ?`, asset, variant, variant, limit)
	if err != nil {
		s.l.Error("clickhouse windowed runs error", applogger.String("asset", asset), applogger.Error(err))
		return nil, fmt.Errorf("query windowed runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunKey
	for rows.Next() {
		var k models.RunKey
		if err := rows.Scan(&k.Asset, &k.Variant, &k.AnchorAt); err != nil {
			return nil, fmt.Errorf("scan run key: %w", err)
		}
		k.AnchorAt = k.AnchorAt.UTC()
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *CHMetricsStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func chunkKeys(keys []models.RunKey) [][]models.RunKey {
	var out [][]models.RunKey
	for start := 0; start < len(keys); start += keyChunk {
		end := start + keyChunk
		if end > len(keys) {
			end = len(keys)
		}
		out = append(out, keys[start:end])
	}
	return out
}

// runKeyFilter renders "(asset, variant, anchor_at) IN ((?, ?, ?), ...)" for a non-empty chunk.
func runKeyFilter(keys []models.RunKey) (string, []any) {
	tuples := make([]string, len(keys))
	args := make([]any, 0, len(keys)*3)
	for i, k := range keys {
		tuples[i] = "(?, ?, ?)"
		args = append(args, k.Asset, k.Variant, k.AnchorAt.UTC())
	}
	return "(asset, variant, anchor_at) IN (" + strings.Join(tuples, ", ") + ")", args
}

var _ domrepo.MetricsStore = (*CHMetricsStore)(nil)
