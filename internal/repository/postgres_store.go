package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ForecastPull/internal/domain/models"
	domrepo "ForecastPull/internal/domain/repository"
	applogger "ForecastPull/pkg/logger"
	"ForecastPull/pkg/util"
)

const upsertBatchSize = 1000

// PostgresStore holds observations and forecasts, and joins them into evaluation pairs.
type PostgresStore struct {
	db *gorm.DB
	l  *applogger.Logger
}

func NewPostgresStore(db *gorm.DB, l *applogger.Logger) *PostgresStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &PostgresStore{db: db, l: l}
}

// Migrate creates or updates the tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&observationRow{}, &forecastRow{}); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// UpsertObservations writes rows whose value differs from the stored one. Rows with an
// unchanged value are left untouched, including their uploaded_at.
func (s *PostgresStore) UpsertObservations(ctx context.Context, obs []models.Observation) (models.WriteResult, error) {
	if len(obs) == 0 {
		return models.WriteResult{}, nil
	}
	type key struct {
		ts           time.Time
		asset, label string
	}
	idx := make(map[key]int, len(obs))
	rows := make([]observationRow, 0, len(obs))
	for _, o := range obs {
		r := fromObservation(o)
		r.Value = util.Round8(r.Value)
		k := key{r.Ts, r.Asset, r.Label}
		if i, dup := idx[k]; dup {
			rows[i] = r
			continue
		}
		idx[k] = len(rows)
		rows = append(rows, r)
	}

	var written int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ts"}, {Name: "asset"}, {Name: "label"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "uploaded_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "observations.value <> excluded.value"},
			}},
		}).CreateInBatches(&rows, upsertBatchSize)
		written = res.RowsAffected
		return res.Error
	})
	if err != nil {
		s.l.Error("postgres upsert_observations error", applogger.Int("rows", len(rows)), applogger.Error(err))
		return models.WriteResult{}, fmt.Errorf("upsert observations: %w", err)
	}
	return models.WriteResult{Written: int(written), Skipped: len(rows) - int(written)}, nil
}

// Series returns one point per hour in [from, to], preferring historical over training.
func (s *PostgresStore) Series(ctx context.Context, asset string, from, to time.Time) (models.Series, error) {
	var pts []struct {
		Ts    time.Time
		Value float64
	}
	err := s.db.WithContext(ctx).Raw(`
        SELECT DISTINCT ON (ts) ts, value
        FROM observations
        WHERE asset = ? AND ts >= ? AND ts <= ?
        ORDER BY ts, (label = ?) DESC
    `, asset, from.UTC(), to.UTC(), string(models.ProvenanceHistorical)).Scan(&pts).Error
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", asset, err)
	}
	out := make(models.Series, len(pts))
	for i, p := range pts {
		out[i] = models.Point{Timestamp: p.Ts.UTC(), Value: p.Value}
	}
	return out, nil
}

// FindMissingHours lists hours in [start, end] with no observation under any label.
func (s *PostgresStore) FindMissingHours(ctx context.Context, asset string, start, end time.Time) ([]time.Time, error) {
	var hours []time.Time
	err := s.db.WithContext(ctx).Raw(`
        SELECT g.ts
        FROM generate_series(?::timestamptz, ?::timestamptz, interval '1 hour') AS g(ts)
        WHERE NOT EXISTS (
            SELECT 1 FROM observations o WHERE o.asset = ? AND o.ts = g.ts
        )
        ORDER BY g.ts
    `, util.TruncateHour(start), util.TruncateHour(end), asset).Scan(&hours).Error
	if err != nil {
		return nil, fmt.Errorf("find missing hours %s: %w", asset, err)
	}
	for i := range hours {
		hours[i] = hours[i].UTC()
	}
	return hours, nil
}

// IsContiguous reports whether stored hours from `from` onward are exactly one hour apart.
func (s *PostgresStore) IsContiguous(ctx context.Context, asset string, from time.Time) (bool, error) {
	var breaks int64
	err := s.db.WithContext(ctx).Raw(`
        SELECT count(*) FROM (
            SELECT ts - lag(ts) OVER (ORDER BY ts) AS d
            FROM (SELECT DISTINCT ts FROM observations WHERE asset = ? AND ts >= ?) s
        ) x
        WHERE d IS NOT NULL AND d <> interval '1 hour'
    `, asset, from.UTC()).Scan(&breaks).Error
	if err != nil {
		return false, fmt.Errorf("contiguity %s: %w", asset, err)
	}
	return breaks == 0, nil
}

// UpsertForecasts writes rows whose value changed. On conflict the earliest run metadata
// (anchor, window bounds, run id, uploaded_at) is kept and updated_at moves to the new write.
func (s *PostgresStore) UpsertForecasts(ctx context.Context, points []models.ForecastPoint) (models.WriteResult, error) {
	if len(points) == 0 {
		return models.WriteResult{}, nil
	}
	type key struct {
		ts            time.Time
		asset, family string
		step          int
	}
	idx := make(map[key]int, len(points))
	rows := make([]forecastRow, 0, len(points))
	for _, p := range points {
		r := fromForecast(p)
		r.Value = util.Round8(r.Value)
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = r.UploadedAt
		}
		k := key{r.Ts, r.Asset, r.Family, r.Step}
		if i, dup := idx[k]; dup {
			rows[i] = r
			continue
		}
		idx[k] = len(rows)
		rows = append(rows, r)
	}

	var written int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ts"}, {Name: "asset"}, {Name: "family"}, {Name: "step"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "variant", "hyperparameters", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "forecasts.value <> excluded.value"},
			}},
		}).CreateInBatches(&rows, upsertBatchSize)
		written = res.RowsAffected
		return res.Error
	})
	if err != nil {
		s.l.Error("postgres upsert_forecasts error", applogger.Int("rows", len(rows)), applogger.Error(err))
		return models.WriteResult{}, fmt.Errorf("upsert forecasts: %w", err)
	}
	return models.WriteResult{Written: int(written), Skipped: len(rows) - int(written)}, nil
}

func (s *PostgresStore) Forecasts(ctx context.Context, q domrepo.ForecastQuery) ([]models.ForecastPoint, error) {
	tx := s.db.WithContext(ctx).Model(&forecastRow{})
	if q.Asset != "" {
		tx = tx.Where("asset = ?", q.Asset)
	}
	if q.Family != "" {
		tx = tx.Where("family = ?", q.Family)
	}
	if !q.AnchorAt.IsZero() {
		tx = tx.Where("anchor_at = ?", q.AnchorAt.UTC())
	}
	if !q.From.IsZero() {
		tx = tx.Where("ts >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		tx = tx.Where("ts <= ?", q.To.UTC())
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []forecastRow
	if err := tx.Order("anchor_at DESC, asset, family, step").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	out := make([]models.ForecastPoint, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// EvaluationPairs joins each forecast point to the observation at its (ts, asset), historical
// preferred, and returns the pairs whose later side was written in (after, upTo].
func (s *PostgresStore) EvaluationPairs(ctx context.Context, after, upTo time.Time) ([]models.EvaluationPair, error) {
	var rows []struct {
		Asset       string
		Variant     string
		Family      string
		AnchorAt    time.Time
		Step        int
		Ts          time.Time
		Forecast    float64
		Actual      float64
		AvailableAt time.Time
	}
	err := s.db.WithContext(ctx).Raw(`
        SELECT f.asset, f.variant, f.family, f.anchor_at, f.step, f.ts,
               f.value AS forecast, o.value AS actual,
               GREATEST(f.updated_at, o.uploaded_at) AS available_at
        FROM forecasts f
        JOIN LATERAL (
            SELECT value, uploaded_at FROM observations
            WHERE asset = f.asset AND ts = f.ts
            ORDER BY (label = ?) DESC
            LIMIT 1
        ) o ON true
        WHERE GREATEST(f.updated_at, o.uploaded_at) > ?
          AND GREATEST(f.updated_at, o.uploaded_at) <= ?
        ORDER BY available_at, f.asset, f.variant, f.anchor_at, f.step
    `, string(models.ProvenanceHistorical), after.UTC(), upTo.UTC()).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("evaluation pairs: %w", err)
	}
	out := make([]models.EvaluationPair, len(rows))
	for i, r := range rows {
		out[i] = models.EvaluationPair{
			Asset:       r.Asset,
			Variant:     r.Variant,
			Family:      r.Family,
			AnchorAt:    r.AnchorAt.UTC(),
			Step:        r.Step,
			Timestamp:   r.Ts.UTC(),
			Forecast:    r.Forecast,
			Actual:      r.Actual,
			AvailableAt: r.AvailableAt.UTC(),
		}
	}
	return out, nil
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var (
	_ domrepo.ObservationStore = (*PostgresStore)(nil)
	_ domrepo.ForecastStore    = (*PostgresStore)(nil)
	_ domrepo.PairSource       = (*PostgresStore)(nil)
)
