package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ForecastPull/internal/domain/models"
)

func mockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewPostgresStore(db, nil), mock
}

var pgAt = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

func TestUpsertObservationsWritesOnlyChangedValues(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "observations"`) + `.*` + regexp.QuoteMeta(
		`ON CONFLICT ("ts","asset","label") DO UPDATE SET "value"="excluded"."value","uploaded_at"="excluded"."uploaded_at" WHERE observations.value <> excluded.value`)).
		WithArgs(
			pgAt, "BTC", "historical", 101.0, sqlmock.AnyArg(),
			pgAt.Add(time.Hour), "BTC", "historical", 102.0, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := s.UpsertObservations(context.Background(), []models.Observation{
		{Asset: "BTC", Timestamp: pgAt, Value: 100, Label: models.ProvenanceHistorical, UploadedAt: pgAt},
		{Asset: "BTC", Timestamp: pgAt.Add(time.Hour), Value: 102, Label: models.ProvenanceHistorical, UploadedAt: pgAt},
		// same key again, last one wins
		{Asset: "BTC", Timestamp: pgAt, Value: 101.000000001, Label: models.ProvenanceHistorical, UploadedAt: pgAt},
	})
	require.NoError(t, err)
	assert.Equal(t, models.WriteResult{Written: 1, Skipped: 1}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertObservationsRollsBackOnError(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "observations"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.UpsertObservations(context.Background(), []models.Observation{
		{Asset: "BTC", Timestamp: pgAt, Value: 1, Label: models.ProvenanceTraining, UploadedAt: pgAt},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert observations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertNothingSkipsTheDatabase(t *testing.T) {
	s, mock := mockStore(t)

	res, err := s.UpsertObservations(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res)
	res, err = s.UpsertForecasts(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertForecastsKeepsFirstRunMetadata(t *testing.T) {
	s, mock := mockStore(t)

	// run_id, anchor_at, window bounds and uploaded_at are absent from the update set
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "forecasts"`) + `.*` + regexp.QuoteMeta(
		`ON CONFLICT ("ts","asset","family","step") DO UPDATE SET "value"="excluded"."value","variant"="excluded"."variant","hyperparameters"="excluded"."hyperparameters","updated_at"="excluded"."updated_at" WHERE forecasts.value <> excluded.value`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	pts := make([]models.ForecastPoint, 3)
	for i := range pts {
		pts[i] = models.ForecastPoint{
			Asset: "BTC", Family: "ses", Variant: "ses|alpha=0.3", Step: i,
			Timestamp: pgAt.Add(time.Duration(i+1) * time.Hour), Value: 100 + float64(i),
			AnchorAt: pgAt, WindowStart: pgAt.Add(-24 * time.Hour), WindowEnd: pgAt,
			RunID: "run-1", UploadedAt: pgAt,
		}
	}
	res, err := s.UpsertForecasts(context.Background(), pts)
	require.NoError(t, err)
	assert.Equal(t, models.WriteResult{Written: 2, Skipped: 1}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsContiguousCountsBreaks(t *testing.T) {
	s, mock := mockStore(t)

	q := `SELECT count\(\*\) FROM .* lag\(ts\) OVER \(ORDER BY ts\)`
	mock.ExpectQuery(q).WithArgs("BTC", pgAt).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(q).WithArgs("ETH", pgAt).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	ok, err := s.IsContiguous(context.Background(), "BTC", pgAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsContiguous(context.Background(), "ETH", pgAt)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMissingHoursReturnsUTC(t *testing.T) {
	s, mock := mockStore(t)
	cet := time.FixedZone("CET", 3600)

	mock.ExpectQuery(`generate_series`).
		WithArgs(pgAt, pgAt.Add(5*time.Hour), "BTC").
		WillReturnRows(sqlmock.NewRows([]string{"ts"}).
			AddRow(pgAt.Add(2 * time.Hour).In(cet)).
			AddRow(pgAt.Add(3 * time.Hour).In(cet)))

	// bounds are truncated to the hour
	hours, err := s.FindMissingHours(context.Background(), "BTC", pgAt.Add(10*time.Minute), pgAt.Add(5*time.Hour+59*time.Minute))
	require.NoError(t, err)
	require.Len(t, hours, 2)
	assert.Equal(t, time.UTC, hours[0].Location())
	assert.True(t, pgAt.Add(2*time.Hour).Equal(hours[0]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeriesPrefersHistorical(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery(`SELECT DISTINCT ON \(ts\) ts, value FROM observations`).
		WithArgs("BTC", pgAt, pgAt.Add(time.Hour), "historical").
		WillReturnRows(sqlmock.NewRows([]string{"ts", "value"}).
			AddRow(pgAt, 100.5).
			AddRow(pgAt.Add(time.Hour), 101.5))

	series, err := s.Series(context.Background(), "BTC", pgAt, pgAt.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 101.5, series[1].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}
