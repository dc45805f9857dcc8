package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/logging"
)

var errInsertFailed = errors.New("insert failed")

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, logging.NewLogger()), mock
}

func TestInsertVitalsSwallowsError(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec("INSERT INTO vitals").WillReturnError(errInsertFailed)

	sample := models.Enrich(models.RawSample{Timestamp: time.Now(), UserID: "alice", Activity: 20})
	// Must not panic or propagate the error: ingestion never blocks on
	// store failure.
	s.InsertVitals(context.Background(), sample)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVitalsSuccess(t *testing.T) {
	s, mock := newTestStore(t)
	hr := 72.0
	mock.ExpectExec("INSERT INTO vitals").WillReturnResult(sqlmock.NewResult(1, 1))

	sample := models.Enrich(models.RawSample{
		Timestamp: time.Now(),
		UserID:    "alice",
		Activity:  20,
		HeartRate: &hr,
	})
	s.InsertVitals(context.Background(), sample)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAlertSuccess(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))

	alert := models.Alert{
		Timestamp:        time.Now(),
		UserID:           "alice",
		Parameter:        models.ParamHeartRate,
		Value:            150,
		ActivityLevel:    models.ActivityLow,
		NormalRange:      models.Range{Low: 60, High: 80},
		DeviationPercent: 87.5,
		Severity:         models.SeverityHigh,
		DetectorType:     models.DetectorRangeBased,
	}
	s.InsertAlert(context.Background(), alert)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryTrendUnknownScale(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.QueryTrend(context.Background(), models.ParamHeartRate, models.TrendScale("nonexistent"))
	require.Error(t, err)
}

func TestQueryTrendUnknownParameter(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.QueryTrend(context.Background(), models.Parameter("nonexistent"), models.Trend1Min)
	require.Error(t, err)
}

func TestQueryTrendEmptyResultOmitsBuckets(t *testing.T) {
	s, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{"bucket", "mean_value"})
	mock.ExpectQuery("SELECT to_timestamp").WillReturnRows(rows)

	series, err := s.QueryTrend(context.Background(), models.ParamHeartRate, models.Trend1Min)
	require.NoError(t, err)
	require.Empty(t, series.Times)
	require.Empty(t, series.Values)
}

func TestQueryAlertHistoryFiltersByUser(t *testing.T) {
	s, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{
		"id", "time", "user_id", "parameter", "value", "activity_level",
		"normal_low", "normal_high", "deviation_percent", "severity", "detector_type",
	}).AddRow(1, time.Now(), "alice", "heart_rate", 150.0, "low", 60.0, 80.0, 87.5, "high", "range_based")
	mock.ExpectQuery("SELECT id, time, user_id").WillReturnRows(rows)

	alerts, err := s.QueryAlertHistory(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, models.ParamHeartRate, alerts[0].Parameter)
	require.Equal(t, models.SeverityHigh, alerts[0].Severity)
}
