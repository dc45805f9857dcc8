// Package store adapts the time-series SQL store (Postgres, optionally
// TimescaleDB-backed) to the vitals/alerts schema: idempotent schema
// creation, best-effort writes, and the parameterized queries the trend
// aggregator and alert-history endpoint depend on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
	dbschema "github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/database/sql"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/logging"
)

// queryTimeout bounds every statement issued through the Store, per the
// fixed 5s-per-statement budget.
const queryTimeout = 5 * time.Second

// Store wraps a pooled SQL connection with the vitals/alerts schema
// operations.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New wraps an already-connected pool.
func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema applies every embedded migration file in lexical order.
// Each file runs as its own statement batch so an optional extension
// missing from one file (e.g. TimescaleDB's create_hypertable) never
// blocks the rest of the schema from being created.
func (s *Store) EnsureSchema(ctx context.Context) error {
	entries, err := dbschema.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("store: read embedded schema: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := dbschema.Content.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("store: read schema file %s: %w", entry.Name(), err)
		}

		for _, stmt := range splitStatements(string(raw)) {
			stmtCtx, cancel := context.WithTimeout(ctx, queryTimeout)
			_, err := s.db.ExecContext(stmtCtx, stmt)
			cancel()
			if err != nil {
				if isHypertableUnavailable(err) {
					s.logger.WithFields(logging.Fields{"file": entry.Name()}).
						Warn("store: TimescaleDB hypertable extension unavailable, continuing with plain table")
					continue
				}
				return fmt.Errorf("store: apply %s: %w", entry.Name(), err)
			}
		}
	}
	return nil
}

func splitStatements(raw string) []string {
	var out []string
	for _, stmt := range strings.Split(raw, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func isHypertableUnavailable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "create_hypertable") || strings.Contains(msg, "function") && strings.Contains(msg, "does not exist")
}

// InsertVitals persists one enriched sample as a single wide row. Errors
// are logged and swallowed: ingestion must never block on store failure.
func (s *Store) InsertVitals(ctx context.Context, sample models.EnrichedSample) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vitals (time, user_id, activity, heart_rate, blood_pressure_systolic, blood_pressure_diastolic, temperature, oxygen_saturation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sample.Timestamp, sample.EffectiveUserID(), sample.Activity,
		sample.HeartRate, sample.BloodPressureSystolic, sample.BloodPressureDiastolic,
		sample.Temperature, sample.OxygenSaturation,
	)
	if err != nil {
		s.logger.WithError(err).WithFields(logging.Fields{"user_id": sample.EffectiveUserID()}).
			Warn("store: insert vitals failed, sample dropped from store")
	}
}

// InsertAlert persists one alert record. Same best-effort contract as
// InsertVitals.
func (s *Store) InsertAlert(ctx context.Context, alert models.Alert) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (time, user_id, parameter, value, activity_level, normal_low, normal_high, deviation_percent, severity, detector_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		alert.Timestamp, alert.UserID, string(alert.Parameter), alert.Value, string(alert.ActivityLevel),
		alert.NormalRange.Low, alert.NormalRange.High, alert.DeviationPercent,
		string(alert.Severity), string(alert.DetectorType),
	)
	if err != nil {
		s.logger.WithError(err).WithFields(logging.Fields{"user_id": alert.UserID}).
			Warn("store: insert alert failed, alert dropped from store")
	}
}

// bucketExpr returns, for one trend scale, the Postgres interval expression
// for the query window, the bucket width in seconds, and the Go time-format
// string used to render the bucket label.
func bucketExpr(scale models.TrendScale) (windowExpr string, bucketSeconds int, timeFormat string, ok bool) {
	switch scale {
	case models.Trend1Min:
		return "INTERVAL '60 seconds'", 5, "15:04:05", true
	case models.Trend30Min:
		return "INTERVAL '30 minutes'", 60, "15:04", true
	case models.Trend1Hour:
		return "INTERVAL '60 minutes'", 300, "15:04", true
	case models.Trend1Day:
		return "INTERVAL '24 hours'", 3600, "01-02 15", true
	case models.Trend7Day:
		return "INTERVAL '7 days'", 86400, "2006-01-02", true
	default:
		return "", 0, "", false
	}
}

// trendColumn maps a trend parameter to its column in the wide vitals
// table.
func trendColumn(parameter models.Parameter) (string, bool) {
	switch parameter {
	case models.ParamHeartRate:
		return "heart_rate", true
	case models.ParamBPSystolic:
		return "blood_pressure_systolic", true
	case models.ParamBPDiastolic:
		return "blood_pressure_diastolic", true
	case models.ParamTemperature:
		return "temperature", true
	case models.ParamOxygenSaturation:
		return "oxygen_saturation", true
	case models.ParamActivity:
		return "activity", true
	default:
		return "", false
	}
}

// QueryTrend returns the per-bucket mean of one parameter over one scale's
// window, with buckets containing zero samples omitted.
func (s *Store) QueryTrend(ctx context.Context, parameter models.Parameter, scale models.TrendScale) (models.TrendSeries, error) {
	window, bucketSeconds, timeFormat, ok := bucketExpr(scale)
	if !ok {
		return models.TrendSeries{}, fmt.Errorf("store: unknown trend scale %q", scale)
	}
	column, ok := trendColumn(parameter)
	if !ok {
		return models.TrendSeries{}, fmt.Errorf("store: unknown trend parameter %q", parameter)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT to_timestamp(floor(extract(epoch from time) / %d) * %d) AS bucket,
		       avg(%s) AS mean_value
		FROM vitals
		WHERE %s IS NOT NULL AND time >= now() - %s
		GROUP BY bucket
		ORDER BY bucket ASC`, bucketSeconds, bucketSeconds, column, column, window),
	)
	if err != nil {
		return models.TrendSeries{}, fmt.Errorf("store: query trend: %w", err)
	}
	defer rows.Close()

	series := models.TrendSeries{Times: []string{}, Values: []float64{}}
	for rows.Next() {
		var bucket time.Time
		var mean float64
		if err := rows.Scan(&bucket, &mean); err != nil {
			return models.TrendSeries{}, fmt.Errorf("store: scan trend row: %w", err)
		}
		series.Times = append(series.Times, bucket.Format(timeFormat))
		series.Values = append(series.Values, mean)
	}
	if err := rows.Err(); err != nil {
		return models.TrendSeries{}, fmt.Errorf("store: iterate trend rows: %w", err)
	}
	return series, nil
}

// QueryAlertHistory returns up to limit alerts for userID (or every user
// when userID is empty), newest first.
func (s *Store) QueryAlertHistory(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, time, user_id, parameter, value, activity_level, normal_low, normal_high, deviation_percent, severity, detector_type
		FROM alerts`
	args := []interface{}{}
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += fmt.Sprintf(" ORDER BY time DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query alert history: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var param, activityLevel, severity, detectorType string
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.UserID, &param, &a.Value, &activityLevel,
			&a.NormalRange.Low, &a.NormalRange.High, &a.DeviationPercent, &severity, &detectorType); err != nil {
			return nil, fmt.Errorf("store: scan alert row: %w", err)
		}
		a.Parameter = models.Parameter(param)
		a.ActivityLevel = models.ActivityLevel(activityLevel)
		a.Severity = models.Severity(severity)
		a.DetectorType = models.DetectorType(detectorType)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate alert rows: %w", err)
	}
	return alerts, nil
}
