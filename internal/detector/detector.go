// Package detector implements the polymorphic anomaly classifier: a
// Range-Based strategy backed by a fixed population table, and a
// User-Baseline strategy backed by the learned per-user registry, falling
// back to the population table while a cell is still warming up.
package detector

import (
	"math"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/baseline"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
)

// Detector classifies one enriched sample into zero or more alerts. It
// never panics: a missing parameter yields no alert, an unknown parameter
// is ignored.
type Detector interface {
	Type() models.DetectorType
	Classify(sample models.EnrichedSample) []models.Alert
}

// populationRange is the fixed three-way (activity_level, parameter)
// normal-band table every strategy falls back to.
var populationRange = map[models.ActivityLevel]map[models.Parameter]models.Range{
	models.ActivityLow: {
		models.ParamHeartRate:        {Low: 60, High: 80},
		models.ParamBPSystolic:       {Low: 110, High: 120},
		models.ParamBPDiastolic:      {Low: 70, High: 80},
		models.ParamTemperature:      {Low: 36.1, High: 37.2},
		models.ParamOxygenSaturation: {Low: 95, High: 100},
	},
	models.ActivityMedium: {
		models.ParamHeartRate:        {Low: 80, High: 100},
		models.ParamBPSystolic:       {Low: 120, High: 140},
		models.ParamBPDiastolic:      {Low: 80, High: 90},
		models.ParamTemperature:      {Low: 36.5, High: 37.5},
		models.ParamOxygenSaturation: {Low: 94, High: 99},
	},
	models.ActivityHigh: {
		models.ParamHeartRate:        {Low: 100, High: 160},
		models.ParamBPSystolic:       {Low: 140, High: 160},
		models.ParamBPDiastolic:      {Low: 90, High: 100},
		models.ParamTemperature:      {Low: 37.0, High: 38.0},
		models.ParamOxygenSaturation: {Low: 92, High: 98},
	},
}

// evaluate builds an Alert for a single parameter reading against a
// normal range, or returns ok=false when the value falls inside it.
func evaluate(sample models.EnrichedSample, parameter models.Parameter, value float64, normal models.Range, detectorType models.DetectorType, nextID func() int64) (models.Alert, bool) {
	if normal.Contains(value) {
		return models.Alert{}, false
	}

	edge := normal.Low
	if value > normal.High {
		edge = normal.High
	}

	var deviationPercent float64
	if edge != 0 {
		deviationPercent = 100 * (value - edge) / edge
	}

	return models.Alert{
		ID:               nextID(),
		Timestamp:        sample.Timestamp,
		UserID:           sample.EffectiveUserID(),
		Parameter:        parameter,
		Value:            value,
		ActivityLevel:    sample.ActivityLevel,
		NormalRange:      normal,
		DeviationPercent: deviationPercent,
		Severity:         models.ClassifySeverity(math.Abs(deviationPercent)),
		DetectorType:      detectorType,
	}, true
}

// RangeDetector classifies samples purely against the fixed population
// range table.
type RangeDetector struct {
	nextID func() int64
}

// NewRangeDetector constructs a RangeDetector using idGen to mint
// monotonic per-process alert IDs.
func NewRangeDetector(idGen func() int64) *RangeDetector {
	return &RangeDetector{nextID: idGen}
}

func (d *RangeDetector) Type() models.DetectorType { return models.DetectorRangeBased }

func (d *RangeDetector) Classify(sample models.EnrichedSample) []models.Alert {
	bands, ok := populationRange[sample.ActivityLevel]
	if !ok {
		return nil
	}

	var alerts []models.Alert
	for _, param := range models.AllVitalParameters {
		value, present := sample.Value(param)
		if !present {
			continue
		}
		normal, ok := bands[param]
		if !ok {
			continue
		}
		if alert, flagged := evaluate(sample, param, value, normal, d.Type(), d.nextID); flagged {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// UserBaselineDetector classifies samples against a learned per-user
// Gaussian band (mean +/- 2 std_dev), falling back to the population range
// table until a cell has warmed up.
type UserBaselineDetector struct {
	registry *baseline.Registry
	nextID   func() int64
}

// NewUserBaselineDetector constructs a UserBaselineDetector backed by
// registry.
func NewUserBaselineDetector(registry *baseline.Registry, idGen func() int64) *UserBaselineDetector {
	return &UserBaselineDetector{registry: registry, nextID: idGen}
}

func (d *UserBaselineDetector) Type() models.DetectorType { return models.DetectorUserBaseline }

func (d *UserBaselineDetector) Classify(sample models.EnrichedSample) []models.Alert {
	bands, ok := populationRange[sample.ActivityLevel]
	if !ok {
		return nil
	}

	userID := sample.EffectiveUserID()

	var alerts []models.Alert
	for _, param := range models.AllVitalParameters {
		value, present := sample.Value(param)
		if !present {
			continue
		}

		normal := bands[param]
		if cell, ok := d.registry.Lookup(userID, sample.ActivityLevel, param); ok && cell.Warm() {
			stdDev := cell.StdDev()
			normal = models.Range{
				Low:  round1(cell.Mean - 2*stdDev),
				High: round1(cell.Mean + 2*stdDev),
			}
		}

		if alert, flagged := evaluate(sample, param, value, normal, d.Type(), d.nextID); flagged {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
