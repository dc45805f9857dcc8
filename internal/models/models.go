// Package models defines the shared data types that flow between the
// broker gateway, ingestion pipeline, baseline registry, detector, trend
// aggregator, and query API.
package models

import (
	"math"
	"time"
)

// ActivityLevel is the ternary classification of motion intensity derived
// from steps/min.
type ActivityLevel string

const (
	ActivityLow    ActivityLevel = "low"
	ActivityMedium ActivityLevel = "medium"
	ActivityHigh   ActivityLevel = "high"
)

// ClassifyActivity derives an ActivityLevel from a steps/min reading.
func ClassifyActivity(activity float64) ActivityLevel {
	switch {
	case activity > 100:
		return ActivityHigh
	case activity > 50:
		return ActivityMedium
	default:
		return ActivityLow
	}
}

// Parameter names the numeric vital-sign fields tracked by the detector,
// baseline registry, and trend aggregator.
type Parameter string

const (
	ParamHeartRate         Parameter = "heart_rate"
	ParamBPSystolic        Parameter = "bp_sys"
	ParamBPDiastolic       Parameter = "bp_dia"
	ParamTemperature       Parameter = "temperature"
	ParamOxygenSaturation  Parameter = "oxygen_saturation"
	ParamActivity          Parameter = "activity"
)

// AllVitalParameters lists the parameters inspected by the detector (excludes
// activity itself, which is an input rather than a monitored vital).
var AllVitalParameters = []Parameter{
	ParamHeartRate,
	ParamBPSystolic,
	ParamBPDiastolic,
	ParamTemperature,
	ParamOxygenSaturation,
}

// AllTrendParameters lists every numeric field the trend aggregator
// downsamples, including activity.
var AllTrendParameters = []Parameter{
	ParamHeartRate,
	ParamBPSystolic,
	ParamBPDiastolic,
	ParamTemperature,
	ParamOxygenSaturation,
	ParamActivity,
}

// RawSample is a single vital-sign reading as published on the raw-vitals
// topic. Any vital field may be absent; a nil pointer means "not reported"
// and must never be treated as zero.
type RawSample struct {
	Timestamp              time.Time `json:"timestamp"`
	UserID                 string    `json:"user_id,omitempty"`
	Activity               float64   `json:"activity"`
	HeartRate              *float64  `json:"heart_rate,omitempty"`
	BloodPressureSystolic  *float64  `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *float64  `json:"blood_pressure_diastolic,omitempty"`
	Temperature            *float64  `json:"temperature,omitempty"`
	OxygenSaturation       *float64  `json:"oxygen_saturation,omitempty"`
}

// EffectiveUserID returns UserID, falling back to "default" per the wire
// contract.
func (r RawSample) EffectiveUserID() string {
	if r.UserID == "" {
		return "default"
	}
	return r.UserID
}

// Value returns the reading for a given parameter and whether it was
// present on the sample.
func (r RawSample) Value(p Parameter) (float64, bool) {
	switch p {
	case ParamHeartRate:
		return derefOK(r.HeartRate)
	case ParamBPSystolic:
		return derefOK(r.BloodPressureSystolic)
	case ParamBPDiastolic:
		return derefOK(r.BloodPressureDiastolic)
	case ParamTemperature:
		return derefOK(r.Temperature)
	case ParamOxygenSaturation:
		return derefOK(r.OxygenSaturation)
	case ParamActivity:
		return r.Activity, true
	default:
		return 0, false
	}
}

func derefOK(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// EnrichedSample is a RawSample with its derived ActivityLevel attached,
// as published on the enriched-vitals topic and persisted to the store.
type EnrichedSample struct {
	RawSample
	ActivityLevel ActivityLevel `json:"activity_level"`
}

// Enrich computes the ActivityLevel for a RawSample.
func Enrich(raw RawSample) EnrichedSample {
	return EnrichedSample{
		RawSample:     raw,
		ActivityLevel: ClassifyActivity(raw.Activity),
	}
}

// Severity is the three-way alert severity classification.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ClassifySeverity maps an absolute deviation percent to a Severity per the
// fixed thresholds: <10 -> low, 10-20 -> medium, >=20 -> high.
func ClassifySeverity(absDeviationPercent float64) Severity {
	switch {
	case absDeviationPercent >= 20:
		return SeverityHigh
	case absDeviationPercent >= 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DetectorType names one of the two interchangeable anomaly-detection
// strategies.
type DetectorType string

const (
	DetectorRangeBased   DetectorType = "range_based"
	DetectorUserBaseline DetectorType = "user_baseline"
)

// ValidDetectorType reports whether s names a known DetectorType.
func ValidDetectorType(s string) bool {
	switch DetectorType(s) {
	case DetectorRangeBased, DetectorUserBaseline:
		return true
	default:
		return false
	}
}

// Range is an inclusive [Low, High] normal band used for a decision.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether value falls inside the inclusive range.
func (r Range) Contains(value float64) bool {
	return value >= r.Low && value <= r.High
}

// Alert records a single anomalous parameter reading.
type Alert struct {
	ID                int64         `json:"id"`
	Timestamp         time.Time     `json:"timestamp"`
	UserID            string        `json:"user_id"`
	Parameter         Parameter     `json:"parameter"`
	Value             float64       `json:"value"`
	ActivityLevel     ActivityLevel `json:"activity_level"`
	NormalRange       Range         `json:"normal_range"`
	DeviationPercent  float64       `json:"deviation_percent"`
	Severity          Severity      `json:"severity"`
	DetectorType      DetectorType  `json:"detector_type"`
}

// BaselineCell is a running Gaussian summary for one (user_id,
// activity_level, parameter) tuple, computed with Welford's online
// algorithm.
type BaselineCell struct {
	Count int64
	Mean  float64
	M2    float64
}

// Update folds one more observation into the cell in place.
func (c *BaselineCell) Update(value float64) {
	c.Count++
	delta := value - c.Mean
	c.Mean += delta / float64(c.Count)
	c.M2 += delta * (value - c.Mean)
}

// StdDev returns the sample standard deviation, or 0 when fewer than two
// observations have been folded in.
func (c BaselineCell) StdDev() float64 {
	if c.Count < 2 {
		return 0
	}
	variance := c.M2 / float64(c.Count-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// WarmupThreshold is the minimum observation count before a cell is
// considered ready to back the User-Baseline detector.
const WarmupThreshold = 30

// Warm reports whether the cell has accumulated enough samples to be used
// in place of the population range table.
func (c BaselineCell) Warm() bool {
	return c.Count >= WarmupThreshold
}

// ParameterStats is the inspectable snapshot of one BaselineCell, returned
// by the registry's Stats operation.
type ParameterStats struct {
	Count  int64   `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// ActivityLevelStats groups per-parameter stats and a running total sample
// count for one activity level.
type ActivityLevelStats struct {
	TotalSamples int64                         `json:"total_samples"`
	Parameters   map[Parameter]ParameterStats `json:"parameters"`
}

// UserBaselineSnapshot is the full response body for the baseline
// inspection endpoint.
type UserBaselineSnapshot struct {
	UserID         string                              `json:"user_id"`
	ActivityLevels map[ActivityLevel]ActivityLevelStats `json:"activity_levels"`
}

// DetectorConfig is the process-wide singleton describing the active
// anomaly-detection strategy.
type DetectorConfig struct {
	DetectorType DetectorType `json:"detector_type"`
	UserID       string       `json:"user_id"`
}

// TrendPoint is one (bucket_time, mean_value) observation.
type TrendPoint struct {
	BucketTime string  `json:"time"`
	Value      float64 `json:"value"`
}

// TrendScale names one of the five fixed (window, bucket) downsampling
// resolutions.
type TrendScale string

const (
	Trend1Min  TrendScale = "1min"
	Trend30Min TrendScale = "30min"
	Trend1Hour TrendScale = "1h"
	Trend1Day  TrendScale = "1day"
	Trend7Day  TrendScale = "7day"
)

// AllTrendScales lists every scale in response order.
var AllTrendScales = []TrendScale{Trend1Min, Trend30Min, Trend1Hour, Trend1Day, Trend7Day}

// TrendSeries is an ordered sequence of TrendPoints for one parameter at one
// scale, shaped for direct JSON serialization as parallel arrays.
type TrendSeries struct {
	Times  []string  `json:"times"`
	Values []float64 `json:"values"`
}
