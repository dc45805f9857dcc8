package trend

import (
	"context"
	"testing"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
)

type fakeStore struct {
	series map[string]models.TrendSeries
	calls  int
}

func (f *fakeStore) QueryTrend(ctx context.Context, parameter models.Parameter, scale models.TrendScale) (models.TrendSeries, error) {
	f.calls++
	key := string(scale) + "/" + string(parameter)
	if s, ok := f.series[key]; ok {
		return s, nil
	}
	return models.TrendSeries{Times: []string{}, Values: []float64{}}, nil
}

func TestS5EmptyTrendQueryReturnsAllScalesWithEmptySeries(t *testing.T) {
	store := &fakeStore{series: map[string]models.TrendSeries{}}
	agg := New(store)

	envelope, err := agg.Query(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(envelope) != len(models.AllTrendScales) {
		t.Fatalf("expected %d scales, got %d", len(models.AllTrendScales), len(envelope))
	}

	for _, scale := range models.AllTrendScales {
		perParam, ok := envelope[scale]
		if !ok {
			t.Fatalf("missing scale %q", scale)
		}
		for _, param := range models.AllTrendParameters {
			series, ok := perParam[param]
			if !ok {
				t.Fatalf("missing parameter %q for scale %q", param, scale)
			}
			if len(series.Times) != 0 || len(series.Values) != 0 {
				t.Fatalf("expected empty series for %q/%q, got %+v", scale, param, series)
			}
		}
	}
}

func TestQueryPopulatesNonEmptySeries(t *testing.T) {
	store := &fakeStore{series: map[string]models.TrendSeries{
		"1min/heart_rate": {Times: []string{"10:00:00"}, Values: []float64{72}},
	}}
	agg := New(store)

	envelope, err := agg.Query(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	series := envelope[models.Trend1Min][models.ParamHeartRate]
	if len(series.Times) != 1 || series.Values[0] != 72 {
		t.Fatalf("unexpected series: %+v", series)
	}
}

func TestQueryCachesRepeatedCalls(t *testing.T) {
	store := &fakeStore{series: map[string]models.TrendSeries{}}
	agg := New(store)

	if _, err := agg.Query(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstCalls := store.calls

	if _, err := agg.Query(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.calls != firstCalls {
		t.Fatalf("expected cached second query to not hit the store again, calls went from %d to %d", firstCalls, store.calls)
	}
}
