// Package trend produces, on query, the five concurrent time-bucketed
// downsamplings of every numeric vital parameter.
package trend

import (
	"context"
	"fmt"
	"time"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/cache"
)

// Store is the subset of internal/store.Store the aggregator needs,
// narrowed so tests can substitute a fake without a real database.
type Store interface {
	QueryTrend(ctx context.Context, parameter models.Parameter, scale models.TrendScale) (models.TrendSeries, error)
}

// Envelope is the full response body for the trends endpoint: one series
// per parameter, for each of the five scales.
type Envelope map[models.TrendScale]map[models.Parameter]models.TrendSeries

// Aggregator wraps a Store and memoizes recent query results,
// since trend windows change slowly relative to how often a dashboard
// polls them.
type Aggregator struct {
	store Store
	cache *cache.Cache
}

// cacheTTL is short enough that a detector switch or new sample becomes
// visible quickly, but long enough to absorb bursty polling from a
// dashboard refresh loop.
const cacheTTL = 5 * time.Second

// New constructs an Aggregator. Caching is always enabled; it only
// softens read load under concurrent pollers and never changes the
// result's shape or correctness.
func New(store Store) *Aggregator {
	return &Aggregator{
		store: store,
		cache: cache.New(cache.Options{
			TTL:                  cacheTTL,
			StaleWhileRevalidate: cacheTTL,
			MaxEntries:           256,
		}, cache.MetricsHooks{}),
	}
}

// Query returns the full envelope: all five scales, all six parameters.
// A bucket with zero samples is simply absent from its series' Times and
// Values arrays (the caller's chart draws a gap).
func (a *Aggregator) Query(ctx context.Context) (Envelope, error) {
	envelope := make(Envelope, len(models.AllTrendScales))
	for _, scale := range models.AllTrendScales {
		perParam := make(map[models.Parameter]models.TrendSeries, len(models.AllTrendParameters))
		for _, param := range models.AllTrendParameters {
			series, err := a.querySeries(ctx, param, scale)
			if err != nil {
				return nil, fmt.Errorf("trend: query %s/%s: %w", param, scale, err)
			}
			perParam[param] = series
		}
		envelope[scale] = perParam
	}
	return envelope, nil
}

func (a *Aggregator) querySeries(ctx context.Context, parameter models.Parameter, scale models.TrendScale) (models.TrendSeries, error) {
	key := string(scale) + "/" + string(parameter)
	val, _, err := a.cache.Get(ctx, key, func(ctx context.Context, _ string) (interface{}, bool, error) {
		series, err := a.store.QueryTrend(ctx, parameter, scale)
		if err != nil {
			return nil, false, err
		}
		return series, true, nil
	})
	if err != nil {
		return models.TrendSeries{}, err
	}
	return val.(models.TrendSeries), nil
}
