// Package baseline implements the process-wide, per-user, per-activity
// level running statistics used by the User-Baseline detector to learn a
// Gaussian normal range online.
package baseline

import (
	"hash/fnv"
	"sync"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
)

// shardCount is the number of independent lock domains the registry is
// split across. A power of two lets the modulo reduce to a cheap bit
// mask and matches the sizing convention used for the registry's
// sharded siblings elsewhere in this stack.
const shardCount = 32

type cellKey struct {
	activityLevel models.ActivityLevel
	parameter     models.Parameter
}

type shard struct {
	mu    sync.Mutex
	cells map[string]map[cellKey]*models.BaselineCell
}

// Registry is a concurrent mapping (user_id, activity_level, parameter) ->
// BaselineCell, sharded by a hash of user_id so unrelated users never
// contend on the same lock.
type Registry struct {
	shards [shardCount]*shard
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{cells: make(map[string]map[cellKey]*models.BaselineCell)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Update folds one accepted observation into the cell for
// (userID, activityLevel, parameter), creating it if necessary. Callers
// must only invoke this for parameters the detector did not flag on this
// sample — alerting values must never poison the learned mean.
func (r *Registry) Update(userID string, activityLevel models.ActivityLevel, parameter models.Parameter, value float64) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	userCells, ok := s.cells[userID]
	if !ok {
		userCells = make(map[cellKey]*models.BaselineCell)
		s.cells[userID] = userCells
	}
	key := cellKey{activityLevel: activityLevel, parameter: parameter}
	cell, ok := userCells[key]
	if !ok {
		cell = &models.BaselineCell{}
		userCells[key] = cell
	}
	cell.Update(value)
}

// Lookup returns a copy of the cell for (userID, activityLevel, parameter)
// and whether it exists. The copy is safe to read without holding any
// lock.
func (r *Registry) Lookup(userID string, activityLevel models.ActivityLevel, parameter models.Parameter) (models.BaselineCell, bool) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	userCells, ok := s.cells[userID]
	if !ok {
		return models.BaselineCell{}, false
	}
	cell, ok := userCells[cellKey{activityLevel: activityLevel, parameter: parameter}]
	if !ok {
		return models.BaselineCell{}, false
	}
	return *cell, true
}

// Stats returns a snapshot of every cell recorded for userID, copied out
// from behind the shard lock so callers never hold it while marshaling.
func (r *Registry) Stats(userID string) models.UserBaselineSnapshot {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := models.UserBaselineSnapshot{
		UserID:         userID,
		ActivityLevels: make(map[models.ActivityLevel]models.ActivityLevelStats),
	}

	userCells, ok := s.cells[userID]
	if !ok {
		return snapshot
	}

	for key, cell := range userCells {
		levelStats, ok := snapshot.ActivityLevels[key.activityLevel]
		if !ok {
			levelStats = models.ActivityLevelStats{Parameters: make(map[models.Parameter]models.ParameterStats)}
		}
		levelStats.TotalSamples += cell.Count
		levelStats.Parameters[key.parameter] = models.ParameterStats{
			Count:  cell.Count,
			Mean:   cell.Mean,
			StdDev: cell.StdDev(),
		}
		snapshot.ActivityLevels[key.activityLevel] = levelStats
	}

	return snapshot
}

// Reset drops every cell recorded for userID. Other users' cells, even
// those sharing the same shard, are left untouched.
func (r *Registry) Reset(userID string) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cells, userID)
}
