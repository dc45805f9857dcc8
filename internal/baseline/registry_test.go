package baseline

import (
	"math"
	"testing"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
)

func TestUpdateComputesRunningMeanAndStdDev(t *testing.T) {
	r := NewRegistry()
	values := []float64{62, 64, 65, 66, 68, 63, 67}

	for _, v := range values {
		r.Update("alice", models.ActivityLow, models.ParamHeartRate, v)
	}

	cell, ok := r.Lookup("alice", models.ActivityLow, models.ParamHeartRate)
	if !ok {
		t.Fatal("expected cell to exist")
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	wantMean := sum / float64(len(values))

	if math.Abs(cell.Mean-wantMean) > 1e-9 {
		t.Fatalf("mean = %v, want %v", cell.Mean, wantMean)
	}

	var sq float64
	for _, v := range values {
		sq += (v - wantMean) * (v - wantMean)
	}
	wantStdDev := math.Sqrt(sq / float64(len(values)-1))

	if math.Abs(cell.StdDev()-wantStdDev) > 1e-9 {
		t.Fatalf("std_dev = %v, want %v", cell.StdDev(), wantStdDev)
	}
}

func TestCellNotWarmBelowThreshold(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < models.WarmupThreshold-1; i++ {
		r.Update("bob", models.ActivityLow, models.ParamHeartRate, 65)
	}
	cell, ok := r.Lookup("bob", models.ActivityLow, models.ParamHeartRate)
	if !ok {
		t.Fatal("expected cell to exist")
	}
	if cell.Warm() {
		t.Fatal("expected cell to not be warm yet")
	}

	r.Update("bob", models.ActivityLow, models.ParamHeartRate, 65)
	cell, _ = r.Lookup("bob", models.ActivityLow, models.ParamHeartRate)
	if !cell.Warm() {
		t.Fatal("expected cell to be warm at threshold")
	}
}

func TestStatsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Update("carol", models.ActivityLow, models.ParamHeartRate, 65)
	r.Update("carol", models.ActivityLow, models.ParamHeartRate, 67)
	r.Update("carol", models.ActivityMedium, models.ParamOxygenSaturation, 97)

	snap := r.Stats("carol")
	if snap.UserID != "carol" {
		t.Fatalf("unexpected user id %q", snap.UserID)
	}
	low, ok := snap.ActivityLevels[models.ActivityLow]
	if !ok {
		t.Fatal("expected low activity level stats")
	}
	if low.TotalSamples != 2 {
		t.Fatalf("total_samples = %d, want 2", low.TotalSamples)
	}
	hrStats, ok := low.Parameters[models.ParamHeartRate]
	if !ok || hrStats.Count != 2 {
		t.Fatalf("unexpected heart_rate stats: %+v", hrStats)
	}
}

func TestResetOnlyAffectsNamedUser(t *testing.T) {
	r := NewRegistry()
	r.Update("dave", models.ActivityLow, models.ParamHeartRate, 65)
	r.Update("erin", models.ActivityLow, models.ParamHeartRate, 70)

	r.Reset("dave")

	if _, ok := r.Lookup("dave", models.ActivityLow, models.ParamHeartRate); ok {
		t.Fatal("expected dave's cell to be removed")
	}
	if _, ok := r.Lookup("erin", models.ActivityLow, models.ParamHeartRate); !ok {
		t.Fatal("expected erin's cell to survive dave's reset")
	}
}

func TestLookupMissingCell(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("ghost", models.ActivityLow, models.ParamHeartRate); ok {
		t.Fatal("expected no cell for unknown user")
	}
}
