package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/baseline"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/detector"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/trend"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/logging"
)

type fakeConfigPublisher struct {
	published []models.DetectorConfig
}

func (f *fakeConfigPublisher) PublishConfig(cfg models.DetectorConfig) {
	f.published = append(f.published, cfg)
}

type fakeAlertStore struct {
	alerts []models.Alert
	err    error
}

func (f *fakeAlertStore) QueryAlertHistory(_ context.Context, userID string, limit int) ([]models.Alert, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Alert
	for _, a := range f.alerts {
		if userID != "" && a.UserID != userID {
			continue
		}
		out = append(out, a)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeTrendStore struct{}

func (fakeTrendStore) QueryTrend(_ context.Context, _ models.Parameter, _ models.TrendScale) (models.TrendSeries, error) {
	return models.TrendSeries{Times: []string{}, Values: []float64{}}, nil
}

var idCounter int64

func nextID() int64 { idCounter++; return idCounter }

func newTestServer() (*Server, *fakeConfigPublisher, *fakeAlertStore) {
	registry := baseline.NewRegistry()
	pub := &fakeConfigPublisher{}
	alertStore := &fakeAlertStore{}
	aggregator := trend.New(fakeTrendStore{})

	factory := func(cfg models.DetectorConfig) detector.Detector {
		if cfg.DetectorType == models.DetectorUserBaseline {
			return detector.NewUserBaselineDetector(registry, nextID)
		}
		return detector.NewRangeDetector(nextID)
	}

	s := NewServer(logging.NewLogger(), registry, alertStore, aggregator, pub, nil, factory)
	return s, pub, alertStore
}

func newGinRouter(s *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	s.RegisterRoutes(r)
	return r
}

func TestDetectorCurrentDefaultsToRangeBased(t *testing.T) {
	s, _, _ := newTestServer()
	r := newGinRouter(s)

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/api/detector/current", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.DetectorConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	require.Equal(t, models.DetectorRangeBased, cfg.DetectorType)
}

func TestS6DetectorSetThenCurrentReflectsSwitch(t *testing.T) {
	s, pub, _ := newTestServer()
	r := newGinRouter(s)

	body, _ := json.Marshal(map[string]string{"detector_type": "range_based", "user_id": "u1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, "/api/detector/set", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/api/detector/current", nil)
	r.ServeHTTP(w2, req2)

	var cfg models.DetectorConfig
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &cfg))
	require.Equal(t, models.DetectorRangeBased, cfg.DetectorType)
	require.Equal(t, "u1", cfg.UserID)

	require.Len(t, pub.published, 1)
	require.Equal(t, cfg, pub.published[0])
}

func TestDetectorSetRejectsUnknownType(t *testing.T) {
	s, _, _ := newTestServer()
	r := newGinRouter(s)

	body, _ := json.Marshal(map[string]string{"detector_type": "bogus", "user_id": "u1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, "/api/detector/set", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserBaselinesEmptyForUnknownUser(t *testing.T) {
	s, _, _ := newTestServer()
	r := newGinRouter(s)

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/api/user/baselines?user_id=ghost", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var snap models.UserBaselineSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Equal(t, "ghost", snap.UserID)
	require.Empty(t, snap.ActivityLevels)
}

func TestResetBaselinesRequiresUserID(t *testing.T) {
	s, _, _ := newTestServer()
	r := newGinRouter(s)

	body, _ := json.Marshal(map[string]string{"user_id": ""})
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, "/api/user/reset_baselines", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrendsReturnsAllFiveScales(t *testing.T) {
	s, _, _ := newTestServer()
	r := newGinRouter(s)

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/api/trends", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Trends map[string]map[string]models.TrendSeries `json:"trends"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Trends, len(models.AllTrendScales))
}

func TestAlertsHistoryFiltersByUserAndLimit(t *testing.T) {
	s, _, store := newTestServer()
	store.alerts = []models.Alert{
		{UserID: "alice", Parameter: models.ParamHeartRate},
		{UserID: "bob", Parameter: models.ParamHeartRate},
		{UserID: "alice", Parameter: models.ParamTemperature},
	}
	r := newGinRouter(s)

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/api/alerts/history?user_id=alice&limit=1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var alerts []models.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	require.Equal(t, "alice", alerts[0].UserID)
}

func TestLLMAnalysisWithoutProviderReturns502(t *testing.T) {
	s, _, _ := newTestServer()
	r := newGinRouter(s)

	body, _ := json.Marshal(llmAnalysisRequest{Parameter: "heart_rate", TimeScale: "1min", Unit: "bpm"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, "/api/trends/llm_analysis", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadGateway, w.Code)
}
