// Package api implements the Query/Control API: stateless HTTP-over-JSON
// endpoints for detector inspection/switching, baseline inspection/reset,
// trend queries, alert history, and the LLM trend-analysis proxy.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/baseline"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/detector"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/trend"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/logging"
)

// ConfigPublisher echoes a detector configuration change over the broker.
type ConfigPublisher interface {
	PublishConfig(models.DetectorConfig)
}

// AlertHistoryStore is the subset of internal/store.Store the alert
// history endpoint needs.
type AlertHistoryStore interface {
	QueryAlertHistory(ctx context.Context, userID string, limit int) ([]models.Alert, error)
}

// DetectorFactory builds a concrete Detector for a given DetectorConfig.
type DetectorFactory func(models.DetectorConfig) detector.Detector

// Server holds every dependency the API handlers close over. All fields
// are safe for concurrent use once constructed.
type Server struct {
	logger    logging.Logger
	registry  *baseline.Registry
	store     AlertHistoryStore
	aggregator *trend.Aggregator
	publisher ConfigPublisher
	llm       *LLMProxy
	newDetector DetectorFactory

	mu     sync.Mutex
	active models.DetectorConfig
	current detector.Detector
}

// NewServer constructs the API server with an initial (default)
// DetectorConfig of {range_based, "default"}.
func NewServer(
	logger logging.Logger,
	registry *baseline.Registry,
	store AlertHistoryStore,
	aggregator *trend.Aggregator,
	publisher ConfigPublisher,
	llm *LLMProxy,
	newDetector DetectorFactory,
) *Server {
	initial := models.DetectorConfig{DetectorType: models.DetectorRangeBased, UserID: "default"}
	s := &Server{
		logger:      logger,
		registry:    registry,
		store:       store,
		aggregator:  aggregator,
		publisher:   publisher,
		llm:         llm,
		newDetector: newDetector,
		active:      initial,
	}
	s.current = newDetector(initial)
	return s
}

// CurrentDetector returns the active Detector. Its method value serves as
// the ingestion pipeline's DetectorSource, so the pipeline always reads the
// latest active strategy.
func (s *Server) CurrentDetector() detector.Detector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ApplyRemoteDetectorConfig swaps the active strategy in response to a
// config message received over the broker's config topic, without
// re-publishing it — the message already came from that topic, so echoing
// it back would loop forever.
func (s *Server) ApplyRemoteDetectorConfig(cfg models.DetectorConfig) {
	s.mu.Lock()
	s.active = cfg
	s.current = s.newDetector(cfg)
	s.mu.Unlock()
}

// RegisterRoutes wires every endpoint onto router's /api group.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api")
	group.GET("/detector/current", s.handleDetectorCurrent)
	group.POST("/detector/set", s.handleDetectorSet)
	group.GET("/user/baselines", s.handleUserBaselines)
	group.POST("/user/reset_baselines", s.handleUserResetBaselines)
	group.GET("/trends", s.handleTrends)
	group.GET("/alerts/history", s.handleAlertsHistory)
	group.POST("/trends/llm_analysis", s.handleLLMAnalysis)
}

func (s *Server) handleDetectorCurrent(c *gin.Context) {
	s.mu.Lock()
	cfg := s.active
	s.mu.Unlock()
	c.JSON(http.StatusOK, cfg)
}

type detectorSetRequest struct {
	DetectorType string `json:"detector_type"`
	UserID       string `json:"user_id"`
}

func (s *Server) handleDetectorSet(c *gin.Context) {
	var req detectorSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if !models.ValidDetectorType(req.DetectorType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown detector_type %q", req.DetectorType)})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	cfg := models.DetectorConfig{DetectorType: models.DetectorType(req.DetectorType), UserID: req.UserID}

	// Single-writer discipline: the lock is held only for the pointer
	// swap, never across the publish call.
	s.mu.Lock()
	s.active = cfg
	s.current = s.newDetector(cfg)
	s.mu.Unlock()

	s.publisher.PublishConfig(cfg)

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleUserBaselines(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		userID = "default"
	}
	c.JSON(http.StatusOK, s.registry.Stats(userID))
}

type resetBaselinesRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleUserResetBaselines(c *gin.Context) {
	var req resetBaselinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	s.registry.Reset(req.UserID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleTrends(c *gin.Context) {
	envelope, err := s.aggregator.Query(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("api: trend query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query trends"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": envelope})
}

func (s *Server) handleAlertsHistory(c *gin.Context) {
	userID := c.Query("user_id")
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	alerts, err := s.store.QueryAlertHistory(c.Request.Context(), userID, limit)
	if err != nil {
		s.logger.WithError(err).Error("api: alert history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query alert history"})
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}
