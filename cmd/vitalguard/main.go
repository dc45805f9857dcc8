package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/api"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/baseline"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/broker"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/detector"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/ingest"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/store"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/trend"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/config"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/database"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/llm"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/logging"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/monitoring"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/server"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/version"
)

// shutdownGrace is the graceful-shutdown budget for the HTTP listener,
// overriding pkg/server's own 30s default.
const shutdownGrace = 10 * time.Second

func main() {
	logger := logging.NewLoggerWithService("vitalguard")
	config.LoadEnv(logger)

	logger.Info("Starting VitalGuard (Smart Health Monitoring and Alert System)")

	mqttBroker := config.RequireEnv("MQTT_BROKER")
	mqttPort, err := strconv.Atoi(config.RequireEnv("MQTT_PORT"))
	if err != nil {
		logger.WithError(err).Fatal("MQTT_PORT must be an integer")
	}
	topics := broker.Topics{
		Raw:    config.RequireEnv("MQTT_RAW_TOPIC"),
		Vitals: config.RequireEnv("MQTT_VITALS_TOPIC"),
		Alerts: config.RequireEnv("MQTT_ALERTS_TOPIC"),
		Config: config.RequireEnv("MQTT_CONFIG_TOPIC"),
	}

	dbHost := config.RequireEnv("DB_HOST")
	dbPort := config.RequireEnv("DB_PORT")
	dbName := config.RequireEnv("DB_NAME")
	dbUser := config.RequireEnv("DB_USER")
	dbPassword := config.RequireEnv("DB_PASSWORD")

	httpPort := config.RequireEnv("FLASK_PORT")

	dbCfg := database.DefaultConfig()
	dbCfg.URL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPassword, dbHost, dbPort, dbName)
	dbCfg.MaxOpenConns = 8
	dbCfg.MaxIdleConns = 8
	db := database.MustConnect(dbCfg, logger)
	defer func() { _ = db.Close() }()

	vitalsStore := store.New(db, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := vitalsStore.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to apply vitals/alerts schema")
	}

	registry := baseline.NewRegistry()
	aggregator := trend.New(vitalsStore)

	llmCfg := llm.LoadConfig()
	var llmProxy *api.LLMProxy
	if llmCfg.APIKey != "" && llmCfg.APIURL != "" {
		provider, err := llm.NewProvider(llmCfg)
		if err != nil {
			logger.WithError(err).Warn("LLM provider misconfigured, trend analysis endpoint disabled")
		} else {
			llmProxy = api.NewLLMProxy(provider, llmCfg.Model)
		}
	} else {
		logger.Warn("LLM_BASE_URL/LLM_API_KEY not set, trend analysis endpoint disabled")
	}

	var gateway *broker.Gateway

	nextAlertID := monotonicIDs()
	newDetector := func(cfg models.DetectorConfig) detector.Detector {
		if cfg.DetectorType == models.DetectorUserBaseline {
			return detector.NewUserBaselineDetector(registry, nextAlertID)
		}
		return detector.NewRangeDetector(nextAlertID)
	}

	apiServer := api.NewServer(logger, registry, vitalsStore, aggregator, gatewayPublisher{&gateway}, llmProxy, newDetector)

	pipeline := ingest.New(0, vitalsStore, registry, apiServer.CurrentDetector, gatewayPublisher{&gateway}, logger)
	pipeline.Start(ctx)

	gateway = broker.New(
		broker.Config{Host: mqttBroker, Port: mqttPort, Topics: topics},
		logger,
		func(sample models.RawSample) { pipeline.Submit(ctx, sample) },
		func(cfg models.DetectorConfig) { apiServer.ApplyRemoteDetectorConfig(cfg) },
	)
	if err := gateway.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to broker")
	}
	defer gateway.Close()

	healthChecker := monitoring.NewHealthChecker("vitalguard", version.Version)
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("broker", monitoring.BrokerHealthCheck(gateway))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"MQTT_BROKER": mqttBroker,
		"DB_HOST":     dbHost,
	}))
	metricsCollector := monitoring.NewMetricsCollector("vitalguard", version.Version, version.GitCommit)
	brokerMessages, _, pipelineGauge := metricsCollector.CreateBrokerMetrics()
	_, _, dbConnections := metricsCollector.CreateDatabaseMetrics()
	go reportBackgroundMetrics(ctx, db, gateway, pipeline, brokerMessages, pipelineGauge, dbConnections)

	router := server.SetupServiceRouter(logger, "vitalguard", healthChecker, metricsCollector)
	apiServer.RegisterRoutes(router)

	serverCfg := server.DefaultConfig("vitalguard", httpPort)
	serverCfg.ShutdownGrace = shutdownGrace

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		if err := server.Start(serverCfg, router, logger); err != nil {
			logger.WithError(err).Error("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down VitalGuard...")
	cancel()
	select {
	case <-serverDone:
	case <-time.After(shutdownGrace):
	}
	logger.Info("VitalGuard stopped")
}

// monotonicIDs returns a counter shared across every detector strategy this
// process constructs, so alert IDs stay unique even across a detector
// switch. IDs only need to be unique within a running process, never across
// restarts.
func monotonicIDs() func() int64 {
	var n atomic.Int64
	return func() int64 { return n.Add(1) }
}

// gatewayPublisher defers dereferencing the broker.Gateway until first use,
// since the pipeline and API server are constructed before the gateway
// itself (the gateway's raw/config handlers close over them).
type gatewayPublisher struct {
	gateway **broker.Gateway
}

func (p gatewayPublisher) PublishVitals(sample models.EnrichedSample) { (*p.gateway).PublishVitals(sample) }
func (p gatewayPublisher) PublishAlert(alert models.Alert)            { (*p.gateway).PublishAlert(alert) }
func (p gatewayPublisher) PublishConfig(cfg models.DetectorConfig)    { (*p.gateway).PublishConfig(cfg) }

// reportBackgroundMetrics polls the store, broker, and pipeline counters
// every 5s and republishes them as Prometheus gauges/counters, since none
// of those three track their own state through the collector directly.
func reportBackgroundMetrics(
	ctx context.Context,
	db database.PostgresConn,
	gateway *broker.Gateway,
	pipeline *ingest.Pipeline,
	brokerMessages *prometheus.CounterVec,
	queueGauge *prometheus.GaugeVec,
	dbConnections *prometheus.GaugeVec,
) {
	var lastDropped int64
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dbConnections.WithLabelValues("postgres").Set(float64(db.Stats().OpenConnections))

			dropped := gateway.DroppedMessages()
			if delta := dropped - lastDropped; delta > 0 {
				brokerMessages.WithLabelValues("raw", "unmarshal", "dropped").Add(float64(delta))
			}
			lastDropped = dropped

			processed, rejected := pipeline.Stats()
			queueGauge.WithLabelValues("processed").Set(float64(processed))
			queueGauge.WithLabelValues("rejected").Set(float64(rejected))
		}
	}
}
