// Package broker implements the Broker Gateway: one logical connection to
// the pub/sub broker, subscribed to the raw-vitals and config topics,
// publishing to the enriched-vitals, alerts, and config-echo topics, with
// bounded exponential-backoff reconnect.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/logging"
)

// Topics names the four topics the gateway subscribes or publishes to.
type Topics struct {
	Raw      string
	Vitals   string
	Alerts   string
	Config   string
}

// Config describes how to reach the broker.
type Config struct {
	Host   string
	Port   int
	Topics Topics
}

// RawHandler is invoked for each message received on the raw-vitals topic.
type RawHandler func(models.RawSample)

// ConfigHandler is invoked for each message received on the config topic.
type ConfigHandler func(models.DetectorConfig)

const (
	qosAtLeastOnce byte = 1
	qosFireAndForget byte = 0

	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// Gateway wraps an mqtt.Client with the reconnect/backoff and
// subscribe/publish contract the rest of the system depends on.
type Gateway struct {
	cfg    Config
	logger logging.Logger
	client mqtt.Client

	rawHandler    RawHandler
	configHandler ConfigHandler

	dropped atomic.Int64

	mu        sync.Mutex
	connected bool
}

// New constructs a Gateway. Connect must be called before it is useful.
func New(cfg Config, logger logging.Logger, rawHandler RawHandler, configHandler ConfigHandler) *Gateway {
	return &Gateway{
		cfg:           cfg,
		logger:        logger,
		rawHandler:    rawHandler,
		configHandler: configHandler,
	}
}

// IsConnected reports the current connection state, used by the broker
// health check.
func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected && g.client != nil && g.client.IsConnected()
}

// DroppedMessages returns the running count of unparseable payloads
// received and discarded.
func (g *Gateway) DroppedMessages() int64 {
	return g.dropped.Load()
}

// Connect dials the broker, blocking with capped exponential backoff
// (1, 2, 4, ..., 30s) until a connection succeeds or ctx is cancelled.
func (g *Gateway) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", g.cfg.Host, g.cfg.Port))
	opts.SetClientID("vitalguard")
	opts.SetAutoReconnect(false) // reconnect is driven explicitly below
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		g.logger.WithError(err).Warn("broker: connection lost, starting reconnect loop")
		g.mu.Lock()
		g.connected = false
		g.mu.Unlock()
		go g.reconnectLoop(ctx)
	})

	g.client = mqtt.NewClient(opts)

	backoff := minBackoff
	for {
		token := g.client.Connect()
		token.Wait()
		if err := token.Error(); err == nil {
			g.mu.Lock()
			g.connected = true
			g.mu.Unlock()
			return g.subscribe()
		} else {
			g.logger.WithError(err).Warn("broker: connect failed, backing off")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (g *Gateway) reconnectLoop(ctx context.Context) {
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		token := g.client.Connect()
		token.Wait()
		if err := token.Error(); err == nil {
			g.mu.Lock()
			g.connected = true
			g.mu.Unlock()
			if err := g.subscribe(); err != nil {
				g.logger.WithError(err).Error("broker: re-subscribe after reconnect failed")
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// subscribe (re-)subscribes to the raw-vitals and config topics at QoS 1.
// Safe to call repeatedly: paho replaces the prior subscription for the
// same topic rather than duplicating it.
func (g *Gateway) subscribe() error {
	if token := g.client.Subscribe(g.cfg.Topics.Raw, qosAtLeastOnce, g.onRawMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("broker: subscribe %s: %w", g.cfg.Topics.Raw, token.Error())
	}
	if token := g.client.Subscribe(g.cfg.Topics.Config, qosAtLeastOnce, g.onConfigMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("broker: subscribe %s: %w", g.cfg.Topics.Config, token.Error())
	}
	return nil
}

func (g *Gateway) onRawMessage(_ mqtt.Client, msg mqtt.Message) {
	g.handleRawPayload(msg.Payload())
}

func (g *Gateway) onConfigMessage(_ mqtt.Client, msg mqtt.Message) {
	g.handleConfigPayload(msg.Payload())
}

// handleRawPayload decodes one raw-vitals payload and dispatches it, or
// increments the dropped-message counter on malformed JSON. Split from
// onRawMessage so it can be exercised without a live mqtt.Message.
func (g *Gateway) handleRawPayload(payload []byte) {
	var sample models.RawSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		g.dropped.Add(1)
		g.logger.WithFields(logging.Fields{"preview": preview(payload)}).
			Warn("broker: dropped unparseable raw-vitals message")
		return
	}
	g.rawHandler(sample)
}

func (g *Gateway) handleConfigPayload(payload []byte) {
	var cfg models.DetectorConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		g.dropped.Add(1)
		g.logger.WithFields(logging.Fields{"preview": preview(payload)}).
			Warn("broker: dropped unparseable config message")
		return
	}
	g.configHandler(cfg)
}

func preview(payload []byte) string {
	const max = 128
	if len(payload) > max {
		return string(payload[:max]) + "..."
	}
	return string(payload)
}

// PublishVitals publishes an enriched sample at QoS 0 (fire-and-forget).
func (g *Gateway) PublishVitals(sample models.EnrichedSample) {
	g.publish(g.cfg.Topics.Vitals, sample)
}

// PublishAlert publishes an alert at QoS 0.
func (g *Gateway) PublishAlert(alert models.Alert) {
	g.publish(g.cfg.Topics.Alerts, alert)
}

// PublishConfig echoes the active detector configuration at QoS 0.
func (g *Gateway) PublishConfig(cfg models.DetectorConfig) {
	g.publish(g.cfg.Topics.Config, cfg)
}

func (g *Gateway) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.logger.WithError(err).Error("broker: marshal publish payload failed")
		return
	}
	token := g.client.Publish(topic, qosFireAndForget, false, data)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			g.logger.WithError(err).WithFields(logging.Fields{"topic": topic}).
				Warn("broker: publish failed")
		}
	}()
}

// Close disconnects from the broker, waiting up to 250ms for in-flight
// work to flush.
func (g *Gateway) Close() {
	if g.client != nil && g.client.IsConnected() {
		g.client.Disconnect(250)
	}
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
}
