package hue

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// serviceName identifies this service in health messages.
const serviceName = "huesync"

// Health states reported over MQTT.
const (
	HealthStarting  = "starting"
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
	HealthStopping  = "stopping"
	HealthOffline   = "offline"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the MQTT surface the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// BridgeConnection describes the bridge link inside a health message.
type BridgeConnection struct {
	Status      string     `json:"status"`
	Address     string     `json:"address,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// SyncStatistics carries the transport counters.
type SyncStatistics struct {
	RequestsTotal uint64 `json:"requests_total"`
	ErrorsTotal   uint64 `json:"errors_total"`
}

// HealthMessage is the JSON document published to the health topic.
type HealthMessage struct {
	Service       string            `json:"service"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Bridge        *BridgeConnection `json:"bridge,omitempty"`
	Statistics    *SyncStatistics   `json:"statistics,omitempty"`
	Appliances    int               `json:"appliances"`
	Reason        string            `json:"reason,omitempty"`
}

// HealthReporterConfig holds the settings for a health reporter.
type HealthReporterConfig struct {
	// Topic is the MQTT topic health messages are published to.
	Topic string

	// Version is the service version included in every message.
	Version string

	// BridgeAddress is the host:port shown in the bridge section.
	BridgeAddress string

	// Interval paces periodic reports. Zero means 30s.
	Interval time.Duration

	// Publisher delivers the messages. Required.
	Publisher HealthPublisher

	// Client supplies bridge reachability and counters. May be nil.
	Client Connector

	// Logger receives publish failures. May be nil.
	Logger Logger
}

// HealthReporter periodically publishes service health to MQTT as a
// retained message, so late subscribers always see the latest state.
type HealthReporter struct {
	topic         string
	version       string
	bridgeAddress string
	interval      time.Duration
	startTime     time.Time

	publisher HealthPublisher
	client    Connector

	mu             sync.RWMutex
	applianceCount int
	terminalReason string

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. It does not publish until
// PublishStarting or Start is called.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		topic:         cfg.Topic,
		version:       cfg.Version,
		bridgeAddress: cfg.BridgeAddress,
		interval:      interval,
		startTime:     time.Now(),
		publisher:     cfg.Publisher,
		client:        cfg.Client,
		done:          make(chan struct{}),
		logger:        cfg.Logger,
	}
}

// Start begins periodic reporting until the context ends or Stop is
// called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop publishes a final stopping message and ends the report loop.
// Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		h.publishStatus(HealthStopping, "shutdown requested")
		close(h.done)
		h.wg.Wait()
	})
}

// PublishStarting announces the service before the first sync cycle.
func (h *HealthReporter) PublishStarting() {
	h.publishStatus(HealthStarting, "")
}

// PublishNow evaluates the current status and publishes it.
func (h *HealthReporter) PublishNow() {
	status, reason := h.determineStatus()
	h.publishStatus(status, reason)
}

// SetApplianceCount updates the registry size included in reports.
func (h *HealthReporter) SetApplianceCount(count int) {
	h.mu.Lock()
	h.applianceCount = count
	h.mu.Unlock()
}

// SetTerminal marks the sync as terminally failed. Every following
// report is unhealthy with the given reason.
func (h *HealthReporter) SetTerminal(reason string) {
	h.mu.Lock()
	h.terminalReason = reason
	h.mu.Unlock()
	h.PublishNow()
}

// GetLWTTopic returns the topic for the broker-side last will.
func (h *HealthReporter) GetLWTTopic() string {
	return h.topic
}

// GetLWTPayload returns the message the broker publishes on our behalf
// if the connection dies without a clean stop.
func (h *HealthReporter) GetLWTPayload() []byte {
	payload, err := json.Marshal(HealthMessage{
		Service:   serviceName,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Version:   h.version,
		Reason:    "unexpected_disconnect",
	})
	if err != nil {
		return []byte(`{"status":"offline"}`)
	}
	return payload
}

// SetLogger replaces the reporter's logger.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	defer h.loggerMu.Unlock()
	h.logger = logger
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.PublishNow()
		}
	}
}

// determineStatus derives the health state from the terminal flag and
// both connection directions.
func (h *HealthReporter) determineStatus() (status, reason string) {
	h.mu.RLock()
	terminal := h.terminalReason
	h.mu.RUnlock()

	switch {
	case terminal != "":
		return HealthUnhealthy, terminal
	case !h.publisher.IsConnected():
		return HealthDegraded, "MQTT disconnected"
	case h.client != nil && !h.client.IsConnected():
		return HealthDegraded, "bridge unreachable"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status, reason string) {
	payload, err := json.Marshal(h.message(status, reason))
	if err != nil {
		h.logError("marshal health message", err)
		return
	}
	if err := h.publisher.Publish(h.topic, payload, 1, true); err != nil {
		h.logError("publish health message", err)
	}
}

func (h *HealthReporter) message(status, reason string) HealthMessage {
	h.mu.RLock()
	appliances := h.applianceCount
	h.mu.RUnlock()

	msg := HealthMessage{
		Service:       serviceName,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Appliances:    appliances,
		Reason:        reason,
	}
	if h.client != nil {
		stats := h.client.Stats()
		bridge := &BridgeConnection{Status: "disconnected", Address: h.bridgeAddress}
		if stats.Reachable {
			bridge.Status = "connected"
		}
		if !stats.LastSuccess.IsZero() {
			last := stats.LastSuccess.UTC()
			bridge.LastSuccess = &last
		}
		msg.Bridge = bridge
		msg.Statistics = &SyncStatistics{
			RequestsTotal: stats.RequestsTotal,
			ErrorsTotal:   stats.ErrorsTotal,
		}
	}
	return msg
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
