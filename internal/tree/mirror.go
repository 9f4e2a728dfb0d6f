package tree

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zefau/huesync/internal/infrastructure/config"
	"github.com/zefau/huesync/internal/infrastructure/logging"
	"github.com/zefau/huesync/internal/infrastructure/mqtt"
)

// Broker is the MQTT surface the mirror needs. *mqtt.Client implements
// it; tests substitute a fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Mirror replicates the state tree onto MQTT and feeds inbound set
// messages back into the store as user writes.
//
// Outbound, every node change becomes a retained publish: values on
// <prefix>/state/<path>, metadata on <prefix>/meta/<path>, with dots in
// the tree path translated to topic slashes. A cleared value is
// published as an empty retained payload, which deletes the topic on
// the broker.
//
// Inbound, the mirror subscribes to <prefix>/set/# and writes each
// message to the corresponding tree path. Writes to paths the sync
// engine never subscribed (read-only state, unknown devices) are
// dropped with a warning.
type Mirror struct {
	store  *MemoryStore
	broker Broker
	topics mqtt.Topics
	qos    byte
	logger *logging.Logger
}

// NewMirror creates a mirror for store publishing through broker.
//
// Parameters:
//   - store: Tree to replicate
//   - broker: Connected MQTT client
//   - cfg: MQTT configuration (topic prefix and QoS)
//   - logger: Logger (nil for default)
//
// Returns:
//   - *Mirror: Mirror ready for Start
func NewMirror(store *MemoryStore, broker Broker, cfg config.MQTTConfig, logger *logging.Logger) *Mirror {
	if logger == nil {
		logger = logging.Default()
	}
	return &Mirror{
		store:  store,
		broker: broker,
		topics: mqtt.Topics{Prefix: cfg.TopicPrefix},
		qos:    byte(cfg.QoS),
		logger: logger,
	}
}

// Start attaches the mirror to the store and subscribes to set topics.
// Call before the first sync pass so no change is missed.
func (m *Mirror) Start() error {
	m.store.OnChange(m.publishChange)
	if err := m.broker.Subscribe(m.topics.AllSets(), m.qos, m.handleSet); err != nil {
		return fmt.Errorf("subscribing to set topics: %w", err)
	}
	return nil
}

// Resync republishes every node. Wire it to the client's reconnect
// callback: changes published while the broker was unreachable are lost,
// and a full replay restores the retained topics.
func (m *Mirror) Resync() {
	nodes := m.store.Snapshot()
	for _, n := range nodes {
		m.publishChange(Change{
			Path:         n.Path,
			Meta:         n.Meta,
			Value:        n.Value,
			MetaUpdated:  true,
			ValueUpdated: n.Value != nil,
		})
	}
	m.logger.Debug("tree republished to broker", "nodes", len(nodes))
}

// publishChange pushes a single store change to the broker. Publish
// failures are logged, not returned: the store must never block on the
// broker, and Resync repairs retained topics after a reconnect.
func (m *Mirror) publishChange(c Change) {
	if c.MetaUpdated {
		payload, err := json.Marshal(c.Meta)
		if err != nil {
			m.logger.Error("encoding node metadata", "path", c.Path, "error", err)
		} else if err := m.broker.Publish(m.topics.Meta(c.Path), payload, m.qos, true); err != nil {
			m.logger.Warn("publishing node metadata", "path", c.Path, "error", err)
		}
	}

	if !c.ValueUpdated {
		return
	}

	topic := m.topics.State(c.Path)
	if c.Value == nil {
		// Empty retained payload deletes the topic on the broker.
		if err := m.broker.Publish(topic, nil, m.qos, true); err != nil {
			m.logger.Warn("clearing state topic", "path", c.Path, "error", err)
		}
		return
	}

	payload, err := json.Marshal(c.Value)
	if err != nil {
		m.logger.Error("encoding node value", "path", c.Path, "error", err)
		return
	}
	if err := m.broker.Publish(topic, payload, m.qos, true); err != nil {
		m.logger.Warn("publishing node value", "path", c.Path, "error", err)
	}
}

// handleSet processes an inbound set message.
func (m *Mirror) handleSet(topic string, payload []byte) error {
	path, ok := m.topics.SetPath(topic)
	if !ok {
		return fmt.Errorf("not a set topic: %s", topic)
	}

	value := decodeSetPayload(payload)
	if !m.store.Write(path, value) {
		m.logger.Warn("write to unknown or read-only path ignored", "path", path)
	}
	return nil
}

// decodeSetPayload interprets an inbound payload as JSON, falling back
// to the raw string for bare values like ON or an xy pair "0.2,0.44".
func decodeSetPayload(payload []byte) any {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err == nil {
		return v
	}
	return string(trimmed)
}
