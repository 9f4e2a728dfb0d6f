package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the topic prefix used when none is configured.
var DefaultPrefix = "huesync"

// Topics provides builders for huesync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Tree paths are dot-separated (lights.lamp-001.action.bri); on the wire
// the dots become topic levels:
//
//	topics := mqtt.Topics{Prefix: "huesync"}
//	stateTopic := topics.State("lights.lamp-001.action.bri")
//	// Returns: "huesync/state/lights/lamp-001/action/bri"
type Topics struct {
	// Prefix overrides the default topic prefix. Empty uses DefaultPrefix.
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix != "" {
		return t.Prefix
	}
	return DefaultPrefix
}

// State returns the retained state topic for a tree path.
//
// Example: huesync/state/lights/lamp-001/action/bri
func (t Topics) State(path string) string {
	return fmt.Sprintf("%s/state/%s", t.prefix(), PathToTopic(path))
}

// Meta returns the retained metadata topic for a tree path.
//
// Example: huesync/meta/lights/lamp-001/action/bri
func (t Topics) Meta(path string) string {
	return fmt.Sprintf("%s/meta/%s", t.prefix(), PathToTopic(path))
}

// Set returns the inbound write topic for a tree path.
// External clients publish here to request a state change.
//
// Example: huesync/set/lights/lamp-001/action/bri
func (t Topics) Set(path string) string {
	return fmt.Sprintf("%s/set/%s", t.prefix(), PathToTopic(path))
}

// AllSets returns a pattern matching every inbound write topic.
//
// Pattern: huesync/set/#
func (t Topics) AllSets() string {
	return fmt.Sprintf("%s/set/#", t.prefix())
}

// Health returns the retained health status topic.
//
// Example: huesync/health
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health", t.prefix())
}

// SystemStatus returns the online/offline status topic.
// This is also the Last Will topic, so crash detection and graceful
// shutdown share one retained message.
//
// Example: huesync/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// SetPath extracts the tree path from an inbound set topic.
// Returns false when the topic does not belong to this prefix's
// set namespace.
//
// Example: "huesync/set/lights/lamp-001/action/bri" -> "lights.lamp-001.action.bri"
func (t Topics) SetPath(topic string) (string, bool) {
	lead := t.prefix() + "/set/"
	if !strings.HasPrefix(topic, lead) {
		return "", false
	}
	rest := strings.TrimPrefix(topic, lead)
	if rest == "" {
		return "", false
	}
	return TopicToPath(rest), true
}

// PathToTopic converts a dotted tree path into topic levels.
func PathToTopic(path string) string {
	return strings.ReplaceAll(path, ".", "/")
}

// TopicToPath converts topic levels back into a dotted tree path.
func TopicToPath(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}
