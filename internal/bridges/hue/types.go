package hue

import (
	"encoding/json"
	"time"
)

// Resource channels of the v1 bridge API. Each channel is both a
// top-level namespace in the state tree and a set of mapping rules.
const (
	ChannelLights    = "lights"
	ChannelGroups    = "groups"
	ChannelConfig    = "config"
	ChannelScenes    = "scenes"
	ChannelSchedules = "schedules"
	ChannelRules     = "rules"
	ChannelSensors   = "sensors"
	ChannelInfo      = "info"
)

// Scene subtypes with a command mapping.
const (
	SceneTypeGroup = "GroupScene"
	SceneTypeLight = "LightScene"
)

// timeLayout is the human-readable stamp used throughout the tree.
const timeLayout = "2006-01-02 15:04:05"

// Appliance describes one commandable bridge resource, registered while
// its payload is mapped into the tree. User writes are resolved back to
// an appliance by longest path prefix.
type Appliance struct {
	// Channel is the resource channel (lights, groups, scenes, ...).
	Channel string

	// UID is the bridge-side resource id ("1", "3", a scene uid).
	UID string

	// Path is the tree path of the resource root
	// (e.g. "lights.lamp-001", "scenes.energize.groupscene-5_3").
	Path string

	// Name is the bridge-reported resource name.
	Name string

	// Type is the bridge-reported resource type
	// (e.g. "Extended color light", "GroupScene").
	Type string

	// Group is the owning group id, set for group scenes.
	Group string

	// Trigger is the bridge-relative command address
	// (e.g. "lights/1/state"). Scenes, schedules and rules resolve
	// theirs at command time.
	Trigger string

	// Method overrides the HTTP method for dispatch. Empty means PUT.
	Method string
}

// ActionRecord is the last-attempt telemetry kept per appliance and
// mirrored at the root info path. It is updated after every dispatch,
// success or failure, and never deleted.
type ActionRecord struct {
	// Timestamp is the dispatch time in Unix seconds.
	Timestamp int64

	// Datetime is the dispatch time as a human-readable string.
	Datetime string

	// LastCommand is the serialized command object that was sent.
	LastCommand string

	// LastResult is the serialized bridge response, or a synthesized
	// error array for transport failures.
	LastResult string

	// Error reports whether any element of the response was an error.
	Error bool
}

// newActionRecord stamps a record for a command about to be dispatched.
func newActionRecord(now time.Time, command map[string]any) ActionRecord {
	serialized, err := json.Marshal(command)
	if err != nil {
		serialized = []byte("{}")
	}
	return ActionRecord{
		Timestamp:   now.Unix(),
		Datetime:    now.Format(timeLayout),
		LastCommand: string(serialized),
	}
}

// Aggregates holds the global on-state fold computed once per lights
// pass: allOn is the AND over every light's on flag, anyOn the OR.
type Aggregates struct {
	AllOn bool `json:"all_on"`
	AnyOn bool `json:"any_on"`
}

// resetAggregates returns the fold's seed values for a fresh pass.
func resetAggregates() Aggregates {
	return Aggregates{AllOn: true, AnyOn: false}
}

// fold merges one light's on flag into the aggregates.
func (a *Aggregates) fold(on bool) {
	a.AllOn = a.AllOn && on
	a.AnyOn = a.AnyOn || on
}
