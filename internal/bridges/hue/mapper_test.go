package hue

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/zefau/huesync/internal/infrastructure/config"
	"github.com/zefau/huesync/internal/tree"
)

func assertValue(t *testing.T, store *tree.MemoryStore, path string, want any) {
	t.Helper()
	got, ok := store.Get(path)
	if !ok {
		t.Fatalf("%s: no value stored", path)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s = %v (%T), want %v (%T)", path, got, got, want, want)
	}
}

func assertAbsent(t *testing.T, store *tree.MemoryStore, path string) {
	t.Helper()
	if got, ok := store.Get(path); ok {
		t.Errorf("%s = %v, want no value", path, got)
	}
}

// ============================================================
// Lights
// ============================================================

func TestApplyPayloadMapsLights(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "lights.syncing", true)
	assertValue(t, store, "lights.kitchen-spot-001.action.on", true)
	assertValue(t, store, "lights.kitchen-spot-001.action.bri", 79.0)
	assertValue(t, store, "lights.kitchen-spot-001.action.level", 79.0)
	assertValue(t, store, "lights.kitchen-spot-001.state.reachable", true)
	assertValue(t, store, "lights.kitchen-spot-001.modelid", "LCT001")
	assertValue(t, store, "lights.kitchen-spot-001.type", "Extended color light")

	meta, ok := store.GetMeta("lights.kitchen-spot-001")
	if !ok {
		t.Fatal("no device container for light 1")
	}
	if meta.Role != "device" || meta.Description != "Kitchen Spot" {
		t.Errorf("device meta = %+v, want role device, description Kitchen Spot", meta)
	}

	meta, _ = store.GetMeta("lights")
	if meta.Role != "channel" || meta.Description != "Lights" {
		t.Errorf("channel meta = %+v, want role channel, description Lights", meta)
	}

	meta, _ = store.GetMeta("lights.kitchen-spot-001.action.bri")
	if !meta.Writable || meta.Unit != "%" || meta.Role != "level.dimmer" {
		t.Errorf("bri meta = %+v, want writable percent dimmer", meta)
	}
	meta, _ = store.GetMeta("lights.kitchen-spot-001.state.reachable")
	if meta.Writable {
		t.Error("reachable is writable, want read-only")
	}

	// Command leaves accept user writes, telemetry does not.
	if !store.Write("lights.kitchen-spot-001.action.on", true) {
		t.Error("write to action.on rejected, want subscribed")
	}
	if store.Write("lights.kitchen-spot-001.state.reachable", false) {
		t.Error("write to state.reachable accepted, want rejected")
	}
}

func TestApplyPayloadDerivesColorFields(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "lights.kitchen-spot-001.action.hue", 10000.0)
	assertValue(t, store, "lights.kitchen-spot-001.action.sat", 100.0)
	assertValue(t, store, "lights.kitchen-spot-001.action.ct", 366.0)
	assertValue(t, store, "lights.kitchen-spot-001.action.hue_degrees", 55.0)
	assertValue(t, store, "lights.kitchen-spot-001.action._hsv", "55,100,79")
	assertValue(t, store, "lights.kitchen-spot-001.action._rgb", "201,184,0")
	assertValue(t, store, "lights.kitchen-spot-001.action._hex", "#C9B800")
	assertValue(t, store, "lights.kitchen-spot-001.action._cmyk", "0,8,100,21")
	assertValue(t, store, "lights.kitchen-spot-001.action.xy", "0.4573,0.41")
	assertValue(t, store, "lights.kitchen-spot-001.action.transitiontime", 4.0)
	assertValue(t, store, "lights.kitchen-spot-001.action._commands", "")

	xyz, ok := store.Get("lights.kitchen-spot-001.action._xyz")
	if !ok {
		t.Fatal("no _xyz value")
	}
	if s, _ := xyz.(string); strings.Count(s, ",") != 2 {
		t.Errorf("_xyz = %q, want three comma-separated components", xyz)
	}

	// Scene recall is a group affordance, not a per-light one.
	assertAbsent(t, store, "lights.kitchen-spot-001.action.scene")

	// The dimmable light carries no color triple and gets no color leaves.
	assertAbsent(t, store, "lights.hall-002.action._rgb")
	assertAbsent(t, store, "lights.hall-002.action.hue_degrees")
}

func TestApplyPayloadBrightnessPowerCoupling(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	// The powered-off hall light reads as dark.
	assertValue(t, store, "lights.hall-002.action.on", false)
	assertValue(t, store, "lights.hall-002.action.bri", 0.0)
	assertValue(t, store, "lights.hall-002.action.level", 0.0)
	assertAbsent(t, store, "lights.hall-002.action.real_bri")

	// The powered-on light keeps a native shadow for later restore.
	assertValue(t, store, "lights.kitchen-spot-001.action.real_bri", 200.0)
}

func TestApplyPayloadDecoupledBrightness(t *testing.T) {
	cfg := newTestConfig()
	cfg.Commands.BrightnessTracksPower = false
	b, store, _ := newTestBridge(t, cfg)
	b.applyPayload(parsePayload(t, testPayload))

	// Without coupling the native brightness survives power-off.
	assertValue(t, store, "lights.hall-002.action.bri", 47.0)
	assertAbsent(t, store, "lights.hall-002.action.real_bri")
	assertAbsent(t, store, "lights.kitchen-spot-001.action.real_bri")
}

// ============================================================
// Groups and aggregates
// ============================================================

func TestApplyPayloadAggregatesAndVirtualGroup(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	if agg := b.currentAggregates(); agg.AllOn || !agg.AnyOn {
		t.Errorf("aggregates = %+v, want all_on=false any_on=true", agg)
	}

	meta, ok := store.GetMeta("groups.all-lights-000")
	if !ok {
		t.Fatal("virtual group was not synthesized")
	}
	if meta.Description != "All Lights" {
		t.Errorf("virtual group description = %q, want All Lights", meta.Description)
	}
	assertValue(t, store, "groups.all-lights-000.state.all_on", false)
	assertValue(t, store, "groups.all-lights-000.state.any_on", true)
	assertValue(t, store, "groups.all-lights-000.lights", "1,2")
	assertValue(t, store, "groups.all-lights-000.action.on", false)

	assertValue(t, store, "groups.kitchen-005.action.bri", 79.0)
	assertValue(t, store, "groups.kitchen-005.state.all_on", false)
	assertValue(t, store, "groups.kitchen-005.class", "Kitchen")
	assertValue(t, store, "groups.kitchen-005.lights", "1,2")
}

func TestApplyPayloadKeepsExplicitGroupZero(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, `{
		"lights": {"1": {"state": {"on": true, "bri": 100}, "name": "Solo", "type": "Dimmable light"}},
		"groups": {"0": {"name": "Every Light", "type": "LightGroup", "lights": ["1"],
		            "action": {"on": true, "bri": 100}}}
	}`))

	if _, ok := store.GetMeta("groups.every-light-000"); !ok {
		t.Error("bridge-reported group 0 was not mapped")
	}
	if _, ok := store.GetMeta("groups.all-lights-000"); ok {
		t.Error("virtual group synthesized although the bridge reported group 0")
	}
}

func TestApplyPayloadGroupSceneInput(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "groups.kitchen-005.action.scene", "")
	meta, _ := store.GetMeta("groups.kitchen-005.action.scene")
	if !meta.Writable {
		t.Error("group scene input is not writable")
	}
	if !store.Write("groups.kitchen-005.action.scene", "abc123") {
		t.Error("write to group scene input rejected")
	}
}

// ============================================================
// Scenes
// ============================================================

func TestApplyPayloadScenes(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	meta, ok := store.GetMeta("scenes.energize")
	if !ok {
		t.Fatal("scene name node missing")
	}
	if meta.Role != "channel" || meta.Description != "Energize" {
		t.Errorf("scene name meta = %+v, want channel role, Energize", meta)
	}

	meta, ok = store.GetMeta("scenes.energize.groupscene-5_abc123")
	if !ok {
		t.Fatal("scene device node missing")
	}
	if meta.Role != "device" {
		t.Errorf("scene device role = %q, want device", meta.Role)
	}

	assertValue(t, store, "scenes.energize.groupscene-5_abc123.action.trigger", false)
	meta, _ = store.GetMeta("scenes.energize.groupscene-5_abc123.action.trigger")
	if !meta.Writable {
		t.Error("scene trigger is not writable")
	}
	assertValue(t, store, "scenes.energize.groupscene-5_abc123.group", "5")
	assertValue(t, store, "scenes.energize.groupscene-5_abc123.lights", "1,2")
	assertValue(t, store, "scenes.energize.groupscene-5_abc123.version", 2.0)

	// The recycled scene is excluded by default.
	if _, ok := store.GetMeta("scenes.nightlight"); ok {
		t.Error("recycled scene was mapped although include_recycled is off")
	}
}

func TestApplyPayloadIncludeRecycled(t *testing.T) {
	cfg := newTestConfig()
	cfg.Sync.Channels["scenes"] = tweakChannel(true, true)
	b, store, _ := newTestBridge(t, cfg)
	b.applyPayload(parsePayload(t, testPayload))

	// A light scene without a group anchors on its first light.
	if _, ok := store.GetMeta("scenes.nightlight.lightscene-2_def456"); !ok {
		t.Error("recycled scene missing although include_recycled is on")
	}
}

// ============================================================
// Schedules and rules
// ============================================================

func TestApplyPayloadSchedules(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "schedules.wake-up-008.action.trigger", false)
	meta, _ := store.GetMeta("schedules.wake-up-008.action.trigger")
	if !meta.Writable {
		t.Error("schedule trigger is not writable")
	}

	raw, ok := store.Get("schedules.wake-up-008.action.options")
	if !ok {
		t.Fatal("schedule options missing")
	}
	options, _ := raw.(string)
	if strings.Contains(options, "testuser") {
		t.Errorf("options embed the API username: %s", options)
	}
	var replay struct {
		Address string         `json:"address"`
		Method  string         `json:"method"`
		Body    map[string]any `json:"body"`
	}
	if err := json.Unmarshal([]byte(options), &replay); err != nil {
		t.Fatalf("options are not JSON: %v", err)
	}
	if replay.Address != "groups/5/action" {
		t.Errorf("options address = %q, want groups/5/action", replay.Address)
	}
	if replay.Body["scene"] != "abc123" {
		t.Errorf("options body = %v, want scene abc123", replay.Body)
	}

	assertValue(t, store, "schedules.wake-up-008.status", "enabled")
	meta, _ = store.GetMeta("schedules.wake-up-008.status")
	if meta.Type != "string" {
		t.Errorf("schedule status type = %q, want string", meta.Type)
	}

	// The raw command object never reaches the tree.
	if _, ok := store.GetMeta("schedules.wake-up-008.command"); ok {
		t.Error("raw schedule command was mapped")
	}
}

func TestApplyPayloadRules(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "rules.dim-on-press-003.action.bri-inc.trigger", false)
	assertValue(t, store, "rules.dim-on-press-003.action.on.trigger", false)

	raw, ok := store.Get("rules.dim-on-press-003.action.bri-inc.options")
	if !ok {
		t.Fatal("rule action options missing")
	}
	options, _ := raw.(string)
	if strings.Contains(options, "testuser") {
		t.Errorf("rule options embed the API username: %s", options)
	}
	var replay struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal([]byte(options), &replay); err != nil {
		t.Fatalf("rule options are not JSON: %v", err)
	}
	if replay.Address != "groups/5/action" {
		t.Errorf("rule options address = %q, want groups/5/action", replay.Address)
	}

	assertValue(t, store, "rules.dim-on-press-003.conditions.0.operator", "eq")
	assertValue(t, store, "rules.dim-on-press-003.status", "enabled")
	meta, _ := store.GetMeta("rules.dim-on-press-003.status")
	if meta.Type != "string" {
		t.Errorf("rule status type = %q, want string", meta.Type)
	}
}

// ============================================================
// Sensors
// ============================================================

func TestApplyPayloadSensors(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "sensors.hall-motion-004.state.presence", false)
	meta, _ := store.GetMeta("sensors.hall-motion-004.state.presence")
	if meta.Role != "sensor.motion" {
		t.Errorf("presence role = %q, want sensor.motion", meta.Role)
	}

	// The enable toggle moves to the action channel but stays read-only:
	// sensors never accept commands.
	assertValue(t, store, "sensors.hall-motion-004.action.on", true)
	meta, _ = store.GetMeta("sensors.hall-motion-004.action.on")
	if meta.Description != "Enabled" || meta.Role != "switch" {
		t.Errorf("sensor on meta = %+v, want Enabled/switch", meta)
	}
	if meta.Writable {
		t.Error("sensor on is writable, want read-only")
	}
	if store.Write("sensors.hall-motion-004.action.on", false) {
		t.Error("write to sensor channel accepted, want rejected")
	}

	assertValue(t, store, "sensors.hall-motion-004.config.battery", 100.0)
	assertValue(t, store, "sensors.kitchen-temp-006.state.temperature", 23.56)
}

// ============================================================
// Config and info channels
// ============================================================

func TestApplyPayloadConfigChannel(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "config.syncing", true)
	assertValue(t, store, "config.bridgeid", "001788FFFE4AF1F1")
	assertValue(t, store, "config.zigbeechannel", 15.0)
	assertValue(t, store, "config.linkbutton", false)

	// Bridge casing is preserved in the path; descriptor lookup is not
	// case sensitive.
	assertValue(t, store, "config.UTC", "2023-04-01T12:00:00")
	meta, _ := store.GetMeta("config.UTC")
	if meta.Description != "Bridge UTC time" {
		t.Errorf("UTC description = %q, want Bridge UTC time", meta.Description)
	}

	// API keys are dropped.
	if _, ok := store.GetMeta("config.whitelist"); ok {
		t.Error("whitelist was mapped into the tree")
	}
}

func TestApplyPayloadInfoChannel(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "info.syncing", true)

	ts, ok := store.Get("info.timestamp")
	if !ok {
		t.Fatal("info.timestamp missing")
	}
	if f, _ := ts.(float64); f <= 0 {
		t.Errorf("info.timestamp = %v, want a positive Unix stamp", ts)
	}

	dt, ok := store.Get("info.datetime")
	if !ok {
		t.Fatal("info.datetime missing")
	}
	if _, err := time.Parse(timeLayout, dt.(string)); err != nil {
		t.Errorf("info.datetime %q does not parse: %v", dt, err)
	}

	// No command has been dispatched yet.
	assertValue(t, store, "info.lastAction.error", false)
	assertValue(t, store, "info.lastAction.lastCommand", "")
}

// ============================================================
// Channel selection and identifiers
// ============================================================

func TestApplyPayloadDisabledChannel(t *testing.T) {
	cfg := newTestConfig()
	cfg.Sync.Channels["sensors"] = tweakChannel(false, false)
	b, store, _ := newTestBridge(t, cfg)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "sensors.syncing", false)
	if _, ok := store.GetMeta("sensors.hall-motion-004"); ok {
		t.Error("disabled channel was mapped")
	}
}

func TestApplyPayloadDisabledLightsStaticVirtualGroup(t *testing.T) {
	cfg := newTestConfig()
	cfg.Sync.Channels["lights"] = tweakChannel(false, false)
	b, store, _ := newTestBridge(t, cfg)
	b.applyPayload(parsePayload(t, testPayload))

	assertValue(t, store, "lights.syncing", false)

	// The template survives without lights data so group 0 stays
	// commandable; members and aggregates need the lights channel.
	if _, ok := store.GetMeta("groups.all-lights-000"); !ok {
		t.Fatal("virtual group template missing without the lights channel")
	}
	assertValue(t, store, "groups.all-lights-000.action.on", false)
	assertAbsent(t, store, "groups.all-lights-000.lights")
	assertAbsent(t, store, "groups.all-lights-000.state.all_on")
	if !store.Write("groups.all-lights-000.action.on", true) {
		t.Error("write to the virtual group rejected")
	}
	if _, ok := store.GetMeta("groups.kitchen-005"); !ok {
		t.Error("real group missing")
	}
}

func TestApplyPayloadPrependIDPosition(t *testing.T) {
	cfg := newTestConfig()
	cfg.Sync.IDPosition = "prepend"
	b, store, _ := newTestBridge(t, cfg)
	b.applyPayload(parsePayload(t, testPayload))

	if _, ok := store.GetMeta("lights.001-kitchen-spot"); !ok {
		t.Error("prepend position was not applied to resource identifiers")
	}
}

func TestApplyPayloadUnnamedResource(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, `{
		"lights": {"7": {"state": {"on": false}, "type": "Dimmable light"}}
	}`))

	meta, ok := store.GetMeta("lights.007")
	if !ok {
		t.Fatal("unnamed resource was not mapped under its uid")
	}
	if meta.Description != "007" {
		t.Errorf("description = %q, want 007", meta.Description)
	}
}

func TestApplyPayloadIdempotent(t *testing.T) {
	b, store, _ := newTestBridge(t, nil)
	b.applyPayload(parsePayload(t, testPayload))

	var changed []string
	store.OnChange(func(c tree.Change) {
		// The info channel restamps every cycle.
		if c.Path == "info" || strings.HasPrefix(c.Path, "info.") {
			return
		}
		changed = append(changed, c.Path)
	})

	b.applyPayload(parsePayload(t, testPayload))

	if len(changed) != 0 {
		t.Errorf("second apply changed %d nodes: %v", len(changed), changed)
	}
	if got := b.applianceCount(); got != 9 {
		t.Errorf("appliance count = %d, want 9", got)
	}
}

// tweakChannel builds a channel override for a test configuration.
func tweakChannel(enabled, includeRecycled bool) config.ChannelConfig {
	return config.ChannelConfig{Enabled: enabled, IncludeRecycled: includeRecycled}
}
