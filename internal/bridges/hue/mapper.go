package hue

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zefau/huesync/internal/infrastructure/config"
	"github.com/zefau/huesync/internal/tree"
)

// The bridge never reports the implicit all-lights group, so one is
// synthesized per cycle from the lights payload.
const (
	virtualGroupUID  = "0"
	virtualGroupName = "All Lights"
)

// applyPayload maps one full bridge payload into the tree.
//
// Channels are applied in canonical order, so the lights pass has
// folded its aggregates before the groups pass synthesizes the
// all-lights group. Unknown top-level keys are ignored; disabled
// channels keep their root node but are marked as not syncing.
func (b *Bridge) applyPayload(payload map[string]any) {
	now := time.Now()

	b.write(ChannelInfo, containerMeta("channel", "Info"), nil)
	b.write("info.syncing", lookupDescriptor("info.syncing").meta(false), true)
	b.write("info.timestamp", lookupDescriptor("info.timestamp").meta(false), float64(now.Unix()))
	b.write("info.datetime", lookupDescriptor("info.datetime").meta(false), now.Format(timeLayout))
	b.writeActionRecord("info.lastAction", b.lastRootAction())

	for _, channel := range config.ChannelNames {
		raw, present := payload[channel]
		if !present {
			continue
		}
		channelCfg := b.cfg.Channel(channel)
		b.write(channel, containerMeta("channel", humanize(channel)), nil)
		b.write(channel+".syncing", lookupDescriptor(channel+".syncing").meta(false), channelCfg.Enabled)
		if !channelCfg.Enabled {
			continue
		}
		data, ok := raw.(map[string]any)
		if !ok {
			b.logWarn("channel payload is not an object", "channel", channel)
			continue
		}
		b.mapChannel(channel, data, payload)
	}
}

// mapChannel maps one enabled channel's payload.
func (b *Bridge) mapChannel(channel string, data map[string]any, payload map[string]any) {
	if channel == ChannelConfig {
		// The config channel is a flat settings object, not a uid map.
		// The whitelist is dropped: API keys don't belong in the tree.
		for _, key := range sortedKeys(data) {
			if strings.EqualFold(key, "whitelist") {
				continue
			}
			b.mapNode(channel, channel, key, data[key])
		}
		return
	}

	switch channel {
	case ChannelLights:
		b.aggMu.Lock()
		b.aggregates = resetAggregates()
		b.aggMu.Unlock()
	case ChannelGroups:
		b.injectVirtualGroup(data, payload)
	}

	for _, uid := range sortedKeys(data) {
		resource, ok := data[uid].(map[string]any)
		if !ok {
			b.logWarn("resource payload is not an object", "channel", channel, "uid", uid)
			continue
		}
		b.mapResource(channel, uid, resource)
	}
}

// mapResource maps one bridge resource under its derived identifier and
// registers the matching appliance.
func (b *Bridge) mapResource(channel, uid string, fields map[string]any) {
	if recycled, ok := fields["recycle"].(bool); ok && recycled && !b.cfg.Channel(channel).IncludeRecycled {
		return
	}

	name := stringVal(fields["name"])
	segment := b.resourceSegment(channel, uid, name)
	path := channel + "." + segment

	description := name
	if description == "" {
		description = humanize(segment)
	}

	if channel == ChannelScenes {
		b.write(path, containerMeta("channel", description), nil)
		b.mapScene(path, uid, name, fields)
		return
	}

	b.write(path, containerMeta("device", description), nil)

	switch channel {
	case ChannelRules:
		rewriteRuleActions(fields)
	case ChannelSchedules:
		rewriteScheduleCommand(fields)
	}

	b.registerAppliance(&Appliance{
		Channel: channel,
		UID:     uid,
		Path:    path,
		Name:    name,
		Type:    stringVal(fields["type"]),
		Trigger: defaultTrigger(channel, uid),
	})

	for _, key := range sortedKeys(fields) {
		b.mapNode(channel, path, key, fields[key])
	}
}

// mapScene maps a scene's contents into a sub-channel keyed by type,
// anchor resource and uid, so two same-named scenes on different
// groups stay distinguishable below the shared name node.
func (b *Bridge) mapScene(path, uid, name string, fields map[string]any) {
	sceneType := stringVal(fields["type"])
	group := stringVal(fields["group"])

	anchor := group
	if anchor == "" {
		if lights, ok := fields["lights"].([]any); ok && len(lights) > 0 {
			anchor = stringVal(lights[0])
		}
	}
	if anchor == "" {
		anchor = "0"
	}

	subPath := path + "." + cleanID(strings.ToLower(sceneType)+"-"+anchor+"_"+uid)
	description := name
	if description == "" {
		description = humanize(uid)
	}
	b.write(subPath, containerMeta("device", description), nil)

	switch sceneType {
	case SceneTypeGroup, SceneTypeLight:
		if _, ok := fields["action"]; !ok {
			fields["action"] = map[string]any{"trigger": false}
		}
	}

	b.registerAppliance(&Appliance{
		Channel: ChannelScenes,
		UID:     uid,
		Path:    subPath,
		Name:    name,
		Type:    sceneType,
		Group:   group,
	})

	for _, key := range sortedKeys(fields) {
		b.mapNode(ChannelScenes, subPath, key, fields[key])
	}
}

// mapNode recursively maps one payload value onto tree nodes.
func (b *Bridge) mapNode(channel, parentPath, key string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case map[string]any:
		path := parentPath + "." + cleanID(key)
		b.write(path, containerMeta("channel", humanize(cleanID(key))), nil)
		b.mapObject(channel, path, key, v)
	case []any:
		if isJoinedList(key) {
			b.writeLeaf(channel, parentPath, key, joinList(v))
			return
		}
		path := parentPath + "." + cleanID(key)
		b.write(path, containerMeta("channel", humanize(cleanID(key))), nil)
		for i, element := range v {
			b.mapNode(channel, path, strconv.Itoa(i), element)
		}
	default:
		b.writeLeaf(channel, parentPath, key, v)
	}
}

// mapObject maps a nested object, deriving the companion fields for
// anything that carries a brightness and folding lights into the
// global on-state aggregates.
func (b *Bridge) mapObject(channel, path, key string, fields map[string]any) {
	if _, ok := numberVal(fields["bri"]); ok {
		b.deriveLightFields(channel, path, fields)
	}

	if channel == ChannelLights && strings.EqualFold(key, "state") {
		if on, ok := fields["on"].(bool); ok {
			b.aggMu.Lock()
			b.aggregates.fold(on)
			b.aggMu.Unlock()
		}
	}

	for _, name := range sortedKeys(fields) {
		b.mapNode(channel, path, name, fields[name])
	}
}

// deriveLightFields injects the derived leaves next to a native
// hue/sat/bri triple: percent level, degree hue, the color-space
// views, the command inputs and the last-action record.
func (b *Bridge) deriveLightFields(channel, path string, fields map[string]any) {
	devicePath := parentOf(path)
	bri, _ := numberVal(fields["bri"])
	on, hasOn := fields["on"].(bool)

	if b.cfg.Commands.BrightnessTracksPower && hasOn {
		if !on {
			// A powered-off appliance reads as dark; the native value
			// survives in the shadow leaf for restore on power-on.
			fields["bri"] = 0.0
			bri = 0
		} else if bri > 0 {
			b.ensureContainer(devicePath+".action", "Action")
			b.write(devicePath+".action.real_bri", lookupDescriptor(devicePath+".action.real_bri").meta(false), bri)
		}
	}

	fields["level"] = briToLevel(bri)
	if channel == ChannelGroups {
		if _, ok := fields["scene"]; !ok {
			fields["scene"] = ""
		}
	}
	if _, ok := fields["_commands"]; !ok {
		fields["_commands"] = ""
	}
	if _, ok := fields["transitiontime"]; !ok {
		fields["transitiontime"] = 4.0
	}

	hueRaw, hasHue := numberVal(fields["hue"])
	satRaw, hasSat := numberVal(fields["sat"])
	if hasHue && hasSat {
		hsv := bridgeToHSV(hueRaw, satRaw, bri)
		rgb := HSVToRGB(hsv)
		fields["hue_degrees"] = hueToDegrees(hueRaw)
		fields["_hsv"] = hsv.String()
		fields["_rgb"] = rgb.String()
		fields["_cmyk"] = RGBToCMYK(rgb).String()
		fields["_xyz"] = RGBToXYZ(rgb).String()
		fields["_hex"] = RGBToHex(rgb)
	}

	b.ensureContainer(devicePath+".action", "Action")
	b.writeActionRecord(devicePath+".action.lastAction", b.lastActionFor(devicePath))
}

// writeLeaf stores one scalar, remapping controllable fields out of the
// read-only state/config containers into the action channel.
func (b *Bridge) writeLeaf(channel, parentPath, key string, value any) {
	segment := cleanID(key)
	field := strings.ToLower(segment)
	path := parentPath + "." + segment

	if controllable(field) {
		if actionParent, ok := remapToAction(parentPath); ok {
			b.ensureContainer(actionParent, "Action")
			path = actionParent + "." + segment
		}
	}

	descriptor := lookupDescriptor(path)
	writable := controllable(field) &&
		strings.Contains(path, ".action.") &&
		channelAcceptsCommands(channel)

	b.write(path, descriptor.meta(writable), applyConversion(descriptor, value))
	if writable {
		b.store.Subscribe(path)
	}
}

// writeActionRecord flattens an action record into the tree below the
// given prefix.
func (b *Bridge) writeActionRecord(prefix string, rec ActionRecord) {
	b.write(prefix, containerMeta("channel", "Last action"), nil)
	b.write(prefix+".timestamp", lookupDescriptor(prefix+".timestamp").meta(false), float64(rec.Timestamp))
	b.write(prefix+".datetime", lookupDescriptor(prefix+".datetime").meta(false), rec.Datetime)
	b.write(prefix+".lastCommand", lookupDescriptor(prefix+".lastCommand").meta(false), rec.LastCommand)
	b.write(prefix+".lastResult", lookupDescriptor(prefix+".lastResult").meta(false), rec.LastResult)
	b.write(prefix+".error", lookupDescriptor(prefix+".error").meta(false), rec.Error)
}

// injectVirtualGroup synthesizes group 0 spanning every known light.
// The static template is always present so the group stays commandable;
// the member list and the on-state aggregates need a synced lights
// channel and are filled in only when one is available.
func (b *Bridge) injectVirtualGroup(groups map[string]any, payload map[string]any) {
	if _, exists := groups[virtualGroupUID]; exists {
		return
	}

	group := map[string]any{
		"name": virtualGroupName,
		"type": "LightGroup",
		"action": map[string]any{
			"on":     false,
			"bri":    0.0,
			"hue":    0.0,
			"sat":    0.0,
			"effect": "none",
			"xy":     []any{0.0, 0.0},
			"ct":     0.0,
			"alert":  "none",
		},
	}

	if lights, ok := payload[ChannelLights].(map[string]any); ok && b.cfg.Channel(ChannelLights).Enabled {
		ids := make([]any, 0, len(lights))
		for _, uid := range sortedKeys(lights) {
			ids = append(ids, uid)
		}
		aggregates := b.currentAggregates()
		group["lights"] = ids
		group["state"] = map[string]any{
			"all_on": aggregates.AllOn,
			"any_on": aggregates.AnyOn,
		}
	}

	groups[virtualGroupUID] = group
}

// resourceSegment derives the tree identifier for a resource. Scenes
// use the bare name slug; everything else combines the slug with the
// zero-padded uid per the configured position.
func (b *Bridge) resourceSegment(channel, uid, name string) string {
	if channel == ChannelScenes && name != "" {
		if slug := slugify(name); slug != "" {
			return slug
		}
	}
	return combineID(slugify(name), uid, b.cfg.Sync.IDPosition)
}

// write stores a node, skipping the store when the cached value is
// unchanged. Container writes (nil value) always pass through; the
// store deduplicates metadata itself.
func (b *Bridge) write(path string, meta *tree.Meta, value any) {
	if value != nil {
		b.cacheMu.Lock()
		prev, seen := b.devices[path]
		if seen && reflect.DeepEqual(prev, value) {
			b.cacheMu.Unlock()
			return
		}
		b.devices[path] = value
		b.cacheMu.Unlock()
	}
	b.store.Set(path, meta, value)
}

// clearNode drops a node's value from the cache and the tree so the
// next poll rewrites it from bridge truth.
func (b *Bridge) clearNode(path string) {
	b.cacheMu.Lock()
	delete(b.devices, path)
	b.cacheMu.Unlock()
	b.store.Clear(path)
}

func (b *Bridge) ensureContainer(path, description string) {
	b.write(path, containerMeta("channel", description), nil)
}

func (b *Bridge) registerAppliance(app *Appliance) {
	b.applianceMu.Lock()
	b.appliances[app.Path] = app
	b.applianceMu.Unlock()
}

// rewriteRuleActions replaces a rule's raw actions array with trigger
// nodes keyed by the action's body fields, each carrying the original
// action as replayable options. Addresses are made relative the same
// way schedule commands are.
func rewriteRuleActions(fields map[string]any) {
	actions, ok := fields["actions"].([]any)
	if !ok {
		return
	}
	delete(fields, "actions")

	entries := make(map[string]any, len(actions))
	for i, raw := range actions {
		action, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if address, ok := action["address"].(string); ok {
			action["address"] = apiPrefix.ReplaceAllString(address, "")
		}
		options, err := json.Marshal(action)
		if err != nil {
			continue
		}
		key := ruleActionKey(action, i)
		for base, n := key, 2; ; n++ {
			if _, taken := entries[key]; !taken {
				break
			}
			key = fmt.Sprintf("%s-%d", base, n)
		}
		entries[key] = map[string]any{"trigger": false, "options": string(options)}
	}
	if len(entries) > 0 {
		fields["action"] = entries
	}
}

func ruleActionKey(action map[string]any, index int) string {
	body, ok := action["body"].(map[string]any)
	if !ok || len(body) == 0 {
		return fmt.Sprintf("action-%d", index)
	}
	slug := slugify(strings.Join(sortedKeys(body), " "))
	if slug == "" {
		return fmt.Sprintf("action-%d", index)
	}
	return slug
}

// apiPrefix matches the credentialled prefix of an absolute v1 address.
var apiPrefix = regexp.MustCompile(`^/api/[^/]+/`)

// rewriteScheduleCommand replaces a schedule's command object with a
// trigger node whose options replay the command. The stored address is
// made relative so it never embeds the API username.
func rewriteScheduleCommand(fields map[string]any) {
	command, ok := fields["command"].(map[string]any)
	if !ok {
		return
	}
	delete(fields, "command")

	if address, ok := command["address"].(string); ok {
		command["address"] = apiPrefix.ReplaceAllString(address, "")
	}
	options, err := json.Marshal(command)
	if err != nil {
		return
	}
	fields["action"] = map[string]any{"trigger": false, "options": string(options)}
}

// defaultTrigger returns the resource address commands for a channel
// are sent to. Channels driven by replayable options return none.
func defaultTrigger(channel, uid string) string {
	switch channel {
	case ChannelLights:
		return "lights/" + uid + "/state"
	case ChannelGroups:
		return "groups/" + uid + "/action"
	case ChannelSensors:
		return "sensors/" + uid + "/config"
	}
	return ""
}

// remapToAction rewrites a read-only container path onto the device's
// action channel.
func remapToAction(parentPath string) (string, bool) {
	for _, suffix := range []string{".state", ".config"} {
		if strings.HasSuffix(parentPath, suffix) {
			return strings.TrimSuffix(parentPath, suffix) + ".action", true
		}
	}
	return "", false
}

// channelAcceptsCommands reports whether user writes on a channel are
// dispatched to the bridge.
func channelAcceptsCommands(channel string) bool {
	switch channel {
	case ChannelLights, ChannelGroups, ChannelScenes, ChannelSchedules, ChannelRules:
		return true
	}
	return false
}

// isJoinedList reports whether an array field is stored as one
// comma-joined leaf instead of indexed children.
func isJoinedList(key string) bool {
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, "xy") || lower == "lights"
}

func joinList(elements []any) string {
	parts := make([]string, len(elements))
	for i, element := range elements {
		parts[i] = fmt.Sprintf("%v", element)
	}
	return strings.Join(parts, ",")
}

func containerMeta(role, description string) *tree.Meta {
	return &tree.Meta{Role: role, Description: description}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func numberVal(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func stringVal(v any) string {
	s, _ := v.(string)
	return s
}

func parentOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[:i]
	}
	return path
}
