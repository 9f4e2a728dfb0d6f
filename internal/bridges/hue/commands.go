package hue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zefau/huesync/internal/tree"
)

// handleWrite turns one user write into a normalized command and hands
// it to the queue, or dispatches it directly when queueing is off.
func (b *Bridge) handleWrite(ev tree.Event) {
	select {
	case <-b.done:
		return
	default:
	}

	app, ok := b.resolveAppliance(ev.Path)
	if !ok {
		b.logWarn("write does not match a known appliance", "path", ev.Path, "error", ErrUnknownAppliance)
		return
	}

	target, cmd, err := b.normalizeCommand(*app, ev)
	if err != nil || len(cmd) == 0 {
		return
	}

	if b.cfg.Commands.QueueEnabled {
		b.queue.enqueue(target, cmd, ev.Path)
		b.logDebug("command queued", "path", ev.Path, "target", target.Trigger)
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatch(pendingCommand{appliance: target, command: cmd, sources: []string{ev.Path}})
	}()
}

// resolveAppliance finds the appliance owning a tree path by walking
// prefixes from the most specific to the least.
func (b *Bridge) resolveAppliance(path string) (*Appliance, bool) {
	b.applianceMu.RLock()
	defer b.applianceMu.RUnlock()

	for p := path; p != ""; {
		if app, ok := b.appliances[p]; ok {
			return app, true
		}
		i := strings.LastIndex(p, ".")
		if i < 0 {
			break
		}
		p = p[:i]
	}
	return nil, false
}

// normalizeCommand resolves a write into the command the bridge
// understands, together with the target address it must go to. The
// appliance is taken by value so per-command overrides never touch the
// registry.
func (b *Bridge) normalizeCommand(app Appliance, ev tree.Event) (Appliance, map[string]any, error) {
	if strings.HasSuffix(ev.Path, ".trigger") {
		if pressed, ok := ev.Value.(bool); ok && !pressed {
			b.logDebug("ignoring trigger reset", "path", ev.Path)
			return app, nil, nil
		}
	}

	switch app.Channel {
	case ChannelScenes:
		return b.normalizeSceneRecall(app)
	case ChannelSchedules, ChannelRules:
		return b.normalizeReplay(app, ev)
	case ChannelLights, ChannelGroups:
	default:
		b.logWarn("channel is read-only", "channel", app.Channel, "path", ev.Path, "error", ErrReadOnlyChannel)
		return app, nil, ErrReadOnlyChannel
	}

	field := lastSegment(ev.Path)
	cmd := make(map[string]any)
	if strings.EqualFold(field, "_commands") {
		if err := json.Unmarshal([]byte(stringVal(ev.Value)), &cmd); err != nil || len(cmd) == 0 {
			b.logWarn("bulk command is not a JSON object", "path", ev.Path, "error", err)
			return app, nil, ErrInvalidCommand
		}
	} else {
		cmd[field] = ev.Value
	}

	b.normalizeFields(app, cmd)
	return app, cmd, nil
}

// normalizeSceneRecall maps a scene trigger onto the group action that
// recalls it. Light scenes recall through the all-lights group.
func (b *Bridge) normalizeSceneRecall(app Appliance) (Appliance, map[string]any, error) {
	switch app.Type {
	case SceneTypeGroup:
		group := app.Group
		if group == "" {
			group = "0"
		}
		app.Trigger = "groups/" + group + "/action"
	case SceneTypeLight:
		app.Trigger = "groups/0/action"
	default:
		b.logWarn("scene type has no command mapping", "type", app.Type, "uid", app.UID, "error", ErrInvalidSceneType)
		return app, nil, ErrInvalidSceneType
	}
	app.Method = ""
	return app, map[string]any{"scene": app.UID}, nil
}

// normalizeReplay rebuilds a schedule or rule command from the options
// stored next to its trigger.
func (b *Bridge) normalizeReplay(app Appliance, ev tree.Event) (Appliance, map[string]any, error) {
	if !strings.HasSuffix(ev.Path, ".trigger") {
		b.logWarn("only trigger nodes accept writes here", "path", ev.Path, "error", ErrInvalidCommand)
		return app, nil, ErrInvalidCommand
	}

	optionsPath := strings.TrimSuffix(ev.Path, ".trigger") + ".options"
	raw, ok := b.store.Get(optionsPath)
	if !ok {
		b.logWarn("no stored options for trigger", "path", ev.Path, "error", ErrInvalidCommand)
		return app, nil, ErrInvalidCommand
	}

	var replay struct {
		Address string         `json:"address"`
		Method  string         `json:"method"`
		Body    map[string]any `json:"body"`
	}
	if err := json.Unmarshal([]byte(stringVal(raw)), &replay); err != nil || replay.Address == "" {
		b.logWarn("stored options are not replayable", "path", optionsPath, "error", ErrInvalidCommand)
		return app, nil, ErrInvalidCommand
	}

	app.Trigger = replay.Address
	app.Method = replay.Method
	return app, replay.Body, nil
}

// normalizeFields runs the fixed normalization pipeline over a lights
// or groups command, mutating it in place:
//
//  1. percent brightness and saturation rescale to native 0–254
//  2. color-space inputs collapse onto native hue/sat/bri
//  3. degree hue rescales to native 0–65535
//  4. bare power writes couple with brightness when configured
//  5. a positive level becomes power-on plus brightness
//  6. zero brightness forces power-off
//  7. positive brightness forces power-on
//  8. hue optionally translates to xy for third-party lamps
//  9. commands default to power-on
// 10. unreachable lights are warned about but still commanded
func (b *Bridge) normalizeFields(app Appliance, cmd map[string]any) {
	for _, field := range []string{"bri", "sat"} {
		if v, ok := numberVal(cmd[field]); ok {
			cmd[field] = levelToBri(v)
		}
	}

	parsedRGB, hasRGB := b.translateColorFields(cmd)

	if v, ok := numberVal(cmd["hue_degrees"]); ok {
		cmd["hue"] = degreesToHue(v)
		delete(cmd, "hue_degrees")
	}

	if b.cfg.Commands.BrightnessTracksPower {
		_, hasBri := cmd["bri"]
		_, hasLevel := cmd["level"]
		if on, ok := cmd["on"].(bool); ok && !hasBri && !hasLevel {
			if on {
				cmd["bri"] = b.shadowBrightness(app)
			} else {
				b.snapshotBrightness(app)
				cmd["bri"] = 0.0
				cmd["level"] = 0.0
			}
		}
	}

	if level, ok := numberVal(cmd["level"]); ok && level > 0 {
		delete(cmd, "level")
		cmd["on"] = true
		cmd["bri"] = levelToBri(level)
	}

	bri, hasBri := numberVal(cmd["bri"])
	level, hasLevel := numberVal(cmd["level"])
	if (hasBri && bri <= 0) || (hasLevel && level <= 0) {
		delete(cmd, "level")
		cmd["on"] = false
	}
	if hasBri && bri > 0 {
		cmd["on"] = true
	}

	b.translateHueToXY(app, cmd, parsedRGB, hasRGB)

	if _, ok := cmd["on"]; !ok {
		cmd["on"] = true
	}

	if app.Channel == ChannelLights {
		if v, ok := b.store.Get(app.Path + ".state.reachable"); ok {
			if reachable, isBool := v.(bool); isBool && !reachable {
				b.logWarn("appliance is not reachable", "path", app.Path, "name", app.Name)
			}
		}
	}
}

// translateColorFields collapses the color-space inputs onto the native
// triple, in a fixed order so the last given space wins. Unparseable
// inputs are dropped with a warning; the rest of the command survives.
func (b *Bridge) translateColorFields(cmd map[string]any) (RGB, bool) {
	var (
		rgb    RGB
		parsed bool
	)
	for _, field := range []string{"_rgb", "_hsv", "_cmyk", "_xyz", "_hex"} {
		raw, ok := cmd[field]
		if !ok {
			continue
		}
		delete(cmd, field)
		value := stringVal(raw)

		if field == "_hsv" {
			hsv, err := parseHSV(value)
			if err != nil {
				b.logWarn("cannot parse color input", "field", field, "value", value, "error", err)
				continue
			}
			cmd["hue"], cmd["sat"], cmd["bri"] = hsvToBridge(hsv)
			rgb, parsed = HSVToRGB(hsv), true
			continue
		}

		c, err := parseColorInput(field, value)
		if err != nil {
			b.logWarn("cannot parse color input", "field", field, "value", value, "error", err)
			continue
		}
		cmd["hue"], cmd["sat"], cmd["bri"] = hsvToBridge(RGBToHSV(c))
		rgb, parsed = c, true
	}
	return rgb, parsed
}

// translateHueToXY adds a CIE xy pair next to a hue command for lamps
// that render native hue poorly. Reference-brand lamps, and targets
// without a known manufacturer, are left alone.
func (b *Bridge) translateHueToXY(app Appliance, cmd map[string]any, parsedRGB RGB, hasRGB bool) {
	if !b.cfg.Commands.HueToXY {
		return
	}
	hue, ok := numberVal(cmd["hue"])
	if !ok || b.referenceBrand(app) {
		return
	}

	rgb := parsedRGB
	if !hasRGB {
		sat, ok := numberVal(cmd["sat"])
		if ok {
			sat /= percentScale
		} else {
			sat = b.treePercent(app, "sat", 100)
		}
		bri, ok := numberVal(cmd["bri"])
		if ok {
			bri /= percentScale
		} else {
			bri = b.treePercent(app, "bri", 100)
		}
		rgb = HSVToRGB(HSV{H: hue / maxBridgeHue * 360, S: sat, V: bri})
	}

	x, y, err := RGBToXY(rgb)
	if err != nil {
		b.logWarn("cannot derive xy for hue command", "path", app.Path, "error", err)
		return
	}
	cmd["xy"] = [2]float64{x, y}
}

// snapshotBrightness preserves the current brightness in the shadow
// leaf before a power-off zeroes it.
func (b *Bridge) snapshotBrightness(app Appliance) {
	v, ok := b.store.Get(app.Path + ".action.bri")
	if !ok {
		return
	}
	if level, isNum := numberVal(v); isNum && level > 0 {
		path := app.Path + ".action.real_bri"
		b.write(path, lookupDescriptor(path).meta(false), levelToBri(level))
	}
}

// shadowBrightness returns the brightness to restore on power-on:
// the shadow value when one exists, full brightness otherwise.
func (b *Bridge) shadowBrightness(app Appliance) float64 {
	if v, ok := b.store.Get(app.Path + ".action.real_bri"); ok {
		if raw, isNum := numberVal(v); isNum && raw > 0 {
			return raw
		}
	}
	return maxBridgeSB
}

// referenceBrand reports whether a target's lamp is made by the bridge
// vendor. Targets without a manufacturer leaf, groups included, count
// as reference and skip xy translation.
func (b *Bridge) referenceBrand(app Appliance) bool {
	v, ok := b.store.Get(app.Path + ".manufacturername")
	if !ok {
		return true
	}
	name := strings.ToLower(stringVal(v))
	return strings.HasPrefix(name, "philips") || strings.HasPrefix(name, "signify")
}

// treePercent reads a percent leaf from the target's action channel.
func (b *Bridge) treePercent(app Appliance, field string, fallback float64) float64 {
	if v, ok := b.store.Get(app.Path + ".action." + field); ok {
		if f, isNum := numberVal(v); isNum {
			return f
		}
	}
	return fallback
}

func parseColorInput(field, value string) (RGB, error) {
	switch field {
	case "_rgb":
		parts, err := splitNumbers(value, 3)
		if err != nil {
			return RGB{}, err
		}
		return RGB{R: int(parts[0]), G: int(parts[1]), B: int(parts[2])}, nil
	case "_cmyk":
		parts, err := splitNumbers(value, 4)
		if err != nil {
			return RGB{}, err
		}
		return CMYKToRGB(CMYK{C: parts[0], M: parts[1], Y: parts[2], K: parts[3]}), nil
	case "_xyz":
		parts, err := splitNumbers(value, 3)
		if err != nil {
			return RGB{}, err
		}
		return XYZToRGB(XYZ{X: parts[0], Y: parts[1], Z: parts[2]}), nil
	case "_hex":
		return HexToRGB(value)
	}
	return RGB{}, fmt.Errorf("hue: unknown color field %q", field)
}

func parseHSV(value string) (HSV, error) {
	parts, err := splitNumbers(value, 3)
	if err != nil {
		return HSV{}, err
	}
	return HSV{H: parts[0], S: parts[1], V: parts[2]}, nil
}

func splitNumbers(value string, count int) ([]float64, error) {
	parts := strings.Split(value, ",")
	if len(parts) != count {
		return nil, fmt.Errorf("hue: expected %d comma-separated values, got %d", count, len(parts))
	}
	out := make([]float64, count)
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("hue: %q is not a number", part)
		}
		out[i] = f
	}
	return out, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}
