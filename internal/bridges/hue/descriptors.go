package hue

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/zefau/huesync/internal/tree"
)

// Value conversions applied when a bridge field is ingested into the
// tree. Outbound commands apply the inverse in the normalizer.
const (
	convertPercent254 = "percent254" // native 0–254 to percent 0–100
	convertHundredths = "hundredths" // hundredths to whole units
)

// Descriptor carries the tree metadata and ingestion conversion for a
// bridge field.
type Descriptor struct {
	Description string
	Role        string
	Type        string
	Unit        string
	Min, Max    *float64
	Convert     string
}

// descriptors keys are cleaned paths. Resolution tries the full path,
// then the path with the device segment removed, then the final
// segment alone, so "schedules.status" (a string) can coexist with the
// generic sensor "status" (a number).
var descriptors = map[string]Descriptor{
	// Full paths: bridge configuration and sync bookkeeping.
	"config.utc":           {Description: "Bridge UTC time", Role: "date", Type: "string"},
	"config.localtime":     {Description: "Bridge local time", Role: "date", Type: "string"},
	"config.timezone":      {Description: "Time zone", Role: "text", Type: "string"},
	"config.apiversion":    {Description: "API version", Role: "text", Type: "string"},
	"config.linkbutton":    {Description: "Link button pressed", Role: "indicator", Type: "boolean"},
	"config.ipaddress":     {Description: "IP address", Role: "text", Type: "string"},
	"config.mac":           {Description: "MAC address", Role: "text", Type: "string"},
	"config.gateway":       {Description: "Gateway", Role: "text", Type: "string"},
	"config.netmask":       {Description: "Netmask", Role: "text", Type: "string"},
	"config.dhcp":          {Description: "DHCP enabled", Role: "indicator", Type: "boolean"},
	"config.zigbeechannel": {Description: "ZigBee channel", Role: "value", Type: "number"},
	"config.bridgeid":      {Description: "Bridge ID", Role: "text", Type: "string"},
	"info.timestamp":       {Description: "Last sync timestamp", Role: "value.time", Type: "number"},
	"info.datetime":        {Description: "Last sync time", Role: "date", Type: "string"},

	// Channel-qualified: fields whose meaning depends on the channel.
	"schedules.status":    {Description: "Status", Role: "text", Type: "string"},
	"schedules.time":      {Description: "Schedule time", Role: "text", Type: "string"},
	"schedules.localtime": {Description: "Schedule local time", Role: "text", Type: "string"},
	"rules.status":        {Description: "Status", Role: "text", Type: "string"},
	"sensors.action.on":   {Description: "Enabled", Role: "switch", Type: "boolean"},

	// Final segments: the common field vocabulary.
	"on":               {Description: "Power", Role: "switch.light", Type: "boolean"},
	"bri":              {Description: "Brightness", Role: "level.dimmer", Type: "number", Unit: "%", Min: limit(0), Max: limit(100), Convert: convertPercent254},
	"level":            {Description: "Brightness level", Role: "level.dimmer", Type: "number", Unit: "%", Min: limit(0), Max: limit(100)},
	"real_bri":         {Description: "Brightness (native)", Role: "level.dimmer", Type: "number", Min: limit(0), Max: limit(254)},
	"hue":              {Description: "Hue", Role: "level.color.hue", Type: "number", Min: limit(0), Max: limit(65535)},
	"hue_degrees":      {Description: "Hue", Role: "level.color.hue", Type: "number", Unit: "°", Min: limit(0), Max: limit(360)},
	"sat":              {Description: "Saturation", Role: "level.color.saturation", Type: "number", Unit: "%", Min: limit(0), Max: limit(100), Convert: convertPercent254},
	"ct":               {Description: "Color temperature", Role: "level.color.temperature", Type: "number", Unit: "mired", Min: limit(153), Max: limit(500)},
	"xy":               {Description: "Color xy", Role: "level.color.xy", Type: "string"},
	"alert":            {Description: "Alert effect", Role: "text", Type: "string"},
	"effect":           {Description: "Light effect", Role: "text", Type: "string"},
	"colormode":        {Description: "Color mode", Role: "text", Type: "string"},
	"colorloop":        {Description: "Color loop", Role: "switch", Type: "boolean"},
	"transitiontime":   {Description: "Transition time", Role: "level", Type: "number", Unit: "ds", Min: limit(0)},
	"scene":            {Description: "Scene to recall", Role: "text", Type: "string"},
	"trigger":          {Description: "Trigger", Role: "button", Type: "boolean"},
	"options":          {Description: "Command options", Role: "json", Type: "string"},
	"_commands":        {Description: "Bulk command object", Role: "json", Type: "string"},
	"_rgb":             {Description: "Color RGB", Role: "level.color.rgb", Type: "string"},
	"_hsv":             {Description: "Color HSV", Role: "level.color.hsv", Type: "string"},
	"_cmyk":            {Description: "Color CMYK", Role: "level.color.cmyk", Type: "string"},
	"_xyz":             {Description: "Color XYZ", Role: "level.color.xyz", Type: "string"},
	"_hex":             {Description: "Color hex", Role: "level.color.hex", Type: "string"},
	"reachable":        {Description: "Reachable", Role: "indicator.reachable", Type: "boolean"},
	"temperature":      {Description: "Temperature", Role: "value.temperature", Type: "number", Unit: "°C", Convert: convertHundredths},
	"lastupdated":      {Description: "Last update", Role: "date", Type: "string"},
	"battery":          {Description: "Battery", Role: "value.battery", Type: "number", Unit: "%", Min: limit(0), Max: limit(100)},
	"name":             {Description: "Name", Role: "text", Type: "string"},
	"type":             {Description: "Type", Role: "text", Type: "string"},
	"class":            {Description: "Room class", Role: "text", Type: "string"},
	"modelid":          {Description: "Model", Role: "text", Type: "string"},
	"manufacturername": {Description: "Manufacturer", Role: "text", Type: "string"},
	"productname":      {Description: "Product", Role: "text", Type: "string"},
	"swversion":        {Description: "Software version", Role: "text", Type: "string"},
	"uniqueid":         {Description: "Unique ID", Role: "text", Type: "string"},
	"owner":            {Description: "Owner", Role: "text", Type: "string"},
	"locked":           {Description: "Locked", Role: "indicator", Type: "boolean"},
	"recycle":          {Description: "Recycle", Role: "indicator", Type: "boolean"},
	"version":          {Description: "Version", Role: "value", Type: "number"},
	"all_on":           {Description: "All lights on", Role: "indicator", Type: "boolean"},
	"any_on":           {Description: "Any light on", Role: "indicator", Type: "boolean"},
	"status":           {Description: "Status", Role: "value", Type: "number"},
	"presence":         {Description: "Presence", Role: "sensor.motion", Type: "boolean"},
	"daylight":         {Description: "Daylight", Role: "sensor", Type: "boolean"},
	"dark":             {Description: "Dark", Role: "sensor", Type: "boolean"},
	"buttonevent":      {Description: "Button event", Role: "value", Type: "number"},
	"lightlevel":       {Description: "Light level", Role: "value.brightness", Type: "number"},
	"timestamp":        {Description: "Timestamp", Role: "value.time", Type: "number"},
	"datetime":         {Description: "Date and time", Role: "date", Type: "string"},
	"syncing":          {Description: "Sync in progress", Role: "indicator", Type: "boolean"},
	"error":            {Description: "Error", Role: "indicator.error", Type: "boolean"},
	"lastcommand":      {Description: "Last command", Role: "json", Type: "string"},
	"lastresult":       {Description: "Last result", Role: "json", Type: "string"},
	"group":            {Description: "Group ID", Role: "text", Type: "string"},
	"lights":           {Description: "Light IDs", Role: "text", Type: "string"},
}

// controllableFields are the leaves that become writable command nodes
// when they sit under an appliance's action channel.
var controllableFields = map[string]struct{}{
	"on": {}, "bri": {}, "hue": {}, "sat": {}, "ct": {}, "xy": {},
	"alert": {}, "effect": {}, "colorloop": {}, "transitiontime": {},
	"level": {}, "hue_degrees": {}, "scene": {}, "trigger": {},
	"_rgb": {}, "_hsv": {}, "_cmyk": {}, "_xyz": {}, "_hex": {},
	"_commands": {},
}

// lookupDescriptor resolves the descriptor for a tree path.
//
// Parameters:
//   - path: full tree path of the leaf, e.g. "lights.lamp-001.action.bri".
//
// Returns:
//   - The most specific descriptor, or a generic text descriptor when
//     no tier matches.
func lookupDescriptor(path string) Descriptor {
	p := cleanPath(path)
	if d, ok := descriptors[p]; ok {
		return d
	}
	segs := strings.Split(p, ".")
	if len(segs) >= 3 {
		collapsed := segs[0] + "." + strings.Join(segs[2:], ".")
		if d, ok := descriptors[collapsed]; ok {
			return d
		}
	}
	if d, ok := descriptors[segs[len(segs)-1]]; ok {
		return d
	}
	return Descriptor{Description: "(no description given)", Role: "text", Type: "string"}
}

// meta builds the tree metadata for a leaf carrying this descriptor.
func (d Descriptor) meta(writable bool) *tree.Meta {
	return &tree.Meta{
		Type:        d.Type,
		Role:        d.Role,
		Description: d.Description,
		Unit:        d.Unit,
		Min:         d.Min,
		Max:         d.Max,
		Writable:    writable,
	}
}

// applyConversion rescales a raw bridge value per the descriptor.
// Non-numeric values pass through unchanged.
func applyConversion(d Descriptor, v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	switch d.Convert {
	case convertPercent254:
		return briToLevel(f)
	case convertHundredths:
		return f / 100
	}
	return v
}

// controllable reports whether a field accepts user writes.
func controllable(field string) bool {
	_, ok := controllableFields[field]
	return ok
}

// cleanPath lowercases a path and strips everything outside
// [a-z0-9._-] so descriptor lookup is insensitive to the bridge's
// field casing.
func cleanPath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for _, r := range strings.ToLower(path) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cleanID makes a payload key safe as a single path segment. Path
// separators and other reserved runes become dashes.
func cleanID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// slugify lowercases a display name and collapses every run of
// non-alphanumeric runes into a single dash.
func slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		alnum := r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		switch {
		case alnum:
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
		default:
			pendingDash = true
		}
	}
	return b.String()
}

// combineID joins a name slug with a resource UID per the configured
// identifier position. Numeric UIDs are zero-padded to three digits so
// identifiers sort naturally.
func combineID(slug, uid, position string) string {
	id := cleanID(uid)
	if n, err := strconv.Atoi(uid); err == nil && n >= 0 {
		id = fmt.Sprintf("%03d", n)
	}
	if slug == "" {
		return id
	}
	if position == "prepend" {
		return id + "-" + slug
	}
	return slug + "-" + id
}

// humanize turns a path segment into a display label.
func humanize(segment string) string {
	s := strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(segment)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return segment
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// limit builds the Min/Max pointer for a descriptor literal.
func limit(v float64) *float64 {
	return &v
}
