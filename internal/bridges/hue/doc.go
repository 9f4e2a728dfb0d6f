// Package hue implements the Philips Hue bridge sync engine for huesync.
//
// This package provides connectivity to a Hue bridge via its v1 REST API.
// It translates between huesync's internal state tree and the bridge's
// resource model.
//
// # Architecture
//
// The bridge operates as a translator between the state tree and the
// bridge's REST surface:
//
//	┌─────────────────┐           ┌─────────────────┐
//	│   State Tree    │  writes   │   Hue Bridge    │   HTTP
//	│  (tree.Store)   │◄─────────►│   (this pkg)    │◄────────► Hue Hardware
//	└─────────────────┘           └─────────────────┘
//
// # Key Responsibilities
//
//   - Poll the bridge's full resource payload on a fixed interval
//   - Map lights, groups, sensors, scenes, schedules and rules into
//     tree paths
//   - Derive colour representations (RGB, HSV, CMYK, XYZ, hex) from the
//     bridge's native hue/sat/bri values
//   - Translate user writes on the tree back into REST commands
//   - Coalesce rapid writes per target when command queueing is enabled
//   - Publish health status over MQTT
//
// # Paths
//
// Resources map to dot-separated tree paths of the form
// channel.resource.section.field. Resource segments are derived from the
// bridge name and numeric ID, so a dimmable light named "Kitchen Spot"
// with ID 4 becomes:
//
//	lights.kitchen-spot-004.action.on
//	lights.kitchen-spot-004.action.bri
//	lights.kitchen-spot-004.state.reachable
//
// Writable fields live under .action; read-only telemetry keeps the
// bridge's own sections. Writing to an .action path issues the matching
// REST command on the next flush.
//
// # Colour
//
// The bridge speaks hue (0-65535), saturation and brightness (0-254).
// The mapper derives friendlier colour leaves alongside the native
// fields: _rgb, _hsv, _cmyk, _xyz and _hex all accept writes and are
// translated back to native values before dispatch. For lamps that do
// not understand hue/sat natively, commands can be converted to CIE xy
// coordinates.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple
// goroutines.
//
// # References
//
//   - Hue API (v1): https://developers.meethue.com/develop/hue-api/
package hue
