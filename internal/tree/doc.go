// Package tree implements the hierarchical state tree that mirrors the
// Hue bridge: channels (lights, groups, scenes, ...) at the top, devices
// below them, and leaf nodes carrying individual state and command
// values addressed by dot-joined paths such as
// lights.wohnzimmer-001.action.bri.
//
// The tree is the meeting point of the three halves of the daemon:
//
//   - The sync engine writes bridge state into the tree with Set and
//     subscribes the writable command paths it creates.
//   - The Mirror replicates every change onto retained MQTT topics and
//     feeds inbound set messages back in as user writes.
//   - The Repository persists nodes to SQLite so values like the
//     real_bri brightness shadows survive restarts.
//
// MemoryStore is the only store implementation; Store is the narrow
// surface the sync engine programs against. Change observers are
// notified outside the store lock, so observers may call back into the
// store.
//
// Values follow JSON's type system: numbers are float64, and anything
// else is bool, string, map[string]any, []any or nil. Set normalises
// integer inputs so a restored snapshot compares equal to a freshly
// computed value.
package tree
