package tree

import "time"

// Meta describes a tree node: what kind of value it holds, its role in
// the device model, optional bounds and unit, and whether users may
// write to it. The descriptor table in the hue package is the usual
// source of these values.
type Meta struct {
	// Type is the value's data type: boolean, number, string or mixed.
	Type string `json:"type,omitempty"`

	// Role classifies the node, e.g. switch.light or level.brightness.
	Role string `json:"role,omitempty"`

	// Description is a human-readable label for the node.
	Description string `json:"description,omitempty"`

	// Unit is the measurement unit, e.g. "%" or "°C".
	Unit string `json:"unit,omitempty"`

	// Min and Max bound numeric values when set.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Writable marks command nodes users may write to.
	Writable bool `json:"writable"`
}

// Equal reports whether two Meta values describe the same node.
// Min and Max are compared by value, not by pointer.
func (m Meta) Equal(other Meta) bool {
	return m.Type == other.Type &&
		m.Role == other.Role &&
		m.Description == other.Description &&
		m.Unit == other.Unit &&
		m.Writable == other.Writable &&
		floatPtrEqual(m.Min, other.Min) &&
		floatPtrEqual(m.Max, other.Max)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Node is a single entry in the state tree.
type Node struct {
	Path      string
	Meta      Meta
	Value     any
	UpdatedAt time.Time
}

// Change describes a store mutation delivered to OnChange observers.
// Meta and Value carry the node's state after the mutation; the flags
// say which parts actually changed.
type Change struct {
	Path         string
	Meta         Meta
	Value        any
	MetaUpdated  bool
	ValueUpdated bool
}

// Event describes a user write to a subscribed node. It fires on every
// write, including writes that repeat the current value, so resending
// the same command works.
type Event struct {
	Path  string
	Value any
}
