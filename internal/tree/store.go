package tree

import (
	"reflect"
	"sort"
	"sync"
	"time"
)

// Store is the tree surface the sync engine programs against.
// MemoryStore implements it; the extra inbound methods (Write, OnChange)
// stay on the concrete type because only the MQTT mirror and the
// persistence layer need them.
type Store interface {
	// Set creates or updates a node. A nil meta keeps the existing
	// metadata; a nil value leaves the node's value untouched, which is
	// how container nodes (devices, channels) are created meta-only.
	Set(path string, meta *Meta, value any)

	// Get returns a node's value. ok is false for unknown paths and for
	// nodes whose value has been cleared.
	Get(path string) (value any, ok bool)

	// GetMeta returns a node's metadata.
	GetMeta(path string) (meta Meta, ok bool)

	// Clear removes a node's value but keeps the node and its metadata.
	Clear(path string)

	// Subscribe marks a path as accepting user writes. Writes to paths
	// that were never subscribed are rejected.
	Subscribe(path string)

	// OnWrite registers a handler for user writes to subscribed paths.
	OnWrite(fn func(Event))
}

// MemoryStore is the in-memory state tree. All methods are safe for
// concurrent use. Observers and write handlers are invoked outside the
// store lock, in registration order.
type MemoryStore struct {
	mu         sync.RWMutex
	nodes      map[string]*Node
	subscribed map[string]bool
	onChange   []func(Change)
	onWrite    []func(Event)
}

// NewMemoryStore creates an empty state tree.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:      make(map[string]*Node),
		subscribed: make(map[string]bool),
	}
}

// Set creates or updates the node at path.
//
// Observers are only notified when something actually changed: new
// nodes, metadata differences, or a value that is not deeply equal to
// the stored one. Unchanged polls therefore produce no MQTT or
// database traffic.
func (s *MemoryStore) Set(path string, meta *Meta, value any) {
	if path == "" {
		return
	}
	value = normalizeValue(value)

	s.mu.Lock()
	node, exists := s.nodes[path]
	if !exists {
		node = &Node{Path: path}
		s.nodes[path] = node
	}

	change := Change{Path: path}
	switch {
	case !exists:
		if meta != nil {
			node.Meta = *meta
		}
		change.MetaUpdated = true
	case meta != nil && !node.Meta.Equal(*meta):
		node.Meta = *meta
		change.MetaUpdated = true
	}

	if value != nil && (!exists || !reflect.DeepEqual(node.Value, value)) {
		node.Value = value
		change.ValueUpdated = true
	}

	if change.MetaUpdated || change.ValueUpdated {
		node.UpdatedAt = time.Now().UTC()
	}
	change.Meta = node.Meta
	change.Value = node.Value
	observers := s.onChange
	s.mu.Unlock()

	if change.MetaUpdated || change.ValueUpdated {
		for _, fn := range observers {
			fn(change)
		}
	}
}

// Get returns the value stored at path.
func (s *MemoryStore) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[path]
	if !ok || node.Value == nil {
		return nil, false
	}
	return node.Value, true
}

// GetMeta returns the metadata stored at path.
func (s *MemoryStore) GetMeta(path string) (Meta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[path]
	if !ok {
		return Meta{}, false
	}
	return node.Meta, true
}

// Clear removes the value at path, keeping the node and its metadata.
// Observers see a ValueUpdated change with a nil value. Clearing an
// already-empty node is a no-op.
func (s *MemoryStore) Clear(path string) {
	s.mu.Lock()
	node, ok := s.nodes[path]
	if !ok || node.Value == nil {
		s.mu.Unlock()
		return
	}
	node.Value = nil
	node.UpdatedAt = time.Now().UTC()
	change := Change{Path: path, Meta: node.Meta, ValueUpdated: true}
	observers := s.onChange
	s.mu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
}

// Subscribe marks path as accepting user writes.
func (s *MemoryStore) Subscribe(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[path] = true
}

// Write delivers a user write to path. It reports false when the path
// was never subscribed, in which case nothing is stored and no handler
// fires.
//
// The value is stored and change observers run if it differs from the
// current value. Write handlers fire on every accepted write regardless,
// so repeating a command (the dispatcher clears command values after
// sending) triggers a fresh dispatch.
func (s *MemoryStore) Write(path string, value any) bool {
	value = normalizeValue(value)

	s.mu.Lock()
	if !s.subscribed[path] {
		s.mu.Unlock()
		return false
	}

	node, exists := s.nodes[path]
	if !exists {
		node = &Node{Path: path}
		s.nodes[path] = node
	}
	changed := !exists || !reflect.DeepEqual(node.Value, value)
	node.Value = value
	node.UpdatedAt = time.Now().UTC()
	change := Change{Path: path, Meta: node.Meta, Value: value, ValueUpdated: changed}
	observers := s.onChange
	handlers := s.onWrite
	s.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(change)
		}
	}
	for _, fn := range handlers {
		fn(Event{Path: path, Value: value})
	}
	return true
}

// OnChange registers an observer for node changes. Register observers
// before concurrent use begins.
func (s *MemoryStore) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnWrite registers a handler for user writes.
func (s *MemoryStore) OnWrite(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = append(s.onWrite, fn)
}

// Len returns the number of nodes in the tree.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Snapshot returns a copy of all nodes ordered by path.
func (s *MemoryStore) Snapshot() []Node {
	s.mu.RLock()
	nodes := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, *n)
	}
	s.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Path < nodes[j].Path
	})
	return nodes
}

// normalizeValue maps integer and float32 values onto float64 so stored
// values compare equal to values decoded from JSON.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
