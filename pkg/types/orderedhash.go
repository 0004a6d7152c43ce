package types

import "sort"

// OrderedHash is a string-keyed map whose iteration order is the natural
// string sort of current keys at the moment iteration begins. Writes are
// O(1); reads/iteration are O(n log n) (spec §3).
type OrderedHash struct {
	entries map[string]any
}

// NewOrderedHash constructs an empty OrderedHash.
func NewOrderedHash() *OrderedHash {
	return &OrderedHash{entries: make(map[string]any)}
}

// Set inserts or replaces the value for key. O(1).
func (h *OrderedHash) Set(key string, value any) {
	h.entries[key] = value
}

// Get returns the value for key and whether it was present. O(1).
func (h *OrderedHash) Get(key string) (any, bool) {
	v, ok := h.entries[key]
	return v, ok
}

// Delete removes key. O(1).
func (h *OrderedHash) Delete(key string) {
	delete(h.entries, key)
}

// Len returns the number of entries.
func (h *OrderedHash) Len() int { return len(h.entries) }

// Keys returns all keys in ascending natural string-sort order, computed
// at call time. O(n log n).
func (h *OrderedHash) Keys() []string {
	keys := make([]string, 0, len(h.entries))
	for k := range h.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Each iterates entries in sorted key order, calling fn for each. Iteration
// stops early if fn returns false. O(n log n).
func (h *OrderedHash) Each(fn func(key string, value any) bool) {
	for _, k := range h.Keys() {
		if !fn(k, h.entries[k]) {
			return
		}
	}
}
