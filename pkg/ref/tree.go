package ref

import (
	"reflect"

	"github.com/worldgs/gameserver/pkg/types"
)

// Referencer is implemented by any Ref[T] regardless of T, letting the
// proxify/refify tree walkers handle references generically.
type Referencer interface {
	ID() string
	Label() string
}

// Proxify walks a field-value tree (as produced by Entity.Fields, i.e.
// nested map[string]any and []any with Ref[T] leaves) and replaces every
// Referencer leaf with its persisted {id,label,isRef:true} record shape.
// Cyclic map/slice structures are walked at most once per node.
func Proxify(v any) any {
	seen := make(map[uintptr]bool)
	return proxify(v, seen)
}

func proxify(v any, seen map[uintptr]bool) any {
	switch val := v.(type) {
	case Referencer:
		return types.NewRefRecord(val.ID(), val.Label()).AsMap()
	case map[string]any:
		if !markSeen(val, seen) {
			return val
		}
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = proxify(child, seen)
		}
		return out
	case []any:
		if !markSeen(val, seen) {
			return val
		}
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = proxify(child, seen)
		}
		return out
	default:
		return v
	}
}

// Refify is the inverse walk: it scans a decoded record tree (nested
// map[string]any / []any as produced by JSON-unmarshaling a persisted
// record) and replaces every {id,label,isRef:true} map with a lazily
// resolving Ref[*types.Entity] built from resolver.
func Refify(v any, resolver Resolver[*types.Entity]) any {
	seen := make(map[uintptr]bool)
	return refify(v, resolver, seen)
}

func refify(v any, resolver Resolver[*types.Entity], seen map[uintptr]bool) any {
	switch val := v.(type) {
	case map[string]any:
		if rr, ok := types.RefRecordFromMap(val); ok {
			return NewRef(rr.ID, rr.Label, resolver)
		}
		if !markSeen(val, seen) {
			return val
		}
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = refify(child, resolver, seen)
		}
		return out
	case []any:
		if !markSeen(val, seen) {
			return val
		}
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = refify(child, resolver, seen)
		}
		return out
	default:
		return v
	}
}

// markSeen records the reference-type value's backing pointer and reports
// whether this is the first visit (false means it was already visited and
// the caller should stop descending, breaking a cycle).
func markSeen(v any, seen map[uintptr]bool) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		ptr := rv.Pointer()
		if ptr == 0 {
			return true
		}
		if seen[ptr] {
			return false
		}
		seen[ptr] = true
		return true
	default:
		return true
	}
}
