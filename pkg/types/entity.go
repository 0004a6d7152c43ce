package types

import "time"

// Entity is the in-memory representation of a persisted game object: a
// typed, identified record with a free-form field bag plus bookkeeping the
// request/cache layers rely on (spec §3).
type Entity struct {
	ID        string
	Class     string
	CreatedAt time.Time
	Label     string
	Deleted   bool

	// Path is the slash-joined container chain from the entity's
	// top-level ancestor down to this entity, e.g. "P1/B2/I3".
	Path string

	Fields map[string]any
}

// NewEntity constructs an Entity with an empty field bag.
func NewEntity(id, class string, createdAt time.Time) *Entity {
	return &Entity{
		ID:        id,
		Class:     class,
		CreatedAt: createdAt,
		Fields:    make(map[string]any),
	}
}

// Get returns a field value by name.
func (e *Entity) Get(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// SetField assigns a field value by name.
func (e *Entity) SetField(name string, value any) {
	e.Fields[name] = value
}

// MarkDeleted flags the entity as logically removed; it is still resolvable
// by id until the cache evicts it, but is excluded from new lookups that
// check Deleted.
func (e *Entity) MarkDeleted() {
	e.Deleted = true
}

// ToRecord renders the entity as its persisted Record form: base fields
// plus the field bag, merged into one map. Internal ("!"-prefixed) keys and
// function values are stripped at marshal time by Record.MarshalJSON.
func (e *Entity) ToRecord() Record {
	rec := make(Record, len(e.Fields)+4)
	for k, v := range e.Fields {
		rec[k] = v
	}
	rec["id"] = e.ID
	rec["class"] = e.Class
	if e.Label != "" {
		rec["label"] = e.Label
	}
	if !e.CreatedAt.IsZero() {
		rec["tsid"] = e.CreatedAt.UnixNano()
	}
	return rec
}

// ComputePath joins a chain of container ids (from outermost to innermost,
// not including the entity itself) with the current entity's id to produce
// the slash-joined path invariant (spec §3).
func ComputePath(chain []string, selfID string) string {
	if len(chain) == 0 {
		return selfID
	}
	path := chain[0]
	for _, id := range chain[1:] {
		path += "/" + id
	}
	return path + "/" + selfID
}
