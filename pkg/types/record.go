package types

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Record models the persisted JSON-like form of an entity (spec §6): keys
// are the entity's persistent fields, references appear as {id,label,
// isRef:true}, keys whose name begins with "!" are never serialized, and
// function-valued fields are never serialized.
type Record map[string]any

// MarshalJSON filters internal ("!"-prefixed) keys and function values
// before encoding.
func (r Record) MarshalJSON() ([]byte, error) {
	filtered := make(map[string]any, len(r))
	for k, v := range r {
		if strings.HasPrefix(k, "!") {
			continue
		}
		if isFunc(v) {
			continue
		}
		filtered[k] = v
	}
	return json.Marshal(filtered)
}

func isFunc(v any) bool {
	if v == nil {
		return false
	}
	return reflect.ValueOf(v).Kind() == reflect.Func
}

// RefRecord is the persisted form of a Reference value (spec §3): a named
// pointer to another entity that is replaced in memory by a lazy proxy.
type RefRecord struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	IsRef bool   `json:"isRef"`
}

// NewRefRecord builds a reference record pointing at id with label.
func NewRefRecord(id, label string) RefRecord {
	return RefRecord{ID: id, Label: label, IsRef: true}
}

// AsMap renders the reference record as the generic map shape used by
// refify/proxify tree walks.
func (r RefRecord) AsMap() map[string]any {
	return map[string]any{"id": r.ID, "label": r.Label, "isRef": true}
}

// RefRecordFromMap recognizes a generic map as a reference record, as
// produced by JSON decoding a persisted record.
func RefRecordFromMap(m map[string]any) (RefRecord, bool) {
	isRef, _ := m["isRef"].(bool)
	if !isRef {
		return RefRecord{}, false
	}
	id, _ := m["id"].(string)
	label, _ := m["label"].(string)
	return RefRecord{ID: id, Label: label, IsRef: true}, true
}
