// Package domain defines the storable record shape, the storage backend
// contract, and the error taxonomy shared by graphsync layers.
package domain

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Record is the flat, storage-ready form of one entity. Nested entity
// references are reduced to {"id": "..."} stubs.
type Record struct {
	ID            string `json:"id"`
	Data          any    `json:"data"`
	PrototypeName string `json:"prototypeName,omitempty"`
}

// Object is a typed source value: the caller names the prototype explicitly
// and supplies its fields. An "id" field, when present, becomes the entity id.
type Object struct {
	Prototype string
	Fields    map[string]any
}

// NewObject is a convenience constructor for Object.
func NewObject(prototype string, fields map[string]any) Object {
	return Object{Prototype: prototype, Fields: fields}
}

// Stub returns the reference form stored in place of a nested entity.
func Stub(id string) map[string]any {
	return map[string]any{"id": id}
}

// StubID reports the id of a reference stub. Any object carrying a string id
// qualifies; sibling fields are ignored.
func StubID(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["id"].(string)
	return id, ok
}

// DecodeRecord parses a flat record from JSON. The id is validated loosely:
// shape errors surface as InvalidIDError so callers can map them uniformly.
func DecodeRecord(b []byte) (Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return RecordFromMap(raw)
}

// RecordFromMap converts a generic decoded JSON object into a Record.
func RecordFromMap(raw map[string]any) (Record, error) {
	var rec Record
	if v, ok := raw["id"]; ok && v != nil {
		id, ok := v.(string)
		if !ok {
			return Record{}, InvalidIDError{Reason: "id must be a string"}
		}
		rec.ID = id
	}
	if v, ok := raw["prototypeName"]; ok && v != nil {
		name, ok := v.(string)
		if !ok {
			return Record{}, fmt.Errorf("prototypeName must be a string")
		}
		rec.PrototypeName = name
	}
	switch data := raw["data"].(type) {
	case nil:
		rec.Data = map[string]any{}
	case map[string]any:
		rec.Data = maps.Clone(data)
	case []any:
		rec.Data = append([]any(nil), data...)
	default:
		return Record{}, fmt.Errorf("data must be an object or an array, got %T", data)
	}
	return rec, nil
}
