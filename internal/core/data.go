package core

import (
	"errors"
	"fmt"
	"sort"
)

// Shape tells whether an entity's data is a keyed object or an ordered sequence.
type Shape int

const (
	ShapeObject Shape = iota
	ShapeSequence
)

func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeSequence:
		return "sequence"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

var (
	// ErrIndexOutOfRange is returned by indexed access past the end of a sequence.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrNotSequence is returned by indexed access on object-shaped data.
	ErrNotSequence = errors.New("data is not a sequence")
	// ErrNotObject is returned by keyed access on sequence-shaped data.
	ErrNotObject = errors.New("data is not an object")
)

// Data is the mutable container behind an entity. Prototype methods receive
// it directly; everything they change is tracked by the owning entity.
//
// Values are primitives, nested maps/slices, domain.Object sources or live
// *Entity references.
type Data struct {
	shape  Shape
	fields map[string]any
	items  []any
}

func newObjectData(fields map[string]any) *Data {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Data{shape: ShapeObject, fields: fields}
}

func newSequenceData(items []any) *Data {
	if items == nil {
		items = make([]any, 0)
	}
	return &Data{shape: ShapeSequence, items: items}
}

// Shape reports the container kind.
func (d *Data) Shape() Shape { return d.shape }

// Len is the number of fields or items.
func (d *Data) Len() int {
	if d.shape == ShapeSequence {
		return len(d.items)
	}
	return len(d.fields)
}

// Field returns the named field of object data.
func (d *Data) Field(name string) (any, bool) {
	if d.shape != ShapeObject {
		return nil, false
	}
	v, ok := d.fields[name]
	return v, ok
}

// SetField assigns a field on object data. Typed maps and slices are stored
// as converted copies.
func (d *Data) SetField(name string, v any) error {
	if d.shape != ShapeObject {
		return ErrNotObject
	}
	nv, err := normalizeValue(v)
	if err != nil {
		return err
	}
	d.fields[name] = nv
	return nil
}

// DeleteField removes a field from object data.
func (d *Data) DeleteField(name string) {
	if d.shape == ShapeObject {
		delete(d.fields, name)
	}
}

// Keys returns object field names in sorted order.
func (d *Data) Keys() []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Index returns the i-th item of sequence data.
func (d *Data) Index(i int) (any, error) {
	if d.shape != ShapeSequence {
		return nil, ErrNotSequence
	}
	if i < 0 || i >= len(d.items) {
		return nil, fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, i, len(d.items))
	}
	return d.items[i], nil
}

// SetIndex assigns the i-th item. Assigning at i == Len appends.
func (d *Data) SetIndex(i int, v any) error {
	if d.shape != ShapeSequence {
		return ErrNotSequence
	}
	if i < 0 || i > len(d.items) {
		return fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, i, len(d.items))
	}
	nv, err := normalizeValue(v)
	if err != nil {
		return err
	}
	if i == len(d.items) {
		d.items = append(d.items, nv)
	} else {
		d.items[i] = nv
	}
	return nil
}

// Append adds items to sequence data.
func (d *Data) Append(values ...any) error {
	if d.shape != ShapeSequence {
		return ErrNotSequence
	}
	items, err := normalizeSlice(values)
	if err != nil {
		return err
	}
	d.items = append(d.items, items...)
	return nil
}

// Value exposes a deep copy of the container as a plain map or slice.
// Nested entities stay shared.
func (d *Data) Value() any {
	return cloneValue(d.raw())
}

func (d *Data) raw() any {
	if d.shape == ShapeSequence {
		return d.items
	}
	return d.fields
}

// each visits every slot; set replaces the value at that slot.
func (d *Data) each(fn func(v any, set func(any)) error) error {
	if d.shape == ShapeSequence {
		for i := range d.items {
			if err := fn(d.items[i], func(nv any) { d.items[i] = nv }); err != nil {
				return err
			}
		}
		return nil
	}
	for _, k := range d.Keys() {
		if err := fn(d.fields[k], func(nv any) { d.fields[k] = nv }); err != nil {
			return err
		}
	}
	return nil
}

// lookup returns the value at the slot addressed by a map key or slice index.
func (d *Data) lookup(key string, index int) (any, bool) {
	if d.shape == ShapeSequence {
		if index < 0 || index >= len(d.items) {
			return nil, false
		}
		return d.items[index], true
	}
	v, ok := d.fields[key]
	return v, ok
}

func (d *Data) clone() *Data {
	if d == nil {
		return nil
	}
	if d.shape == ShapeSequence {
		return newSequenceData(cloneSlice(d.items))
	}
	return newObjectData(cloneMap(d.fields))
}
