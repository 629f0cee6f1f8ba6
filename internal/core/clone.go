package core

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"graphsync/pkg/domain"
)

// cloneValue deep-copies plain containers. Entities are shared, never copied:
// a parent holds a reference to its child, not its own version of it.
func cloneValue(v any) any {
	switch x := v.(type) {
	case *Entity:
		return x
	case map[string]any:
		return cloneMap(x)
	case []any:
		return cloneSlice(x)
	case domain.Object:
		return domain.Object{Prototype: x.Prototype, Fields: cloneMap(x.Fields)}
	default:
		return v
	}
}

// normalizeValue converts v into the value set entities hold: primitives,
// *Entity, map[string]any, []any and domain.Object. Other string-keyed maps,
// slices and arrays are rebuilt element by element into fresh containers, and
// named primitive types collapse to their base kind. Anything else fails with
// ErrUnsupportedValue.
func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, *Entity, string, bool, json.Number,
		float32, float64, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v, nil
	case map[string]any:
		return normalizeMap(x)
	case []any:
		return normalizeSlice(x)
	case domain.Object:
		fields, err := normalizeMap(x.Fields)
		if err != nil {
			return nil, err
		}
		return domain.Object{Prototype: x.Prototype, Fields: fields}, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			nv, err := normalizeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = nv
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			nv, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func normalizeMap(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeSlice(in []any) ([]any, error) {
	out := make([]any, len(in))
	for i, v := range in {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = nv
	}
	return out, nil
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = cloneValue(v)
	}
	return out
}

var dataEqualOpts = cmp.Options{
	cmp.Comparer(func(a, b *Entity) bool { return a == b }),
	cmpopts.EquateEmpty(),
}

func dataEqual(a, b *Data) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.shape != b.shape {
		return false
	}
	return cmp.Equal(a.raw(), b.raw(), dataEqualOpts)
}

// isObjectShaped reports whether v is a container that gets its own entity on save.
func isObjectShaped(v any) bool {
	switch v.(type) {
	case *Entity, map[string]any, []any, domain.Object:
		return true
	default:
		return false
	}
}

// flatten replaces top-level entity references with {id} stubs. Entities
// nested deeper inside raw containers serialize as stubs via MarshalJSON.
func flatten(d *Data) any {
	stub := func(v any) any {
		if e, ok := v.(*Entity); ok {
			return domain.Stub(e.ID())
		}
		return cloneValue(v)
	}
	if d.shape == ShapeSequence {
		out := make([]any, len(d.items))
		for i, v := range d.items {
			out[i] = stub(v)
		}
		return out
	}
	out := make(map[string]any, len(d.fields))
	for k, v := range d.fields {
		out[k] = stub(v)
	}
	return out
}
