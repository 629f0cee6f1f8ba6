package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"graphsync/pkg/domain"
)

// Entity tracks one record: a current working copy and the snapshot last
// known to be persisted. The id never changes after construction.
type Entity struct {
	owner *Synchronizer
	id    string

	mu         sync.Mutex
	protoName  string
	proto      *Prototype
	current    *Data
	stored     *Data
	storedName string
	hasStored  bool

	saving atomic.Bool
}

// ID returns the entity identifier.
func (e *Entity) ID() string { return e.id }

// PrototypeName returns the attached prototype name, empty when untyped.
func (e *Entity) PrototypeName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.protoName
}

// IsBeingSaved reports whether a save traversal has claimed this entity and
// its own record has not settled yet.
func (e *Entity) IsBeingSaved() bool { return e.saving.Load() }

// Shape reports the shape of the current data.
func (e *Entity) Shape() Shape {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.shape
}

// Data returns a copy of the current data. Nested entities stay shared.
func (e *Entity) Data() *Data {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.clone()
}

// Field reads a field of object-shaped data.
func (e *Entity) Field(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Field(name)
}

// SetField assigns a field of object-shaped data.
func (e *Entity) SetField(name string, v any) error {
	if name == "id" {
		return fmt.Errorf("id is immutable")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.SetField(name, v)
}

// Get returns the i-th item of sequence-shaped data.
func (e *Entity) Get(i int) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Index(i)
}

// Set assigns the i-th item of sequence-shaped data; i == Size appends.
func (e *Entity) Set(i int, v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.SetIndex(i, v)
}

// Size is the number of items of sequence-shaped data, or of fields.
func (e *Entity) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Len()
}

// Invoke runs a prototype method against the current data.
func (e *Entity) Invoke(method string, args ...any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proto == nil {
		return nil, fmt.Errorf("%w: %s on untyped entity %s", ErrUnknownMethod, method, e.id)
	}
	m, ok := e.proto.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, e.protoName, method)
	}
	return m(e.current, args...)
}

// HasMethod reports whether the attached prototype defines method.
func (e *Entity) HasMethod(method string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proto == nil {
		return false
	}
	_, ok := e.proto.Methods[method]
	return ok
}

// IsDirty compares the current data with the stored snapshot. Nested
// entities compare by identity. Never-saved entities are always dirty.
func (e *Entity) IsDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasStored {
		return true
	}
	return e.protoName != e.storedName || !dataEqual(e.current, e.stored)
}

// Reset discards unsaved edits. Before the first save there is no snapshot to
// return to; the data is emptied (same shape) and the entity stays dirty.
func (e *Entity) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasStored {
		if e.current.shape == ShapeSequence {
			e.current = newSequenceData(nil)
		} else {
			e.current = newObjectData(nil)
		}
		return
	}
	e.current = e.stored.clone()
}

// Record returns the flat form of the current data.
func (e *Entity) Record() domain.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.Record{ID: e.id, Data: flatten(e.current), PrototypeName: e.protoName}
}

// StoredRecord returns the flat form of the stored snapshot, if any.
func (e *Entity) StoredRecord() (domain.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasStored {
		return domain.Record{}, false
	}
	return domain.Record{ID: e.id, Data: flatten(e.stored), PrototypeName: e.storedName}, true
}

// SerializedCurrentData encodes the flat current record as JSON.
func (e *Entity) SerializedCurrentData() ([]byte, error) {
	return json.Marshal(e.Record())
}

// SerializedStoredData encodes the flat stored record as JSON, or "null"
// before the first save.
func (e *Entity) SerializedStoredData() ([]byte, error) {
	rec, ok := e.StoredRecord()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(rec)
}

// MarshalJSON encodes an entity nested inside plain data as its {id} stub.
func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(domain.Stub(e.id))
}

// Reload replaces both snapshots with the backend's record for this id.
// Child entities already held whose id matches the incoming stub are kept;
// other values are wrapped afresh. Unsaved edits on this entity are lost.
func (e *Entity) Reload(ctx context.Context) error {
	return e.owner.observe(ctx, "reload", e.reload)
}

func (e *Entity) reload(ctx context.Context) error {
	record, err := e.owner.backend.Reload(ctx, e.id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var next *Data
	switch incoming := record.Data.(type) {
	case []any:
		items := make([]any, len(incoming))
		for i, v := range incoming {
			old, held := e.current.lookup("", i)
			nv, err := e.reconcile(old, held, v)
			if err != nil {
				return err
			}
			items[i] = nv
		}
		next = newSequenceData(items)
	case map[string]any:
		fields := make(map[string]any, len(incoming))
		for k, v := range incoming {
			old, held := e.current.lookup(k, 0)
			nv, err := e.reconcile(old, held, v)
			if err != nil {
				return err
			}
			fields[k] = nv
		}
		next = newObjectData(fields)
	case nil:
		next = newObjectData(nil)
	default:
		return fmt.Errorf("reload %s: %w: record data %T", e.id, ErrUnsupportedValue, record.Data)
	}
	proto, err := e.owner.resolvePrototype(record.PrototypeName, next.shape)
	if err != nil {
		return fmt.Errorf("reload %s: %w", e.id, err)
	}
	e.current = next.clone()
	e.stored = next.clone()
	e.hasStored = true
	e.protoName = record.PrototypeName
	e.proto = proto
	e.storedName = e.protoName
	e.owner.logger.Trace("entity reloaded", "id", e.id, "prototype", e.protoName)
	return nil
}

func (e *Entity) reconcile(old any, held bool, incoming any) (any, error) {
	if child, ok := old.(*Entity); ok && held {
		if id, ok := domain.StubID(incoming); ok && id == child.id {
			return child, nil
		}
	}
	return e.owner.Create(incoming)
}

// attach binds the prototype registered under name. Unregistered names are
// kept as tags without capabilities.
func (e *Entity) attach(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attachLocked(name)
}

func (e *Entity) attachLocked(name string) error {
	p, err := e.owner.resolvePrototype(name, e.current.shape)
	if err != nil {
		return err
	}
	e.protoName = name
	e.proto = p
	return nil
}

// resolvePrototype looks up name and checks it accepts data of shape. An
// unregistered name resolves to nil without error.
func (s *Synchronizer) resolvePrototype(name string, shape Shape) (*Prototype, error) {
	p, ok := s.registry.Lookup(name)
	if !ok {
		return nil, nil
	}
	if p.Shape != shape {
		return nil, fmt.Errorf("prototype %s expects %s data, got %s", name, p.Shape, shape)
	}
	return p, nil
}

// needsHydration is true for a bare reference: untyped, never loaded, empty.
func (e *Entity) needsHydration() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.protoName == "" && !e.hasStored && e.current.Len() == 0
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
