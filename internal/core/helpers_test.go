package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"graphsync/internal/infra/persistence/memory"
	"graphsync/pkg/domain"
)

var errNameNotString = errors.New("name must be a string")

func personPrototype() Prototype {
	return Prototype{
		Name:  "Person",
		Shape: ShapeObject,
		Methods: map[string]Method{
			"fullName": func(d *Data, _ ...any) (any, error) {
				name, _ := d.Field("name")
				surname, _ := d.Field("surname")
				return fmt.Sprintf("%v %v", name, surname), nil
			},
			"rename": func(d *Data, args ...any) (any, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("rename takes one argument")
				}
				return nil, d.SetField("name", args[0])
			},
		},
		Validate: func(d *Data) error {
			if v, ok := d.Field("name"); ok {
				if _, isString := v.(string); !isString {
					return errNameNotString
				}
			}
			return nil
		},
	}
}

func arrayPrototype() Prototype {
	return Prototype{
		Name:  SequencePrototype,
		Shape: ShapeSequence,
		Methods: map[string]Method{
			"push": func(d *Data, args ...any) (any, error) {
				if err := d.Append(args...); err != nil {
					return nil, err
				}
				return d.Len(), nil
			},
		},
	}
}

func newTestSync(t *testing.T, opts ...Option) (*Synchronizer, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	opts = append([]Option{WithPrototypes(personPrototype(), arrayPrototype())}, opts...)
	s, err := New(store, opts...)
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	return s, store
}

func mustEntity(t *testing.T, s *Synchronizer, v any) *Entity {
	t.Helper()
	e, err := s.CreateEntity(v)
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	return e
}

func mustSave(t *testing.T, e *Entity) {
	t.Helper()
	if err := e.Save(context.Background()); err != nil {
		t.Fatalf("save %s: %v", e.ID(), err)
	}
}

func mustRecord(t *testing.T, store *memory.Store, id string) domain.Record {
	t.Helper()
	rec, err := store.Reload(context.Background(), id)
	if err != nil {
		t.Fatalf("reload %s from store: %v", id, err)
	}
	return rec
}

// scriptedBackend wraps a memory store, failing or blocking saves per id.
type scriptedBackend struct {
	*memory.Store
	mu    sync.Mutex
	fail  map[string]error
	gates map[string]chan struct{}
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{Store: memory.NewStore(), fail: map[string]error{}, gates: map[string]chan struct{}{}}
}

func (b *scriptedBackend) failOn(id string, err error) {
	b.mu.Lock()
	b.fail[id] = err
	b.mu.Unlock()
}

func (b *scriptedBackend) gate(id string) chan struct{} {
	ch := make(chan struct{})
	b.mu.Lock()
	b.gates[id] = ch
	b.mu.Unlock()
	return ch
}

func (b *scriptedBackend) Save(ctx context.Context, rec domain.Record) error {
	b.mu.Lock()
	err := b.fail[rec.ID]
	gate := b.gates[rec.ID]
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return b.Store.Save(ctx, rec)
}
