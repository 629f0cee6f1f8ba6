package core

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"graphsync/pkg/domain"
)

type saveState int

const (
	stateUntouched saveState = iota
	stateClaimed
	statePersisted
)

// saveArena is the per-traversal record of which entities have been claimed.
// Claiming is check-and-set under one lock, so a cycle back to an ancestor,
// or a sibling reaching the same node, never saves it twice. Claims are per
// instance: two distinct entities sharing an id are both written, and the
// later write wins.
type saveArena struct {
	mu     sync.Mutex
	states map[*Entity]saveState
}

func newSaveArena() *saveArena {
	return &saveArena{states: make(map[*Entity]saveState)}
}

func (a *saveArena) claim(e *Entity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.states[e] != stateUntouched {
		return false
	}
	a.states[e] = stateClaimed
	e.saving.Store(true)
	return true
}

func (a *saveArena) settle(e *Entity) {
	a.mu.Lock()
	a.states[e] = statePersisted
	a.mu.Unlock()
}

// Save persists this entity and every entity reachable from it, each once.
// Plain nested containers are wrapped as entities and replace the raw value
// in the current data. Records are written in parallel; the first failure is
// returned and nodes already written are not rolled back.
func (e *Entity) Save(ctx context.Context) error {
	return e.owner.observe(ctx, "save", func(ctx context.Context) error {
		arena := newSaveArena()
		arena.claim(e)
		return e.save(ctx, arena)
	})
}

func (e *Entity) save(ctx context.Context, arena *saveArena) error {
	children, err := e.claimChildren(arena)
	if err != nil {
		e.saving.Store(false)
		for _, child := range children {
			child.saving.Store(false)
		}
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.persist(gctx, arena) })
	for _, child := range children {
		child := child
		g.Go(func() error { return child.save(gctx, arena) })
	}
	return g.Wait()
}

// claimChildren wraps object-shaped values and claims every child not yet
// claimed in this traversal. Claims happen before any child is saved.
func (e *Entity) claimChildren(arena *saveArena) ([]*Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var children []*Entity
	err := e.current.each(func(v any, set func(any)) error {
		if !isObjectShaped(v) {
			return nil
		}
		child, ok := v.(*Entity)
		if !ok {
			var err error
			if child, err = e.owner.CreateEntity(v); err != nil {
				return err
			}
			set(child)
		}
		if arena.claim(child) {
			children = append(children, child)
		}
		return nil
	})
	return children, err
}

// persist writes this entity's own flat record.
func (e *Entity) persist(ctx context.Context, arena *saveArena) error {
	defer e.saving.Store(false)
	if e.needsHydration() {
		if err := e.reload(ctx); err != nil && !isNotFound(err) {
			return err
		}
	}
	e.mu.Lock()
	record := domain.Record{ID: e.id, Data: flatten(e.current), PrototypeName: e.protoName}
	snapshot := e.current.clone()
	name := e.protoName
	e.mu.Unlock()

	if err := e.owner.backend.Save(ctx, record); err != nil {
		e.owner.logger.Debug("entity save failed", "id", e.id, "error", err)
		return err
	}

	e.mu.Lock()
	e.stored = snapshot
	e.storedName = name
	e.hasStored = true
	e.mu.Unlock()
	arena.settle(e)
	e.owner.logger.Trace("entity saved", "id", e.id, "prototype", name)
	return nil
}
