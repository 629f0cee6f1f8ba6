// Package memory provides an in-process Backend for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/copystructure"

	"graphsync/pkg/domain"
)

var _ domain.Backend = (*Store)(nil)

// DefaultNamespace is used until Configure selects another.
const DefaultNamespace = "objects"

// Store keeps records per namespace in process memory. Records are deep
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu         sync.RWMutex
	namespace  string
	namespaces map[string]map[string]domain.Record
	saves      map[string]int
}

// NewStore returns an empty store using DefaultNamespace.
func NewStore() *Store {
	return &Store{
		namespace:  DefaultNamespace,
		namespaces: map[string]map[string]domain.Record{DefaultNamespace: {}},
		saves:      make(map[string]int),
	}
}

// Configure selects namespace, creating it when missing.
func (s *Store) Configure(_ context.Context, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[namespace]; !ok {
		s.namespaces[namespace] = make(map[string]domain.Record)
	}
	s.namespace = namespace
	return nil
}

// Save upserts record in the current namespace.
func (s *Store) Save(_ context.Context, record domain.Record) error {
	if record.ID == "" {
		return domain.InvalidIDError{Reason: "id cannot be empty"}
	}
	cp, err := copyRecord(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces[s.namespace][record.ID] = cp
	s.saves[record.ID]++
	return nil
}

// Reload returns a copy of the stored record.
func (s *Store) Reload(_ context.Context, id string) (domain.Record, error) {
	s.mu.RLock()
	rec, ok := s.namespaces[s.namespace][id]
	s.mu.RUnlock()
	if !ok {
		return domain.Record{}, domain.NotFoundError{ID: id}
	}
	return copyRecord(rec)
}

// SaveCount reports how many times id was written, across namespaces.
func (s *Store) SaveCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves[id]
}

// IDs lists record ids in the current namespace, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.namespaces[s.namespace]))
	for id := range s.namespaces[s.namespace] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Namespace returns the namespace selected by the last Configure.
func (s *Store) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

func copyRecord(rec domain.Record) (domain.Record, error) {
	data, err := copystructure.Copy(rec.Data)
	if err != nil {
		return domain.Record{}, fmt.Errorf("copy record %s: %w", rec.ID, err)
	}
	rec.Data = data
	return rec, nil
}
