// Package blobstore persists records as JSON documents in a blob.Store.
// Each namespace is a key prefix; a record lives at <namespace>/<escaped id>.json.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"graphsync/internal/blob"
	"graphsync/pkg/domain"
)

var _ domain.Backend = (*Store)(nil)

const (
	defaultNamespace = "objects"
	contentType      = "application/json"
	metaPrototype    = "prototype"
)

// Store adapts a blob.Store to domain.Backend.
type Store struct {
	blobs  blob.Store
	logger hclog.Logger

	mu        sync.RWMutex
	namespace string
}

// New wraps blobs, selecting the default namespace.
func New(blobs blob.Store, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{blobs: blobs, logger: logger.Named("blobstore"), namespace: defaultNamespace}
}

// Configure selects namespace as the key prefix. Blob stores need no setup.
func (s *Store) Configure(_ context.Context, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if strings.ContainsAny(namespace, "/.") {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	s.mu.Lock()
	s.namespace = namespace
	s.mu.Unlock()
	return nil
}

// Save overwrites the record document.
func (s *Store) Save(ctx context.Context, record domain.Record) error {
	if record.ID == "" {
		return domain.InvalidIDError{Reason: "id cannot be empty"}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", record.ID, err)
	}
	key := s.key(record.ID)
	opts := blob.PutOptions{ContentType: contentType, Overwrite: true}
	if record.PrototypeName != "" {
		opts.Metadata = map[string]string{metaPrototype: record.PrototypeName}
	}
	info, err := s.blobs.Put(ctx, key, bytes.NewReader(payload), opts)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Trace("record written", "key", key, "etag", info.ETag, "size", info.Size)
	return nil
}

// Reload reads and decodes the record document.
func (s *Store) Reload(ctx context.Context, id string) (domain.Record, error) {
	key := s.key(id)
	_, body, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return domain.Record{}, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = body.Close() }()
	raw, err := io.ReadAll(body)
	if err != nil {
		return domain.Record{}, fmt.Errorf("read %s: %w", key, err)
	}
	rec, err := domain.DecodeRecord(raw)
	if err != nil {
		return domain.Record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

func (s *Store) currentNamespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

func (s *Store) key(id string) string {
	// PathEscape leaves '.' alone; guard against ids like ".." walking the tree.
	escaped := strings.ReplaceAll(url.PathEscape(id), ".", "%2E")
	return s.currentNamespace() + "/" + escaped + ".json"
}
