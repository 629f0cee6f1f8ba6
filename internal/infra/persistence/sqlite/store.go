// Package sqlite persists records to an embedded SQLite database, one table
// per namespace with the record data stored as a JSON blob.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/hashicorp/go-hclog"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"graphsync/pkg/domain"
)

var _ domain.Backend = (*Store)(nil)

const (
	defaultPath      = "graphsync.db"
	defaultNamespace = "objects"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex

	namespacePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// Store is a SQLite-backed domain.Backend.
type Store struct {
	db     *sql.DB
	path   string
	logger hclog.Logger

	mu    sync.RWMutex
	table string
}

// NewStore opens (creating if needed) the database at path and prepares the
// default namespace.
func NewStore(path string, logger hclog.Logger) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	openMu.Lock()
	db, err := sqlOpen("sqlite", path)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time keeps parallel saves from tripping SQLITE_BUSY
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path, logger: logger.Named("sqlite")}
	if err := s.Configure(context.Background(), defaultNamespace); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Configure creates the namespace table if needed and selects it.
func (s *Store) Configure(ctx context.Context, namespace string) error {
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		prototype TEXT NOT NULL DEFAULT '',
		payload BLOB NOT NULL
	)`, namespace)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create namespace %s: %w", namespace, err)
	}
	s.mu.Lock()
	s.table = namespace
	s.mu.Unlock()
	s.logger.Debug("namespace configured", "namespace", namespace, "path", s.path)
	return nil
}

// Save upserts record.
func (s *Store) Save(ctx context.Context, record domain.Record) error {
	if record.ID == "" {
		return domain.InvalidIDError{Reason: "id cannot be empty"}
	}
	payload, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", record.ID, err)
	}
	query := fmt.Sprintf(`INSERT INTO %q(id,prototype,payload) VALUES(?,?,?) ON CONFLICT(id) DO UPDATE SET prototype=excluded.prototype, payload=excluded.payload`, s.namespace())
	if _, err := s.db.ExecContext(ctx, query, record.ID, record.PrototypeName, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", record.ID, err)
	}
	return nil
}

// Reload returns the record stored under id.
func (s *Store) Reload(ctx context.Context, id string) (domain.Record, error) {
	query := fmt.Sprintf(`SELECT prototype, payload FROM %q WHERE id = ?`, s.namespace())
	var (
		prototype string
		payload   []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&prototype, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("select %s: %w", id, err)
	}
	rec := domain.Record{ID: id, PrototypeName: prototype}
	if err := json.Unmarshal(payload, &rec.Data); err != nil {
		return domain.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return rec, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// OverrideSQLOpen swaps the sql.Open function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
