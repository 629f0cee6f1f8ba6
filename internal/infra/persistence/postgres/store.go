// Package postgres persists records to PostgreSQL, one table per namespace
// with the record data held in a JSONB column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"graphsync/pkg/domain"
)

var _ domain.Backend = (*Store)(nil)

const (
	defaultDriver    = "pgx"
	defaultDSN       = "postgres://localhost/graphsync?sslmode=disable"
	defaultNamespace = "objects"
)

// Postgres error codes raised when two sessions create the same table at once.
const (
	codeDuplicateTable  = "42P07"
	codeUniqueViolation = "23505"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex

	namespacePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
)

// Conn holds discrete connection settings used when no DSN is given.
type Conn struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders the settings as a postgres URL.
func (c Conn) DSN() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	if c.Port != 0 {
		host = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + c.Database}
	if c.Database == "" {
		u.Path = "/graphsync"
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	mode := c.SSLMode
	if mode == "" {
		mode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	return u.String()
}

// Store is a Postgres-backed domain.Backend.
type Store struct {
	db     *sql.DB
	logger hclog.Logger

	mu    sync.RWMutex
	table string
}

// NewStore connects using dsn (defaultDSN when empty) and prepares the
// default namespace.
func NewStore(ctx context.Context, dsn string, logger hclog.Logger) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: db, logger: logger.Named("postgres")}
	if err := s.Configure(ctx, defaultNamespace); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Configure creates the namespace table if needed and selects it. Losing a
// creation race to another session is not an error.
func (s *Store) Configure(ctx context.Context, namespace string) error {
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		prototype TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL
	)`, namespace)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil && !isDuplicate(err) {
		return fmt.Errorf("create namespace %s: %w", namespace, err)
	}
	s.mu.Lock()
	s.table = namespace
	s.mu.Unlock()
	s.logger.Debug("namespace configured", "namespace", namespace)
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
	query := fmt.Sprintf(`INSERT INTO %q (id, prototype, payload) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET prototype = EXCLUDED.prototype, payload = EXCLUDED.payload`, s.namespace())
	if _, err := s.db.ExecContext(ctx, query, record.ID, record.PrototypeName, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", record.ID, err)
	}
	return nil
}

// Reload returns the record stored under id.
func (s *Store) Reload(ctx context.Context, id string) (domain.Record, error) {
	query := fmt.Sprintf(`SELECT prototype, payload FROM %q WHERE id = $1`, s.namespace())
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

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeDuplicateTable || pgErr.Code == codeUniqueViolation
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
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
