package domain

import "context"

// Backend is the storage contract every persistence adapter satisfies.
//
// Configure prepares a namespace (collection, table, bucket prefix) and must
// succeed when the namespace already exists. Save is an upsert keyed by
// Record.ID. Reload returns a NotFoundError when no record matches.
type Backend interface {
	Configure(ctx context.Context, namespace string) error
	Save(ctx context.Context, record Record) error
	Reload(ctx context.Context, id string) (Record, error)
}

// Closer is implemented by backends holding connections or files.
type Closer interface {
	Close() error
}
