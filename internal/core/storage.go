package core

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"graphsync/internal/blob"
	"graphsync/internal/infra/persistence/blobstore"
	"graphsync/internal/infra/persistence/dynamodb"
	"graphsync/internal/infra/persistence/httpproxy"
	"graphsync/internal/infra/persistence/memory"
	"graphsync/internal/infra/persistence/postgres"
	"graphsync/internal/infra/persistence/sqlite"
	"graphsync/pkg/domain"
)

// StorageDriver identifies a concrete backend implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageDynamoDB StorageDriver = "dynamodb" // DynamoDB or DynamoDB Local
	StorageBlob     StorageDriver = "blob"     // JSON documents in a blob store
	StorageHTTP     StorageDriver = "http"     // remote graphsync API
)

// StorageDrivers lists every driver OpenBackend understands.
func StorageDrivers() []StorageDriver {
	return []StorageDriver{StorageMemory, StorageSQLite, StoragePostgres, StorageDynamoDB, StorageBlob, StorageHTTP}
}

// StorageOptions carries per-driver settings; only the selected driver's
// fields are read.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	DynamoDB    dynamodb.Config
	Blob        blob.Config
	HTTP        httpproxy.Config
}

// OpenBackend constructs the backend named by opts.Driver (memory when
// empty). Unknown names yield a domain.NotFoundError of kind "storage driver".
// Callers should close the result when it implements domain.Closer.
func OpenBackend(ctx context.Context, opts StorageOptions, logger hclog.Logger) (domain.Backend, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	var (
		backend domain.Backend
		err     error
	)
	switch opts.Driver {
	case "", StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		backend, err = nilSafe(sqlite.NewStore(opts.SQLitePath, logger))
	case StoragePostgres:
		backend, err = nilSafe(postgres.NewStore(ctx, opts.PostgresDSN, logger))
	case StorageDynamoDB:
		backend, err = nilSafe(dynamodb.New(ctx, opts.DynamoDB, logger))
	case StorageBlob:
		blobs, openErr := blob.Open(ctx, opts.Blob)
		if openErr != nil {
			return nil, openErr
		}
		backend = blobstore.New(blobs, logger)
	case StorageHTTP:
		backend, err = nilSafe(httpproxy.New(opts.HTTP, logger))
	default:
		return nil, domain.NotFoundError{Kind: "storage driver", ID: string(opts.Driver)}
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("storage backend opened", "driver", opts.Driver)
	return backend, nil
}

// nilSafe keeps a failed constructor's typed nil out of the interface.
func nilSafe[B domain.Backend](b B, err error) (domain.Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}
