package blob

import (
	"context"
	"fmt"
	"os"

	"graphsync/internal/infra/blob/fs"
	"graphsync/internal/infra/blob/memory"
	infraS3 "graphsync/internal/infra/blob/s3"
)

// S3Config re-exports the S3 driver configuration.
type S3Config = infraS3.Config

// Config selects and parameterises a blob driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// ConfigFromEnv reads driver selection from the environment.
//
//	GRAPHSYNC_BLOB_DRIVER: fs|s3|memory (default fs)
//	GRAPHSYNC_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in internal/infra/blob/s3)
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(os.Getenv("GRAPHSYNC_BLOB_DRIVER")),
		FSRoot: os.Getenv("GRAPHSYNC_BLOB_FS_ROOT"),
		S3:     infraS3.ConfigFromEnv(),
	}
}

// Open constructs the Store cfg names; an empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		store, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverS3:
		store, err := infraS3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMockS3ForTests exposes the in-memory S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
