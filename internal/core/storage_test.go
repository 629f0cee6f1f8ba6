package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"graphsync/internal/blob"
	"graphsync/internal/infra/persistence/httpproxy"
	"graphsync/pkg/domain"
)

func TestOpenBackendDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []StorageOptions{
		{},
		{Driver: StorageMemory},
		{Driver: StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "graph.db")},
		{Driver: StorageBlob, Blob: blob.Config{Driver: blob.DriverMemory}},
		{Driver: StorageHTTP, HTTP: httpproxy.Config{BaseURL: "http://127.0.0.1:1"}},
	}
	for _, opts := range cases {
		backend, err := OpenBackend(ctx, opts, nil)
		if err != nil {
			t.Fatalf("driver %q: %v", opts.Driver, err)
		}
		if backend == nil {
			t.Fatalf("driver %q: nil backend", opts.Driver)
		}
		if closer, ok := backend.(domain.Closer); ok {
			if err := closer.Close(); err != nil {
				t.Fatalf("close %q: %v", opts.Driver, err)
			}
		}
	}
}

func TestOpenBackendUnknownDriver(t *testing.T) {
	_, err := OpenBackend(context.Background(), StorageOptions{Driver: "floppy"}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "storage driver" || nf.ID != "floppy" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestOpenBackendFailureReturnsNilInterface(t *testing.T) {
	backend, err := OpenBackend(context.Background(), StorageOptions{Driver: StorageHTTP}, nil)
	if err == nil {
		t.Fatal("expected missing url error")
	}
	if backend != nil {
		t.Fatalf("expected nil backend on error, got %#v", backend)
	}
}

func TestStorageDriversListed(t *testing.T) {
	if got := len(StorageDrivers()); got != 6 {
		t.Fatalf("expected six drivers, got %d", got)
	}
}
