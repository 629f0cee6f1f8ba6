package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := Open(context.Background(), Config{Driver: DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	memStore, err := Open(context.Background(), Config{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	return map[string]Store{
		"fs":     fsStore,
		"memory": memStore,
		"s3":     NewMockS3ForTests(),
	}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestStoreContract(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Put(ctx, "objects/a.json", strings.NewReader(`{"v":1}`), PutOptions{ContentType: "application/json"}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := store.Put(ctx, "objects/a.json", strings.NewReader(`{"v":2}`), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			if _, err := store.Put(ctx, "objects/a.json", strings.NewReader(`{"v":3}`), PutOptions{Overwrite: true}); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			info, body, err := store.Get(ctx, "objects/a.json")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got := readAll(t, body); got != `{"v":3}` {
				t.Fatalf("unexpected body %q", got)
			}
			if info.Size != int64(len(`{"v":3}`)) {
				t.Fatalf("unexpected size %d", info.Size)
			}
			if _, _, err := store.Get(ctx, "objects/missing.json"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	store, err := Open(context.Background(), Config{FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs default, got %s", store.Driver())
	}
	for _, key := range []string{"", "../escape", "/abs", "x.meta"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "tape"}); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(context.Background(), Config{Driver: DriverS3}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GRAPHSYNC_BLOB_DRIVER", "s3")
	t.Setenv("GRAPHSYNC_BLOB_S3_BUCKET", "records")
	t.Setenv("GRAPHSYNC_BLOB_S3_PATH_STYLE", "TRUE")
	cfg := ConfigFromEnv()
	if cfg.Driver != DriverS3 || cfg.S3.Bucket != "records" || !cfg.S3.PathStyle {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
