package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"graphsync/pkg/domain"
)

func TestSaveReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	rec := domain.Record{ID: "a", PrototypeName: "Person", Data: map[string]any{"name": "Alicia", "friend": domain.Stub("b")}}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Reload(ctx, "a")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Save(ctx, domain.Record{ID: "a", Data: map[string]any{"v": 1}})
	_ = store.Save(ctx, domain.Record{ID: "a", Data: map[string]any{"v": 2}})
	got, err := store.Reload(ctx, "a")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Data.(map[string]any)["v"] != 2 {
		t.Fatalf("expected last write to win, got %v", got.Data)
	}
	if store.SaveCount("a") != 2 {
		t.Fatalf("expected 2 saves, got %d", store.SaveCount("a"))
	}
	if ids := store.IDs(); len(ids) != 1 {
		t.Fatalf("expected a single record, got %v", ids)
	}
}

func TestStoredRecordsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	data := map[string]any{"tags": []any{"x"}}
	_ = store.Save(ctx, domain.Record{ID: "a", Data: data})
	data["tags"].([]any)[0] = "mutated"

	got, _ := store.Reload(ctx, "a")
	got.Data.(map[string]any)["extra"] = true

	again, _ := store.Reload(ctx, "a")
	want := map[string]any{"tags": []any{"x"}}
	if diff := cmp.Diff(want, again.Data); diff != "" {
		t.Fatalf("stored record leaked caller mutations:\n%s", diff)
	}
}

func TestReloadMissing(t *testing.T) {
	_, err := NewStore().Reload(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConfigureIsolatesNamespacesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Save(ctx, domain.Record{ID: "a", Data: map[string]any{}})
	for i := 0; i < 2; i++ {
		if err := store.Configure(ctx, "other"); err != nil {
			t.Fatalf("configure: %v", err)
		}
	}
	if _, err := store.Reload(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected namespace isolation, got %v", err)
	}
	if err := store.Configure(ctx, DefaultNamespace); err != nil {
		t.Fatalf("configure default: %v", err)
	}
	if _, err := store.Reload(ctx, "a"); err != nil {
		t.Fatalf("expected record in default namespace: %v", err)
	}
	if err := store.Configure(ctx, ""); err == nil {
		t.Fatalf("expected error for empty namespace")
	}
}

func TestSaveRejectsEmptyID(t *testing.T) {
	err := NewStore().Save(context.Background(), domain.Record{Data: map[string]any{}})
	if !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}
