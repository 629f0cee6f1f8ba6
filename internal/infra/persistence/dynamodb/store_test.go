package dynamodb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"graphsync/pkg/domain"
)

// fakeDynamo answers the subset of the DynamoDB JSON protocol the store uses.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]map[string]string
	calls  []string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: map[string]map[string]map[string]map[string]string{}}
}

func (f *fakeDynamo) RoundTrip(req *http.Request) (*http.Response, error) {
	op := strings.TrimPrefix(req.Header.Get("X-Amz-Target"), "DynamoDB_20120810.")
	var body map[string]json.RawMessage
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &body)
	}
	var table string
	_ = json.Unmarshal(body["TableName"], &table)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	switch op {
	case "CreateTable":
		if _, ok := f.tables[table]; ok {
			return respond(400, map[string]any{
				"__type":  "com.amazonaws.dynamodb.v20120810#ResourceInUseException",
				"message": "Table already exists: " + table,
			}), nil
		}
		f.tables[table] = map[string]map[string]map[string]string{}
		return respond(200, map[string]any{"TableDescription": map[string]any{"TableName": table, "TableStatus": "CREATING"}}), nil
	case "DescribeTable":
		if _, ok := f.tables[table]; !ok {
			return respond(400, map[string]any{
				"__type":  "com.amazonaws.dynamodb.v20120810#ResourceNotFoundException",
				"message": "Requested resource not found",
			}), nil
		}
		return respond(200, map[string]any{"Table": map[string]any{"TableName": table, "TableStatus": "ACTIVE"}}), nil
	case "PutItem":
		var item map[string]map[string]string
		_ = json.Unmarshal(body["Item"], &item)
		f.tables[table][item["id"]["S"]] = item
		return respond(200, map[string]any{}), nil
	case "GetItem":
		var key map[string]map[string]string
		_ = json.Unmarshal(body["Key"], &key)
		item, ok := f.tables[table][key["id"]["S"]]
		if !ok {
			return respond(200, map[string]any{}), nil
		}
		return respond(200, map[string]any{"Item": item}), nil
	}
	return respond(400, map[string]any{"__type": "UnknownOperationException", "message": op}), nil
}

func (f *fakeDynamo) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func respond(status int, body any) *http.Response {
	raw, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/x-amz-json-1.0"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func newTestStore(t *testing.T, fake *fakeDynamo) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{
		Region:          "us-east-1",
		Endpoint:        "http://dynamodb.test",
		TablePrefix:     "gs_",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		HTTPClient:      &http.Client{Transport: fake},
	}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return store
}

func TestStoreSaveReload(t *testing.T) {
	fake := newFakeDynamo()
	store := newTestStore(t, fake)
	ctx := context.Background()
	if err := store.Configure(ctx, "objects"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	rec := domain.Record{ID: "a", PrototypeName: "Person", Data: map[string]any{
		"name":    "Ada",
		"friends": map[string]any{"id": "b"},
	}}
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
	if _, ok := fake.tables["gs_objects"]; !ok {
		t.Fatalf("expected prefixed table, have %v", fake.tables)
	}
}

func TestStoreConfigureExistingTable(t *testing.T) {
	fake := newFakeDynamo()
	store := newTestStore(t, fake)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := store.Configure(ctx, "objects"); err != nil {
			t.Fatalf("configure %d: %v", i, err)
		}
	}
	if got := fake.count("CreateTable"); got != 2 {
		t.Fatalf("expected two create attempts, got %d", got)
	}
}

func TestStoreReloadMissing(t *testing.T) {
	store := newTestStore(t, newFakeDynamo())
	ctx := context.Background()
	if err := store.Configure(ctx, ""); err != nil {
		t.Fatalf("configure: %v", err)
	}
	_, err := store.Reload(ctx, "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreRequiresConfigure(t *testing.T) {
	store := newTestStore(t, newFakeDynamo())
	if err := store.Save(context.Background(), domain.Record{ID: "a", Data: map[string]any{}}); err == nil {
		t.Fatal("expected unconfigured save to fail")
	}
	if err := store.Save(context.Background(), domain.Record{}); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestStoreRejectsBadTableName(t *testing.T) {
	store := newTestStore(t, newFakeDynamo())
	if err := store.Configure(context.Background(), "bad name!"); err == nil {
		t.Fatal("expected invalid table name error")
	}
}
