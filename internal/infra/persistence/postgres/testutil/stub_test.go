package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

func TestStubUpsertsAndFiltersRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	insert := `INSERT INTO "objects" (id, prototype, payload) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`
	for _, name := range []string{"a", "b", "a"} {
		if _, err := conn.ExecContext(ctx, insert, []driver.NamedValue{{Value: name}, {Value: "P"}, {Value: []byte(name)}}); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}
	if got := len(conn.Rows("objects")); got != 2 {
		t.Fatalf("expected 2 rows after upsert, got %d", got)
	}

	rows, err := conn.QueryContext(ctx, `SELECT prototype, payload FROM "objects" WHERE id = $1`, []driver.NamedValue{{Value: "b"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("next: %v", err)
	}
	if dest[0] != "P" || string(dest[1].([]byte)) != "b" {
		t.Fatalf("unexpected row %v", dest)
	}
	if err := rows.Next(dest); err == nil {
		t.Fatalf("expected a single matching row")
	}
}

func TestStubCreateErrorInjection(t *testing.T) {
	_, conn := NewStubDB()
	conn.CreateErr = errors.New("duplicate")
	if _, err := conn.ExecContext(context.Background(), `CREATE TABLE IF NOT EXISTS x (id TEXT)`, nil); err == nil {
		t.Fatalf("expected injected error")
	}
	conn.CreateErr = nil
	if _, err := conn.ExecContext(context.Background(), `CREATE TABLE IF NOT EXISTS x (id TEXT)`, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(conn.Created) != 1 {
		t.Fatalf("expected create recorded, got %v", conn.Created)
	}
}

func TestStubRejectsUnparseableSelect(t *testing.T) {
	_, conn := NewStubDB()
	if _, err := conn.QueryContext(context.Background(), "UPDATE objects SET x = 1", nil); err == nil {
		t.Fatalf("expected parse error")
	}
}
