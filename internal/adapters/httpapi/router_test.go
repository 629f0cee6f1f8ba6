package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"graphsync/internal/core"
	"graphsync/internal/infra/persistence/memory"
	"graphsync/plugins/people"
)

func newServer(t *testing.T, opts Options) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	s, err := core.New(store, core.WithPlugins(people.New()))
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	srv := httptest.NewServer(NewRouter(s, opts))
	t.Cleanup(srv.Close)
	return srv, store
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestPostThenGetObject(t *testing.T) {
	srv, store := newServer(t, Options{})
	body := `{"id":"ada","prototypeName":"Person","data":{"name":"Ada","friends":[{"id":"grace","name":"Grace"}]}}`
	resp, err := http.Post(srv.URL+"/object", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	posted := decode(t, resp)
	if posted["id"] != "ada" || posted["prototypeName"] != "Person" {
		t.Fatalf("unexpected post response %v", posted)
	}
	friends := posted["data"].(map[string]any)["friends"].(map[string]any)
	listID, _ := friends["id"].(string)
	if listID == "" || len(friends) != 1 {
		t.Fatalf("expected friends flattened to a stub, got %v", friends)
	}
	if store.SaveCount("grace") != 1 {
		t.Fatalf("expected nested friend persisted, got %d saves", store.SaveCount("grace"))
	}

	resp, err = http.Get(srv.URL + "/object/ada")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if diff := cmp.Diff(posted, decode(t, resp)); diff != "" {
		t.Fatalf("get should return the stored record (-post +get):\n%s", diff)
	}
}

func TestObjectFailuresAre404(t *testing.T) {
	srv, _ := newServer(t, Options{})
	resp, err := http.Get(srv.URL + "/object/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing object, got %d", resp.StatusCode)
	}
	if msg := decode(t, resp)["error"]; msg == nil || msg == "" {
		t.Fatal("expected an error message")
	}
	for _, body := range []string{`{"id":12}`, `not json`, `{"prototypeName":"Person","data":{"name":3}}`} {
		resp, err := http.Post(srv.URL+"/object", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", body, resp.StatusCode)
		}
	}
}

func TestHealthPrototypesAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "graphsync_test_total", Help: "test"}))
	srv, _ := newServer(t, Options{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(b) != "ok" {
		t.Fatalf("unexpected healthz %d %q", resp.StatusCode, b)
	}

	resp, err = http.Get(srv.URL + "/prototypes")
	if err != nil {
		t.Fatalf("prototypes: %v", err)
	}
	got := decode(t, resp)["prototypes"]
	if diff := cmp.Diff([]any{"Array", "Person", "Chat"}, got); diff != "" {
		t.Fatalf("prototypes mismatch (-want +got):\n%s", diff)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	b, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(b), "graphsync_test_total") {
		t.Fatalf("expected metrics exposition, got %q", b)
	}
}

func TestCORSAndMiddlewares(t *testing.T) {
	var seen []string
	tag := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			w.Header().Set("X-Tagged", "yes")
			next.ServeHTTP(w, r)
		})
	}
	srv, _ := newServer(t, Options{CORSOrigins: []string{"https://app.example"}, Middlewares: []Middleware{tag, nil}})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/object", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("unexpected preflight %d %v", resp.StatusCode, resp.Header)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin must not be allowed")
	}
	if resp.Header.Get("X-Tagged") != "yes" || len(seen) != 1 {
		t.Fatalf("custom middleware not applied: %v", seen)
	}
}
