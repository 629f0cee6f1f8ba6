package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/tools/go/packages"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestImportPredicates(t *testing.T) {
	domainCases := map[string]bool{
		"graphsync/pkg/domain":           true,
		"example.com/mod/pkg/domain@v1":  true,
		"example.com/pkg/domain/sub":     false,
		"example.com/mod/pkg/domainutil": false,
		"":                               false,
	}
	for in, want := range domainCases {
		if got := DomainImportForbidden(in); got != want {
			t.Errorf("DomainImportForbidden(%q)=%v want %v", in, got, want)
		}
	}
	internalCases := map[string]bool{
		"graphsync/internal/core":   true,
		"example.com/internal":      false,
		"notinternal":               false,
		"graphsync/pkg/domain":      false,
		"a/internal/deep/path/here": true,
	}
	for in, want := range internalCases {
		if got := InternalImportForbidden(in); got != want {
			t.Errorf("InternalImportForbidden(%q)=%v want %v", in, got, want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\talias \"graphsync/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ = alias.New\n")
	writeGo(t, dir, "a_test.go", "package tmp\nimport \"graphsync/internal/blob\"\n")
	writeGo(t, dir, "notes.txt", "import \"graphsync/internal/x\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	writeGo(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"graphsync/internal/infra\"\n")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if diff := cmp.Diff([]string{"graphsync/internal/core (in a.go)"}, viols); diff != "" {
		t.Fatalf("violations (-want +got):\n%s", diff)
	}

	var rec recordingFatal
	failIfDirectViolations(&rec, "no internals", viols)
	if rec.msg == "" {
		t.Fatal("expected failure to be reported")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	AssertNoDirectImports(t, dir, InternalImportForbidden, "stdlib only")
	AssertNoDirectImports(t, t.TempDir(), func(string) bool { return true }, "empty dir")
}

func TestTransitiveViolations(t *testing.T) {
	prev := goListDeps
	t.Cleanup(func() { goListDeps = prev })
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\ngraphsync/pkg/domain\n\ngraphsync/internal/core\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", InternalImportForbidden)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	if diff := cmp.Diff([]string{"graphsync/internal/core"}, viols); diff != "" {
		t.Fatalf("violations (-want +got):\n%s", diff)
	}
	var rec recordingFatal
	failIfTransitiveViolations(&rec, "domain stays leaf", viols)
	if rec.msg == "" {
		t.Fatal("expected failure to be reported")
	}
}

func TestAssertNoTransitiveDependency(t *testing.T) {
	AssertNoTransitiveDependency(t, ".", func(path string) bool {
		return path == "github.com/some/nonexistent/package"
	}, "none")
}

func TestImplementersOutside(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, "graphsync/pkg/domain", "graphsync/internal/infra/persistence/memory", "graphsync/internal/infra/persistence/sqlite")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	iface, err := lookupInterface(pkgs, "graphsync/pkg/domain", "Backend")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	got := implementersOutside(pkgs, iface, []string{"graphsync/internal/infra/persistence/sqlite"})
	if diff := cmp.Diff([]string{"graphsync/internal/infra/persistence/memory.Store"}, got); diff != "" {
		t.Fatalf("implementers (-want +got):\n%s", diff)
	}
	if _, err := lookupInterface(pkgs, "graphsync/pkg/domain", "Record"); err == nil {
		t.Fatal("expected non-interface error")
	}
	if _, err := lookupInterface(pkgs, "graphsync/pkg/absent", "Backend"); err == nil {
		t.Fatal("expected missing package error")
	}
}
