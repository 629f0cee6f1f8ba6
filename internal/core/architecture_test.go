package core

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
)

var (
	corePkgOnce sync.Once
	corePkg     *packages.Package
	corePkgErr  error
)

func loadCorePackage(t *testing.T) *packages.Package {
	t.Helper()
	corePkgOnce.Do(func() {
		cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedFiles}
		pkgs, err := packages.Load(cfg, "graphsync/internal/core")
		if err != nil {
			corePkgErr = fmt.Errorf("load core package: %w", err)
			return
		}
		for _, pkg := range pkgs {
			if len(pkg.Errors) > 0 {
				corePkgErr = fmt.Errorf("package load errors: %v", pkg.Errors)
				return
			}
			if pkg.PkgPath == "graphsync/internal/core" {
				corePkg = pkg
				return
			}
		}
		corePkgErr = fmt.Errorf("core package not returned")
	})
	if corePkgErr != nil {
		t.Fatalf("%v", corePkgErr)
	}
	return corePkg
}

func TestNoTypeAliases(t *testing.T) {
	pkg := loadCorePackage(t)
	var aliases []string
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || !ts.Assign.IsValid() {
					continue
				}
				pos := pkg.Fset.Position(ts.Pos())
				aliases = append(aliases, fmt.Sprintf("%s:%d type %s", filepath.Base(pos.Filename), pos.Line, ts.Name.Name))
			}
		}
	}
	if len(aliases) > 0 {
		t.Fatalf("type aliases are forbidden in internal/core; found %d:\n%s", len(aliases), strings.Join(aliases, "\n"))
	}
}

// Entities are never cached by the synchronizer: two lookups of one id
// yield independent entities.
func TestSynchronizerHoldsNoEntities(t *testing.T) {
	pkg := loadCorePackage(t)
	obj := pkg.Types.Scope().Lookup("Synchronizer")
	if obj == nil {
		t.Fatal("Synchronizer type not found")
	}
	st, ok := obj.Type().Underlying().(*types.Struct)
	if !ok {
		t.Fatal("Synchronizer is not a struct")
	}
	entity := pkg.Types.Scope().Lookup("Entity").Type()
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if strings.Contains(types.TypeString(f.Type(), nil), types.TypeString(entity, nil)) {
			t.Fatalf("Synchronizer field %s holds entities (%s)", f.Name(), f.Type())
		}
	}
}
