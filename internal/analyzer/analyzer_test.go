package analyzer

import (
	"strings"
	"testing"

	"github.com/DeusData/codegraph/internal/lang"
	"github.com/DeusData/codegraph/internal/parser"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	ps, err := parser.New()
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	return NewRegistry(ps)
}

func analyzeSource(t *testing.T, relPath, code string) []Entity {
	t.Helper()
	a := testRegistry(t).ForPath(relPath)
	if a == nil {
		t.Fatalf("no analyzer for %s", relPath)
	}
	entities, err := a.Analyze(relPath, []byte(code))
	if err != nil {
		t.Fatalf("Analyze(%s): %v", relPath, err)
	}
	return entities
}

func findImports(t *testing.T, relPath, code string) []ImportRecord {
	t.Helper()
	a := testRegistry(t).ForPath(relPath)
	if a == nil {
		t.Fatalf("no analyzer for %s", relPath)
	}
	recs, err := a.FindImports(relPath, []byte(code))
	if err != nil {
		t.Fatalf("FindImports(%s): %v", relPath, err)
	}
	return recs
}

func findEntity(t *testing.T, entities []Entity, qn string) Entity {
	t.Helper()
	for _, e := range entities {
		if e.QN == qn {
			return e
		}
	}
	t.Fatalf("entity %q not found, have %s", qn, strings.Join(entityQNs(entities), ", "))
	return Entity{}
}

func hasEntity(entities []Entity, qn string) bool {
	for _, e := range entities {
		if e.QN == qn {
			return true
		}
	}
	return false
}

func entityQNs(entities []Entity) []string {
	qns := make([]string, len(entities))
	for i, e := range entities {
		qns[i] = e.QN
	}
	return qns
}

func assertStrings(t *testing.T, what string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
	}
}

func TestRegistryForExtension(t *testing.T) {
	r := testRegistry(t)

	py := r.ForExtension(".py")
	if py == nil || py.Language() != lang.Python {
		t.Fatalf("ForExtension(.py) = %v", py)
	}
	if a := r.ForExtension(".PY"); a == nil {
		t.Fatal("extension lookup should be case-insensitive")
	}
	ja := r.ForExtension(".java")
	if ja == nil || ja.Language() != lang.Java {
		t.Fatalf("ForExtension(.java) = %v", ja)
	}
	if a := r.ForExtension(".txt"); a != nil {
		t.Fatalf("ForExtension(.txt) = %v, want nil", a)
	}
}

func TestRegistryForPath(t *testing.T) {
	r := testRegistry(t)
	if a := r.ForPath("src/pkg/mod.py"); a == nil || a.Language() != lang.Python {
		t.Fatalf("ForPath(mod.py) = %v", a)
	}
	if a := r.ForPath("README"); a != nil {
		t.Fatalf("ForPath(README) = %v, want nil", a)
	}
}

func TestRegistryWithoutParser(t *testing.T) {
	r := NewRegistry(nil)

	// Java falls back to the scanner backend; Python has no fallback.
	ja := r.ForExtension(".java")
	if ja == nil || ja.Language() != lang.Java {
		t.Fatalf("ForExtension(.java) = %v, want scanner fallback", ja)
	}
	if _, ok := ja.(*javaScanAnalyzer); !ok {
		t.Fatalf("fallback analyzer is %T, want *javaScanAnalyzer", ja)
	}
	if a := r.ForExtension(".py"); a != nil {
		t.Fatalf("ForExtension(.py) = %v, want nil without a parser", a)
	}
}

func TestSimpleName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Foo", "Foo"},
		{"java.util.List", "List"},
		{"List<String>", "List"},
		{"java.util.Map<String, Integer>", "Map"},
		{"Comparable<Outer>", "Comparable"},
		{"", ""},
	}
	for _, c := range cases {
		if got := simpleName(c.in); got != c.want {
			t.Errorf("simpleName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestImportRecordWildcard(t *testing.T) {
	star := ImportRecord{Kind: ImportFrom, Module: "x", Entities: []ImportEntity{{Name: "*"}}}
	if !star.Wildcard() {
		t.Error("star import should report Wildcard")
	}
	named := ImportRecord{Kind: ImportFrom, Module: "x", Entities: []ImportEntity{{Name: "y"}}}
	if named.Wildcard() {
		t.Error("named import should not report Wildcard")
	}
	plain := ImportRecord{Kind: ImportPlain, Module: "x"}
	if plain.Wildcard() {
		t.Error("plain import should not report Wildcard")
	}
}

func TestParseJavaImport(t *testing.T) {
	rec, ok := parseJavaImport("import java.util.List;")
	if !ok || rec.Kind != ImportFrom || rec.Module != "java.util" {
		t.Fatalf("regular import = %+v, %v", rec, ok)
	}
	if len(rec.Entities) != 1 || rec.Entities[0].Name != "List" {
		t.Fatalf("regular import entities = %+v", rec.Entities)
	}

	rec, ok = parseJavaImport("import java.util.*;")
	if !ok || rec.Kind != ImportPlain || rec.Module != "java.util" {
		t.Fatalf("wildcard import = %+v, %v", rec, ok)
	}

	rec, ok = parseJavaImport("import static org.junit.Assert.assertEquals;")
	if !ok || !rec.Static || rec.Module != "org.junit.Assert" || rec.Entities[0].Name != "assertEquals" {
		t.Fatalf("static import = %+v, %v", rec, ok)
	}

	if _, ok := parseJavaImport("import top;"); ok {
		t.Error("single-segment import should be dropped")
	}
}
