package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/DeusData/codegraph/internal/analyzer"
	"github.com/DeusData/codegraph/internal/config"
	"github.com/DeusData/codegraph/internal/graph"
	"github.com/DeusData/codegraph/internal/parser"
)

func testBuilder(t *testing.T, opts Options) *Builder {
	t.Helper()
	ps, err := parser.New()
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	return New(analyzer.NewRegistry(ps), opts)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func buildRepo(t *testing.T, opts Options, files map[string]string) *graph.Graph {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}
	g, err := testBuilder(t, opts).Build(context.Background(), root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func countEdges(g *graph.Graph, from, to string, kind graph.EdgeKind) int {
	n := 0
	for _, e := range g.Out(from, kind) {
		if e.To == to {
			n++
		}
	}
	return n
}

func assertEdge(t *testing.T, g *graph.Graph, from, to string, kind graph.EdgeKind) {
	t.Helper()
	if countEdges(g, from, to, kind) == 0 {
		t.Errorf("missing %s edge %s -> %s\nout edges: %+v", kind, from, to, g.Out(from))
	}
}

func assertNoEdge(t *testing.T, g *graph.Graph, from, to string, kind graph.EdgeKind) {
	t.Helper()
	if n := countEdges(g, from, to, kind); n > 0 {
		t.Errorf("unexpected %s edge %s -> %s (%d)", kind, from, to, n)
	}
}

func importAlias(t *testing.T, g *graph.Graph, from, to string) string {
	t.Helper()
	for _, e := range g.Out(from, graph.EdgeImports) {
		if e.To == to {
			return e.Alias
		}
	}
	t.Fatalf("no imports edge %s -> %s", from, to)
	return ""
}

func TestBuildContainment(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"pkg/service.py": `class Service:
    def start(self):
        pass

def helper():
    pass
`,
	})

	for _, key := range []string{
		"/", "pkg", "pkg/service.py",
		"pkg/service.py:Service",
		"pkg/service.py:Service.start",
		"pkg/service.py:helper",
	} {
		if !g.Has(key) {
			t.Errorf("missing node %q", key)
		}
	}

	// Every node except the root and externals has exactly one parent.
	for _, key := range g.Keys() {
		n := g.Node(key)
		in := len(g.In(key, graph.EdgeContains))
		switch {
		case key == graph.Root || n.Kind == graph.KindExternal:
			if in != 0 {
				t.Errorf("%q: %d contains parents, want 0", key, in)
			}
		default:
			if in != 1 {
				t.Errorf("%q: %d contains parents, want 1", key, in)
			}
		}
	}

	if p, _ := g.Parent("pkg/service.py:Service.start"); p != "pkg/service.py:Service" {
		t.Errorf("parent of start = %q", p)
	}
	if p, _ := g.Parent("pkg/service.py"); p != "pkg" {
		t.Errorf("parent of file = %q", p)
	}
}

func TestBuildIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "util.py", "def compute():\n    pass\n")
	writeFile(t, root, "main.py", `from util import compute
import numpy

def run():
    compute()
`)

	b := testBuilder(t, Options{})
	g1, err := b.Build(context.Background(), root)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	g2, err := b.Build(context.Background(), root)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	if !reflect.DeepEqual(g1.Keys(), g2.Keys()) {
		t.Errorf("node keys differ between builds:\n%v\n%v", g1.Keys(), g2.Keys())
	}
	if !reflect.DeepEqual(g1.Edges(), g2.Edges()) {
		t.Errorf("edges differ between builds:\n%v\n%v", g1.Edges(), g2.Edges())
	}
}

func TestBuildPrunesCodeFreeSubtrees(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"src/app.py":     "def main():\n    pass\n",
		"docs/guide.txt": "nothing to index here\n",
	})

	if !g.Has("src") {
		t.Error("src directory missing")
	}
	if g.Has("docs") {
		t.Error("docs directory should have been pruned")
	}
	if !g.Has(graph.Root) {
		t.Error("root directory missing")
	}
}

func TestBuildEmptyRepoKeepsRoot(t *testing.T) {
	g, err := testBuilder(t, Options{}).Build(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !g.Has(graph.Root) {
		t.Fatal("root node missing")
	}
	if n := g.NodeCount(); n != 1 {
		t.Errorf("node count = %d, want 1 (root only)", n)
	}
}

func TestBuildInheritsAcrossFiles(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"a.py": "class A:\n    pass\n",
		"b.py": `from a import A

class B(A):
    pass
`,
	})

	assertEdge(t, g, "b.py", "a.py:A", graph.EdgeImports)
	assertEdge(t, g, "b.py:B", "a.py:A", graph.EdgeInherits)
}

func TestBuildInvokesLocalAndImported(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"util.py": "def compute():\n    pass\n",
		"main.py": `from util import compute

def local():
    pass

def run():
    local()
    compute()
`,
	})

	assertEdge(t, g, "main.py:run", "main.py:local", graph.EdgeInvokes)
	assertEdge(t, g, "main.py:run", "util.py:compute", graph.EdgeInvokes)
}

func TestBuildExternalDedup(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"x.py": "import numpy\n",
		"y.py": "import numpy as np\n",
	})

	ext := g.KeysByKind(graph.KindExternal)
	if len(ext) != 1 || ext[0] != "external:numpy" {
		t.Fatalf("external nodes = %v, want [external:numpy]", ext)
	}
	n := g.Node("external:numpy")
	if n.Name != "numpy" || n.Origin != graph.OriginModule {
		t.Errorf("external node = %+v", n)
	}

	assertEdge(t, g, "x.py", "external:numpy", graph.EdgeImports)
	assertEdge(t, g, "y.py", "external:numpy", graph.EdgeImports)
	if a := importAlias(t, g, "y.py", "external:numpy"); a != "np" {
		t.Errorf("alias = %q, want np", a)
	}
}

func TestBuildExternalEntityOrigin(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"main.py": `from requests import get

def fetch():
    get()
`,
	})

	n := g.Node("external:requests.get")
	if n == nil {
		t.Fatalf("missing external:requests.get; externals = %v", g.KeysByKind(graph.KindExternal))
	}
	if n.Origin != graph.OriginEntity || n.Name != "get" {
		t.Errorf("external node = %+v", n)
	}
	assertEdge(t, g, "main.py:fetch", "external:requests.get", graph.EdgeInvokes)
}

func TestBuildFuzzyKeepsAllCandidates(t *testing.T) {
	files := map[string]string{
		"w.py": `def run():
    pass

class Worker:
    def go(self):
        run()

    def run(self):
        pass
`,
	}
	g := buildRepo(t, Options{Resolution: ResolutionFuzzy}, files)

	assertEdge(t, g, "w.py:Worker.go", "w.py:Worker.run", graph.EdgeInvokes)
	assertEdge(t, g, "w.py:Worker.go", "w.py:run", graph.EdgeInvokes)
	if n := len(g.Out("w.py:Worker.go", graph.EdgeInvokes)); n != 2 {
		t.Errorf("invokes out-degree = %d, want 2", n)
	}
}

func TestBuildPrecisePicksInnermost(t *testing.T) {
	files := map[string]string{
		"w.py": `def run():
    pass

class Worker:
    def go(self):
        run()

    def run(self):
        pass
`,
	}
	g := buildRepo(t, Options{Resolution: ResolutionPrecise}, files)

	assertEdge(t, g, "w.py:Worker.go", "w.py:Worker.run", graph.EdgeInvokes)
	assertNoEdge(t, g, "w.py:Worker.go", "w.py:run", graph.EdgeInvokes)
	if n := len(g.Out("w.py:Worker.go", graph.EdgeInvokes)); n != 1 {
		t.Errorf("invokes out-degree = %d, want 1", n)
	}
}

func TestBuildWildcardImport(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"u.py": "def act():\n    pass\n",
		"main.py": `from u import *

def go():
    act()
`,
	})

	if a := importAlias(t, g, "main.py", "u.py"); a != "" {
		t.Errorf("wildcard import alias = %q, want empty", a)
	}
	assertEdge(t, g, "main.py:go", "u.py:act", graph.EdgeInvokes)
}

func TestBuildAggregatorChase(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"app.py": `import pkg

def caller():
    deep()
`,
		"pkg/__init__.py":     "from .sub import *\n",
		"pkg/sub/__init__.py": "from .core import deep\n",
		"pkg/sub/core.py":     "def deep():\n    pass\n",
	})

	assertEdge(t, g, "app.py", "pkg/__init__.py", graph.EdgeImports)
	assertEdge(t, g, "pkg/__init__.py", "pkg/sub/__init__.py", graph.EdgeImports)
	assertEdge(t, g, "pkg/sub/__init__.py", "pkg/sub/core.py:deep", graph.EdgeImports)

	// The call in app.py sees deep through both aggregator hops.
	assertEdge(t, g, "app.py:caller", "pkg/sub/core.py:deep", graph.EdgeInvokes)
}

func TestBuildImportAlias(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"helpers.py": "def compute():\n    pass\n",
		"main.py": `from helpers import compute as calc

def run():
    calc()
`,
	})

	if a := importAlias(t, g, "main.py", "helpers.py:compute"); a != "calc" {
		t.Errorf("alias = %q, want calc", a)
	}
	assertEdge(t, g, "main.py:run", "helpers.py:compute", graph.EdgeInvokes)
}

func TestBuildScopedImports(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"helpers.py": "def compute():\n    pass\n",
		"main.py": `def loader():
    import json
    from helpers import compute
    compute()
`,
	})

	// The function node itself records what it imports.
	assertEdge(t, g, "main.py:loader", "external:json", graph.EdgeImports)
	assertEdge(t, g, "main.py:loader", "helpers.py:compute", graph.EdgeImports)
	assertEdge(t, g, "main.py:loader", "helpers.py:compute", graph.EdgeInvokes)

	// File-level import records cover the whole tree, so the File node
	// carries the same targets.
	assertEdge(t, g, "main.py", "external:json", graph.EdgeImports)
	assertEdge(t, g, "main.py", "helpers.py:compute", graph.EdgeImports)
}

func TestBuildGlobalFallback(t *testing.T) {
	files := map[string]string{
		"lib.py": "def hidden():\n    pass\n",
		"main.py": `def go():
    hidden()
`,
	}

	g := buildRepo(t, Options{}, files)
	assertNoEdge(t, g, "main.py:go", "lib.py:hidden", graph.EdgeInvokes)

	g = buildRepo(t, Options{GlobalFallback: true}, files)
	assertEdge(t, g, "main.py:go", "lib.py:hidden", graph.EdgeInvokes)
}

func TestBuildSkipsBrokenFiles(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"broken/bad.py": "def broken(:\n    pass\n",
		"good.py":       "def fine():\n    pass\n",
	})

	if g.Has("broken/bad.py") {
		t.Error("broken file should have been skipped")
	}
	if g.Has("broken") {
		t.Error("directory of a skipped file should have been pruned")
	}
	if !g.Has("good.py:fine") {
		t.Error("good file missing")
	}
}

func TestBuildTextOnlyFiles(t *testing.T) {
	g := buildRepo(t, Options{Extensions: []string{".py", ".txt"}}, map[string]string{
		"notes.txt": "indexed but not parsed\n",
		"main.py":   "def x():\n    pass\n",
	})

	n := g.Node("notes.txt")
	if n == nil {
		t.Fatal("notes.txt node missing")
	}
	if n.Kind != graph.KindFile || n.Language != "" {
		t.Errorf("notes.txt node = kind %q language %q", n.Kind, n.Language)
	}
	if n.Source != "indexed but not parsed\n" {
		t.Errorf("source = %q", n.Source)
	}
	if n.Digest == "" {
		t.Error("digest empty")
	}
	if kids := g.Children("notes.txt"); len(kids) != 0 {
		t.Errorf("text-only file has children: %v", kids)
	}
}

func TestBuildStripsBOM(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"bom.py": "\ufeffclass Bom:\n    pass\n",
	})

	if !g.Has("bom.py:Bom") {
		t.Fatal("entity behind a BOM not analyzed")
	}
	if strings.HasPrefix(g.Node("bom.py").Source, "\ufeff") {
		t.Error("stored source still carries the BOM")
	}
}

func TestBuildCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def a():\n    pass\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := testBuilder(t, Options{}).Build(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if g != nil {
		t.Error("cancelled build returned a graph")
	}
}

func TestBuildJava(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"a/Base.java": `package a;

public class Base {
}
`,
		"b/Child.java": `package b;

import a.Base;

public class Child extends Base {
    public void touch() {
        ping();
    }

    void ping() {
    }
}
`,
	})

	assertEdge(t, g, "b/Child.java", "a/Base.java", graph.EdgeImports)
	assertEdge(t, g, "b/Child.java:b.Child", "a/Base.java:a.Base", graph.EdgeInherits)
	assertEdge(t, g, "b/Child.java:b.Child.touch", "b/Child.java:b.Child.ping", graph.EdgeInvokes)

	// Package placeholders hang off the file and own the classes.
	if p, _ := g.Parent("a/Base.java:a.Base"); p != "a/Base.java:a" {
		t.Errorf("parent of Base = %q", p)
	}
	if n := g.Node("a/Base.java:a"); n == nil || n.Kind != graph.KindPackage {
		t.Errorf("package placeholder = %+v", n)
	}
}

func TestBuildJavaOverloadsSingleNode(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"Box.java": `public class Box {
    void fill(int n) {
    }

    void fill(String s) {
    }
}
`,
	})

	key := "Box.java:Box.fill"
	if !g.Has(key) {
		t.Fatal("fill node missing")
	}
	if in := len(g.In(key, graph.EdgeContains)); in != 1 {
		t.Errorf("overloaded method has %d contains parents, want 1", in)
	}
}

func TestBuildMixedLanguages(t *testing.T) {
	g := buildRepo(t, Options{}, map[string]string{
		"tool.py":      "def tool():\n    pass\n",
		"js/Util.java": `package js;

public class Util {
    public void work() {
        helper();
    }

    void helper() {
    }
}
`,
	})

	if !g.Has("tool.py:tool") || !g.Has("js/Util.java:js.Util.work") {
		t.Fatalf("missing nodes; files = %v", g.KeysByKind(graph.KindFile))
	}
	assertEdge(t, g, "js/Util.java:js.Util.work", "js/Util.java:js.Util.helper", graph.EdgeInvokes)
}

func TestProjectNameFromPath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/home/user/proj", "home-user-proj"},
		{"/", "root"},
		{"/srv/data/", "srv-data"},
	}
	for _, c := range cases {
		if got := ProjectNameFromPath(c.in); got != c.want {
			t.Errorf("ProjectNameFromPath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Graph.Resolution = "precise"
	tr := true
	cfg.Graph.GlobalFallback = &tr
	w := 3
	cfg.Graph.Workers = &w
	cfg.Graph.SkipDirs = []string{"gen"}

	opts := OptionsFromConfig(cfg)
	if opts.Resolution != ResolutionPrecise {
		t.Errorf("resolution = %q", opts.Resolution)
	}
	if !opts.GlobalFallback {
		t.Error("global fallback not mapped")
	}
	if opts.Workers != 3 {
		t.Errorf("workers = %d", opts.Workers)
	}
	if len(opts.SkipDirs) != 1 || opts.SkipDirs[0] != "gen" {
		t.Errorf("skip dirs = %v", opts.SkipDirs)
	}
}
