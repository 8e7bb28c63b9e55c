package store

import (
	"fmt"
	"strings"
	"testing"

	"github.com/DeusData/codegraph/internal/graph"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// sampleGraph is a small two-file project with an external import.
func sampleGraph() *graph.Graph {
	g := graph.New()
	g.AddNode(&graph.Node{Key: "/", Kind: graph.KindDirectory, Name: "/", Path: "/"})
	g.AddNode(&graph.Node{Key: "app", Kind: graph.KindDirectory, Name: "app", Path: "app"})
	g.AddNode(&graph.Node{Key: "app/main.py", Kind: graph.KindFile, Name: "main.py", Path: "app/main.py",
		Source: "def run():\n    helper()\n", Language: "python", Digest: "d1"})
	g.AddNode(&graph.Node{Key: "app/util.py", Kind: graph.KindFile, Name: "util.py", Path: "app/util.py",
		Source: "def helper():\n    pass\n", Language: "python", Digest: "d2"})
	g.AddNode(&graph.Node{Key: "app/main.py:run", Kind: graph.KindFunction, Name: "run", Path: "app/main.py",
		StartLine: 1, EndLine: 2, Source: "def run():\n    helper()\n"})
	g.AddNode(&graph.Node{Key: "app/util.py:helper", Kind: graph.KindFunction, Name: "helper", Path: "app/util.py",
		StartLine: 1, EndLine: 2, Source: "def helper():\n    pass\n"})
	g.AddNode(&graph.Node{Key: "external:numpy", Kind: graph.KindExternal, Name: "numpy", Origin: graph.OriginModule})

	g.AddEdge("/", "app", graph.EdgeContains, "")
	g.AddEdge("app", "app/main.py", graph.EdgeContains, "")
	g.AddEdge("app", "app/util.py", graph.EdgeContains, "")
	g.AddEdge("app/main.py", "app/main.py:run", graph.EdgeContains, "")
	g.AddEdge("app/util.py", "app/util.py:helper", graph.EdgeContains, "")
	g.AddEdge("app/main.py", "external:numpy", graph.EdgeImports, "np")
	g.AddEdge("app/main.py", "app/util.py:helper", graph.EdgeImports, "")
	g.AddEdge("app/main.py:run", "app/util.py:helper", graph.EdgeInvokes, "")
	return g
}

func saveSample(t *testing.T, s *Store) {
	t.Helper()
	if err := s.SaveGraph("demo", "/tmp/demo", sampleGraph()); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}
}

func TestSaveGraphRoundTrip(t *testing.T) {
	s := testStore(t)
	saveSample(t, s)

	nodes, err := s.CountNodes("demo")
	if err != nil || nodes != 7 {
		t.Fatalf("nodes = %d, err = %v, want 7", nodes, err)
	}
	edges, err := s.CountEdges("demo")
	if err != nil || edges != 8 {
		t.Fatalf("edges = %d, err = %v, want 8", edges, err)
	}

	run, err := s.FindNodeByQN("demo", "app/main.py:run")
	if err != nil || run == nil {
		t.Fatalf("FindNodeByQN run: %v, %v", run, err)
	}
	if run.Kind != "function" || run.FilePath != "app/main.py" || run.StartLine != 1 {
		t.Errorf("run row = %+v", run)
	}
	if src, _ := run.Properties["source"].(string); !strings.Contains(src, "helper()") {
		t.Errorf("run source = %q", src)
	}

	ext, err := s.FindNodeByQN("demo", "external:numpy")
	if err != nil || ext == nil {
		t.Fatalf("external row missing: %v", err)
	}
	if origin, _ := ext.Properties["origin"].(string); origin != "module" {
		t.Errorf("external origin = %q", origin)
	}

	p, err := s.GetProject("demo")
	if err != nil || p == nil || p.RootPath != "/tmp/demo" {
		t.Errorf("project = %+v, err = %v", p, err)
	}
}

func TestEdgeAliasPersisted(t *testing.T) {
	s := testStore(t)
	saveSample(t, s)

	file, _ := s.FindNodeByQN("demo", "app/main.py")
	ext, _ := s.FindNodeByQN("demo", "external:numpy")
	if file == nil || ext == nil {
		t.Fatal("rows missing")
	}

	edges, err := s.FindEdgesBySourceAndType(file.ID, "imports")
	if err != nil {
		t.Fatalf("FindEdgesBySourceAndType: %v", err)
	}
	var alias string
	for _, e := range edges {
		if e.TargetID == ext.ID {
			alias, _ = e.Properties["alias"].(string)
		}
	}
	if alias != "np" {
		t.Errorf("alias = %q, want np", alias)
	}
}

func TestSaveGraphReplacesStaleRows(t *testing.T) {
	s := testStore(t)
	saveSample(t, s)

	small := graph.New()
	small.AddNode(&graph.Node{Key: "/", Kind: graph.KindDirectory, Name: "/", Path: "/"})
	small.AddNode(&graph.Node{Key: "solo.py", Kind: graph.KindFile, Name: "solo.py", Path: "solo.py"})
	small.AddEdge("/", "solo.py", graph.EdgeContains, "")

	if err := s.SaveGraph("demo", "/tmp/demo", small); err != nil {
		t.Fatalf("second SaveGraph: %v", err)
	}

	if n, _ := s.FindNodeByQN("demo", "app/util.py:helper"); n != nil {
		t.Error("stale node survived re-save")
	}
	if count, _ := s.CountNodes("demo"); count != 2 {
		t.Errorf("nodes after re-save = %d, want 2", count)
	}
	if count, _ := s.CountEdges("demo"); count != 1 {
		t.Errorf("edges after re-save = %d, want 1", count)
	}
}

func TestParallelEdgesCollapse(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{Key: "/", Kind: graph.KindDirectory, Name: "/", Path: "/"})
	g.AddNode(&graph.Node{Key: "a.py", Kind: graph.KindFile, Name: "a.py", Path: "a.py"})
	g.AddNode(&graph.Node{Key: "a.py:f", Kind: graph.KindFunction, Name: "f", Path: "a.py"})
	g.AddNode(&graph.Node{Key: "a.py:g", Kind: graph.KindFunction, Name: "g", Path: "a.py"})
	g.AddEdge("/", "a.py", graph.EdgeContains, "")
	g.AddEdge("a.py", "a.py:f", graph.EdgeContains, "")
	g.AddEdge("a.py", "a.py:g", graph.EdgeContains, "")
	g.AddEdge("a.py:f", "a.py:g", graph.EdgeInvokes, "")
	g.AddEdge("a.py:f", "a.py:g", graph.EdgeInvokes, "")

	if g.EdgeCount() != 5 {
		t.Fatalf("in-memory edges = %d, want 5", g.EdgeCount())
	}

	s := testStore(t)
	if err := s.SaveGraph("p", "/r", g); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}

	// The multigraph keeps parallel edges; the store collapses them.
	invokes, err := s.FindEdgesByType("p", "invokes")
	if err != nil {
		t.Fatalf("FindEdgesByType: %v", err)
	}
	if len(invokes) != 1 {
		t.Errorf("stored invokes rows = %d, want 1", len(invokes))
	}
}

func TestUpsertNodeBatchChunking(t *testing.T) {
	s := testStore(t)
	if err := s.UpsertProject("big", "/big"); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}

	// Enough rows to span several insert chunks.
	var rows []*Node
	for i := 0; i < 300; i++ {
		rows = append(rows, &Node{
			Project:       "big",
			Kind:          "function",
			Name:          fmt.Sprintf("f%03d", i),
			QualifiedName: fmt.Sprintf("m.py:f%03d", i),
			FilePath:      "m.py",
		})
	}
	ids, err := s.UpsertNodeBatch(rows)
	if err != nil {
		t.Fatalf("UpsertNodeBatch: %v", err)
	}
	if len(ids) != 300 {
		t.Fatalf("recovered %d ids, want 300", len(ids))
	}

	count, _ := s.CountNodes("big")
	if count != 300 {
		t.Fatalf("nodes = %d, want 300", count)
	}

	// Upserting the same qualified names must not create new rows.
	rows[0].Name = "renamed"
	ids2, err := s.UpsertNodeBatch(rows)
	if err != nil {
		t.Fatalf("second UpsertNodeBatch: %v", err)
	}
	if ids2["m.py:f000"] != ids["m.py:f000"] {
		t.Errorf("id changed on upsert: %d vs %d", ids2["m.py:f000"], ids["m.py:f000"])
	}
	count, _ = s.CountNodes("big")
	if count != 300 {
		t.Errorf("nodes after upsert = %d, want 300", count)
	}
	n, _ := s.FindNodeByQN("big", "m.py:f000")
	if n == nil || n.Name != "renamed" {
		t.Errorf("upsert did not update name: %+v", n)
	}
}

func TestSearchFilters(t *testing.T) {
	s := testStore(t)
	saveSample(t, s)

	unset := SearchParams{Project: "demo", MinDegree: -1, MaxDegree: -1}

	t.Run("kind", func(t *testing.T) {
		p := unset
		p.Kind = "function"
		out, err := s.Search(p)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if out.Total != 2 || len(out.Results) != 2 {
			t.Fatalf("total = %d, results = %d, want 2/2", out.Total, len(out.Results))
		}
	})

	t.Run("name regex", func(t *testing.T) {
		p := unset
		p.NamePattern = "^helper$"
		out, err := s.Search(p)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if out.Total != 1 || out.Results[0].Node.QualifiedName != "app/util.py:helper" {
			t.Fatalf("results = %+v", out.Results)
		}
	})

	t.Run("file glob", func(t *testing.T) {
		p := unset
		p.FilePattern = "app/*"
		out, err := s.Search(p)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if out.Total != 4 {
			t.Fatalf("total = %d, want 4 (two files, two functions)", out.Total)
		}
	})

	t.Run("degree", func(t *testing.T) {
		p := unset
		p.Relationship = "invokes"
		p.Direction = "inbound"
		p.MinDegree = 1
		out, err := s.Search(p)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if out.Total != 1 || out.Results[0].Node.Name != "helper" {
			t.Fatalf("results = %+v", out.Results)
		}
		if out.Results[0].InDegree != 1 {
			t.Errorf("in-degree = %d", out.Results[0].InDegree)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		p := unset
		p.Kind = "function"
		p.Limit = 1
		out, err := s.Search(p)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if out.Total != 2 || len(out.Results) != 1 {
			t.Fatalf("page 1: total = %d, results = %d", out.Total, len(out.Results))
		}
		first := out.Results[0].Node.QualifiedName

		p.Offset = 1
		out, err = s.Search(p)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(out.Results) != 1 || out.Results[0].Node.QualifiedName == first {
			t.Fatalf("page 2 repeated page 1: %+v", out.Results)
		}
	})
}

func TestBFSTraversal(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{Key: "/", Kind: graph.KindDirectory, Name: "/", Path: "/"})
	g.AddNode(&graph.Node{Key: "c.py", Kind: graph.KindFile, Name: "c.py", Path: "c.py"})
	for _, name := range []string{"a", "b", "c", "d"} {
		g.AddNode(&graph.Node{Key: "c.py:" + name, Kind: graph.KindFunction, Name: name, Path: "c.py"})
	}
	g.AddEdge("/", "c.py", graph.EdgeContains, "")
	for _, name := range []string{"a", "b", "c", "d"} {
		g.AddEdge("c.py", "c.py:"+name, graph.EdgeContains, "")
	}
	g.AddEdge("c.py:a", "c.py:b", graph.EdgeInvokes, "")
	g.AddEdge("c.py:b", "c.py:c", graph.EdgeInvokes, "")
	g.AddEdge("c.py:c", "c.py:d", graph.EdgeInvokes, "")

	s := testStore(t)
	if err := s.SaveGraph("p", "/r", g); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}

	a, _ := s.FindNodeByQN("p", "c.py:a")
	d, _ := s.FindNodeByQN("p", "c.py:d")
	if a == nil || d == nil {
		t.Fatal("rows missing")
	}

	out, err := s.BFS(a.ID, "outbound", []string{"invokes"}, 2, 100)
	if err != nil {
		t.Fatalf("BFS: %v", err)
	}
	var names []string
	for _, v := range out.Visited {
		names = append(names, v.Node.Name)
	}
	if len(names) != 2 || names[0] != "b" || names[1] != "c" {
		t.Errorf("outbound depth 2 visited %v, want [b c]", names)
	}

	out, err = s.BFS(d.ID, "inbound", []string{"invokes"}, 10, 100)
	if err != nil {
		t.Fatalf("BFS inbound: %v", err)
	}
	names = names[:0]
	for _, v := range out.Visited {
		names = append(names, v.Node.Name)
	}
	if len(names) != 3 || names[0] != "c" || names[2] != "a" {
		t.Errorf("inbound visited %v, want [c b a]", names)
	}

	out, err = s.BFS(a.ID, "outbound", []string{"invokes"}, 10, 1)
	if err != nil {
		t.Fatalf("BFS capped: %v", err)
	}
	if len(out.Visited) != 1 {
		t.Errorf("maxResults ignored: %d visited", len(out.Visited))
	}
}

func TestProjectsLifecycle(t *testing.T) {
	s := testStore(t)
	saveSample(t, s)

	if p, err := s.GetProject("nope"); err != nil || p != nil {
		t.Errorf("absent project = %+v, err = %v", p, err)
	}

	list, err := s.ListProjects()
	if err != nil || len(list) != 1 || list[0].Name != "demo" {
		t.Fatalf("list = %+v, err = %v", list, err)
	}
	if list[0].IndexedAt == "" {
		t.Error("indexed_at empty")
	}

	if err := s.DeleteProject("demo"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if count, _ := s.CountNodes("demo"); count != 0 {
		t.Errorf("nodes after delete = %d", count)
	}
	if count, _ := s.CountEdges("demo"); count != 0 {
		t.Errorf("edges after delete = %d", count)
	}
	if list, _ := s.ListProjects(); len(list) != 0 {
		t.Errorf("projects after delete = %+v", list)
	}
}

func TestGetSchema(t *testing.T) {
	s := testStore(t)
	saveSample(t, s)

	info, err := s.GetSchema("demo")
	if err != nil {
		t.Fatalf("GetSchema: %v", err)
	}

	kinds := map[string]int{}
	for _, kc := range info.NodeKinds {
		kinds[kc.Kind] = kc.Count
	}
	if kinds["directory"] != 2 || kinds["file"] != 2 || kinds["function"] != 2 || kinds["external"] != 1 {
		t.Errorf("node kinds = %v", kinds)
	}

	types := map[string]int{}
	for _, tc := range info.EdgeTypes {
		types[tc.Type] = tc.Count
	}
	if types["contains"] != 5 || types["imports"] != 2 || types["invokes"] != 1 {
		t.Errorf("edge types = %v", types)
	}

	joined := strings.Join(info.EdgePatterns, "\n")
	if !strings.Contains(joined, "(function)-[invokes]->(function)") {
		t.Errorf("patterns missing invokes shape:\n%s", joined)
	}

	if len(info.SampleFunctionNames) != 2 || info.SampleFunctionNames[0] != "helper" {
		t.Errorf("sample functions = %v", info.SampleFunctionNames)
	}
}

func TestWithTransactionRollback(t *testing.T) {
	s := testStore(t)
	saveSample(t, s)

	wantErr := fmt.Errorf("boom")
	err := s.WithTransaction(func(tx *Store) error {
		if err := tx.DeleteNodesByProject("demo"); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("err = %v, want boom", err)
	}
	if count, _ := s.CountNodes("demo"); count != 7 {
		t.Errorf("rollback lost rows: %d nodes", count)
	}
}
