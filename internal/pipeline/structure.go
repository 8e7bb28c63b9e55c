package pipeline

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/codegraph/internal/analyzer"
	"github.com/DeusData/codegraph/internal/discover"
	"github.com/DeusData/codegraph/internal/graph"
)

// fileResult is one file's analysis output: pure data produced in the
// parallel region, merged into the graph serially afterwards.
type fileResult struct {
	info     discover.FileInfo
	source   []byte
	digest   string
	entities []analyzer.Entity
	imports  []analyzer.ImportRecord
	skip     bool
	reason   string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(src []byte) []byte {
	return bytes.TrimPrefix(src, utf8BOM)
}

// passStructure walks the discovered files, analyzes them in parallel and
// assembles Directory, File and definition nodes with Contains edges.
// Skipped files produce nothing; directories exist only on the path of a
// surviving file, which is what prunes code-free subtrees.
func (b *Builder) passStructure(ctx context.Context, st *buildState, files []discover.FileInfo) error {
	results := make([]*fileResult, len(files))

	limit := b.workers()
	if limit > len(files) {
		limit = len(files)
	}
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.analyzeFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Serial merge in path order. The root Directory node always exists,
	// even for a repository with no source files at all.
	sort.Slice(results, func(i, j int) bool {
		return results[i].info.RelPath < results[j].info.RelPath
	})
	st.g.AddNode(&graph.Node{Key: graph.Root, Kind: graph.KindDirectory, Name: "/", Path: graph.Root})

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.skip {
			slog.Warn("walk.skip", "path", r.info.RelPath, "reason", r.reason)
			continue
		}
		b.mergeFile(st, r)
		st.files = append(st.files, *r)
	}
	return nil
}

// analyzeFile reads and analyzes one source file. No shared state: the
// result carries everything the merge needs.
func (b *Builder) analyzeFile(f discover.FileInfo) *fileResult {
	r := &fileResult{info: f}

	src, err := os.ReadFile(f.Path)
	if err != nil {
		r.skip, r.reason = true, "unreadable"
		return r
	}
	src = stripBOM(src)
	if !utf8.Valid(src) {
		r.skip, r.reason = true, "not utf-8"
		return r
	}
	r.source = src

	h := xxh3.New()
	h.Write(src)
	r.digest = hex.EncodeToString(h.Sum(nil))

	a := b.registry.ForPath(f.RelPath)
	if a == nil {
		// No analyzer for the extension: text-only File node.
		return r
	}
	entities, err := a.Analyze(f.RelPath, src)
	if err != nil {
		r.skip, r.reason = true, "parse error"
		return r
	}
	imports, err := a.FindImports(f.RelPath, src)
	if err != nil {
		r.skip, r.reason = true, "parse error"
		return r
	}
	r.entities = entities
	r.imports = imports
	return r
}

// mergeFile adds one file's directory chain, File node and entities.
func (b *Builder) mergeFile(st *buildState, r *fileResult) {
	rel := r.info.RelPath
	parent := b.ensureDirChain(st.g, path.Dir(rel))

	fileKey := graph.FileKey(rel)
	st.g.AddNode(&graph.Node{
		Key:      fileKey,
		Kind:     graph.KindFile,
		Name:     path.Base(rel),
		Path:     rel,
		Source:   string(r.source),
		Language: string(r.info.Language),
		Digest:   r.digest,
	})
	st.g.AddEdge(parent, fileKey, graph.EdgeContains, "")

	for _, ent := range r.entities {
		b.mergeEntity(st, r, fileKey, ent)
	}
}

// ensureDirChain creates Directory nodes for every component of relDir
// that is missing, each wired to its parent, and returns the innermost
// directory key.
func (b *Builder) ensureDirChain(g *graph.Graph, relDir string) string {
	if relDir == "." || relDir == "" || relDir == "/" {
		return graph.Root
	}
	parent := graph.Root
	cur := ""
	for _, part := range strings.Split(relDir, "/") {
		if cur == "" {
			cur = part
		} else {
			cur = cur + "/" + part
		}
		key := graph.DirKey(cur)
		if !g.Has(key) {
			g.AddNode(&graph.Node{Key: key, Kind: graph.KindDirectory, Name: part, Path: cur})
			g.AddEdge(parent, key, graph.EdgeContains, "")
		}
		parent = key
	}
	return parent
}

// mergeEntity adds one definition node under its containment parent,
// synthesizing a Package placeholder chain for missing qualified-name
// prefixes so that every node hangs off the File node.
func (b *Builder) mergeEntity(st *buildState, r *fileResult, fileKey string, ent analyzer.Entity) {
	rel := r.info.RelPath
	key := graph.SymbolKey(rel, ent.QN)

	parentKey := fileKey
	if pqn := graph.ParentQN(ent.QN); pqn != "" {
		parentKey = graph.SymbolKey(rel, pqn)
		if !st.g.Has(parentKey) {
			b.ensurePackageChain(st.g, rel, fileKey, pqn)
		}
	}

	existed := st.g.Has(key)
	st.g.AddNode(&graph.Node{
		Key:         key,
		Kind:        ent.Kind,
		Name:        graph.ShortName(ent.QN),
		Path:        rel,
		StartLine:   ent.StartLine,
		EndLine:     ent.EndLine,
		Source:      ent.Source,
		Language:    string(r.info.Language),
		Modifiers:   ent.Modifiers,
		Extends:     ent.Extends,
		Implements:  ent.Implements,
		ReturnType:  ent.ReturnType,
		Parameters:  ent.Parameters,
		Constructor: ent.Constructor,
	})
	if !existed {
		st.g.AddEdge(parentKey, key, graph.EdgeContains, "")
	}
	st.raw[key] = ent.Raw
}

// ensurePackageChain materializes Package nodes for every missing prefix
// of qn, the chain rooted at the File node.
func (b *Builder) ensurePackageChain(g *graph.Graph, rel, fileKey, qn string) {
	parent := fileKey
	prefix := ""
	for _, part := range strings.Split(qn, ".") {
		if prefix == "" {
			prefix = part
		} else {
			prefix = prefix + "." + part
		}
		key := graph.SymbolKey(rel, prefix)
		if !g.Has(key) {
			g.AddNode(&graph.Node{
				Key:  key,
				Kind: graph.KindPackage,
				Name: part,
				Path: rel,
			})
			g.AddEdge(parent, key, graph.EdgeContains, "")
		}
		parent = key
	}
}
