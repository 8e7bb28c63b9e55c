package pipeline

import (
	"context"
	"strings"

	"github.com/DeusData/codegraph/internal/analyzer"
	"github.com/DeusData/codegraph/internal/graph"
)

// importTarget is one resolved import entry: the target node key, the
// alias bound to it, and, when the target does not exist in the graph, the
// external node to create for it.
type importTarget struct {
	key      string
	alias    string
	external *graph.Node
}

// importResolver resolves import records against the set of File nodes
// actually in the graph, never the filesystem, so skipped and pruned
// files do not resolve. It only reads the graph and is safe to share
// across resolution workers.
type importResolver struct {
	g     *graph.Graph
	paths map[string]bool
}

func newImportResolver(g *graph.Graph) *importResolver {
	paths := make(map[string]bool)
	for _, key := range g.KeysByKind(graph.KindFile) {
		paths[key] = true
	}
	return &importResolver{g: g, paths: paths}
}

// resolveModule maps a dotted module to an existing file path, trying
// <p>.py, <p>/__init__.py, <p>.java in that order.
func (ir *importResolver) resolveModule(module string) (string, bool) {
	if module == "" {
		if ir.paths["__init__.py"] {
			return "__init__.py", true
		}
		return "", false
	}
	p := strings.ReplaceAll(module, ".", "/")
	for _, cand := range []string{p + ".py", p + "/__init__.py", p + ".java"} {
		if ir.paths[cand] {
			return cand, true
		}
	}
	return "", false
}

// resolve maps one import record to its targets. A wildcard import acts
// as a plain module import without alias.
func (ir *importResolver) resolve(rec analyzer.ImportRecord) []importTarget {
	if rec.Kind == analyzer.ImportPlain || rec.Wildcard() {
		return ir.resolvePlain(rec)
	}
	return ir.resolveNamed(rec)
}

func (ir *importResolver) resolvePlain(rec analyzer.ImportRecord) []importTarget {
	if rec.Module == "" {
		return nil
	}
	alias := rec.Alias
	if rec.Wildcard() {
		alias = ""
	}
	if p, ok := ir.resolveModule(rec.Module); ok {
		return []importTarget{{key: graph.FileKey(p), alias: alias}}
	}
	key := graph.ExternalKey(rec.Module)
	return []importTarget{{key: key, alias: alias, external: externalNode(key, rec.Module, graph.OriginModule)}}
}

// resolveNamed handles "from m import n" records: n may be a submodule,
// an entity inside m's file, the file itself, or an external.
func (ir *importResolver) resolveNamed(rec analyzer.ImportRecord) []importTarget {
	var out []importTarget
	for _, ent := range rec.Entities {
		sub := joinModule(rec.Module, ent.Name)
		if p, ok := ir.resolveModule(sub); ok {
			out = append(out, importTarget{key: graph.FileKey(p), alias: ent.Alias})
			continue
		}
		if p, ok := ir.resolveModule(rec.Module); ok {
			target := graph.FileKey(p)
			if symKey := graph.SymbolKey(p, ent.Name); ir.g.Has(symKey) {
				target = symKey
			}
			out = append(out, importTarget{key: target, alias: ent.Alias})
			continue
		}
		key := graph.ExternalKey(sub)
		out = append(out, importTarget{key: key, alias: ent.Alias, external: externalNode(key, sub, graph.OriginEntity)})
	}
	return out
}

func joinModule(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

func externalNode(key, name string, origin graph.ExternalOrigin) *graph.Node {
	return &graph.Node{
		Key:    key,
		Kind:   graph.KindExternal,
		Name:   graph.ShortName(name),
		Origin: origin,
	}
}

// passImports adds Imports edges for every file's import records.
// External nodes are deduplicated by key: the first creation wins and
// later records reuse the node.
func (b *Builder) passImports(ctx context.Context, st *buildState) error {
	ir := newImportResolver(st.g)
	for _, fr := range st.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		fileKey := graph.FileKey(fr.info.RelPath)
		for _, rec := range fr.imports {
			for _, t := range ir.resolve(rec) {
				if t.external != nil && !st.g.Has(t.external.Key) {
					st.g.AddNode(t.external)
				}
				st.g.AddEdge(fileKey, t.key, graph.EdgeImports, t.alias)
			}
		}
	}
	return nil
}
