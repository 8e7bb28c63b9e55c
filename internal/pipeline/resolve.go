package pipeline

import (
	"context"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/codegraph/internal/analyzer"
	"github.com/DeusData/codegraph/internal/graph"
	"github.com/DeusData/codegraph/internal/lang"
)

// binding pairs an alias with the node key it is bound to. Bindings are
// applied in increasing precedence order, so a later binding for the same
// alias wins under precise resolution.
type binding struct {
	alias string
	key   string
}

// linkProposal is the resolution output for one definition node. Workers
// compute proposals against the read-only graph; the merge step applies
// them serially in key order.
type linkProposal struct {
	src       string
	externals []*graph.Node
	imports   []graph.Edge
	invokes   []string
	inherits  []string
}

// nameIndex maps a short name to every definition node carrying it,
// repo-wide. Used as the optional global fallback when scope resolution
// finds nothing.
type nameIndex map[string][]string

func buildNameIndex(g *graph.Graph) nameIndex {
	idx := make(nameIndex)
	for _, key := range g.KeysByKind(graph.DefinitionKinds...) {
		idx[g.Node(key).Name] = append(idx[g.Node(key).Name], key)
	}
	return idx
}

// passResolve links raw call, decorator and base names to graph nodes.
// Every definition node is resolved independently against the frozen
// phase-2 graph, then the proposed edges and entity-scoped externals are
// merged in key order. Resolution never fails the build: names that
// match nothing produce no edges.
func (b *Builder) passResolve(ctx context.Context, st *buildState) error {
	keys := st.g.KeysByKind(graph.DefinitionKinds...)
	if len(keys) == 0 {
		return nil
	}

	var index nameIndex
	if b.opts.GlobalFallback {
		index = buildNameIndex(st.g)
	}
	ir := newImportResolver(st.g)

	props := make([]*linkProposal, len(keys))
	limit := b.workers()
	if limit > len(keys) {
		limit = len(keys)
	}
	if limit < 1 {
		limit = 1
	}
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for i, key := range keys {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			props[i] = b.linkNode(st, ir, index, key)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, p := range props {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, n := range p.externals {
			if !st.g.Has(n.Key) {
				st.g.AddNode(n)
			}
		}
		for _, e := range p.imports {
			st.g.AddEdge(e.From, e.To, graph.EdgeImports, e.Alias)
		}
		for _, to := range p.invokes {
			st.g.AddEdge(p.src, to, graph.EdgeInvokes, "")
		}
		for _, to := range p.inherits {
			st.g.AddEdge(p.src, to, graph.EdgeInherits, "")
		}
	}
	return nil
}

// linkNode resolves one definition node's raw names against its scope.
// Decorator names resolve exactly like call names.
func (b *Builder) linkNode(st *buildState, ir *importResolver, index nameIndex, key string) *linkProposal {
	p := &linkProposal{src: key}
	raw := st.raw[key]

	cands, aliases := collectScope(st.g, ir, key, raw.Imports, p)
	table := buildTable(cands, aliases, b.opts.Resolution)

	for _, name := range raw.Calls {
		p.invokes = append(p.invokes, lookup(table, index, name)...)
	}
	for _, name := range raw.Decorators {
		p.invokes = append(p.invokes, lookup(table, index, name)...)
	}
	for _, name := range raw.Bases {
		p.inherits = append(p.inherits, lookup(table, index, name)...)
	}
	return p
}

func lookup(table map[string][]string, index nameIndex, name string) []string {
	if targets, ok := table[name]; ok {
		return targets
	}
	if index != nil {
		return index[name]
	}
	return nil
}

// collectScope gathers the candidate node keys visible from key, ordered
// innermost-first: the node's own members, its entity-scoped import
// targets, then each lexical ancestor's members up to the enclosing
// file, then the file's import targets. Alias bindings are returned in
// increasing precedence order (file imports, then entity-scoped ones).
// Entity-scoped import edges and externals are recorded on p.
func collectScope(g *graph.Graph, ir *importResolver, key string, scoped []analyzer.ImportRecord, p *linkProposal) ([]string, []binding) {
	var cands []string
	collectInner(g, key, "", &cands)

	var scopedAliases []binding
	for _, rec := range scoped {
		for _, t := range ir.resolve(rec) {
			if t.external != nil {
				p.externals = append(p.externals, t.external)
				contributeTarget(g, t.key, t.external, &cands)
			} else {
				seen := map[string]bool{key: true}
				scopedAliases = append(scopedAliases, chaseTargets(g, []string{t.key}, seen, &cands)...)
			}
			p.imports = append(p.imports, graph.Edge{From: key, To: t.key, Kind: graph.EdgeImports, Alias: t.alias})
			if t.alias != "" {
				scopedAliases = append(scopedAliases, binding{t.alias, t.key})
			}
		}
	}

	pre := key
	cur, ok := g.Parent(key)
	fileKey := ""
	for ok {
		n := g.Node(cur)
		if n == nil {
			break
		}
		collectInner(g, cur, pre, &cands)
		if n.Kind == graph.KindFile {
			fileKey = cur
			break
		}
		pre = cur
		cur, ok = g.Parent(cur)
	}

	var aliases []binding
	if fileKey != "" {
		aliases = collectFileImports(g, fileKey, &cands)
	}
	return cands, append(aliases, scopedAliases...)
}

// collectInner appends cur's Contains children except exclude, expanding
// through class-like children so nested members are visible. Package
// nodes are transparent: they expose their members without being
// candidates themselves.
func collectInner(g *graph.Graph, cur, exclude string, out *[]string) {
	for _, e := range g.Out(cur, graph.EdgeContains) {
		if e.To == exclude {
			continue
		}
		n := g.Node(e.To)
		if n == nil {
			continue
		}
		if n.Kind == graph.KindPackage {
			collectInner(g, e.To, "", out)
			continue
		}
		*out = append(*out, e.To)
		if isClassLike(n.Kind) {
			collectInner(g, e.To, "", out)
		}
	}
}

func isClassLike(k graph.NodeKind) bool {
	return k == graph.KindClass || k == graph.KindInterface || k == graph.KindEnum
}

// contributeTarget appends the candidates an import target provides.
// Files and class-like targets expose their members; definitions expose
// themselves; externals only when they came from a named import.
func contributeTarget(g *graph.Graph, key string, ext *graph.Node, out *[]string) {
	n := g.Node(key)
	if n == nil {
		n = ext
	}
	if n == nil {
		return
	}
	switch {
	case n.Kind == graph.KindFile, n.Kind == graph.KindPackage:
		collectInner(g, key, "", out)
	case isClassLike(n.Kind):
		collectInner(g, key, "", out)
		*out = append(*out, key)
	case n.Kind == graph.KindExternal:
		if n.Origin == graph.OriginEntity {
			*out = append(*out, key)
		}
	case n.Kind == graph.KindDirectory:
	default:
		*out = append(*out, key)
	}
}

// chaseTargets contributes queued import targets, expanding aggregator
// files transitively: each aggregator exposes its members and forwards
// its own import targets. Returns the alias bindings recorded by chased
// aggregators, in discovery order.
func chaseTargets(g *graph.Graph, start []string, seen map[string]bool, out *[]string) []binding {
	var chased []binding
	queue := append([]string(nil), start...)
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if seen[t] {
			continue
		}
		seen[t] = true
		contributeTarget(g, t, nil, out)
		n := g.Node(t)
		if n == nil || n.Kind != graph.KindFile || !isAggregator(n.Path) {
			continue
		}
		for _, e := range g.Out(t, graph.EdgeImports) {
			if e.Alias != "" {
				chased = append(chased, binding{e.Alias, e.To})
			}
			if !seen[e.To] {
				queue = append(queue, e.To)
			}
		}
	}
	return chased
}

// collectFileImports contributes the file's import targets, chasing
// aggregators. The file's own alias bindings come after the chased ones
// so they take precedence.
func collectFileImports(g *graph.Graph, fileKey string, out *[]string) []binding {
	var own []binding
	var start []string
	for _, e := range g.Out(fileKey, graph.EdgeImports) {
		if e.Alias != "" {
			own = append(own, binding{e.Alias, e.To})
		}
		start = append(start, e.To)
	}
	seen := map[string]bool{fileKey: true}
	chased := chaseTargets(g, start, seen, out)
	return append(chased, own...)
}

func isAggregator(relPath string) bool {
	base := path.Base(relPath)
	for _, l := range lang.AllLanguages() {
		if spec := lang.ForLanguage(l); spec != nil && spec.IsAggregator(base) {
			return true
		}
	}
	return false
}

// buildTable maps usable names to target keys. Fuzzy registers every
// candidate under both its short and full dotted name and keeps all
// same-named candidates in scope order; precise keeps one target per
// name with the innermost candidate winning, and aliases override any
// candidate name outright.
func buildTable(cands []string, aliases []binding, mode Resolution) map[string][]string {
	table := make(map[string][]string)
	if mode == ResolutionPrecise {
		for i := len(cands) - 1; i >= 0; i-- {
			short, full := candidateNames(cands[i])
			if short == "" {
				continue
			}
			table[short] = []string{cands[i]}
			if full != short {
				table[full] = []string{cands[i]}
			}
		}
		for _, bnd := range aliases {
			table[bnd.alias] = []string{bnd.key}
		}
		return table
	}

	seen := make(map[string]bool, len(cands))
	for _, key := range cands {
		if seen[key] {
			continue
		}
		seen[key] = true
		short, full := candidateNames(key)
		if short == "" {
			continue
		}
		table[short] = append(table[short], key)
		if full != short {
			table[full] = append(table[full], key)
		}
	}
	for _, bnd := range aliases {
		table[bnd.alias] = append(table[bnd.alias], bnd.key)
	}
	return table
}

// candidateNames returns the short and full dotted names a candidate is
// reachable under. Directory and file keys yield nothing.
func candidateNames(key string) (short, full string) {
	if graph.IsExternalKey(key) {
		full = graph.ExternalName(key)
		return graph.ShortName(full), full
	}
	if _, qn, ok := graph.SplitSymbolKey(key); ok {
		return graph.ShortName(qn), qn
	}
	return "", ""
}
