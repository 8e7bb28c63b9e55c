// Package graph holds the in-memory dependency/symbol multigraph built by
// the pipeline. Nodes are keyed by the grammar in keys.go; edges are typed
// and directed, and parallel edges between the same pair are permitted.
// The pipeline mutates the graph serially between phase barriers; after the
// resolution phase the graph is read-only and safe for concurrent readers.
package graph

import "sort"

// NodeKind classifies a graph node.
type NodeKind string

const (
	KindDirectory NodeKind = "directory"
	KindFile      NodeKind = "file"
	KindClass     NodeKind = "class"
	KindFunction  NodeKind = "function"
	KindMethod    NodeKind = "method"
	KindInterface NodeKind = "interface"
	KindEnum      NodeKind = "enum"
	KindPackage   NodeKind = "package"
	KindExternal  NodeKind = "external"
)

// DefinitionKinds are the node kinds that own source code and participate
// in symbol resolution.
var DefinitionKinds = []NodeKind{KindClass, KindFunction, KindMethod, KindInterface, KindEnum}

// IsDefinition reports whether k is a code definition kind.
func IsDefinition(k NodeKind) bool {
	switch k {
	case KindClass, KindFunction, KindMethod, KindInterface, KindEnum:
		return true
	}
	return false
}

// EdgeKind classifies a graph edge.
type EdgeKind string

const (
	EdgeContains EdgeKind = "contains"
	EdgeImports  EdgeKind = "imports"
	EdgeInherits EdgeKind = "inherits"
	EdgeInvokes  EdgeKind = "invokes"
)

// ExternalOrigin records how an external node entered the graph. Entity
// origin (a named import target) makes the node a call candidate during
// resolution; module origin does not.
type ExternalOrigin string

const (
	OriginModule ExternalOrigin = "module"
	OriginEntity ExternalOrigin = "entity"
)

// Node is a graph node. Which fields are set depends on Kind: File nodes
// carry Source, Language and Digest; definition nodes carry Source, line
// numbers and language metadata; Directory, Package and external nodes are
// mostly bare.
type Node struct {
	Key  string
	Kind NodeKind
	// Name is the display name: the last dotted segment for symbols, the
	// base name for paths.
	Name string
	// Path is the repo-relative path of the owning file (for symbols) or
	// of the node itself (for files and directories).
	Path      string
	StartLine int
	EndLine   int
	Source    string
	Language  string
	Digest    string

	Modifiers   []string
	Extends     []string
	Implements  []string
	ReturnType  string
	Parameters  []string
	Constructor bool

	// Origin is set on external nodes only.
	Origin ExternalOrigin
}

// Edge is a directed, typed edge. Alias is set on some imports edges.
type Edge struct {
	From  string
	To    string
	Kind  EdgeKind
	Alias string
}

// Graph is a directed multigraph.
type Graph struct {
	nodes map[string]*Node
	out   map[string][]Edge
	in    map[string][]Edge
	edges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}
}

// AddNode inserts n, or replaces the attributes of an existing node with
// the same key. Edges incident to the key are kept either way.
func (g *Graph) AddNode(n *Node) {
	g.nodes[n.Key] = n
}

// Has reports whether a node with the key exists.
func (g *Graph) Has(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

// Node returns the node for key, or nil.
func (g *Graph) Node(key string) *Node {
	return g.nodes[key]
}

// AddEdge appends a directed edge. Parallel edges are not deduplicated.
// Both endpoints must already exist; edges to unknown keys are dropped.
func (g *Graph) AddEdge(from, to string, kind EdgeKind, alias string) {
	if !g.Has(from) || !g.Has(to) {
		return
	}
	e := Edge{From: from, To: to, Kind: kind, Alias: alias}
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
	g.edges++
}

// RemoveNode deletes the node and every edge incident to it.
func (g *Graph) RemoveNode(key string) {
	if !g.Has(key) {
		return
	}
	for _, e := range g.out[key] {
		g.in[e.To] = dropEdges(g.in[e.To], key, true)
		g.edges--
	}
	for _, e := range g.in[key] {
		if e.From == key {
			continue // self loop, already counted above
		}
		g.out[e.From] = dropEdges(g.out[e.From], key, false)
		g.edges--
	}
	delete(g.out, key)
	delete(g.in, key)
	delete(g.nodes, key)
}

func dropEdges(edges []Edge, key string, matchFrom bool) []Edge {
	kept := edges[:0]
	for _, e := range edges {
		end := e.To
		if matchFrom {
			end = e.From
		}
		if end != key {
			kept = append(kept, e)
		}
	}
	return kept
}

// Out returns the out-edges of key, in insertion order, optionally
// filtered to the given kinds.
func (g *Graph) Out(key string, kinds ...EdgeKind) []Edge {
	return filterEdges(g.out[key], kinds)
}

// In returns the in-edges of key, in insertion order, optionally filtered
// to the given kinds.
func (g *Graph) In(key string, kinds ...EdgeKind) []Edge {
	return filterEdges(g.in[key], kinds)
}

func filterEdges(edges []Edge, kinds []EdgeKind) []Edge {
	if len(kinds) == 0 {
		out := make([]Edge, len(edges))
		copy(out, edges)
		return out
	}
	var out []Edge
	for _, e := range edges {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Parent returns the Contains parent of key. Every node except the root
// and external nodes has exactly one.
func (g *Graph) Parent(key string) (string, bool) {
	for _, e := range g.in[key] {
		if e.Kind == EdgeContains {
			return e.From, true
		}
	}
	return "", false
}

// Children returns the Contains children of key, in insertion order.
func (g *Graph) Children(key string) []string {
	var keys []string
	for _, e := range g.out[key] {
		if e.Kind == EdgeContains {
			keys = append(keys, e.To)
		}
	}
	return keys
}

// Keys returns all node keys in sorted order.
func (g *Graph) Keys() []string {
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeysByKind returns the sorted keys of all nodes of the given kinds.
func (g *Graph) KeysByKind(kinds ...NodeKind) []string {
	var keys []string
	for k, n := range g.nodes {
		for _, kind := range kinds {
			if n.Kind == kind {
				keys = append(keys, k)
				break
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Edges returns every edge, ordered by source key and then insertion order.
func (g *Graph) Edges() []Edge {
	all := make([]Edge, 0, g.edges)
	for _, k := range g.Keys() {
		all = append(all, g.out[k]...)
	}
	return all
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.edges }
