package parser

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/DeusData/codegraph/internal/lang"
)

// Parser parses source files for the registered languages. Construct one
// with New and share it across goroutines; the underlying tree-sitter
// parsers are pooled per language.
type Parser struct {
	languages map[lang.Language]*tree_sitter.Language
	pools     map[lang.Language]*sync.Pool
}

// New loads the grammar for every supported language. Each grammar is
// probed once here so an ABI mismatch surfaces as an error from New
// instead of a panic in the middle of an index run.
func New() (*Parser, error) {
	languages := map[lang.Language]*tree_sitter.Language{
		lang.Python: tree_sitter.NewLanguage(tree_sitter_python.Language()),
		lang.Java:   tree_sitter.NewLanguage(tree_sitter_java.Language()),
	}

	pools := make(map[lang.Language]*sync.Pool, len(languages))
	for l, tsLang := range languages {
		probe := tree_sitter.NewParser()
		if err := probe.SetLanguage(tsLang); err != nil {
			return nil, fmt.Errorf("load %s grammar: %w", l, err)
		}
		pool := &sync.Pool{
			New: func() any {
				p := tree_sitter.NewParser()
				if err := p.SetLanguage(tsLang); err != nil {
					return nil
				}
				return p
			},
		}
		pool.Put(probe)
		pools[l] = pool
	}

	return &Parser{languages: languages, pools: pools}, nil
}

// Supports reports whether a grammar is loaded for the language.
func (ps *Parser) Supports(l lang.Language) bool {
	_, ok := ps.languages[l]
	return ok
}

// Parse parses source code into a tree-sitter AST Tree.
// The caller must call tree.Close() when done.
func (ps *Parser) Parse(l lang.Language, source []byte) (*tree_sitter.Tree, error) {
	pool, ok := ps.pools[l]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", l)
	}

	p, _ := pool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, fmt.Errorf("failed to get parser for language %s", l)
	}
	tree := p.Parse(source, nil)
	pool.Put(p)

	if tree == nil {
		return nil, fmt.Errorf("parse failed for language %s", l)
	}

	return tree, nil
}

// WalkFunc is called for each node during AST traversal.
// Return false to skip children.
type WalkFunc func(node *tree_sitter.Node) bool

// Walk traverses the AST in depth-first order.
func Walk(node *tree_sitter.Node, fn WalkFunc) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			Walk(child, fn)
		}
	}
}

// NodeText returns the text content of a node.
func NodeText(node *tree_sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
