// Command ast_debug dumps the tree-sitter AST for a source file. Handy
// when adjusting the analyzer's node-type matching.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/codegraph/internal/lang"
	"github.com/DeusData/codegraph/internal/parser"
)

func printAST(node *tree_sitter.Node, source []byte, indent int) {
	if node == nil {
		return
	}
	prefix := ""
	for i := 0; i < indent; i++ {
		prefix += "  "
	}
	parentKind := "nil"
	if node.Parent() != nil {
		parentKind = node.Parent().Kind()
	}
	text := string(source[node.StartByte():node.EndByte()])
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	fmt.Printf("%s%s (parent=%s) %q\n", prefix, node.Kind(), parentKind, text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printAST(node.Child(i), source, indent+1)
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ast_debug <file.py|file.java>")
		os.Exit(2)
	}
	path := os.Args[1]

	l, ok := lang.LanguageForExtension(filepath.Ext(path))
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported extension: %s\n", filepath.Ext(path))
		os.Exit(2)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}

	ps, err := parser.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "parser: %v\n", err)
		os.Exit(1)
	}

	tree, err := ps.Parse(l, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse: %v\n", err)
		os.Exit(1)
	}
	defer tree.Close()

	fmt.Printf("=== %s (%s) ===\n", path, l)
	printAST(tree.RootNode(), source, 0)
}
