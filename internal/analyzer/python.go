package analyzer

import (
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/codegraph/internal/graph"
	"github.com/DeusData/codegraph/internal/lang"
	"github.com/DeusData/codegraph/internal/parser"
)

// pythonAnalyzer extracts entities from Python sources.
//
// Python AST structures consumed here:
//
//	class_definition:   name, superclasses (argument_list), body (block)
//	function_definition: name, parameters, body (block)
//	decorated_definition: decorator* then field definition
//	call: function (identifier | attribute | ...), arguments
//	import_statement: dotted_name | aliased_import children
//	import_from_statement: module_name (dotted_name | relative_import),
//	  then dotted_name | aliased_import | wildcard_import
type pythonAnalyzer struct {
	ps *parser.Parser
}

func newPython(ps *parser.Parser) *pythonAnalyzer {
	return &pythonAnalyzer{ps: ps}
}

func (py *pythonAnalyzer) Language() lang.Language { return lang.Python }

func (py *pythonAnalyzer) Analyze(relPath string, src []byte) ([]Entity, error) {
	tree, err := py.ps.Parse(lang.Python, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", relPath, ErrParse)
	}

	v := &pyVisitor{src: src, relPath: relPath}
	v.visit(root)
	return v.entities, nil
}

func (py *pythonAnalyzer) FindImports(relPath string, src []byte) ([]ImportRecord, error) {
	tree, err := py.ps.Parse(lang.Python, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", relPath, ErrParse)
	}

	// Imports at any depth count for the file; entity-scoped statements are
	// additionally re-collected per entity with narrower visibility.
	var recs []ImportRecord
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "import_statement":
			recs = append(recs, parsePlainPythonImport(n, src)...)
			return false
		case "import_from_statement":
			recs = append(recs, parsePythonFromImport(n, src, relPath))
			return false
		}
		return true
	})
	return recs, nil
}

// pyVisitor walks the AST keeping a lexical name stack, emitting entities
// in pre-order.
type pyVisitor struct {
	src      []byte
	relPath  string
	entities []Entity

	names  []string
	kinds  []graph.NodeKind
	owners []int // entities index of each enclosing definition
}

func (v *pyVisitor) visit(node *tree_sitter.Node) {
	switch node.Kind() {
	case "class_definition":
		v.visitClass(node)
		return
	case "function_definition":
		v.visitFunction(node)
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil {
			v.visit(child)
		}
	}
}

func (v *pyVisitor) visitClass(node *tree_sitter.Node) {
	name := identifierField(node, "name", v.src)
	if name == "" {
		return
	}

	ent := Entity{
		QN:         v.qualify(name),
		Kind:       graph.KindClass,
		ParentKind: v.parentKind(),
		Source:     parser.NodeText(node, v.src),
		StartLine:  int(node.StartPosition().Row) + 1,
		EndLine:    int(node.EndPosition().Row) + 1,
	}
	ent.Raw.Bases = pythonBaseNames(node, v.src)
	ent.Raw.Decorators = pythonDecoratorNames(node, v.src)
	ent.Raw.Imports = scopedPythonImports(node, v.src, v.relPath)

	v.entities = append(v.entities, ent)
	idx := len(v.entities) - 1

	v.push(name, graph.KindClass, idx)
	v.visitBody(node)
	v.pop()
}

func (v *pyVisitor) visitFunction(node *tree_sitter.Node) {
	name := identifierField(node, "name", v.src)
	if name == "" {
		return
	}

	// An explicit constructor folds into its owning class: its decorators,
	// body calls and scoped imports become part of the class's footprint,
	// and no function node is emitted. Definitions nested inside it are
	// not extracted either.
	if v.parentKind() == graph.KindClass && name == "__init__" {
		v.foldInit(node)
		return
	}

	kind := graph.KindFunction
	if v.parentKind() == graph.KindClass {
		kind = graph.KindMethod
	}
	ent := Entity{
		QN:         v.qualify(name),
		Kind:       kind,
		ParentKind: v.parentKind(),
		Source:     parser.NodeText(node, v.src),
		StartLine:  int(node.StartPosition().Row) + 1,
		EndLine:    int(node.EndPosition().Row) + 1,
	}
	collectPythonCalls(node, v.src, &ent.Raw.Calls)
	ent.Raw.Decorators = pythonDecoratorNames(node, v.src)
	ent.Raw.Imports = scopedPythonImports(node, v.src, v.relPath)

	v.entities = append(v.entities, ent)
	idx := len(v.entities) - 1

	v.push(name, kind, idx)
	v.visitBody(node)
	v.pop()
}

func (v *pyVisitor) foldInit(node *tree_sitter.Node) {
	idx := v.owners[len(v.owners)-1]
	if idx < 0 {
		return
	}
	ent := &v.entities[idx]
	ent.Raw.Decorators = append(ent.Raw.Decorators, pythonDecoratorNames(node, v.src)...)
	collectPythonCallsDeep(node, v.src, &ent.Raw.Calls)
	ent.Raw.Imports = append(ent.Raw.Imports, scopedPythonImports(node, v.src, v.relPath)...)
}

func (v *pyVisitor) visitBody(node *tree_sitter.Node) {
	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		if child := body.Child(i); child != nil {
			v.visit(child)
		}
	}
}

func (v *pyVisitor) qualify(name string) string {
	if len(v.names) == 0 {
		return name
	}
	return strings.Join(v.names, ".") + "." + name
}

func (v *pyVisitor) parentKind() graph.NodeKind {
	if len(v.kinds) == 0 {
		return ""
	}
	return v.kinds[len(v.kinds)-1]
}

func (v *pyVisitor) push(name string, kind graph.NodeKind, idx int) {
	v.names = append(v.names, name)
	v.kinds = append(v.kinds, kind)
	v.owners = append(v.owners, idx)
}

func (v *pyVisitor) pop() {
	v.names = v.names[:len(v.names)-1]
	v.kinds = v.kinds[:len(v.kinds)-1]
	v.owners = v.owners[:len(v.owners)-1]
}

// collectPythonCalls gathers call targets in node's subtree, skipping
// nested definitions outright: their calls belong to their own entities.
func collectPythonCalls(node *tree_sitter.Node, src []byte, out *[]string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_definition", "class_definition", "decorated_definition":
			continue
		case "call":
			if name := pythonCallTarget(child, src); name != "" {
				*out = append(*out, name)
			}
		}
		collectPythonCalls(child, src, out)
	}
}

// collectPythonCallsDeep gathers every call target in the subtree, nested
// definitions included. Used for constructor folding.
func collectPythonCallsDeep(node *tree_sitter.Node, src []byte, out *[]string) {
	parser.Walk(node, func(n *tree_sitter.Node) bool {
		if n.Kind() == "call" {
			if name := pythonCallTarget(n, src); name != "" {
				*out = append(*out, name)
			}
		}
		return true
	})
}

// pythonCallTarget returns the called name: a bare identifier, or the
// final segment of an attribute access. Anything else is ignored.
func pythonCallTarget(call *tree_sitter.Node, src []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return parser.NodeText(fn, src)
	case "attribute":
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			return parser.NodeText(attr, src)
		}
	}
	return ""
}

// pythonBaseNames extracts base-class names from a class_definition.
// Plain identifiers and the final segment of attribute bases contribute;
// keyword arguments and computed bases do not.
func pythonBaseNames(class *tree_sitter.Node, src []byte) []string {
	supers := class.ChildByFieldName("superclasses")
	if supers == nil {
		return nil
	}
	var bases []string
	for i := uint(0); i < supers.NamedChildCount(); i++ {
		arg := supers.NamedChild(i)
		switch arg.Kind() {
		case "identifier":
			bases = append(bases, parser.NodeText(arg, src))
		case "attribute":
			if attr := arg.ChildByFieldName("attribute"); attr != nil {
				bases = append(bases, parser.NodeText(attr, src))
			}
		}
	}
	return bases
}

// pythonDecoratorNames extracts decorator names for a definition node.
// A bare name decorator contributes itself; otherwise every factory call
// and attribute segment in the decorator expression contributes.
func pythonDecoratorNames(def *tree_sitter.Node, src []byte) []string {
	parent := def.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return nil
	}
	var names []string
	for i := uint(0); i < parent.NamedChildCount(); i++ {
		dec := parent.NamedChild(i)
		if dec.Kind() != "decorator" {
			continue
		}
		expr := dec.NamedChild(0)
		if expr == nil {
			continue
		}
		if expr.Kind() == "identifier" {
			names = append(names, parser.NodeText(expr, src))
			continue
		}
		parser.Walk(expr, func(n *tree_sitter.Node) bool {
			switch n.Kind() {
			case "call":
				if fn := n.ChildByFieldName("function"); fn != nil && fn.Kind() == "identifier" {
					names = append(names, parser.NodeText(fn, src))
				}
			case "attribute":
				if attr := n.ChildByFieldName("attribute"); attr != nil {
					names = append(names, parser.NodeText(attr, src))
				}
			}
			return true
		})
	}
	return names
}

// scopedPythonImports collects import statements that are direct children
// of a definition's body. Their visibility is narrower than the file, so
// the resolution engine re-resolves them per entity.
func scopedPythonImports(def *tree_sitter.Node, src []byte, relPath string) []ImportRecord {
	body := def.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var recs []ImportRecord
	for i := uint(0); i < body.NamedChildCount(); i++ {
		child := body.NamedChild(i)
		switch child.Kind() {
		case "import_statement":
			recs = append(recs, parsePlainPythonImport(child, src)...)
		case "import_from_statement":
			recs = append(recs, parsePythonFromImport(child, src, relPath))
		}
	}
	return recs
}

// parsePlainPythonImport handles "import a.b" and "import a.b as c",
// one record per imported module.
func parsePlainPythonImport(node *tree_sitter.Node, src []byte) []ImportRecord {
	var recs []ImportRecord
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "dotted_name":
			recs = append(recs, ImportRecord{
				Kind:   ImportPlain,
				Module: parser.NodeText(child, src),
			})
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			recs = append(recs, ImportRecord{
				Kind:   ImportPlain,
				Module: parser.NodeText(nameNode, src),
				Alias:  identifierField(child, "alias", src),
			})
		}
	}
	return recs
}

// parsePythonFromImport handles "from m import a, b as c" including
// relative and wildcard forms. A relative module is rebased onto the
// importing file's location: each leading dot drops one trailing path
// component, the file name counting as the first.
func parsePythonFromImport(node *tree_sitter.Node, src []byte, relPath string) ImportRecord {
	rec := ImportRecord{Kind: ImportFrom}

	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode != nil {
		switch moduleNode.Kind() {
		case "dotted_name":
			rec.Module = parser.NodeText(moduleNode, src)
		case "relative_import":
			level := 0
			trailing := ""
			for i := uint(0); i < moduleNode.NamedChildCount(); i++ {
				part := moduleNode.NamedChild(i)
				switch part.Kind() {
				case "import_prefix":
					level = strings.Count(parser.NodeText(part, src), ".")
				case "dotted_name":
					trailing = parser.NodeText(part, src)
				}
			}
			rec.Module = rebaseRelativeImport(relPath, level, trailing)
		}
	}

	// Imported names follow the "import" keyword; everything before it
	// belongs to the module part.
	seenKeyword := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if !child.IsNamed() {
			if parser.NodeText(child, src) == "import" {
				seenKeyword = true
			}
			continue
		}
		if !seenKeyword {
			continue
		}
		switch child.Kind() {
		case "wildcard_import":
			rec.Entities = []ImportEntity{{Name: "*"}}
			return rec
		case "dotted_name":
			rec.Entities = append(rec.Entities, ImportEntity{
				Name: parser.NodeText(child, src),
			})
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			rec.Entities = append(rec.Entities, ImportEntity{
				Name:  parser.NodeText(nameNode, src),
				Alias: identifierField(child, "alias", src),
			})
		}
	}
	return rec
}

// rebaseRelativeImport turns a level-N relative import inside relPath into
// a repo-rooted dotted module name.
func rebaseRelativeImport(relPath string, level int, trailing string) string {
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) >= level {
		parts = parts[:len(parts)-level]
	} else {
		parts = nil
	}
	if trailing != "" {
		parts = append(parts, trailing)
	}
	return strings.Join(parts, ".")
}

// identifierField returns the text of a named field, or "".
func identifierField(node *tree_sitter.Node, field string, src []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return parser.NodeText(child, src)
}
