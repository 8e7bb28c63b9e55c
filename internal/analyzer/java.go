package analyzer

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/codegraph/internal/graph"
	"github.com/DeusData/codegraph/internal/lang"
	"github.com/DeusData/codegraph/internal/parser"
)

// javaAnalyzer extracts entities from Java sources with tree-sitter.
//
// Java AST structures consumed here:
//
//	class_declaration:     name, superclass, interfaces (super_interfaces), body
//	interface_declaration: name, extends_interfaces child, body
//	enum_declaration:      name, interfaces, body
//	method_declaration:    type (return), name, parameters, body
//	constructor_declaration: name, parameters, body
//	method_invocation:     object?, name, arguments
//	object_creation_expression: type, arguments, optional class_body
//	import_declaration:    "import [static] a.b.C[.*];"
type javaAnalyzer struct {
	ps *parser.Parser
}

// NewJava returns the tree-sitter backed Java analyzer, or the scanner
// fallback when no Java grammar is available.
func NewJava(ps *parser.Parser) Analyzer {
	if ps == nil || !ps.Supports(lang.Java) {
		return newJavaScan()
	}
	return &javaAnalyzer{ps: ps}
}

func (ja *javaAnalyzer) Language() lang.Language { return lang.Java }

func (ja *javaAnalyzer) Analyze(relPath string, src []byte) ([]Entity, error) {
	tree, err := ja.ps.Parse(lang.Java, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", relPath, ErrParse)
	}

	v := &javaVisitor{src: src, pkg: javaPackageName(root, src)}
	v.visit(root)
	return v.entities, nil
}

func (ja *javaAnalyzer) FindImports(relPath string, src []byte) ([]ImportRecord, error) {
	tree, err := ja.ps.Parse(lang.Java, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", relPath, ErrParse)
	}

	var recs []ImportRecord
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child.Kind() != "import_declaration" {
			continue
		}
		if rec, ok := parseJavaImport(parser.NodeText(child, src)); ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// parseJavaImport turns one import declaration into a record. A wildcard
// import acts as a plain module import; a regular import splits into
// module and entity, mirroring a named import. Single-segment imports
// carry no package and are dropped.
func parseJavaImport(text string) (ImportRecord, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "import")
	text = strings.TrimSuffix(strings.TrimSpace(text), ";")
	text = strings.TrimSpace(text)

	static := false
	if rest, ok := strings.CutPrefix(text, "static "); ok {
		static = true
		text = strings.TrimSpace(rest)
	}

	if module, ok := strings.CutSuffix(text, ".*"); ok {
		return ImportRecord{Kind: ImportPlain, Module: module, Static: static}, true
	}

	parts := strings.Split(text, ".")
	if len(parts) < 2 {
		return ImportRecord{}, false
	}
	return ImportRecord{
		Kind:     ImportFrom,
		Module:   strings.Join(parts[:len(parts)-1], "."),
		Entities: []ImportEntity{{Name: parts[len(parts)-1]}},
		Static:   static,
	}, true
}

// javaPackageName extracts the package declaration, or "".
func javaPackageName(root *tree_sitter.Node, src []byte) string {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child.Kind() != "package_declaration" {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			name := child.NamedChild(j)
			switch name.Kind() {
			case "identifier", "scoped_identifier":
				return parser.NodeText(name, src)
			}
		}
		break
	}
	return ""
}

// javaVisitor walks the AST keeping a lexical name stack. Qualified names
// carry the package prefix; anonymous classes contribute no segment.
type javaVisitor struct {
	src      []byte
	pkg      string
	entities []Entity

	names  []string
	kinds  []graph.NodeKind
	owners []int
}

func (v *javaVisitor) visit(node *tree_sitter.Node) {
	switch node.Kind() {
	case "class_declaration":
		v.visitType(node, graph.KindClass)
		return
	case "interface_declaration":
		v.visitType(node, graph.KindInterface)
		return
	case "enum_declaration":
		v.visitType(node, graph.KindEnum)
		return
	case "method_declaration":
		v.visitCallable(node, false)
		return
	case "constructor_declaration":
		v.visitCallable(node, true)
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil {
			v.visit(child)
		}
	}
}

func (v *javaVisitor) visitType(node *tree_sitter.Node, kind graph.NodeKind) {
	name := identifierField(node, "name", v.src)
	if name == "" {
		return
	}

	ent := Entity{
		QN:         v.qualify(name),
		Kind:       kind,
		ParentKind: v.parentKind(),
		Source:     parser.NodeText(node, v.src),
		StartLine:  int(node.StartPosition().Row) + 1,
		EndLine:    int(node.EndPosition().Row) + 1,
		Modifiers:  javaModifiers(node, v.src),
	}

	switch kind {
	case graph.KindClass:
		if super := node.ChildByFieldName("superclass"); super != nil {
			if t := super.NamedChild(0); t != nil {
				ent.Extends = []string{parser.NodeText(t, v.src)}
			}
		}
		ent.Implements = javaInterfaceList(node.ChildByFieldName("interfaces"), v.src)
	case graph.KindInterface:
		// Interface extends lives in an extends_interfaces child, not a field.
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if child.Kind() == "extends_interfaces" {
				ent.Extends = javaInterfaceList(child, v.src)
				break
			}
		}
	case graph.KindEnum:
		ent.Implements = javaInterfaceList(node.ChildByFieldName("interfaces"), v.src)
	}

	for _, t := range ent.Extends {
		if n := simpleName(t); n != "" {
			ent.Raw.Bases = append(ent.Raw.Bases, n)
		}
	}
	for _, t := range ent.Implements {
		if n := simpleName(t); n != "" {
			ent.Raw.Bases = append(ent.Raw.Bases, n)
		}
	}

	v.entities = append(v.entities, ent)
	idx := len(v.entities) - 1

	v.push(name, kind, idx)
	if body := node.ChildByFieldName("body"); body != nil {
		for i := uint(0); i < body.ChildCount(); i++ {
			if child := body.Child(i); child != nil {
				v.visit(child)
			}
		}
	}
	v.pop()
}

func (v *javaVisitor) visitCallable(node *tree_sitter.Node, ctor bool) {
	name := identifierField(node, "name", v.src)
	if name == "" {
		return
	}

	kind := graph.KindFunction
	switch v.parentKind() {
	case graph.KindClass, graph.KindInterface, graph.KindEnum:
		kind = graph.KindMethod
	}

	ent := Entity{
		QN:          v.qualify(name),
		Kind:        kind,
		ParentKind:  v.parentKind(),
		Source:      parser.NodeText(node, v.src),
		StartLine:   int(node.StartPosition().Row) + 1,
		EndLine:     int(node.EndPosition().Row) + 1,
		Modifiers:   javaModifiers(node, v.src),
		Parameters:  javaParameters(node, v.src),
		Constructor: ctor,
	}
	if !ctor {
		ent.ReturnType = identifierField(node, "type", v.src)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		collectJavaCalls(body, v.src, &ent.Raw.Calls)
	}

	// A constructor's body calls also belong to the owning type: invoking
	// the class means running its constructor.
	if ctor {
		if idx := v.ownerIndex(); idx >= 0 {
			owner := &v.entities[idx]
			if owner.Kind == graph.KindClass || owner.Kind == graph.KindEnum {
				owner.Raw.Calls = append(owner.Raw.Calls, ent.Raw.Calls...)
			}
		}
	}

	v.entities = append(v.entities, ent)
	idx := len(v.entities) - 1

	v.push(name, kind, idx)
	if body := node.ChildByFieldName("body"); body != nil {
		for i := uint(0); i < body.ChildCount(); i++ {
			if child := body.Child(i); child != nil {
				v.visit(child)
			}
		}
	}
	v.pop()
}

func (v *javaVisitor) qualify(name string) string {
	parts := make([]string, 0, len(v.names)+2)
	if v.pkg != "" {
		parts = append(parts, v.pkg)
	}
	parts = append(parts, v.names...)
	parts = append(parts, name)
	return strings.Join(parts, ".")
}

func (v *javaVisitor) parentKind() graph.NodeKind {
	if len(v.kinds) == 0 {
		return ""
	}
	return v.kinds[len(v.kinds)-1]
}

func (v *javaVisitor) ownerIndex() int {
	if len(v.owners) == 0 {
		return -1
	}
	return v.owners[len(v.owners)-1]
}

func (v *javaVisitor) push(name string, kind graph.NodeKind, idx int) {
	v.names = append(v.names, name)
	v.kinds = append(v.kinds, kind)
	v.owners = append(v.owners, idx)
}

func (v *javaVisitor) pop() {
	v.names = v.names[:len(v.names)-1]
	v.kinds = v.kinds[:len(v.kinds)-1]
	v.owners = v.owners[:len(v.owners)-1]
}

// collectJavaCalls gathers method invocation names and constructor call
// type names in a subtree. Nested type declarations and anonymous class
// bodies are skipped: their calls belong to their own entities.
func collectJavaCalls(node *tree_sitter.Node, src []byte, out *[]string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "class_declaration", "interface_declaration", "enum_declaration", "class_body":
			continue
		case "method_invocation":
			if name := identifierField(child, "name", src); name != "" {
				*out = append(*out, name)
			}
		case "object_creation_expression":
			if t := child.ChildByFieldName("type"); t != nil {
				if name := simpleName(parser.NodeText(t, src)); name != "" {
					*out = append(*out, name)
				}
			}
		}
		collectJavaCalls(child, src, out)
	}
}

// javaModifiers returns the access/static/final/abstract modifiers of a
// declaration. Annotations in the modifier list are ignored.
func javaModifiers(node *tree_sitter.Node, src []byte) []string {
	var mods []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "modifiers" {
			continue
		}
		for j := uint(0); j < child.ChildCount(); j++ {
			mod := child.Child(j)
			if mod == nil {
				continue
			}
			switch mod.Kind() {
			case "public", "private", "protected", "static", "final", "abstract":
				mods = append(mods, mod.Kind())
			}
		}
	}
	return mods
}

// javaInterfaceList extracts the type texts from a super_interfaces or
// extends_interfaces node.
func javaInterfaceList(node *tree_sitter.Node, src []byte) []string {
	if node == nil {
		return nil
	}
	var types []string
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "interface_type_list" {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			if t := child.NamedChild(j); t != nil {
				types = append(types, strings.TrimSpace(parser.NodeText(t, src)))
			}
		}
	}
	return types
}

// javaParameters renders formal parameters as "Type name" strings.
func javaParameters(node *tree_sitter.Node, src []byte) []string {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	var out []string
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		if p.Kind() != "formal_parameter" && p.Kind() != "spread_parameter" {
			continue
		}
		typ := p.ChildByFieldName("type")
		name := p.ChildByFieldName("name")
		switch {
		case typ != nil && name != nil:
			out = append(out, parser.NodeText(typ, src)+" "+parser.NodeText(name, src))
		case typ != nil:
			out = append(out, parser.NodeText(typ, src))
		}
	}
	return out
}
