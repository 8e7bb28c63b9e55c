// Package analyzer extracts code entities and import records from source
// files. One Analyzer per language, selected by file extension through a
// Registry of explicitly constructed instances; the pipeline never touches
// parser state directly.
package analyzer

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/DeusData/codegraph/internal/graph"
	"github.com/DeusData/codegraph/internal/lang"
	"github.com/DeusData/codegraph/internal/parser"
)

// ErrParse marks a file whose syntax could not be parsed. Callers skip the
// file and create no partial entities.
var ErrParse = errors.New("syntax error")

// Entity is one extracted definition: a class, interface, enum, function,
// method or constructor. Entities arrive in lexical pre-order, parents
// before children.
type Entity struct {
	// QN is the dotted qualified name inside the file. Lexical nesting
	// separated by dots; Java names carry the package prefix.
	QN   string
	Kind graph.NodeKind
	// ParentKind is the kind of the lexical parent, empty at top level.
	ParentKind graph.NodeKind
	Source     string
	StartLine  int
	EndLine    int

	Modifiers   []string
	Extends     []string
	Implements  []string
	ReturnType  string
	Parameters  []string
	Constructor bool

	Raw RawNames
}

// RawNames are the unresolved names found in an entity's own code. The
// resolution engine matches them against its candidate table; nothing here
// is guaranteed to resolve.
type RawNames struct {
	// Calls holds call targets: a bare identifier, or the final segment of
	// an attribute/field access. Nested definitions are not descended into.
	Calls []string
	// Decorators holds decorator/annotation names, each counted as an
	// invocation.
	Decorators []string
	// Bases holds base-class and implemented-interface simple names.
	Bases []string
	// Imports holds import statements scoped to this entity's body.
	Imports []ImportRecord
}

// ImportKind distinguishes plain module imports from named imports.
type ImportKind string

const (
	ImportPlain ImportKind = "import"
	ImportFrom  ImportKind = "from"
)

// ImportRecord is one parsed import statement.
type ImportRecord struct {
	Kind   ImportKind
	Module string
	// Alias is set on plain imports only.
	Alias string
	// Entities is set on from imports. A single {Name: "*"} entry signals
	// a wildcard import.
	Entities []ImportEntity
	// Static marks Java static imports. They resolve like named imports.
	Static bool
}

// ImportEntity is one imported name in a from record.
type ImportEntity struct {
	Name  string
	Alias string
}

// Wildcard reports whether the record is a wildcard from import.
func (r ImportRecord) Wildcard() bool {
	return len(r.Entities) == 1 && r.Entities[0].Name == "*"
}

// Analyzer is the per-language extraction capability.
type Analyzer interface {
	Language() lang.Language

	// Analyze returns the ordered entities of a source file, raw name sets
	// included. An error means the file could not be parsed; the caller
	// skips the file without creating partial entities.
	Analyze(relPath string, src []byte) ([]Entity, error)

	// FindImports returns the file-level import records. relPath is needed
	// to resolve relative imports.
	FindImports(relPath string, src []byte) ([]ImportRecord, error)
}

// Registry maps file extensions to analyzers.
type Registry struct {
	byExt map[string]Analyzer
}

// NewRegistry builds the default registry. ps may be nil when no grammars
// could be loaded; Java then falls back to the scanner backend and Python
// is left unregistered, so .py files produce text-only file nodes.
func NewRegistry(ps *parser.Parser) *Registry {
	r := &Registry{byExt: make(map[string]Analyzer)}
	if ps != nil && ps.Supports(lang.Python) {
		r.Register(newPython(ps))
	}
	r.Register(NewJava(ps))
	return r
}

// Register adds an analyzer under every extension its language spec lists.
func (r *Registry) Register(a Analyzer) {
	spec := lang.ForLanguage(a.Language())
	if spec == nil {
		return
	}
	for _, ext := range spec.FileExtensions {
		r.byExt[ext] = a
	}
}

// ForExtension returns the analyzer for a file extension, or nil.
func (r *Registry) ForExtension(ext string) Analyzer {
	return r.byExt[strings.ToLower(ext)]
}

// ForPath returns the analyzer for a file path, or nil.
func (r *Registry) ForPath(path string) Analyzer {
	return r.ForExtension(filepath.Ext(path))
}

// simpleName strips generics from a type expression and returns its last
// dotted segment: "a.b.Foo<T>" -> "Foo".
func simpleName(typeExpr string) string {
	s := typeExpr
	if i := strings.IndexByte(s, '<'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
