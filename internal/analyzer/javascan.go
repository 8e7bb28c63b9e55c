package analyzer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/DeusData/codegraph/internal/graph"
	"github.com/DeusData/codegraph/internal/lang"
)

// javaScanAnalyzer is the fallback Java backend used when no tree-sitter
// grammar is available. It scans noise-stripped source with regular
// expressions and brace tracking, producing the same entity shape as the
// structural backend with approximate spans. Good enough for graph
// construction, not a parser.
type javaScanAnalyzer struct{}

func newJavaScan() *javaScanAnalyzer { return &javaScanAnalyzer{} }

func (s *javaScanAnalyzer) Language() lang.Language { return lang.Java }

var (
	scanPackageRe = regexp.MustCompile(`(?m)^[ \t]*package[ \t]+([\w.]+)[ \t]*;`)
	scanImportRe  = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+(?:static[ \t]+)?[\w.]+(?:\.\*)?[ \t]*;`)
	scanTypeRe    = regexp.MustCompile(`(?m)^[ \t]*((?:(?:public|private|protected|static|final|abstract)\s+)*)(class|interface|enum)\s+(\w+)([^{;]*)\{`)
	scanMethodRe  = regexp.MustCompile(`(?m)^[ \t]*((?:(?:public|private|protected|static|final|abstract|synchronized|native|default)\s+)*)(?:([\w.<>\[\]]+)\s+)?(\w+)\s*\(([^)]*)\)[^{;]*\{`)
	scanCallRe    = regexp.MustCompile(`(\w+)\s*\(`)
	scanNewRe     = regexp.MustCompile(`\bnew\s+([A-Za-z_][\w.]*)`)
)

// statement keywords that look like calls or methods to the regexes.
var scanKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "new": true, "this": true, "super": true, "do": true,
	"else": true, "try": true, "synchronized": true, "throw": true,
	"assert": true,
}

type scanDecl struct {
	kind  graph.NodeKind
	name  string
	start int // offset of the declaration start
	open  int // offset of the opening brace
	end   int // offset past the matching closing brace
	mods  []string
	ext   []string
	impl  []string
	ret   string
	parms []string
	ctor  bool
}

func (s *javaScanAnalyzer) Analyze(relPath string, src []byte) ([]Entity, error) {
	text := stripJavaNoise(src)
	pkg := ""
	if m := scanPackageRe.FindSubmatch(text); m != nil {
		pkg = string(m[1])
	}

	decls := scanTypeDecls(text)
	decls = append(decls, scanMethodDecls(text, decls)...)
	sort.Slice(decls, func(i, j int) bool { return decls[i].start < decls[j].start })

	// Nesting by byte containment: a declaration opened before and closed
	// after another is its ancestor.
	var (
		entities []Entity
		stack    []int // indices into decls
		qns      = make([]string, len(decls))
		byQN     = make(map[string]int)
	)
	for i, d := range decls {
		for len(stack) > 0 && decls[stack[len(stack)-1]].end <= d.start {
			stack = stack[:len(stack)-1]
		}

		parentKind := graph.NodeKind("")
		parts := []string{}
		if pkg != "" {
			parts = append(parts, pkg)
		}
		if len(stack) > 0 {
			p := stack[len(stack)-1]
			parentKind = decls[p].kind
			parts = []string{qns[p]}
		}
		parts = append(parts, d.name)
		qn := strings.Join(parts, ".")
		qns[i] = qn

		kind := d.kind
		if kind == graph.KindMethod {
			switch parentKind {
			case graph.KindClass, graph.KindInterface, graph.KindEnum:
			default:
				kind = graph.KindFunction
			}
			if len(stack) > 0 {
				p := stack[len(stack)-1]
				if d.ret == "" && d.name == decls[p].name {
					d.ctor = true
				}
			}
		}

		ent := Entity{
			QN:          qn,
			Kind:        kind,
			ParentKind:  parentKind,
			Source:      string(src[d.start:d.end]),
			StartLine:   lineAt(src, d.start),
			EndLine:     lineAt(src, d.end-1),
			Modifiers:   d.mods,
			Extends:     d.ext,
			Implements:  d.impl,
			ReturnType:  d.ret,
			Parameters:  d.parms,
			Constructor: d.ctor,
		}
		for _, t := range append(append([]string{}, d.ext...), d.impl...) {
			if n := simpleName(t); n != "" {
				ent.Raw.Bases = append(ent.Raw.Bases, n)
			}
		}
		if kind == graph.KindMethod || kind == graph.KindFunction {
			ent.Raw.Calls = scanCalls(text, d, decls)
		}

		entities = append(entities, ent)
		byQN[qn] = len(entities) - 1
		stack = append(stack, i)
	}

	// Constructor folding: the type's own call set is its constructor's.
	for i := range entities {
		if !entities[i].Constructor {
			continue
		}
		if p, ok := byQN[graph.ParentQN(entities[i].QN)]; ok {
			owner := &entities[p]
			if owner.Kind == graph.KindClass || owner.Kind == graph.KindEnum {
				owner.Raw.Calls = append(owner.Raw.Calls, entities[i].Raw.Calls...)
			}
		}
	}

	return entities, nil
}

func (s *javaScanAnalyzer) FindImports(relPath string, src []byte) ([]ImportRecord, error) {
	text := stripJavaNoise(src)
	var recs []ImportRecord
	for _, m := range scanImportRe.FindAll(text, -1) {
		if rec, ok := parseJavaImport(string(m)); ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func scanTypeDecls(text []byte) []scanDecl {
	var decls []scanDecl
	for _, m := range scanTypeRe.FindAllSubmatchIndex(text, -1) {
		open := m[1] - 1 // the matched '{'
		d := scanDecl{
			name:  string(text[m[6]:m[7]]),
			start: declStart(text, m[0]),
			open:  open,
			end:   matchBrace(text, open),
			mods:  strings.Fields(string(text[m[2]:m[3]])),
		}
		switch string(text[m[4]:m[5]]) {
		case "class":
			d.kind = graph.KindClass
		case "interface":
			d.kind = graph.KindInterface
		case "enum":
			d.kind = graph.KindEnum
		}
		ext, impl := splitExtendsClause(string(text[m[8]:m[9]]))
		if d.kind == graph.KindClass && len(ext) > 1 {
			ext = ext[:1]
		}
		d.ext, d.impl = ext, impl
		decls = append(decls, d)
	}
	return decls
}

func scanMethodDecls(text []byte, types []scanDecl) []scanDecl {
	typeNames := make(map[string]bool, len(types))
	for _, t := range types {
		typeNames[t.name] = true
	}
	var decls []scanDecl
	for _, m := range scanMethodRe.FindAllSubmatchIndex(text, -1) {
		name := string(text[m[6]:m[7]])
		ret := ""
		if m[4] >= 0 {
			ret = string(text[m[4]:m[5]])
		}
		if scanKeywords[name] || scanKeywords[ret] {
			continue
		}
		// No return type means a constructor, or an expression that happens
		// to end its line with a brace. Only the former survives.
		if ret == "" && !typeNames[name] {
			continue
		}
		start := declStart(text, m[0])
		if !insideAny(types, start) {
			continue
		}
		open := m[1] - 1
		d := scanDecl{
			kind:  graph.KindMethod,
			name:  name,
			start: start,
			open:  open,
			end:   matchBrace(text, open),
			mods:  strings.Fields(string(text[m[2]:m[3]])),
			ret:   ret,
		}
		for _, p := range strings.Split(string(text[m[8]:m[9]]), ",") {
			if p = strings.Join(strings.Fields(p), " "); p != "" {
				d.parms = append(d.parms, p)
			}
		}
		decls = append(decls, d)
	}
	return decls
}

// scanCalls collects call-looking names in a method body, skipping the
// spans of declarations nested inside it.
func scanCalls(text []byte, d scanDecl, all []scanDecl) []string {
	if d.open < 0 || d.end <= d.open {
		return nil
	}
	var nested []scanDecl
	for _, other := range all {
		if other.start > d.open && other.end <= d.end && other.kind != graph.KindMethod {
			nested = append(nested, other)
		}
	}
	body := text[d.open:d.end]
	var calls []string
	add := func(name string, at int) {
		if insideAny(nested, d.open+at) {
			return
		}
		calls = append(calls, name)
	}
	for _, m := range scanCallRe.FindAllSubmatchIndex(body, -1) {
		name := string(body[m[2]:m[3]])
		if scanKeywords[name] {
			continue
		}
		// "new Foo(" surfaces through scanNewRe with its full dotted type.
		if isNewOperand(body, m[2]) {
			continue
		}
		add(name, m[2])
	}
	for _, m := range scanNewRe.FindAllSubmatchIndex(body, -1) {
		add(simpleName(string(body[m[2]:m[3]])), m[2])
	}
	return calls
}

// isNewOperand reports whether the identifier at off is part of a type
// operand of the new keyword, dotted qualifiers included.
func isNewOperand(body []byte, off int) bool {
	i := off
	for i > 0 && (isWordByte(body[i-1]) || body[i-1] == '.') {
		i--
	}
	for i > 0 && (body[i-1] == ' ' || body[i-1] == '\t' || body[i-1] == '\n') {
		i--
	}
	return i >= 3 && string(body[i-3:i]) == "new" &&
		(i == 3 || !isWordByte(body[i-4]))
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func insideAny(decls []scanDecl, off int) bool {
	for _, d := range decls {
		if off > d.start && off < d.end {
			return true
		}
	}
	return false
}

// declStart skips the leading indentation of a (?m)^ match.
func declStart(text []byte, matchStart int) int {
	i := matchStart
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	return i
}

// matchBrace returns the offset just past the brace matching text[open].
// An unbalanced file yields the end of the text.
func matchBrace(text []byte, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(text)
}

// splitExtendsClause parses the text between a type name and its opening
// brace into extends and implements type lists.
func splitExtendsClause(clause string) (ext, impl []string) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil, nil
	}
	extPart, implPart := clause, ""
	if i := strings.Index(clause, "implements"); i >= 0 {
		extPart, implPart = clause[:i], clause[i+len("implements"):]
	}
	if i := strings.Index(extPart, "extends"); i >= 0 {
		ext = splitTypeList(extPart[i+len("extends"):])
	}
	impl = splitTypeList(implPart)
	return ext, impl
}

// splitTypeList splits "A, B<X, Y>, C" on commas outside angle brackets.
func splitTypeList(s string) []string {
	var (
		types []string
		depth int
		cur   strings.Builder
	)
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			types = append(types, t)
		}
		cur.Reset()
	}
	for _, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				flush()
				continue
			}
		}
		cur.WriteRune(r)
	}
	flush()
	return types
}

// lineAt returns the 1-based line number of a byte offset.
func lineAt(src []byte, off int) int {
	if off > len(src) {
		off = len(src)
	}
	line := 1
	for i := 0; i < off; i++ {
		if src[i] == '\n' {
			line++
		}
	}
	return line
}

// stripJavaNoise blanks comment bodies and string/char literal interiors,
// preserving newlines and byte offsets.
func stripJavaNoise(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	blank := func(i int) {
		if out[i] != '\n' {
			out[i] = ' '
		}
	}
	i := 0
	for i < len(out) {
		switch {
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '*':
			out[i], out[i+1] = ' ', ' '
			i += 2
			for i < len(out) {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i += 2
					break
				}
				blank(i)
				i++
			}
		case out[i] == '"' || out[i] == '\'':
			quote := out[i]
			i++
			for i < len(out) && out[i] != quote && out[i] != '\n' {
				if out[i] == '\\' && i+1 < len(out) {
					blank(i)
					i++
				}
				blank(i)
				i++
			}
			if i < len(out) && out[i] == quote {
				i++
			}
		default:
			i++
		}
	}
	return out
}
