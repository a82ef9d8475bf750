package main

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

type tsStatementKind int

const (
	// tsRoot statements bind nothing and are always kept
	tsRoot tsStatementKind = iota
	tsDeclaration
	tsImport
	tsReExport
)

type tsPartKind int

const (
	tsDeclarator tsPartKind = iota
	tsImportDefault
	tsImportNamespace
	tsImportNamed
)

// tsStatement is one top-level statement copied out of the tree-sitter tree
type tsStatement struct {
	kind tsStatementKind
	text string
	// leading holds attached comments up to the statement, verbatim
	leading string
	// trailing holds same-line comments after the statement, verbatim
	trailing string
	// start and end are byte offsets including attached comments
	start, end uint32

	// Statements with parts can lose some of them and are then rebuilt
	// from head + kept parts + semicolon (declarators) or from the import
	// fields below.
	parts     []*tsPart
	head      string
	semicolon string
	source    string
	typeOnly  bool

	removed bool
}

type tsPart struct {
	kind    tsPartKind
	text    string
	removed bool
}

type tsSite struct {
	stmt *tsStatement
	part *tsPart // nil when the whole statement is the site
}

// tsTree is a TypeScript or TSX file reduced to its top-level statements
type tsTree struct {
	src        []byte
	statements []*tsStatement
	decls      []*Declaration
	byName     map[string]*Declaration
	sites      map[string][]tsSite
	rootUses   map[string]int

	// names exported by `export default <identifier>`
	defaultExports []string
}

// declarationKinds maps tree-sitter declaration node types to declaration kinds
var declarationKinds = map[string]string{
	"function_declaration":           "function",
	"generator_function_declaration": "function",
	"function_signature":             "function",
	"class_declaration":              "class",
	"abstract_class_declaration":     "class",
	"interface_declaration":          "interface",
	"type_alias_declaration":         "type",
	"enum_declaration":               "enum",
	"internal_module":                "namespace",
	"module":                         "namespace",
	"lexical_declaration":            "variable",
	"variable_declaration":           "variable",
	"ambient_declaration":            "ambient",
}

func grammarFor(lang Language) *sitter.Language {
	if lang == LanguageTSX {
		return tsx.GetLanguage()
	}
	return ts.GetLanguage()
}

// parseTypeScript parses TypeScript or TSX source into a fresh tree. The
// tree-sitter tree is closed before returning; the result holds plain copies.
func parseTypeScript(filename string, lang Language, src []byte) (*tsTree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammarFor(lang))

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, tsParseError(filename, src, root)
	}

	t := &tsTree{
		src:      src,
		byName:   make(map[string]*Declaration),
		sites:    make(map[string][]tsSite),
		rootUses: make(map[string]int),
	}
	t.collectStatements(root)
	t.resolveDefaultExports()
	return t, nil
}

func tsParseError(filename string, src []byte, root *sitter.Node) error {
	node := firstErrorNode(root)
	if node == nil {
		return &ParseError{Filename: filename, Line: 1, Column: 1, Msg: "syntax error"}
	}

	pos := node.StartPoint()
	msg := fmt.Sprintf("missing %s", node.Type())
	if !node.IsMissing() {
		snippet := strings.TrimSpace(node.Content(src))
		if i := strings.IndexByte(snippet, '\n'); i >= 0 {
			snippet = snippet[:i]
		}
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		msg = fmt.Sprintf("unexpected %q", snippet)
	}
	return &ParseError{
		Filename: filename,
		Line:     int(pos.Row) + 1,
		Column:   int(pos.Column) + 1,
		Msg:      msg,
	}
}

// firstErrorNode finds the first ERROR or MISSING node in document order
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.IsMissing() || n.Type() == "ERROR" {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || (!child.HasError() && !child.IsMissing()) {
			continue
		}
		if found := firstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}

// collectStatements walks the program's children, attaching comments to
// the statements they document
func (t *tsTree) collectStatements(root *sitter.Node) {
	var pending []*sitter.Node
	var prev *tsStatement
	var prevEndRow uint32

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)

		if node.Type() == "comment" {
			if prev != nil && len(pending) == 0 && node.StartPoint().Row == prevEndRow {
				prev.end = node.EndByte()
				prev.trailing = string(t.src[prev.start+uint32(len(prev.leading))+uint32(len(prev.text)) : prev.end])
				continue
			}
			pending = append(pending, node)
			continue
		}

		stmt := t.classify(node)

		// comments directly above (no blank line) belong to the statement
		attached := len(pending)
		nextRow := node.StartPoint().Row
		for k := len(pending) - 1; k >= 0; k-- {
			if nextRow-pending[k].EndPoint().Row > 1 {
				break
			}
			attached = k
			nextRow = pending[k].StartPoint().Row
		}
		for _, c := range pending[:attached] {
			t.addDetached(c)
		}
		if attached < len(pending) {
			stmt.start = pending[attached].StartByte()
			stmt.leading = string(t.src[stmt.start:node.StartByte()])
		}
		pending = pending[:0]

		t.statements = append(t.statements, stmt)
		prev = stmt
		prevEndRow = node.EndPoint().Row
	}

	for _, c := range pending {
		t.addDetached(c)
	}
}

// addDetached keeps a comment that documents no particular statement
func (t *tsTree) addDetached(node *sitter.Node) {
	t.statements = append(t.statements, &tsStatement{
		kind:  tsRoot,
		text:  node.Content(t.src),
		start: node.StartByte(),
		end:   node.EndByte(),
	})
}

// classify turns one top-level node into a statement and records its
// declarations and references
func (t *tsTree) classify(node *sitter.Node) *tsStatement {
	stmt := &tsStatement{
		kind:  tsRoot,
		text:  node.Content(t.src),
		start: node.StartByte(),
		end:   node.EndByte(),
	}

	switch node.Type() {
	case "import_statement":
		t.classifyImport(stmt, node)
	case "export_statement":
		t.classifyExport(stmt, node)
	default:
		if _, ok := declarationKinds[node.Type()]; ok {
			t.classifyDeclaration(stmt, node, node, false)
		} else {
			t.collectUses(node, t.rootUses)
		}
	}
	return stmt
}

func (t *tsTree) classifyExport(stmt *tsStatement, node *sitter.Node) {
	if decl := node.ChildByFieldName("declaration"); decl != nil {
		t.classifyDeclaration(stmt, node, decl, true)
		return
	}

	// export { a } from './x', export * from './x', export { a }
	if node.ChildByFieldName("source") != nil || childOfType(node, "export_clause") != nil {
		stmt.kind = tsReExport
		return
	}

	// export default <expression>, export = <expression>
	if value := node.ChildByFieldName("value"); value != nil && value.Type() == "identifier" {
		t.defaultExports = append(t.defaultExports, value.Content(t.src))
	}
	t.collectUses(node, t.rootUses)
}

// resolveDefaultExports adds names exported by `export default <identifier>`
// to the export surface of the declaration that binds them. The statement
// stays a root, so the declaration is never pruned.
func (t *tsTree) resolveDefaultExports() {
	for _, name := range t.defaultExports {
		decl := t.owner(name)
		if decl == nil || contains(decl.Exports, name) {
			continue
		}
		exports := make([]string, 0, len(decl.Exports)+1)
		exports = append(exports, decl.Exports...)
		decl.Exports = append(exports, name)
		decl.Exported = true
	}
}

// owner returns the declaration binding name, or nil
func (t *tsTree) owner(name string) *Declaration {
	if decl, ok := t.byName[name]; ok {
		return decl
	}
	for _, decl := range t.decls {
		if contains(decl.Names, name) {
			return decl
		}
	}
	return nil
}

func (t *tsTree) classifyDeclaration(stmt *tsStatement, outer, decl *sitter.Node, exported bool) {
	kind := declarationKinds[decl.Type()]

	switch kind {
	case "variable":
		t.classifyVariables(stmt, outer, decl, exported)
		return
	case "ambient":
		inner := firstDeclarationChild(decl)
		if inner == nil {
			t.collectUses(outer, t.rootUses)
			return
		}
		decl = inner
		kind = declarationKinds[inner.Type()]
	}

	var names []string
	if kind == "variable" {
		for _, d := range childrenOfType(decl, "variable_declarator") {
			names = append(names, t.patternNames(d.ChildByFieldName("name"))...)
		}
	} else if name := declarationName(decl, t.src); name != "" {
		names = []string{name}
	}
	if len(names) == 0 {
		t.collectUses(outer, t.rootUses)
		return
	}

	stmt.kind = tsDeclaration
	uses := make(map[string]int)
	t.collectUses(outer, uses)
	t.addSite(names, declarationKind(decl), exported, tsSite{stmt: stmt}, uses, decl)
}

// classifyVariables handles const/let/var statements. A statement with
// several declarators gets one site per declarator so each can be removed.
func (t *tsTree) classifyVariables(stmt *tsStatement, outer, decl *sitter.Node, exported bool) {
	declarators := childrenOfType(decl, "variable_declarator")
	kind := declarationKind(decl)

	if len(declarators) == 0 {
		t.collectUses(outer, t.rootUses)
		return
	}

	if len(declarators) == 1 {
		names := t.patternNames(declarators[0].ChildByFieldName("name"))
		if len(names) == 0 {
			t.collectUses(outer, t.rootUses)
			return
		}
		stmt.kind = tsDeclaration
		uses := make(map[string]int)
		t.collectUses(outer, uses)
		t.addSite(names, kind, exported, tsSite{stmt: stmt}, uses, declarators[0])
		return
	}

	stmt.kind = tsDeclaration
	stmt.head = string(t.src[outer.StartByte():declarators[0].StartByte()])
	if strings.HasSuffix(stmt.text, ";") {
		stmt.semicolon = ";"
	}
	for _, d := range declarators {
		part := &tsPart{kind: tsDeclarator, text: d.Content(t.src)}
		stmt.parts = append(stmt.parts, part)

		uses := make(map[string]int)
		t.collectUses(d, uses)
		names := t.patternNames(d.ChildByFieldName("name"))
		if len(names) == 0 {
			mergeUses(t.rootUses, uses)
			continue
		}
		t.addSite(names, kind, exported, tsSite{stmt: stmt, part: part}, uses, d)
	}
}

func (t *tsTree) classifyImport(stmt *tsStatement, node *sitter.Node) {
	// import x = require('y')
	if req := childOfType(node, "import_require_clause"); req != nil {
		if id := childOfType(req, "identifier"); id != nil {
			stmt.kind = tsImport
			t.addSite([]string{id.Content(t.src)}, "import", false, tsSite{stmt: stmt}, map[string]int{}, req)
		}
		return
	}

	clause := childOfType(node, "import_clause")
	source := node.ChildByFieldName("source")
	if clause == nil || source == nil {
		// import './side-effect'
		return
	}

	stmt.kind = tsImport
	stmt.source = source.Content(t.src)
	stmt.typeOnly = childOfType(node, "type") != nil
	if strings.HasSuffix(stmt.text, ";") {
		stmt.semicolon = ";"
	}

	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			t.addImportPart(stmt, tsImportDefault, child.Content(t.src), child.Content(t.src), child)
		case "namespace_import":
			if id := childOfType(child, "identifier"); id != nil {
				t.addImportPart(stmt, tsImportNamespace, child.Content(t.src), id.Content(t.src), child)
			}
		case "named_imports":
			for _, spec := range childrenOfType(child, "import_specifier") {
				local := spec.ChildByFieldName("alias")
				if local == nil {
					local = spec.ChildByFieldName("name")
				}
				if local == nil {
					continue
				}
				t.addImportPart(stmt, tsImportNamed, spec.Content(t.src), local.Content(t.src), spec)
			}
		}
	}
}

func (t *tsTree) addImportPart(stmt *tsStatement, kind tsPartKind, text, name string, node *sitter.Node) {
	part := &tsPart{kind: kind, text: text}
	stmt.parts = append(stmt.parts, part)
	t.addSite([]string{name}, "import", false, tsSite{stmt: stmt, part: part}, map[string]int{}, node)
}

// addSite registers a declaration site, merging sites that bind the same
// name (overloads, interface merging)
func (t *tsTree) addSite(names []string, kind string, exported bool, site tsSite, uses map[string]int, node *sitter.Node) {
	primary := names[0]
	t.sites[primary] = append(t.sites[primary], site)

	if existing, ok := t.byName[primary]; ok {
		mergeUses(existing.Uses, uses)
		if exported && !existing.Exported {
			existing.Exported = true
			existing.Exports = names
		}
		return
	}

	start, end := node.StartPoint(), node.EndPoint()
	decl := &Declaration{
		Name:     primary,
		Names:    names,
		Kind:     kind,
		Exported: exported,
		Start:    Position{Line: int(start.Row) + 1, Column: int(start.Column) + 1},
		End:      Position{Line: int(end.Row) + 1, Column: int(end.Column) + 1},
		Uses:     uses,
	}
	if exported {
		decl.Exports = names
	}
	t.decls = append(t.decls, decl)
	t.byName[primary] = decl
}

// collectUses counts identifier references under node. Property names,
// labels and destructuring keys are different node types and never count.
func (t *tsTree) collectUses(node *sitter.Node, uses map[string]int) {
	switch node.Type() {
	case "identifier", "type_identifier", "shorthand_property_identifier":
		uses[node.Content(t.src)]++
		return
	case "comment", "string", "regex":
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		t.collectUses(node.NamedChild(i), uses)
	}
}

// patternNames returns the names bound by a declarator's name pattern
func (t *tsTree) patternNames(node *sitter.Node) []string {
	var names []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "identifier", "shorthand_property_identifier_pattern":
			names = append(names, n.Content(t.src))
			return
		case "pair_pattern":
			walk(n.ChildByFieldName("value"))
			return
		case "assignment_pattern", "object_assignment_pattern":
			walk(n.ChildByFieldName("left"))
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
	return names
}

func (t *tsTree) Declarations() []*Declaration {
	return t.decls
}

func (t *tsTree) RootUses() map[string]int {
	return t.rootUses
}

func (t *tsTree) RemoveReExports() int {
	removed := 0
	for _, stmt := range t.statements {
		if stmt.kind == tsReExport && !stmt.removed {
			stmt.removed = true
			removed++
		}
	}
	return removed
}

func (t *tsTree) Remove(name string) {
	for _, site := range t.sites[name] {
		if site.part == nil {
			site.stmt.removed = true
			continue
		}
		site.part.removed = true
		if allPartsRemoved(site.stmt.parts) {
			site.stmt.removed = true
		}
	}
}

// Render prints the kept statements. Statements are separated by a blank
// line where the source had one (or where code was removed) and by a
// single newline otherwise, so rendering rendered output is a no-op.
func (t *tsTree) Render() ([]byte, error) {
	var b strings.Builder
	var prev *tsStatement
	for _, stmt := range t.statements {
		if stmt.removed {
			continue
		}
		if prev != nil {
			gap := t.src[prev.end:stmt.start]
			if strings.Count(string(gap), "\n") >= 2 {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(stmt.leading)
		b.WriteString(stmt.body())
		b.WriteString(stmt.trailing)
		prev = stmt
	}

	out := strings.TrimRight(b.String(), " \t\n")
	if out == "" {
		return []byte{}, nil
	}
	return []byte(out + "\n"), nil
}

// body returns the statement text, rebuilt when some of its parts were removed
func (s *tsStatement) body() string {
	if !anyPartRemoved(s.parts) {
		return s.text
	}

	var kept []string
	if s.kind == tsDeclaration {
		for _, p := range s.parts {
			if !p.removed {
				kept = append(kept, p.text)
			}
		}
		return s.head + strings.Join(kept, ", ") + s.semicolon
	}

	var named []string
	for _, p := range s.parts {
		if p.removed {
			continue
		}
		if p.kind == tsImportNamed {
			named = append(named, p.text)
		} else {
			kept = append(kept, p.text)
		}
	}
	if len(named) > 0 {
		kept = append(kept, "{ "+strings.Join(named, ", ")+" }")
	}

	var b strings.Builder
	b.WriteString("import ")
	if s.typeOnly {
		b.WriteString("type ")
	}
	b.WriteString(strings.Join(kept, ", "))
	b.WriteString(" from ")
	b.WriteString(s.source)
	b.WriteString(s.semicolon)
	return b.String()
}

func anyPartRemoved(parts []*tsPart) bool {
	for _, p := range parts {
		if p.removed {
			return true
		}
	}
	return false
}

func allPartsRemoved(parts []*tsPart) bool {
	for _, p := range parts {
		if !p.removed {
			return false
		}
	}
	return len(parts) > 0
}

func mergeUses(dst, src map[string]int) {
	for name, n := range src {
		dst[name] += n
	}
}

// declarationName returns the name of a function, class, interface, type,
// enum or namespace declaration
func declarationName(decl *sitter.Node, src []byte) string {
	name := decl.ChildByFieldName("name")
	if name == nil || name.Type() == "string" {
		return ""
	}
	text := name.Content(src)
	// namespace A.B.C binds A
	if i := strings.IndexByte(text, '.'); i >= 0 {
		text = text[:i]
	}
	return text
}

func declarationKind(decl *sitter.Node) string {
	kind := declarationKinds[decl.Type()]
	if kind == "variable" && decl.ChildCount() > 0 && decl.Child(0).Type() == "const" {
		return "constant"
	}
	return kind
}

// firstDeclarationChild unwraps `declare ...` to the declaration inside
func firstDeclarationChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if kind, ok := declarationKinds[child.Type()]; ok && kind != "ambient" {
			return child
		}
	}
	return nil
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil && child.Type() == typ {
			return child
		}
	}
	return nil
}

func childrenOfType(n *sitter.Node, typ string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child != nil && child.Type() == typ {
			out = append(out, child)
		}
	}
	return out
}
