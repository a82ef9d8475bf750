package main

import (
	"go/ast"
	"go/token"
	"path"
	"strconv"
	"strings"
)

// findDeclarations discovers all top-level declarations in the file
func (t *goTree) findDeclarations() {
	for _, decl := range t.file.Decls {
		switch node := decl.(type) {
		case *ast.FuncDecl:
			t.processFunctionDecl(node)
		case *ast.GenDecl:
			t.processGenDecl(node)
		}
	}
	t.linkUnconfirmedImports()
}

// processFunctionDecl processes function and method declarations.
// Methods join the declaration of their receiver type.
func (t *goTree) processFunctionDecl(node *ast.FuncDecl) {
	if node.Name == nil || node.Name.Name == "_" {
		t.collectRootUses(node)
		return
	}

	if node.Recv == nil {
		name := node.Name.Name
		// init runs on package load; it is a root, never a candidate
		if name == "init" {
			t.collectRootUses(node)
			return
		}
		t.addSite(name, []string{name}, "function", exportedNames(name), goSite{decl: node}, node)
		return
	}

	recv := receiverTypeName(node.Recv)
	if recv == "" {
		t.collectRootUses(node)
		return
	}
	t.addSite(recv, []string{recv}, "method", nil, goSite{decl: node}, node)
}

// processGenDecl processes general declarations (imports, types, variables, constants)
func (t *goTree) processGenDecl(node *ast.GenDecl) {
	switch node.Tok {
	case token.IMPORT:
		for _, spec := range node.Specs {
			if s, ok := spec.(*ast.ImportSpec); ok {
				t.processImportSpec(node, s)
			}
		}
	case token.TYPE:
		for _, spec := range node.Specs {
			if s, ok := spec.(*ast.TypeSpec); ok {
				t.processTypeSpec(node, s)
			}
		}
	case token.CONST, token.VAR:
		// Specs of an implicitly repeated const group depend on their
		// position in the group, so the whole group is one declaration.
		if node.Tok == token.CONST && hasImplicitSpecs(node) {
			t.processValueGroup(node)
			return
		}
		for _, spec := range node.Specs {
			if s, ok := spec.(*ast.ValueSpec); ok {
				t.processValueSpec(node, s)
			}
		}
	}
}

// processImportSpec records one import binding
func (t *goTree) processImportSpec(gen *ast.GenDecl, spec *ast.ImportSpec) {
	importPath, err := strconv.Unquote(spec.Path.Value)
	if err != nil {
		return
	}

	name := importName(spec, importPath)
	// blank and dot imports are kept for their side effects
	if name == "_" || name == "." {
		return
	}

	if spec.Name == nil {
		t.unnamed = append(t.unnamed, name)
	}
	t.addSite(name, []string{name}, "import", nil, goSite{decl: gen, spec: spec}, spec)
}

// linkUnconfirmedImports handles unnamed imports whose package name is not
// the one guessed from the path, e.g. go-tree-sitter imported as sitter.
// While the file has selector qualifiers that resolve to nothing, every
// declaration using one of them also uses each unnamed import whose guessed
// name never appears.
func (t *goTree) linkUnconfirmedImports() {
	if len(t.unnamed) == 0 {
		return
	}

	used := make(map[string]bool)
	for name := range t.rootUses {
		used[name] = true
	}
	for _, decl := range t.decls {
		for name := range decl.Uses {
			used[name] = true
		}
	}
	var unconfirmed []string
	for _, name := range t.unnamed {
		if !used[name] {
			unconfirmed = append(unconfirmed, name)
		}
	}
	if len(unconfirmed) == 0 {
		return
	}

	qualifiers := t.unresolvedQualifiers()
	if len(qualifiers) == 0 {
		return
	}

	link := func(uses map[string]int) {
		for q := range qualifiers {
			if uses[q] == 0 {
				continue
			}
			for _, name := range unconfirmed {
				uses[name]++
			}
			return
		}
	}
	link(t.rootUses)
	for _, decl := range t.decls {
		link(decl.Uses)
	}
}

// unresolvedQualifiers returns the X names of selector expressions that
// are neither a local, a top-level declaration nor a named import
func (t *goTree) unresolvedQualifiers() map[string]bool {
	unresolved := make(map[*ast.Ident]bool, len(t.file.Unresolved))
	for _, id := range t.file.Unresolved {
		unresolved[id] = true
	}
	bound := make(map[string]bool)
	for _, decl := range t.decls {
		for _, name := range decl.Names {
			bound[name] = true
		}
	}

	qualifiers := make(map[string]bool)
	ast.Inspect(t.file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if id, ok := sel.X.(*ast.Ident); ok && unresolved[id] && !bound[id.Name] {
			qualifiers[id.Name] = true
		}
		return true
	})
	return qualifiers
}

// processTypeSpec processes type specifications
func (t *goTree) processTypeSpec(gen *ast.GenDecl, spec *ast.TypeSpec) {
	if spec.Name == nil || spec.Name.Name == "_" {
		t.collectRootUses(spec)
		return
	}

	name := spec.Name.Name
	t.addSite(name, []string{name}, "type", exportedNames(name), goSite{decl: gen, spec: spec}, spec)
}

// processValueSpec processes variable and constant specifications
func (t *goTree) processValueSpec(gen *ast.GenDecl, spec *ast.ValueSpec) {
	names := boundNames(spec)
	if len(names) == 0 {
		t.collectRootUses(spec)
		return
	}

	t.addSite(names[0], names, valueKind(gen.Tok), exportedNames(names...), goSite{decl: gen, spec: spec}, spec)
}

// processValueGroup processes a const group with implicitly repeated specs
func (t *goTree) processValueGroup(gen *ast.GenDecl) {
	var names []string
	for _, spec := range gen.Specs {
		if s, ok := spec.(*ast.ValueSpec); ok {
			names = append(names, boundNames(s)...)
		}
	}
	if len(names) == 0 {
		t.collectRootUses(gen)
		return
	}

	t.addSite(names[0], names, valueKind(gen.Tok), exportedNames(names...), goSite{decl: gen}, gen)
}

// addSite registers a declaration site, merging it with an existing
// declaration of the same primary name
func (t *goTree) addSite(primary string, names []string, kind string, exports []string, site goSite, node ast.Node) {
	uses := make(map[string]int)
	collectUses(node, uses)

	startPos := t.fset.Position(node.Pos())
	endPos := t.fset.Position(node.End())

	t.sites[primary] = append(t.sites[primary], site)

	if existing, ok := t.byName[primary]; ok {
		for name, n := range uses {
			existing.Uses[name] += n
		}
		// a type declared after its methods takes over the declaration
		if existing.Kind == "method" && kind != "method" {
			existing.Kind = kind
			existing.Exports = exports
			existing.Exported = len(exports) > 0
			existing.Start = Position{Line: startPos.Line, Column: startPos.Column}
			existing.End = Position{Line: endPos.Line, Column: endPos.Column}
		}
		return
	}

	decl := &Declaration{
		Name:     primary,
		Names:    names,
		Kind:     kind,
		Exported: len(exports) > 0,
		Exports:  exports,
		Start: Position{
			Line:   startPos.Line,
			Column: startPos.Column,
		},
		End: Position{
			Line:   endPos.Line,
			Column: endPos.Column,
		},
		Uses: uses,
	}
	t.decls = append(t.decls, decl)
	t.byName[primary] = decl
}

// collectRootUses records references made by code that is never removed
func (t *goTree) collectRootUses(node ast.Node) {
	collectUses(node, t.rootUses)
}

// receiverTypeName returns the base type name of a method receiver
func receiverTypeName(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	expr := recv.List[0].Type
	for {
		switch e := expr.(type) {
		case *ast.StarExpr:
			expr = e.X
		case *ast.ParenExpr:
			expr = e.X
		case *ast.IndexExpr:
			expr = e.X
		case *ast.IndexListExpr:
			expr = e.X
		case *ast.Ident:
			return e.Name
		default:
			return ""
		}
	}
}

// hasImplicitSpecs reports whether a const group repeats a previous spec's expression
func hasImplicitSpecs(gen *ast.GenDecl) bool {
	if !gen.Lparen.IsValid() {
		return false
	}
	for _, spec := range gen.Specs {
		if s, ok := spec.(*ast.ValueSpec); ok && len(s.Values) == 0 {
			return true
		}
	}
	return false
}

// boundNames returns the non-blank names of a value spec
func boundNames(spec *ast.ValueSpec) []string {
	var names []string
	for _, name := range spec.Names {
		if name != nil && name.Name != "_" {
			names = append(names, name.Name)
		}
	}
	return names
}

func valueKind(tok token.Token) string {
	if tok == token.CONST {
		return "constant"
	}
	return "variable"
}

func exportedNames(names ...string) []string {
	var exported []string
	for _, name := range names {
		if ast.IsExported(name) {
			exported = append(exported, name)
		}
	}
	return exported
}

// importName returns the name an import is referred to by in the file.
// Without an explicit name this is a guess from the path, the same guess
// goimports makes: last element, minus a major version suffix, a "go-"
// prefix and a ".vN" gopkg suffix.
func importName(spec *ast.ImportSpec, importPath string) string {
	if spec.Name != nil {
		return spec.Name.Name
	}

	base := path.Base(importPath)
	if isMajorVersion(base) {
		base = path.Base(path.Dir(importPath))
	}
	base = strings.TrimPrefix(base, "go-")
	if i := strings.Index(base, ".v"); i > 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, "-go")
	return strings.ReplaceAll(base, "-", "_")
}

// isMajorVersion reports whether a path element looks like "v2", "v3", ...
func isMajorVersion(elem string) bool {
	if len(elem) < 2 || elem[0] != 'v' {
		return false
	}
	n, err := strconv.Atoi(elem[1:])
	return err == nil && n >= 2
}
