package main

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"
)

// goTree is a parsed Go file with its top-level declarations indexed by name
type goTree struct {
	fset     *token.FileSet
	file     *ast.File
	decls    []*Declaration
	byName   map[string]*Declaration
	sites    map[string][]goSite
	rootUses map[string]int
	removed  map[string]bool

	// guessed names of imports without an explicit name
	unnamed []string
}

// goSite is one syntactic location binding a declaration
type goSite struct {
	decl ast.Decl
	spec ast.Spec // nil when the whole declaration is the site
}

// parseGo parses Go source into a fresh tree
func parseGo(filename string, src []byte) (*goTree, error) {
	if filename == "" {
		filename = "source.go"
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, goParseError(filename, err)
	}

	t := &goTree{
		fset:     fset,
		file:     file,
		byName:   make(map[string]*Declaration),
		sites:    make(map[string][]goSite),
		rootUses: make(map[string]int),
		removed:  make(map[string]bool),
	}
	t.findDeclarations()
	return t, nil
}

func goParseError(filename string, err error) error {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return &ParseError{
			Filename: filename,
			Line:     first.Pos.Line,
			Column:   first.Pos.Column,
			Msg:      first.Msg,
		}
	}
	return &ParseError{Filename: filename, Msg: err.Error()}
}

func (t *goTree) Declarations() []*Declaration {
	return t.decls
}

func (t *goTree) RootUses() map[string]int {
	return t.rootUses
}

// RemoveReExports is a no-op: Go cannot forward another package's bindings
// through its own export surface.
func (t *goTree) RemoveReExports() int {
	return 0
}

func (t *goTree) Remove(name string) {
	if _, ok := t.byName[name]; ok {
		t.removed[name] = true
	}
}

// Render prunes removed declarations from the file and prints it with go/format
func (t *goTree) Render() ([]byte, error) {
	dropped := make(map[ast.Node]bool)
	var imports []*ast.ImportSpec
	for _, decl := range t.decls {
		if !t.removed[decl.Name] {
			continue
		}
		for _, site := range t.sites[decl.Name] {
			switch {
			case site.spec == nil:
				dropped[site.decl] = true
			case decl.Kind == "import":
				imports = append(imports, site.spec.(*ast.ImportSpec))
			default:
				dropped[site.spec] = true
			}
		}
	}

	var removedNodes []ast.Node
	var decls []ast.Decl
	for _, decl := range t.file.Decls {
		if dropped[decl] {
			removedNodes = append(removedNodes, decl)
			continue
		}
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok == token.IMPORT {
			decls = append(decls, decl)
			continue
		}

		var specs []ast.Spec
		for _, spec := range gen.Specs {
			if dropped[spec] {
				removedNodes = append(removedNodes, spec)
				continue
			}
			specs = append(specs, spec)
		}
		if len(specs) == 0 {
			removedNodes = append(removedNodes, gen)
			continue
		}
		gen.Specs = specs
		decls = append(decls, gen)
	}
	t.file.Decls = decls
	t.file.Comments = keepComments(t.file.Comments, removedNodes)

	// imports go last so usage is checked against the pruned file
	for _, spec := range imports {
		importPath, err := strconv.Unquote(spec.Path.Value)
		if err != nil || astutil.UsesImport(t.file, importPath) {
			continue
		}
		name := ""
		if spec.Name != nil {
			name = spec.Name.Name
		}
		astutil.DeleteNamedImport(t.fset, t.file, name, importPath)
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, t.fset, t.file); err != nil {
		return nil, fmt.Errorf("formatting go source: %w", err)
	}
	return buf.Bytes(), nil
}

// keepComments drops comment groups that belong to removed nodes
func keepComments(groups []*ast.CommentGroup, removed []ast.Node) []*ast.CommentGroup {
	if len(removed) == 0 {
		return groups
	}

	type span struct{ start, end token.Pos }
	spans := make([]span, 0, len(removed))
	for _, node := range removed {
		start, end := nodeSpan(node)
		spans = append(spans, span{start, end})
	}

	var kept []*ast.CommentGroup
	for _, group := range groups {
		inside := false
		for _, s := range spans {
			if group.Pos() >= s.start && group.End() <= s.end {
				inside = true
				break
			}
		}
		if !inside {
			kept = append(kept, group)
		}
	}
	return kept
}

// nodeSpan returns the extent of a node including its doc and line comments
func nodeSpan(n ast.Node) (token.Pos, token.Pos) {
	start, end := n.Pos(), n.End()
	switch node := n.(type) {
	case *ast.FuncDecl:
		if node.Doc != nil {
			start = node.Doc.Pos()
		}
	case *ast.GenDecl:
		if node.Doc != nil {
			start = node.Doc.Pos()
		}
	case *ast.TypeSpec:
		if node.Doc != nil {
			start = node.Doc.Pos()
		}
		if node.Comment != nil {
			end = node.Comment.End()
		}
	case *ast.ValueSpec:
		if node.Doc != nil {
			start = node.Doc.Pos()
		}
		if node.Comment != nil {
			end = node.Comment.End()
		}
	}
	return start, end
}
