package main

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractGo(t *testing.T, src, target string, mode Mode) *ExtractionResult {
	t.Helper()
	result, err := NewExtractor(nil).Extract(ExtractionRequest{
		Filename: "shapes.go",
		Source:   []byte(src),
		Target:   target,
		Mode:     mode,
	})
	require.NoError(t, err)

	// every extraction must still be valid Go
	_, err = parser.ParseFile(token.NewFileSet(), "out.go", result.Code, parser.ParseComments)
	require.NoError(t, err, result.Code)
	return result
}

const shapesSource = `package shapes

import (
	"fmt"
	"strings"
)

// Box draws a box.
func Box() string {
	return helper()
}

func helper() string {
	return strings.Repeat("-", 3)
}

// Unused is not needed.
func Unused() {
	fmt.Println("unused")
}
`

func TestGo_PrunesExportsAndImports(t *testing.T) {
	result := extractGo(t, shapesSource, "Box", "")

	assert.Equal(t, LanguageGo, result.Language)
	assert.Equal(t, []string{"Box", "Unused"}, result.AvailableTargets)
	assert.Contains(t, result.Code, "func helper() string")
	assert.Contains(t, result.Code, `"strings"`)
	assert.NotContains(t, result.Code, "Unused")
	assert.NotContains(t, result.Code, "is not needed")
	assert.NotContains(t, result.Code, `"fmt"`)
	assert.Equal(t, []string{"Unused", "fmt"}, removedNames(result))
}

func TestGo_OutputIsGofmtStable(t *testing.T) {
	result := extractGo(t, shapesSource, "Box", "")

	formatted, err := Format("out.go", "", []byte(result.Code))
	require.NoError(t, err)
	assert.Equal(t, result.Code, string(formatted))
}

func TestGo_MethodsFollowTheirType(t *testing.T) {
	src := `package shapes

type Box struct{}

func (b *Box) Draw() string {
	return render(b)
}

func render(b *Box) string {
	return ""
}

type Unused struct{}

func (u Unused) Method() {}
`
	result := extractGo(t, src, "Box", "")

	assert.Contains(t, result.Code, "func (b *Box) Draw() string")
	assert.Contains(t, result.Code, "func render(b *Box) string")
	assert.NotContains(t, result.Code, "Unused")
	assert.Equal(t, []string{"Box", "Unused"}, result.AvailableTargets)
}

func TestGo_MethodsDeclaredBeforeTheirType(t *testing.T) {
	tree, err := parseGo("m.go", []byte(`package shapes

func (b Box) Area() int { return 0 }

type Box struct{}
`))
	require.NoError(t, err)

	decls := tree.Declarations()
	require.Len(t, decls, 1)
	assert.Equal(t, "type", decls[0].Kind)
	assert.Equal(t, []string{"Box"}, decls[0].Exports)
}

func TestGo_InitAndBlankDeclarationsAreRoots(t *testing.T) {
	src := `package shapes

import _ "embed"

var _ = registered

func init() {
	setup()
}

func setup() {}

var registered = 1

func Box() {}

func Other() {}
`
	result := extractGo(t, src, "Box", "")

	assert.Contains(t, result.Code, "func setup()")
	assert.Contains(t, result.Code, "var registered = 1")
	assert.Contains(t, result.Code, `_ "embed"`)
	assert.NotContains(t, result.Code, "Other")
}

func TestGo_ConstGroupWithIotaIsOneDeclaration(t *testing.T) {
	src := `package shapes

type Size int

const (
	Small Size = iota
	Large
)

func Box() Size {
	return Small
}
`
	result := extractGo(t, src, "Box", "")

	assert.Contains(t, result.Code, "Large")
	assert.Equal(t, []string{"Size", "Small", "Large", "Box"}, result.AvailableTargets)
}

func TestGo_ValueSpecsAreRemovedIndividually(t *testing.T) {
	src := `package shapes

var (
	width  = 1
	height = 2
)

func Box() int {
	return width
}
`
	result := extractGo(t, src, "Box", "")

	assert.Contains(t, result.Code, "width")
	assert.NotContains(t, result.Code, "height")
}

func TestGo_SelectorsAndFieldsAreNotReferences(t *testing.T) {
	tree, err := parseGo("s.go", []byte(`package shapes

type point struct{ helper int }

func helper() {}

func Box(p point) int {
	return p.helper
}
`))
	require.NoError(t, err)

	byName := declarationsByName(tree.Declarations())
	assert.Zero(t, byName["Box"].Uses["helper"])
	assert.Zero(t, byName["point"].Uses["helper"])
	assert.Equal(t, 1, byName["Box"].Uses["point"])
}

func TestGo_ClosureRemovesDeadCycles(t *testing.T) {
	src := `package shapes

func ping() { pong() }

func pong() { ping() }

func Box() {}
`
	refcount := extractGo(t, src, "Box", ModeRefCount)
	assert.Contains(t, refcount.Code, "func ping()")

	closure := extractGo(t, src, "Box", ModeClosure)
	assert.NotContains(t, closure.Code, "ping")
	assert.NotContains(t, closure.Code, "pong")
	assert.Contains(t, closure.Code, "func Box()")
}

func TestGo_NamedImports(t *testing.T) {
	src := `package shapes

import (
	str "strings"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v3"
)

func Box() string {
	return str.ToUpper(viper.GetString("x"))
}

func Other() {
	_ = yaml.Marshal
}
`
	result := extractGo(t, src, "Box", "")

	assert.Contains(t, result.Code, `str "strings"`)
	assert.Contains(t, result.Code, `"github.com/spf13/viper"`)
	assert.NotContains(t, result.Code, "yaml")
}

func TestGo_UnnamedImportWithUnguessablePackageName(t *testing.T) {
	src := `package shapes

import (
	"strings"

	"github.com/smacker/go-tree-sitter"
)

func Parse() *sitter.Parser {
	return sitter.NewParser()
}

func Other() string {
	return strings.ToUpper("x")
}
`
	result := extractGo(t, src, "Parse", "")

	assert.Contains(t, result.Code, `"github.com/smacker/go-tree-sitter"`)
	assert.Contains(t, result.Code, "return sitter.NewParser()")
	assert.NotContains(t, result.Code, `"strings"`)
	assert.Equal(t, []string{"Other", "strings"}, removedNames(result))
}

func TestGo_UnnamedImportGoesWithItsLastUser(t *testing.T) {
	src := `package shapes

import "github.com/smacker/go-tree-sitter"

func Parse() {}

func Other() *sitter.Parser {
	return sitter.NewParser()
}
`
	for _, mode := range []Mode{ModeRefCount, ModeClosure} {
		result := extractGo(t, src, "Parse", mode)
		assert.NotContains(t, result.Code, "go-tree-sitter", mode)
		assert.Equal(t, []string{"Other", "tree_sitter"}, removedNames(result), mode)
	}
}

func TestGo_ParseError(t *testing.T) {
	_, err := parseGo("bad.go", []byte("package shapes\n\nfunc Box( {\n"))
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "bad.go", parseErr.Filename)
	assert.Equal(t, 3, parseErr.Line)
}

func TestImportName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"strings", "strings"},
		{"net/http", "http"},
		{"github.com/hashicorp/golang-lru/v2", "golang_lru"},
		{"gopkg.in/yaml.v3", "yaml"},
		{"github.com/mattn/go-sqlite3", "sqlite3"},
		{"github.com/smacker/go-tree-sitter", "tree_sitter"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, importName(&ast.ImportSpec{}, tt.path))
		})
	}
}
