package main

import (
	"go/ast"
	"go/token"
)

// collectUses counts every identifier use under node. Names that declare
// something (fields, parameters, := definitions, labels) and selector
// members are skipped; shadowing is not modeled.
func collectUses(node ast.Node, uses map[string]int) {
	c := &useCollector{uses: uses}
	c.walk(node)
}

type useCollector struct {
	uses map[string]int
}

func (c *useCollector) walk(node ast.Node) {
	ast.Inspect(node, c.visit)
}

func (c *useCollector) walkExprs(exprs []ast.Expr) {
	for _, expr := range exprs {
		if expr != nil {
			c.walk(expr)
		}
	}
}

func (c *useCollector) walkFields(fields *ast.FieldList) {
	if fields != nil {
		c.walk(fields)
	}
}

// visit processes one node; returning false means the node's children
// were handled here
func (c *useCollector) visit(n ast.Node) bool {
	switch node := n.(type) {
	case *ast.Ident:
		c.uses[node.Name]++
		return false

	case *ast.SelectorExpr:
		// pkg.Symbol or value.field: only the left side is a name use
		c.walk(node.X)
		return false

	case *ast.Field:
		if node.Type != nil {
			c.walk(node.Type)
		}
		return false

	case *ast.FuncDecl:
		c.walkFields(node.Recv)
		c.walk(node.Type)
		if node.Body != nil {
			c.walk(node.Body)
		}
		return false

	case *ast.TypeSpec:
		c.walkFields(node.TypeParams)
		c.walk(node.Type)
		return false

	case *ast.ValueSpec:
		if node.Type != nil {
			c.walk(node.Type)
		}
		c.walkExprs(node.Values)
		return false

	case *ast.ImportSpec:
		return false

	case *ast.AssignStmt:
		if node.Tok == token.DEFINE {
			c.walkExprs(node.Rhs)
			return false
		}

	case *ast.RangeStmt:
		if node.Tok == token.DEFINE {
			c.walk(node.X)
			c.walk(node.Body)
			return false
		}

	case *ast.LabeledStmt:
		c.walk(node.Stmt)
		return false

	case *ast.BranchStmt:
		return false
	}
	return true
}
