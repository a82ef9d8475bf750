package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"
)

// rootVertex stands for everything that is never removed: side-effect
// statements and the target itself
const rootVertex = "\x00root"

// referenceGraph links declarations to the declarations they use
type referenceGraph struct {
	g      graph.Graph[string, string]
	decls  []*Declaration
	byName map[string]*Declaration
	// owner maps every bound name to the primary name of its declaration
	owner  map[string]string
	target string
}

// buildReferenceGraph builds the graph for one parsed tree. target is an
// exported name; it may be empty when nothing is pinned.
func buildReferenceGraph(tree syntaxTree, target string) (*referenceGraph, error) {
	rg := &referenceGraph{
		g:      graph.New(graph.StringHash, graph.Directed(), graph.Weighted()),
		decls:  tree.Declarations(),
		byName: make(map[string]*Declaration),
		owner:  make(map[string]string),
	}

	if err := rg.g.AddVertex(rootVertex); err != nil {
		return nil, fmt.Errorf("adding root vertex: %w", err)
	}
	for _, decl := range rg.decls {
		if err := rg.g.AddVertex(decl.Name); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, fmt.Errorf("adding vertex %s: %w", decl.Name, err)
		}
		rg.byName[decl.Name] = decl
		for _, name := range decl.Names {
			if _, taken := rg.owner[name]; !taken {
				rg.owner[name] = decl.Name
			}
		}
	}

	for _, decl := range rg.decls {
		if err := rg.link(decl.Name, decl.Uses); err != nil {
			return nil, err
		}
	}
	if err := rg.link(rootVertex, tree.RootUses()); err != nil {
		return nil, err
	}

	if target != "" {
		owner, ok := rg.owner[target]
		if !ok {
			return nil, fmt.Errorf("target %s has no declaration", target)
		}
		rg.target = owner
		if err := rg.addEdge(rootVertex, owner); err != nil {
			return nil, err
		}
	}

	return rg, nil
}

// link adds an edge from source to the owner of every name it uses
func (rg *referenceGraph) link(source string, uses map[string]int) error {
	names := make([]string, 0, len(uses))
	for name := range uses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		owner, ok := rg.owner[name]
		if !ok || owner == source {
			continue
		}
		if err := rg.addEdge(source, owner); err != nil {
			return err
		}
	}
	return nil
}

func (rg *referenceGraph) addEdge(source, target string) error {
	err := rg.g.AddEdge(source, target, graph.EdgeWeight(1))
	if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return fmt.Errorf("adding edge %s -> %s: %w", source, target, err)
	}
	return nil
}

// inDegrees returns the reference count of every vertex
func (rg *referenceGraph) inDegrees() (map[string]int, error) {
	preds, err := rg.g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("computing reference counts: %w", err)
	}
	degrees := make(map[string]int, len(preds))
	for vertex, from := range preds {
		degrees[vertex] = len(from)
	}
	return degrees, nil
}

// remove deletes a declaration and the references it made
func (rg *referenceGraph) remove(name string) error {
	adjacency, err := rg.g.AdjacencyMap()
	if err != nil {
		return fmt.Errorf("reading edges of %s: %w", name, err)
	}
	for successor := range adjacency[name] {
		if err := rg.g.RemoveEdge(name, successor); err != nil {
			return fmt.Errorf("removing edge %s -> %s: %w", name, successor, err)
		}
	}
	// a removable vertex has no predecessors left, so it can go entirely
	if err := rg.g.RemoveVertex(name); err != nil && !errors.Is(err, graph.ErrVertexHasEdges) {
		return fmt.Errorf("removing vertex %s: %w", name, err)
	}
	return nil
}

// pruneExports removes, in declaration order, every exported declaration
// other than the target that nothing references. Each removal drops the
// references it made, so an export used only by an earlier removed export
// goes in the same pass.
func (rg *referenceGraph) pruneExports(tree syntaxTree) ([]*Declaration, error) {
	var removed []*Declaration
	for _, decl := range rg.decls {
		if !decl.Exported || decl.Name == rg.target {
			continue
		}
		degrees, err := rg.inDegrees()
		if err != nil {
			return nil, err
		}
		if degrees[decl.Name] > 0 {
			continue
		}
		if err := rg.remove(decl.Name); err != nil {
			return nil, err
		}
		tree.Remove(decl.Name)
		removed = append(removed, decl)
	}
	return removed, nil
}

// sweep returns the declarations one dead-code pass removes. In refcount
// mode these are the unreferenced ones; in closure mode everything the root
// cannot reach.
func (rg *referenceGraph) sweep(mode Mode) ([]*Declaration, error) {
	var dead []*Declaration

	if mode == ModeClosure {
		reachable, err := rg.reachable()
		if err != nil {
			return nil, err
		}
		for _, decl := range rg.decls {
			if !reachable[decl.Name] {
				dead = append(dead, decl)
			}
		}
		return dead, nil
	}

	degrees, err := rg.inDegrees()
	if err != nil {
		return nil, err
	}
	for _, decl := range rg.decls {
		if decl.Name == rg.target {
			continue
		}
		if degrees[decl.Name] == 0 {
			dead = append(dead, decl)
		}
	}
	return dead, nil
}

// reachable returns every vertex reachable from the root
func (rg *referenceGraph) reachable() (map[string]bool, error) {
	seen := make(map[string]bool)
	err := graph.BFS(rg.g, rootVertex, func(vertex string) bool {
		seen[vertex] = true
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("walking references: %w", err)
	}
	return seen, nil
}

// retention explains why each declaration is kept: the shortest reference
// chain from the root (target first when the target starts it)
func (rg *referenceGraph) retention() []RetainedDeclaration {
	retained := make([]RetainedDeclaration, 0, len(rg.decls))
	for _, decl := range rg.decls {
		entry := RetainedDeclaration{Name: decl.Name, Kind: decl.Kind}
		path, err := graph.ShortestPath(rg.g, rootVertex, decl.Name)
		if err == nil && len(path) > 1 {
			entry.Via = path[1:]
		}
		retained = append(retained, entry)
	}
	return retained
}
