package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// NewExtractor creates a new extractor instance
func NewExtractor(config *Config) *Extractor {
	if config == nil {
		config = &Config{}
	}
	return &Extractor{config: config, log: os.Stderr}
}

// Extract reduces a source to the code reachable from one export. Every
// call parses its own trees, so concurrent calls share nothing.
func (e *Extractor) Extract(req ExtractionRequest) (*ExtractionResult, error) {
	lang := req.Language
	if lang == "" {
		lang = e.config.Language
	}
	lang, err := resolveLanguage(req.Filename, lang)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = e.config.Mode
	}
	if mode, err = ParseMode(string(mode)); err != nil {
		return nil, err
	}

	src := normalizeSource(req.Source)
	tree, err := parseSource(req.Filename, lang, src)
	if err != nil {
		return nil, err
	}

	before := tree.Declarations()
	e.logf("🔍 Found %d top-level declarations\n", len(before))

	reexports := tree.RemoveReExports()
	if reexports > 0 {
		e.logf("🧹 Removed %d re-export statement(s)\n", reexports)
	}

	available := exportSurface(before)
	if !contains(available, req.Target) {
		return nil, &TargetNotFoundError{Target: req.Target, Available: available}
	}
	e.logf("🎯 Extracting %s (%d exports, %s mode)\n", req.Target, len(available), mode)

	rg, err := buildReferenceGraph(tree, req.Target)
	if err != nil {
		return nil, fmt.Errorf("building reference graph: %w", err)
	}
	pruned, err := rg.pruneExports(tree)
	if err != nil {
		return nil, fmt.Errorf("pruning exports: %w", err)
	}
	order := declarationNames(pruned)
	if len(pruned) > 0 {
		e.logf("✂️  Pruned %d unreferenced export(s)\n", len(pruned))
	}

	text, err := tree.Render()
	if err != nil {
		return nil, fmt.Errorf("rendering: %w", err)
	}

	maxIterations := e.config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = len(before) + 2
	}

	iterations := 0
	for {
		iterations++
		if iterations > maxIterations {
			return nil, &NonConvergenceError{Iterations: maxIterations}
		}

		tree, err = parseSource(req.Filename, lang, text)
		if err != nil {
			return nil, fmt.Errorf("re-parsing pruned source: %w", err)
		}
		rg, err = buildReferenceGraph(tree, req.Target)
		if err != nil {
			return nil, fmt.Errorf("building reference graph: %w", err)
		}

		dead, err := rg.sweep(mode)
		if err != nil {
			return nil, fmt.Errorf("sweeping dead code: %w", err)
		}
		if len(dead) == 0 {
			break
		}
		for _, decl := range dead {
			tree.Remove(decl.Name)
		}

		next, err := tree.Render()
		if err != nil {
			return nil, fmt.Errorf("rendering: %w", err)
		}
		if bytes.Equal(next, text) {
			break
		}
		e.logf("🔁 Iteration %d removed %d declaration(s)\n", iterations, len(dead))
		order = append(order, declarationNames(dead)...)
		text = next
	}

	// the last parse is of the final text; Remove only flags declarations,
	// so a render that changed nothing leaves this list matching text
	after := tree.Declarations()
	result := &ExtractionResult{
		Filename:           req.Filename,
		Language:           lang,
		Mode:               mode,
		Target:             req.Target,
		Code:               string(text),
		AvailableTargets:   available,
		Removed:            removedDeclarations(before, after, order),
		Retained:           rg.retention(),
		ReExportsRemoved:   reexports,
		Iterations:         iterations,
		DeclarationsBefore: len(before),
		DeclarationsAfter:  len(after),
	}

	e.logf("📊 Kept %d/%d declarations after %d iteration(s)\n",
		result.DeclarationsAfter, result.DeclarationsBefore, result.Iterations)
	return result, nil
}

// ListTargets returns the export surface of a source without pruning it
func (e *Extractor) ListTargets(filename string, lang Language, src []byte) ([]string, error) {
	if lang == "" {
		lang = e.config.Language
	}
	lang, err := resolveLanguage(filename, lang)
	if err != nil {
		return nil, err
	}
	tree, err := parseSource(filename, lang, normalizeSource(src))
	if err != nil {
		return nil, err
	}
	return exportSurface(tree.Declarations()), nil
}

// DefaultTarget picks the configured target, falling back to the first export
func (e *Extractor) DefaultTarget(available []string) string {
	if e.config.Target != "" {
		return e.config.Target
	}
	if len(available) > 0 {
		return available[0]
	}
	return ""
}

func (e *Extractor) logf(format string, args ...any) {
	if e.config.Verbose && e.log != nil {
		fmt.Fprintf(e.log, format, args...)
	}
}

// exportSurface lists exported names in declaration order without duplicates
func exportSurface(decls []*Declaration) []string {
	seen := make(map[string]bool)
	names := []string{}
	for _, decl := range decls {
		for _, name := range decl.Exports {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// removedDeclarations reports original declarations missing from the final
// tree, in the order they were deleted
func removedDeclarations(before, after []*Declaration, order []string) []*Declaration {
	kept := make(map[string]bool, len(after))
	for _, decl := range after {
		kept[decl.Name] = true
	}
	original := make(map[string]*Declaration, len(before))
	for _, decl := range before {
		original[decl.Name] = decl
	}

	removed := []*Declaration{}
	listed := make(map[string]bool)
	add := func(name string) {
		decl, ok := original[name]
		if !ok || kept[name] || listed[name] {
			return
		}
		listed[name] = true
		removed = append(removed, decl)
	}
	for _, name := range order {
		add(name)
	}
	for _, decl := range before {
		add(decl.Name)
	}
	return removed
}

func declarationNames(decls []*Declaration) []string {
	names := make([]string, 0, len(decls))
	for _, decl := range decls {
		names = append(names, decl.Name)
	}
	return names
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// SetLogOutput redirects verbose progress lines
func (e *Extractor) SetLogOutput(w io.Writer) {
	e.log = w
}
