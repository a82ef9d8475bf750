package main

import "io"

// Config holds the configuration for an extraction run
type Config struct {
	SourcePath    string
	Target        string
	Language      Language
	Mode          Mode
	OutputJSON    bool
	Verbose       bool
	ListOnly      bool
	MaxIterations int
}

// Language selects the parser and renderer used for a source text
type Language string

const (
	LanguageTypeScript Language = "typescript"
	LanguageTSX        Language = "tsx"
	LanguageGo         Language = "go"
)

// Mode selects how unreferenced declarations are detected
type Mode string

const (
	// ModeRefCount deletes declarations nothing else references, repeated
	// until the text stops changing. Mutually referencing dead code survives.
	ModeRefCount Mode = "refcount"
	// ModeClosure keeps only what is reachable from the target and from
	// side-effect statements.
	ModeClosure Mode = "closure"
)

// Declaration represents a named top-level construct (function, class,
// variable, type, import binding, ...)
type Declaration struct {
	Name     string   `json:"name"`
	Names    []string `json:"names,omitempty"`
	Kind     string   `json:"kind"`
	Exported bool     `json:"exported"`
	Start    Position `json:"start"`
	End      Position `json:"end"`

	// Exports lists the names this declaration adds to the export surface
	Exports []string `json:"-"`

	// Uses counts every name referenced from this declaration's own sites
	Uses map[string]int `json:"-"`
}

// Position represents a line:column position in a file
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ExtractionRequest is the input of a single extraction
type ExtractionRequest struct {
	Filename string
	Source   []byte
	Target   string
	Language Language
	Mode     Mode
}

// RetainedDeclaration explains why a declaration survived pruning
type RetainedDeclaration struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	// Via is the reference chain from the target (or a side-effect
	// statement) down to this declaration. Empty when only a dead cycle
	// keeps it alive.
	Via []string `json:"via,omitempty"`
}

// ExtractionResult contains the reduced source and the stable export surface
type ExtractionResult struct {
	Filename           string                `json:"file,omitempty"`
	Language           Language              `json:"language"`
	Mode               Mode                  `json:"mode"`
	Target             string                `json:"target"`
	Code               string                `json:"code"`
	AvailableTargets   []string              `json:"available_targets"`
	Removed            []*Declaration        `json:"removed"`
	Retained           []RetainedDeclaration `json:"retained"`
	ReExportsRemoved   int                   `json:"reexports_removed"`
	Iterations         int                   `json:"iterations"`
	DeclarationsBefore int                   `json:"declarations_before"`
	DeclarationsAfter  int                   `json:"declarations_after"`
}

// syntaxTree is one parsed, mutable copy of a source file. Every extraction
// owns its trees; nothing is shared between calls.
type syntaxTree interface {
	// Declarations returns the top-level declarations in source order.
	// Sites binding the same name are merged into one declaration.
	Declarations() []*Declaration
	// RootUses counts references made by statements that bind nothing
	// and are never removed (side effects).
	RootUses() map[string]int
	// RemoveReExports deletes statements that only forward bindings and
	// reports how many were removed.
	RemoveReExports() int
	// Remove deletes every site of the declaration whose primary name is given.
	Remove(name string)
	// Render prints the tree back to source text.
	Render() ([]byte, error)
}

// Extractor performs single-export extraction
type Extractor struct {
	config *Config
	log    io.Writer
}
