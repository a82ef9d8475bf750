package main

import (
	"fmt"
	"strings"
)

// ParseError reports source text that could not be parsed
type ParseError struct {
	Filename string
	Line     int
	Column   int
	Msg      string
}

func (e *ParseError) Error() string {
	name := e.Filename
	if name == "" {
		name = "<source>"
	}
	return fmt.Sprintf("parse error at %s:%d:%d: %s", name, e.Line, e.Column, e.Msg)
}

// TargetNotFoundError reports a target that is not among the exported declarations
type TargetNotFoundError struct {
	Target    string
	Available []string
}

func (e *TargetNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("target %q not found: source has no exported declarations", e.Target)
	}
	return fmt.Sprintf("target %q not found (available: %s)", e.Target, strings.Join(e.Available, ", "))
}

// NonConvergenceError reports a pruning loop that exceeded its iteration cap
type NonConvergenceError struct {
	Iterations int
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("pruning did not reach a fixed point after %d iterations", e.Iterations)
}

// LanguageError reports a language name or file extension with no backend
type LanguageError struct {
	Name      string
	Filename  string
	Extension string
}

func (e *LanguageError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("cannot detect language of %s: unsupported extension %q", e.Filename, e.Extension)
	}
	return fmt.Sprintf("unknown language %q (want typescript, tsx or go)", e.Name)
}

// ModeError reports an unknown pruning mode
type ModeError struct {
	Name string
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("unknown mode %q (want refcount or closure)", e.Name)
}
