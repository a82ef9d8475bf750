package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// PrintResults outputs the extraction in human-readable format
func PrintResults(w io.Writer, result *ExtractionResult) {
	fmt.Fprintf(w, "🎯 %s", result.Target)
	if result.Filename != "" {
		fmt.Fprintf(w, " from %s", result.Filename)
	}
	fmt.Fprintf(w, " (%s, %s mode)\n", result.Language, result.Mode)
	fmt.Fprintf(w, "📦 Available exports: %s\n\n", strings.Join(result.AvailableTargets, ", "))

	fmt.Fprintln(w, "=== Extracted Code ===")
	fmt.Fprint(w, result.Code)
	if !strings.HasSuffix(result.Code, "\n") {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	if len(result.Removed) > 0 {
		fmt.Fprintf(w, "🗑️  Removed %d declaration(s):\n", len(result.Removed))
		for _, decl := range result.Removed {
			exportStatus := "private"
			if decl.Exported {
				exportStatus = "exported"
			}
			fmt.Fprintf(w, "  📍 %s %s (%s) - %s\n",
				decl.Kind, decl.Name, exportStatus, formatPosition(result.Filename, decl.Start))
		}
		fmt.Fprintln(w)
	}

	printSummary(w, result)
}

// printSummary prints extraction statistics
func printSummary(w io.Writer, result *ExtractionResult) {
	fmt.Fprintf(w, "📊 Extraction Summary:\n")
	fmt.Fprintf(w, "  • Declarations before: %d\n", result.DeclarationsBefore)
	fmt.Fprintf(w, "  • Declarations after: %d\n", result.DeclarationsAfter)
	fmt.Fprintf(w, "  • Re-exports removed: %d\n", result.ReExportsRemoved)
	fmt.Fprintf(w, "  • Iterations: %d\n", result.Iterations)

	if result.DeclarationsBefore > 0 {
		removedPercentage := float64(len(result.Removed)) / float64(result.DeclarationsBefore) * 100
		fmt.Fprintf(w, "  • Removal rate: %.1f%%\n", removedPercentage)
	}
}

// PrintTargets lists the available targets, one per line
func PrintTargets(w io.Writer, targets []string) {
	for _, target := range targets {
		fmt.Fprintln(w, target)
	}
}

// formatPosition formats a position for display
func formatPosition(file string, pos Position) string {
	if file == "" {
		file = "<source>"
	}
	return fmt.Sprintf("%s:%d:%d", file, pos.Line, pos.Column)
}

func outputJSON(w io.Writer, v any) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(jsonData))
	return nil
}
