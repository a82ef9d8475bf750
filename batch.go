package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/schollz/progressbar/v3"
)

var (
	defaultBatchInclude = []string{"**.{ts,tsx,mts,cts,js,jsx,mjs,cjs,go}"}
	defaultBatchExclude = []string{
		"{node_modules,vendor,.git}/**",
		"**/{node_modules,vendor,.git}/**",
		"**.d.ts",
		"**_test.go",
	}
)

// BatchOptions configures a batch run over a directory tree
type BatchOptions struct {
	Root    string
	OutDir  string
	Include []string
	Exclude []string
	// Target restricts the run to one export name; files without it are skipped
	Target  string
	Workers int
	// Progress receives the progress bar; nil disables it
	Progress io.Writer
}

// BatchFailure is a file that could not be processed
type BatchFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BatchReport summarizes a batch run
type BatchReport struct {
	Files    int            `json:"files"`
	Skipped  int            `json:"skipped"`
	Written  []string       `json:"written"`
	Failures []BatchFailure `json:"failures"`
}

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, compiledPattern{pattern: pattern, glob: g})
	}
	return compiled, nil
}

// matchesAnyPattern checks if a slash-separated relative path matches any pattern
func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}
	return false
}

// discoverFiles walks root and returns the files selected by the patterns,
// sorted
func discoverFiles(root, outDir string, include, exclude []compiledPattern) ([]string, error) {
	absOut := ""
	if outDir != "" {
		absOut, _ = filepath.Abs(outDir)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath == "." {
				return nil
			}
			if abs, _ := filepath.Abs(path); abs == absOut {
				return filepath.SkipDir
			}
			// a directory is skipped when anything inside it would be excluded
			if matchesAnyPattern(relPath+"/_", exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAnyPattern(relPath, exclude) || !matchesAnyPattern(relPath, include) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// batchOutputPath returns out/<rel-path-without-ext>/<target><ext>
func batchOutputPath(root, outDir, path, target string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(rel)
	return filepath.Join(outDir, strings.TrimSuffix(rel, ext), target+ext), nil
}

type batchResult struct {
	path    string
	written []string
	skipped bool
	err     error
}

// RunBatch extracts every export (or only opts.Target) of every selected file
// into opts.OutDir. Per-file failures are collected in the report.
func RunBatch(extractor *Extractor, opts BatchOptions) (*BatchReport, error) {
	if opts.OutDir == "" {
		return nil, errors.New("batch output directory is required")
	}
	if len(opts.Include) == 0 {
		opts.Include = defaultBatchInclude
	}
	if len(opts.Exclude) == 0 {
		opts.Exclude = defaultBatchExclude
	}

	include, err := compilePatterns(opts.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compilePatterns(opts.Exclude)
	if err != nil {
		return nil, err
	}

	files, err := discoverFiles(opts.Root, opts.OutDir, include, exclude)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Files: len(files), Written: []string{}, Failures: []BatchFailure{}}
	if len(files) == 0 {
		return report, nil
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("Extracting exports"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files/s"),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(opts.Progress)
			}),
		)
	}

	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = min(numWorkers, len(files))

	workCh := make(chan string, len(files))
	for _, path := range files {
		workCh <- path
	}
	close(workCh)

	resultCh := make(chan batchResult, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range workCh {
				resultCh <- extractFile(extractor, opts, path)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		if bar != nil {
			_ = bar.Add(1)
		}
		switch {
		case res.err != nil:
			report.Failures = append(report.Failures, BatchFailure{Path: res.path, Error: res.err.Error()})
		case res.skipped:
			report.Skipped++
		default:
			report.Written = append(report.Written, res.written...)
		}
	}

	sort.Strings(report.Written)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Path < report.Failures[j].Path
	})
	return report, nil
}

// extractFile writes one output file per selected export of path
func extractFile(extractor *Extractor, opts BatchOptions, path string) batchResult {
	res := batchResult{path: path}

	src, err := os.ReadFile(path)
	if err != nil {
		res.err = fmt.Errorf("reading source: %w", err)
		return res
	}

	targets, err := extractor.ListTargets(path, "", src)
	if err != nil {
		res.err = err
		return res
	}
	if opts.Target != "" {
		if !contains(targets, opts.Target) {
			res.skipped = true
			return res
		}
		targets = []string{opts.Target}
	}
	if len(targets) == 0 {
		res.skipped = true
		return res
	}

	for _, target := range targets {
		result, err := extractor.Extract(ExtractionRequest{Filename: path, Source: src, Target: target})
		if err != nil {
			res.err = fmt.Errorf("extracting %s: %w", target, err)
			return res
		}

		outPath, err := batchOutputPath(opts.Root, opts.OutDir, path, target)
		if err != nil {
			res.err = err
			return res
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			res.err = fmt.Errorf("creating output directory: %w", err)
			return res
		}
		if err := os.WriteFile(outPath, []byte(result.Code), 0o644); err != nil {
			res.err = fmt.Errorf("writing %s: %w", outPath, err)
			return res
		}
		res.written = append(res.written, outPath)
	}
	return res
}
