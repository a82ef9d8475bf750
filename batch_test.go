package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestDiscoverFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/button.tsx":              "",
		"src/util.ts":                 "",
		"src/types.d.ts":              "",
		"src/readme.md":               "",
		"node_modules/pkg/index.ts":   "",
		"src/node_modules/x/index.js": "",
		"lib/shapes.go":               "",
		"lib/shapes_test.go":          "",
		"extracted/src/util/A.ts":     "",
	})

	include, err := compilePatterns(defaultBatchInclude)
	require.NoError(t, err)
	exclude, err := compilePatterns(defaultBatchExclude)
	require.NoError(t, err)

	files, err := discoverFiles(root, filepath.Join(root, "extracted"), include, exclude)
	require.NoError(t, err)

	var rels []string
	for _, file := range files {
		rel, err := filepath.Rel(root, file)
		require.NoError(t, err)
		rels = append(rels, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"lib/shapes.go", "src/button.tsx", "src/util.ts"}, rels)
}

func TestCompilePatterns_Invalid(t *testing.T) {
	_, err := compilePatterns([]string{"src/[a-"})
	assert.ErrorContains(t, err, "invalid pattern")
}

func TestBatchOutputPath(t *testing.T) {
	out, err := batchOutputPath("/repo", "/out", "/repo/src/button.tsx", "Button")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/out/src/button/Button.tsx"), out)
}

func TestRunBatch(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/shapes.ts": `export function Box() {
  return 1;
}

export function Card() {
  return Box();
}
`,
		"src/empty.ts":  "const internal = 1;\n",
		"src/broken.ts": "export function ( {\n",
		"pkg/size.go":   "package pkg\n\nfunc Small() int { return 1 }\n",
	})
	outDir := filepath.Join(root, "out")

	var progress bytes.Buffer
	report, err := RunBatch(NewExtractor(nil), BatchOptions{
		Root:     root,
		OutDir:   outDir,
		Workers:  2,
		Progress: &progress,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Files)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{
		filepath.Join(outDir, "pkg", "size", "Small.go"),
		filepath.Join(outDir, "src", "shapes", "Box.ts"),
		filepath.Join(outDir, "src", "shapes", "Card.ts"),
	}, report.Written)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, filepath.Join(root, "src", "broken.ts"), report.Failures[0].Path)
	assert.Contains(t, report.Failures[0].Error, "parse error")
	assert.NotEmpty(t, progress.String())

	box, err := os.ReadFile(filepath.Join(outDir, "src", "shapes", "Box.ts"))
	require.NoError(t, err)
	assert.Equal(t, "export function Box() {\n  return 1;\n}\n", string(box))

	card, err := os.ReadFile(filepath.Join(outDir, "src", "shapes", "Card.ts"))
	require.NoError(t, err)
	assert.Contains(t, string(card), "export function Box()")
}

func TestRunBatch_SingleTarget(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.ts": "export const Box = 1;\nexport const Card = 2;\n",
		"b.ts": "export const Card = 3;\n",
	})
	outDir := filepath.Join(root, "out")

	report, err := RunBatch(NewExtractor(nil), BatchOptions{Root: root, OutDir: outDir, Target: "Box"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{filepath.Join(outDir, "a", "Box.ts")}, report.Written)
	assert.Empty(t, report.Failures)
}

func TestRunBatch_RequiresOutDir(t *testing.T) {
	_, err := RunBatch(NewExtractor(nil), BatchOptions{Root: t.TempDir()})
	assert.Error(t, err)
}

func TestRunBatch_NoFiles(t *testing.T) {
	report, err := RunBatch(NewExtractor(nil), BatchOptions{Root: t.TempDir(), OutDir: "out"})
	require.NoError(t, err)
	assert.Zero(t, report.Files)
	assert.Empty(t, report.Written)
}
