package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(text string) *Snapshot {
	return &Snapshot{
		Path:     "component.ts",
		Language: LanguageTypeScript,
		Text:     []byte(text),
		Hash:     contentHash([]byte(text)),
	}
}

func TestCachedExtractor_ReusesResults(t *testing.T) {
	cached, err := NewCachedExtractor(NewExtractor(nil), 8)
	require.NoError(t, err)

	snap := testSnapshot("export function Box() {}\nexport function Card() {}\n")

	first, err := cached.Extract(snap, "Box", "")
	require.NoError(t, err)
	second, err := cached.Extract(snap, "Box", ModeRefCount)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cached.Len())

	_, err = cached.Extract(snap, "Card", "")
	require.NoError(t, err)
	_, err = cached.Extract(snap, "Box", ModeClosure)
	require.NoError(t, err)
	assert.Equal(t, 3, cached.Len())
}

func TestCachedExtractor_NewContentMisses(t *testing.T) {
	cached, err := NewCachedExtractor(NewExtractor(nil), 8)
	require.NoError(t, err)

	first, err := cached.Extract(testSnapshot("export const Box = 1;\n"), "Box", "")
	require.NoError(t, err)
	second, err := cached.Extract(testSnapshot("export const Box = 2;\n"), "Box", "")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "export const Box = 2;\n", second.Code)
}

func TestCachedExtractor_ErrorsAreNotCached(t *testing.T) {
	cached, err := NewCachedExtractor(NewExtractor(nil), 0)
	require.NoError(t, err)

	_, err = cached.Extract(testSnapshot("export const Box = 1;\n"), "Missing", "")
	require.Error(t, err)
	assert.Zero(t, cached.Len())
}

func TestCachedExtractor_EvictsOldest(t *testing.T) {
	cached, err := NewCachedExtractor(NewExtractor(nil), 1)
	require.NoError(t, err)

	snap := testSnapshot("export const A = 1;\nexport const B = 2;\n")
	_, err = cached.Extract(snap, "A", "")
	require.NoError(t, err)
	_, err = cached.Extract(snap, "B", "")
	require.NoError(t, err)

	assert.Equal(t, 1, cached.Len())
}
