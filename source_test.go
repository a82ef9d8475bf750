package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "component.ts")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestLoadSource(t *testing.T) {
	path := writeSource(t, "\xef\xbb\xbfexport const A = 1;\r\n")

	source, err := LoadSource(path, "")
	require.NoError(t, err)

	snap := source.Current()
	assert.Equal(t, path, snap.Path)
	assert.Equal(t, LanguageTypeScript, snap.Language)
	assert.Equal(t, "export const A = 1;\n", string(snap.Text))
	assert.Equal(t, contentHash(snap.Text), snap.Hash)
}

func TestLoadSource_Errors(t *testing.T) {
	_, err := LoadSource(filepath.Join(t.TempDir(), "missing.ts"), "")
	assert.ErrorContains(t, err, "reading source")

	_, err = LoadSource("styles.css", "")
	assert.ErrorContains(t, err, "unsupported extension")
}

func TestSource_ReloadNotifiesOnChange(t *testing.T) {
	path := writeSource(t, "export const A = 1;\n")
	source, err := LoadSource(path, "")
	require.NoError(t, err)

	updates, unsubscribe := source.Subscribe()
	defer unsubscribe()

	require.NoError(t, source.Reload(context.Background()))
	select {
	case <-updates:
		t.Fatal("unchanged content should not notify")
	default:
	}

	require.NoError(t, os.WriteFile(path, []byte("export const A = 2;\n"), 0o644))
	require.NoError(t, source.Reload(context.Background()))

	select {
	case snap := <-updates:
		assert.Equal(t, "export const A = 2;\n", string(snap.Text))
		assert.Same(t, snap, source.Current())
	default:
		t.Fatal("expected a new snapshot")
	}
}

func TestSource_SlowSubscriberGetsNewest(t *testing.T) {
	path := writeSource(t, "export const A = 1;\n")
	source, err := LoadSource(path, "")
	require.NoError(t, err)

	updates, unsubscribe := source.Subscribe()
	defer unsubscribe()

	for _, text := range []string{"export const A = 2;\n", "export const A = 3;\n"} {
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
		require.NoError(t, source.Reload(context.Background()))
	}

	snap := <-updates
	assert.Equal(t, "export const A = 3;\n", string(snap.Text))
	assert.Empty(t, updates)
}

func TestSource_ReloadErrorKeepsSnapshot(t *testing.T) {
	path := writeSource(t, "export const A = 1;\n")
	source, err := LoadSource(path, "")
	require.NoError(t, err)
	before := source.Current()

	require.NoError(t, os.Remove(path))
	assert.Error(t, source.Reload(context.Background()))
	assert.Same(t, before, source.Current())
}

func TestSource_UnsubscribeStopsUpdates(t *testing.T) {
	path := writeSource(t, "export const A = 1;\n")
	source, err := LoadSource(path, "")
	require.NoError(t, err)

	updates, unsubscribe := source.Subscribe()
	unsubscribe()
	unsubscribe()

	require.NoError(t, os.WriteFile(path, []byte("export const A = 2;\n"), 0o644))
	require.NoError(t, source.Reload(context.Background()))
	assert.Empty(t, updates)
}

func TestSource_WatchReloadsOnWrite(t *testing.T) {
	path := writeSource(t, "export const A = 1;\n")
	source, err := LoadSource(path, "")
	require.NoError(t, err)

	updates, unsubscribe := source.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, source.Watch(ctx, 20*time.Millisecond))

	require.NoError(t, os.WriteFile(path, []byte("export const A = 2;\n"), 0o644))

	select {
	case snap := <-updates:
		assert.Equal(t, "export const A = 2;\n", string(snap.Text))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}
