package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".shakeout.yaml")

	require.NoError(t, writeDefaultConfig(path))
	assert.ErrorContains(t, writeDefaultConfig(path), "already exists")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	assert.Equal(t, "refcount", v.GetString("mode"))
	assert.Equal(t, "127.0.0.1:8080", v.GetString("serve.addr"))
	assert.Equal(t, 256, v.GetInt("cache.size"))
	assert.Equal(t, defaultBatchInclude, v.GetStringSlice("batch.include"))
	assert.Equal(t, defaultBatchExclude, v.GetStringSlice("batch.exclude"))
}

func TestLoadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("target", " Box ")
	viper.Set("language", "TS")
	viper.Set("mode", "closure")
	viper.Set("max-iterations", 7)

	config, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "Box", config.Target)
	assert.Equal(t, LanguageTypeScript, config.Language)
	assert.Equal(t, ModeClosure, config.Mode)
	assert.Equal(t, 7, config.MaxIterations)

	viper.Set("mode", "eager")
	_, err = loadConfig()
	assert.ErrorContains(t, err, "unknown mode")
}

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := &cobra.Command{}
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := runExtract(cmd, args)
	return stdout.String(), stderr.String(), err
}

func TestRunExtract(t *testing.T) {
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "shapes.ts")
	require.NoError(t, os.WriteFile(path, []byte("export const Box = 1;\nexport const Card = 2;\n"), 0o644))

	viper.Set("target", "Card")
	stdout, _, err := runCommand(t, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "export const Card = 2;")
	assert.NotContains(t, stdout, "export const Box")

	viper.Set("json", true)
	stdout, _, err = runCommand(t, path)
	require.NoError(t, err)

	var result ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "export const Card = 2;\n", result.Code)

	viper.Set("target", "Missing")
	_, _, err = runCommand(t, path)
	assert.ErrorContains(t, err, "extraction failed")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "Shakeout dev")
	assert.Contains(t, out.String(), "Go version:")
}
