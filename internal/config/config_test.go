package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, used, err := Load(LoadOptions{SearchDirs: []string{t.TempDir()}})
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lighthouse.yaml"), []byte(`
listen: ":4000"
recipe:
  base_image: python:3.12-slim
  system_packages: []
  default_port: 9000
  env:
    - name: CHROMA_PATH
      value: db
`), 0o644))

	cfg, used, err := Load(LoadOptions{SearchDirs: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lighthouse.yaml"), used)
	assert.Equal(t, ":4000", cfg.Listen)
	assert.Equal(t, "python:3.12-slim", cfg.Recipe.BaseImage)
	assert.Empty(t, cfg.Recipe.SystemPackages)
	assert.Equal(t, 9000, cfg.Recipe.DefaultPort)
	assert.Equal(t, []domain.EnvVar{{Name: "CHROMA_PATH", Value: "db"}}, cfg.Recipe.Env)
	// untouched keys keep their defaults
	assert.Equal(t, "/app", cfg.Recipe.WorkDir)
	assert.Equal(t, "main:app", cfg.Recipe.App)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LIGHTHOUSE_RECIPE_APP", "service:api")
	t.Setenv("LIGHTHOUSE_LOG_LEVEL", "debug")
	t.Setenv("LIGHTHOUSE_RECIPE_LAUNCHER", "ghcr.io/melih/lighthouse:1.4")

	cfg, _, err := Load(LoadOptions{SearchDirs: []string{t.TempDir()}})
	require.NoError(t, err)
	assert.Equal(t, "service:api", cfg.Recipe.App)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ghcr.io/melih/lighthouse:1.4", cfg.Recipe.Launcher)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, _, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestLoadInvalidRecipe(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lighthouse.yaml"), []byte("recipe:\n  workdir: relative\n"), 0o644))

	_, _, err := Load(LoadOptions{SearchDirs: []string{dir}})
	assert.ErrorIs(t, err, domain.ErrInvalidRecipe)
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Default()))
	assert.Contains(t, buf.String(), "base_image: python:3.11-slim")

	dir := t.TempDir()
	path := filepath.Join(dir, "lighthouse.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	cfg, _, err := Load(LoadOptions{File: path})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
