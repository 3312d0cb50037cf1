package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingIsOptional(t *testing.T) {
	cfg := Default()
	require.NoError(t, LoadFile(&cfg, filepath.Join(t.TempDir(), "nope.toml"), false))
	assert.Equal(t, Default(), cfg)

	err := LoadFile(&cfg, filepath.Join(t.TempDir(), "nope.toml"), true)
	require.Error(t, err)
}

func TestLoadFileParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blogmd.toml")
	content := `
content_dir = "site"
out = "public"
port = 8080

[site]
title = "Notes"
author = "A. Writer"
base_url = "https://example.com/"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(&cfg, path, true))
	assert.Equal(t, "site", cfg.ContentDir)
	assert.Equal(t, "public", cfg.StaticOutput)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "Notes", cfg.Site.Title)
	assert.Equal(t, "A. Writer", cfg.Site.Author)
	// untouched keys keep their defaults
	assert.Equal(t, "blogs", cfg.PostsDir)
}

func TestLoadFileRejectsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blogmd.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = ["), 0o644))

	cfg := Default()
	assert.Error(t, LoadFile(&cfg, path, true))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BLOGMD_PORT", "9090")
	t.Setenv("BLOGMD_VERBOSE", "true")
	t.Setenv("BLOGMD_TITLE", "  ")
	t.Setenv("BLOGMD_AUTO_OPEN", "not-a-bool")

	cfg := Default()
	ApplyEnvOverrides(&cfg)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, Default().Site.Title, cfg.Site.Title)
	assert.True(t, cfg.AutoOpen)
}

func TestApplyFlagsOnlyCopiesChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--out", "public", "-p", "3000"}))

	cfg := Default()
	cfg.ContentDir = "from-file"
	require.NoError(t, ApplyFlags(fs, &cfg))

	assert.Equal(t, "public", cfg.StaticOutput)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "from-file", cfg.ContentDir)
}

func TestFinalizeResolvesDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.ContentDir = root
	cfg.Site.BaseURL = "https://example.com/"

	require.NoError(t, Finalize(&cfg))
	assert.Equal(t, filepath.Join(root, "blogs"), cfg.PostsDir)
	assert.Equal(t, filepath.Join(root, "blogs", "metadata"), cfg.MetadataDir)
	assert.Equal(t, "https://example.com", cfg.Site.BaseURL)
}

func TestFinalizeValidation(t *testing.T) {
	cfg := Default()
	cfg.Port = 70000
	assert.Error(t, Finalize(&cfg))

	cfg = Default()
	cfg.Site.BaseURL = "example.com"
	assert.Error(t, Finalize(&cfg))
}
