package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command in-process. Commands share package state, so
// these tests are not parallel.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func fixtureContent() string {
	return filepath.Join("..", "..", "testdata", "blog")
}

func TestRoutesCommand(t *testing.T) {
	out, err := run(t, "routes", "--content", fixtureContent())
	require.NoError(t, err)

	assert.Contains(t, out, "PATH")
	for _, want := range []string{"/about", "/blogs/hello-world", "blogs/linux-signals/index.html", "/404.html"} {
		assert.Contains(t, out, want)
	}
	// header, home, about, list, three posts, 404
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 8)
}

func TestExportCommandWritesMarkdown(t *testing.T) {
	out, err := run(t, "export", "hello-world", "--content", fixtureContent(), "--format", "md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Hello, world"), out)
}

func TestExportCommandRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "export", "hello-world", "--content", fixtureContent(), "--format", "docx")
	require.Error(t, err)
	exportOpts.format = "html"
}

func TestBuildCommand(t *testing.T) {
	dest := t.TempDir()
	out, err := run(t, "build", "--content", fixtureContent(), "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "built 7 pages, 0 PDFs")
	assert.FileExists(t, filepath.Join(dest, "blogs", "cpp-move-semantics", "index.html"))
	assert.FileExists(t, filepath.Join(dest, "assets", "css", "chroma-dark.css"))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}
