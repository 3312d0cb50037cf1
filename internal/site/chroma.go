package site

import (
	"bytes"
	"fmt"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/euforicio/blogmd/internal/theme"
)

// ChromaStyle names the chroma style used for code blocks under t.
func ChromaStyle(t theme.Theme) string {
	if t == theme.Light {
		return "github"
	}
	return "github-dark"
}

// ChromaCSS returns the syntax highlighting stylesheet for t. Rendered code
// uses class names only, so switching stylesheets recolours it.
func ChromaCSS(t theme.Theme) ([]byte, error) {
	name := ChromaStyle(t)
	style := styles.Get(name)
	if style == nil || style.Name != name {
		return nil, fmt.Errorf("chroma style %q not found", name)
	}
	formatter := html.New(
		html.WithClasses(true),
		html.ClassPrefix(""),
	)
	var buf bytes.Buffer
	if err := formatter.WriteCSS(&buf, style); err != nil {
		return nil, fmt.Errorf("write %s css: %w", name, err)
	}
	return buf.Bytes(), nil
}
