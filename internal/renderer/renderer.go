// Package renderer converts post markdown to HTML with syntax highlighting and diagram support.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"

	d2renderer "github.com/euforicio/blogmd/internal/renderer/d2"
	"github.com/euforicio/blogmd/internal/renderer/transform"
)

// HighlightStyle is the chroma style used when rendering code blocks. Colours
// come from the per-theme stylesheets, the style only drives token classes.
const HighlightStyle = "github-dark"

// Document is a rendered markdown body.
type Document struct {
	HTML string
	// Frontmatter holds any YAML block found at the top of the body. It is
	// stripped from the HTML and never replaces the JSON metadata.
	Frontmatter map[string]any
}

// Options configure optional renderer features.
type Options struct {
	// Diagrams renders ```d2 fences to inline SVG. Nil leaves them as code blocks.
	Diagrams *d2renderer.Renderer
}

// Service renders markdown into HTML. It holds no cache: every call parses
// the supplied bytes again.
type Service struct {
	md     goldmark.Markdown
	logger *slog.Logger
}

// linkTransformer rewrites relative links to sibling posts (other-post.md) to
// their /blogs/<id> route.
type linkTransformer struct{}

func (t *linkTransformer) Transform(node *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			if dest, ok := PostLink(string(link.Destination)); ok {
				link.Destination = []byte(dest)
			}
		}
		return ast.WalkContinue, nil
	})
}

// PostLink maps a markdown link destination pointing at another post file to
// its page route. ok is false for external, absolute and non-markdown links.
func PostLink(dest string) (string, bool) {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") || isExternalLink(dest) {
		return "", false
	}
	target, fragment, _ := strings.Cut(dest, "#")
	if !strings.HasSuffix(target, ".md") {
		return "", false
	}
	id := strings.TrimSuffix(path.Base(path.Clean(target)), ".md")
	if id == "" || id == "." {
		return "", false
	}
	out := "/blogs/" + id
	if fragment != "" {
		out += "#" + fragment
	}
	return out, true
}

func isExternalLink(dest string) bool {
	return strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://") ||
		strings.HasPrefix(dest, "mailto:")
}

// NewService constructs a markdown renderer with:
//   - GitHub-flavored markdown extensions
//   - chroma syntax highlighting emitting CSS classes
//   - heading anchors
//   - YAML frontmatter stripped from the output
//   - mermaid fences wrapped for client-side hydration, optional D2 diagrams
//   - raw HTML passed through (post bodies are trusted author content)
//
// If logger is nil, the default slog logger is used.
func NewService(logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "renderer")

	highlight := highlighting.NewHighlighting(
		highlighting.WithStyle(HighlightStyle),
		highlighting.WithFormatOptions(
			html.WithLineNumbers(false),
			html.WithClasses(true),
		),
		highlighting.WithWrapperRenderer(transform.FenceWrapper()),
	)

	transformers := []util.PrioritizedValue{
		util.Prioritized(&linkTransformer{}, 100),
	}
	var nodeRenderers []util.PrioritizedValue
	if opts.Diagrams != nil {
		transformers = append(transformers, util.Prioritized(transform.NewD2Transformer(opts.Diagrams, logger), 50))
		nodeRenderers = append(nodeRenderers, util.Prioritized(transform.NewD2BlockRenderer(), 100))
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
			highlight,
			&anchor.Extender{
				Position: anchor.After,
			},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(),
			parser.WithASTTransformers(transformers...),
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
			renderer.WithNodeRenderers(nodeRenderers...),
		),
	)

	return &Service{
		md:     md,
		logger: logger,
	}
}

// Render converts a markdown body to HTML. name identifies the document in
// errors and logs only.
func (s *Service) Render(ctx context.Context, name string, content []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	parserCtx := transform.NewParserContext(ctx, name)
	buf := bytes.NewBuffer(nil)
	if err := s.md.Convert(content, buf, parser.WithContext(parserCtx)); err != nil {
		return Document{}, fmt.Errorf("render markdown %s: %w", name, err)
	}

	doc := Document{HTML: buf.String()}
	if raw := goldmarkmeta.Get(parserCtx); len(raw) > 0 {
		doc.Frontmatter = make(map[string]any, len(raw))
		for k, v := range raw {
			doc.Frontmatter[k] = v
		}
		s.logger.DebugContext(ctx, "frontmatter ignored in favour of metadata file", slog.String("document", name))
	}
	return doc, nil
}
