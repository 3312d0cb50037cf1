package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"
	"regexp"
	"slices"
	"strings"

	pdf "github.com/stephenafamo/goldmark-pdf"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/euforicio/blogmd/internal/content"
	"github.com/euforicio/blogmd/internal/site"
	"github.com/euforicio/blogmd/internal/theme"
)

// Format is a single-post export format.
type Format string

const (
	FormatHTML      Format = "html"
	FormatMarkdown  Format = "markdown"
	FormatPlainText Format = "txt"
	FormatPDF       Format = "pdf"
)

// ErrUnsupportedFormat is returned for formats outside ValidFormats.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ValidFormats returns the list of supported export formats.
func ValidFormats() []Format {
	return []Format{FormatHTML, FormatMarkdown, FormatPlainText, FormatPDF}
}

// ParseFormat normalises a format name. "md" is accepted for markdown.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "md" {
		f = FormatMarkdown
	}
	if !slices.Contains(ValidFormats(), f) {
		return "", fmt.Errorf("%w: %q (allowed: html, markdown, txt, pdf)", ErrUnsupportedFormat, s)
	}
	return f, nil
}

// ExportPost writes the post id to w in format. Missing posts return an error
// matching content.ErrNotFound.
func (e *Exporter) ExportPost(ctx context.Context, id string, format Format, w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return err
	}
	post, raw, err := e.posts.Source(ctx, id)
	if err != nil {
		return err
	}

	switch format {
	case FormatHTML:
		return e.exportHTML(ctx, post, raw, w)
	case FormatMarkdown:
		_, err := w.Write(raw)
		return err
	case FormatPlainText:
		return e.exportPlainText(ctx, post, raw, w)
	case FormatPDF:
		return e.exportPDF(ctx, id, raw, w)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

var standaloneTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Meta.Title}}</title>
  <meta name="description" content="{{.Meta.Description}}">
  <meta name="keywords" content="{{.Meta.Keywords}}">
  <meta name="author" content="{{.Post.Author}}">
  <style>
    body { font-family: system-ui, -apple-system, "Segoe UI", sans-serif; line-height: 1.6; max-width: 50rem; margin: 0 auto; padding: 2rem; color: #292524; }
    pre { padding: 1em; border-radius: 5px; overflow-x: auto; }
    blockquote { border-left: 4px solid #d6d3d1; padding-left: 1em; margin-left: 0; color: #57534e; }
    table { border-collapse: collapse; margin: 1em 0; }
    th, td { border: 1px solid #d6d3d1; padding: 0.5em; text-align: left; }
    img, svg { max-width: 100%; height: auto; }
    .byline { color: #57534e; }
    .d2-variant[data-theme="dark"] { display: none; }
{{.ChromaCSS}}
  </style>
</head>
<body>
<header>
  <h1>{{.Post.Title}}</h1>
  <p class="byline">By {{.Post.Author}}, {{.Post.Date}}</p>
</header>
<article>
{{.HTML}}
</article>
</body>
</html>
`))

func (e *Exporter) exportHTML(ctx context.Context, post content.PostMetadata, raw []byte, w io.Writer) error {
	doc, err := e.renderer.Render(ctx, post.ID, raw)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	css, err := site.ChromaCSS(theme.Light)
	if err != nil {
		return err
	}

	data := struct {
		Meta      site.PageMeta
		Post      content.PostMetadata
		HTML      template.HTML
		ChromaCSS template.CSS
	}{
		Meta:      site.PostPageMeta(post),
		Post:      post,
		HTML:      template.HTML(doc.HTML), //nolint:gosec // HTML from trusted renderer
		ChromaCSS: template.CSS(css),       //nolint:gosec // generated by chroma
	}
	return standaloneTemplate.Execute(w, data)
}

func (e *Exporter) exportPlainText(ctx context.Context, post content.PostMetadata, raw []byte, w io.Writer) error {
	doc, err := e.renderer.Render(ctx, post.ID, raw)
	if err != nil {
		return fmt.Errorf("render text: %w", err)
	}
	header := post.Title + "\n" + strings.Repeat("=", len([]rune(post.Title))) + "\n\n"
	_, err = io.WriteString(w, header+stripHTML(doc.HTML)+"\n")
	return err
}

func (e *Exporter) exportPDF(ctx context.Context, id string, raw []byte, w io.Writer) error {
	body, err := e.diagrams.encode(ctx, id, raw)
	if err != nil {
		return fmt.Errorf("encode diagrams: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle(site.ChromaStyle(pdfTheme)),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRenderer(pdf.New()),
	)

	var buf bytes.Buffer
	if err := md.Convert(body, &buf); err != nil {
		return fmt.Errorf("convert markdown to PDF: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

var (
	embeddedCode = regexp.MustCompile(`(?is)<(script|style|svg)\b.*?</(script|style|svg)\s*>`)
	headingLink  = regexp.MustCompile(`<a class="anchor"[^>]*>[^<]*</a>`)
	blockTagEnd  = regexp.MustCompile(`(?i)</(p|h[1-6]|li|pre|tr|blockquote|div)>|<br\s*/?>`)
	anyTag       = regexp.MustCompile(`<[^>]*>`)
	excessBlanks = regexp.MustCompile(`\n{3,}`)
)

// stripHTML reduces rendered HTML to readable text. Script and style bodies
// are dropped, block ends become line breaks and entities are decoded.
func stripHTML(s string) string {
	s = embeddedCode.ReplaceAllString(s, "")
	s = headingLink.ReplaceAllString(s, "")
	s = blockTagEnd.ReplaceAllString(s, "$0\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = excessBlanks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ContentType returns the MIME type for the given format.
func ContentType(format Format) string {
	switch format {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPlainText:
		return "text/plain; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the file extension for the given format.
func FileExtension(format Format) string {
	switch format {
	case FormatHTML:
		return ".html"
	case FormatMarkdown:
		return ".md"
	case FormatPlainText:
		return ".txt"
	case FormatPDF:
		return ".pdf"
	default:
		return ""
	}
}
