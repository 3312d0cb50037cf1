package exporter

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	d2renderer "github.com/euforicio/blogmd/internal/renderer/d2"
	"github.com/euforicio/blogmd/internal/theme"
)

// pdfTheme is the palette PDFs are printed in.
const pdfTheme = theme.Light

// diagramEncoder prepares a post's markdown for the PDF renderer, which has no
// notion of diagrams: ```d2 fences are swapped for inline PNG images.
// Mermaid fences need a browser to draw and stay as code.
type diagramEncoder struct {
	d2     *d2renderer.Renderer
	logger *slog.Logger
}

// d2Fence is the byte range of one ```d2 fence, opening and closing lines
// included.
type d2Fence struct {
	start, end int
	prefix     string
	source     string
}

// encode returns raw with every renderable d2 fence replaced by an image. A
// fence that fails to render is logged against its post and left unchanged.
func (e *diagramEncoder) encode(ctx context.Context, postID string, raw []byte) ([]byte, error) {
	if e == nil || e.d2 == nil {
		return raw, nil
	}
	fences := findD2Fences(raw)
	if len(fences) == 0 {
		return raw, nil
	}

	var out bytes.Buffer
	last := 0
	for i, f := range fences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		diagram := d2renderer.Diagram{PostID: postID, Index: i + 1, Source: f.source}
		img, err := e.image(ctx, diagram)
		if err != nil {
			e.logger.WarnContext(ctx, "diagram kept as code in PDF",
				slog.String("post", postID), slog.Int("diagram", diagram.Index), slog.Any("err", err))
			continue
		}
		out.Write(raw[last:f.start])
		// blank line after the image so following text starts a new paragraph
		out.WriteString(f.prefix + img + "\n" + strings.TrimRight(f.prefix, " \t") + "\n")
		last = f.end
	}
	out.Write(raw[last:])
	return out.Bytes(), nil
}

func (e *diagramEncoder) image(ctx context.Context, diagram d2renderer.Diagram) (string, error) {
	svgs, err := e.d2.Render(ctx, diagram, pdfTheme)
	if err != nil {
		return "", err
	}
	data, err := svgToPNG([]byte(svgs[pdfTheme]))
	if err != nil {
		return "", &d2renderer.Error{Diagram: diagram, Err: err}
	}
	return fmt.Sprintf("![Diagram %d](data:image/png;base64,%s)",
		diagram.Index, base64.StdEncoding.EncodeToString(data)), nil
}

// findD2Fences locates d2 fences with the markdown parser, so fences nested in
// lists or quotes are found and code that merely shows a fence is not.
func findD2Fences(raw []byte) []d2Fence {
	doc := goldmark.DefaultParser().Parse(text.NewReader(raw))

	var fences []d2Fence
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if block.Info == nil || !strings.EqualFold(strings.TrimSpace(string(block.Language(raw))), "d2") {
			return ast.WalkSkipChildren, nil
		}

		start := lineStart(raw, block.Info.Segment.Start)
		bodyEnd := nextLine(raw, block.Info.Segment.Stop)
		var src bytes.Buffer
		lines := block.Lines()
		for i := range lines.Len() {
			seg := lines.At(i)
			src.Write(seg.Value(raw))
			bodyEnd = seg.Stop
			if bodyEnd > 0 && raw[bodyEnd-1] != '\n' {
				bodyEnd = nextLine(raw, bodyEnd)
			}
		}

		end := bodyEnd
		if closing := strings.TrimLeft(string(raw[bodyEnd:nextLine(raw, bodyEnd)]), " \t>"); strings.HasPrefix(closing, "```") || strings.HasPrefix(closing, "~~~") {
			end = nextLine(raw, bodyEnd)
		}

		opening := string(raw[start:block.Info.Segment.Start])
		prefix := ""
		if i := strings.IndexAny(opening, "`~"); i > 0 {
			prefix = opening[:i]
		}
		fences = append(fences, d2Fence{start: start, end: end, prefix: prefix, source: src.String()})
		return ast.WalkSkipChildren, nil
	})
	return fences
}

func lineStart(raw []byte, pos int) int {
	return bytes.LastIndexByte(raw[:pos], '\n') + 1
}

// nextLine returns the offset just past the newline ending the line at pos.
func nextLine(raw []byte, pos int) int {
	if i := bytes.IndexByte(raw[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(raw)
}

// svgToPNG rasterizes an SVG at its natural size.
func svgToPNG(svg []byte) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}

	width := int(math.Ceil(icon.ViewBox.W))
	height := int(math.Ceil(icon.ViewBox.H))
	if width <= 0 || height <= 0 {
		width, height = 800, 600
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
