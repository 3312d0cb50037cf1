package transform

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	d2renderer "github.com/euforicio/blogmd/internal/renderer/d2"
	"github.com/euforicio/blogmd/internal/theme"
)

const d2Language = "d2"

var documentKey = parser.NewContextKey()

type document struct {
	ctx    context.Context
	postID string
}

// NewParserContext returns a goldmark parser context carrying the request
// context and the id of the post being parsed, so diagram renders can be
// cancelled and their failures traced back to the post.
func NewParserContext(ctx context.Context, postID string) parser.Context {
	pc := parser.NewContext()
	pc.Set(documentKey, document{ctx: ctx, postID: postID})
	return pc
}

func documentFrom(pc parser.Context) document {
	if pc != nil {
		if doc, ok := pc.Get(documentKey).(document); ok && doc.ctx != nil {
			return doc
		}
	}
	return document{ctx: context.Background()}
}

// D2Transformer replaces ```d2 fences with diagram nodes holding one SVG per
// site theme.
type D2Transformer struct {
	renderer *d2renderer.Renderer
	logger   *slog.Logger
}

// NewD2Transformer constructs an AST transformer. A nil renderer makes it a
// no-op and the fences stay ordinary code blocks.
func NewD2Transformer(renderer *d2renderer.Renderer, logger *slog.Logger) parser.ASTTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &D2Transformer{renderer: renderer, logger: logger}
}

// Transform implements parser.ASTTransformer.
func (t *D2Transformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	if t.renderer == nil || node == nil {
		return
	}
	doc := documentFrom(pc)

	var fences []*ast.FencedCodeBlock
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if block, ok := n.(*ast.FencedCodeBlock); ok {
			if isD2Block(block, reader.Source()) {
				fences = append(fences, block)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for i, block := range fences {
		diagram := d2renderer.Diagram{
			PostID: doc.postID,
			Index:  i + 1,
			Source: fenceSource(block, reader.Source()),
		}
		replacement := &D2Block{Diagram: diagram}
		variants, err := t.renderer.Render(doc.ctx, diagram)
		if err != nil {
			t.logger.Warn("keeping d2 source after failed render",
				slog.String("post", diagram.PostID), slog.Int("diagram", diagram.Index), slog.Any("err", err))
			replacement.Error = err.Error()
		} else {
			replacement.Variants = variants
		}
		replacement.SetBlankPreviousLines(block.HasBlankPreviousLines())
		block.Parent().ReplaceChild(block.Parent(), block, replacement)
	}
}

func isD2Block(block *ast.FencedCodeBlock, source []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(block.Language(source))), d2Language)
}

func fenceSource(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := range lines.Len() {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// D2Block is a rendered diagram. Either Variants or Error is set.
type D2Block struct {
	ast.BaseBlock
	Diagram  d2renderer.Diagram
	Variants map[theme.Theme]string
	Error    string
}

// KindD2Block is the node kind of D2Block.
var KindD2Block = ast.NewNodeKind("D2Block")

// Kind implements ast.Node.
func (b *D2Block) Kind() ast.NodeKind { return KindD2Block }

// IsRaw implements ast.Node.
func (b *D2Block) IsRaw() bool { return true }

// Dump implements ast.Node.
func (b *D2Block) Dump(source []byte, level int) {
	info := map[string]string{
		"Diagram":  b.Diagram.String(),
		"Variants": fmt.Sprint(len(b.Variants)),
	}
	if b.Error != "" {
		info["Error"] = b.Error
	}
	ast.DumpHelper(b, source, level, info, nil)
}

// D2BlockRenderer writes D2Block nodes as a figure with one child per theme;
// the stylesheet shows the one matching the page theme.
type D2BlockRenderer struct{}

// NewD2BlockRenderer returns the HTML renderer for D2Block nodes.
func NewD2BlockRenderer() renderer.NodeRenderer {
	return &D2BlockRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *D2BlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindD2Block, r.renderD2Block)
}

func (r *D2BlockRenderer) renderD2Block(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	block := node.(*D2Block)

	var b strings.Builder
	if block.Error != "" {
		fmt.Fprintf(&b, `<figure class="d2-block d2-failed" id="d2-%d">`, block.Diagram.Index)
		b.WriteString(`<figcaption class="d2-error">` + html.EscapeString(block.Error) + `</figcaption>`)
		b.WriteString(`<pre><code class="language-d2">` + html.EscapeString(block.Diagram.Source) + `</code></pre>`)
	} else {
		fmt.Fprintf(&b, `<figure class="d2-block" id="d2-%d">`, block.Diagram.Index)
		for _, t := range []theme.Theme{theme.Light, theme.Dark} {
			if svg, ok := block.Variants[t]; ok {
				b.WriteString(`<div class="d2-variant" data-theme="` + t.String() + `">` + svg + `</div>`)
			}
		}
	}
	b.WriteString("</figure>\n")

	if _, err := w.WriteString(b.String()); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}
