// Package transform holds goldmark hooks for the fenced blocks in posts.
package transform

import (
	"strings"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/util"
)

const mermaidLanguage = "mermaid"

// FenceWrapper writes the wrappers for fences chroma left unhighlighted.
// ```mermaid fences become <pre class="mermaid"> for the page script to draw;
// unknown languages keep their name as a language-* class.
func FenceWrapper() highlighting.WrapperRenderer {
	return func(w util.BufWriter, ctx highlighting.CodeBlockContext, entering bool) {
		if ctx.Highlighted() {
			return
		}
		raw, _ := ctx.Language()
		lang := strings.ToLower(strings.TrimSpace(string(raw)))

		switch {
		case lang == mermaidLanguage && entering:
			_, _ = w.WriteString(`<pre class="mermaid">`)
		case lang == mermaidLanguage:
			_, _ = w.WriteString("</pre>\n")
		case entering && lang == "":
			_, _ = w.WriteString(`<pre class="code-plain"><code>`)
		case entering:
			_, _ = w.WriteString(`<pre class="code-plain"><code class="language-`)
			_, _ = w.Write(util.EscapeHTML([]byte(lang)))
			_, _ = w.WriteString(`">`)
		default:
			_, _ = w.WriteString("</code></pre>\n")
		}
	}
}
